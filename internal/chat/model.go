package chat

import "os"

// Gemini image model IDs
//
// | Model Name             | API Model ID               | Use Case                    |
// |------------------------|----------------------------|-----------------------------|
// | Gemini 2.5 Flash Image | gemini-2.5-flash-image     | Fast image generation/edit  |
// | Gemini 3 Pro Image     | gemini-3-pro-image-preview | Advanced image generation   |
// | Gemini 3 Flash         | gemini-3-flash-preview     | Text-only key validation    |
const (
	// ModelGemini25FlashImage is the default try-on model.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"

	// ModelGemini3ProImage is for advanced image generation/edit.
	ModelGemini3ProImage = "gemini-3-pro-image-preview"

	// ModelGemini3FlashPreview is a cheap text model used to validate the API key.
	ModelGemini3FlashPreview = "gemini-3-flash-preview"
)

// DefaultModelName is the default Gemini model to use.
// Can be overridden via GEMINI_MODEL environment variable.
const DefaultModelName = ModelGemini25FlashImage

// GetModelName returns the Gemini model to use, resolved from:
// 1. GEMINI_MODEL environment variable (if set)
// 2. Default: gemini-2.5-flash-image
func GetModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}
