// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time.
package assets

import (
	_ "embed"
	"strings"
)

//go:embed prompts/tryon.txt
var tryOnPrompt string

// TryOnPrompt is the instruction sent after the person, top and bottom
// images, in that order.
func TryOnPrompt() string {
	return strings.TrimSpace(tryOnPrompt)
}
