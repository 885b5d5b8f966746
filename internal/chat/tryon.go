package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/virtual-tryon/internal/assets"
	"github.com/fpang/virtual-tryon/internal/auth"
	"github.com/fpang/virtual-tryon/internal/encoder"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// TryOnInstruction returns the text sent after the three images. Image
// order matters: person, top, bottom.
func TryOnInstruction() string {
	return assets.TryOnPrompt()
}

// DefaultTryOnTimeout bounds one generation call. Image generation
// usually takes 10-30s.
const DefaultTryOnTimeout = 120 * time.Second

// ContentGenerator is the subset of *genai.Models used by TryOnClient.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ClientFactory builds a ContentGenerator for an API key.
type ClientFactory func(ctx context.Context, apiKey string) (ContentGenerator, error)

// TryOnClient composes a person photo with a top and a bottom garment.
type TryOnClient struct {
	model   string
	timeout time.Duration
	factory ClientFactory
}

// TryOnOption configures a TryOnClient.
type TryOnOption func(*TryOnClient)

// WithModel overrides the Gemini model.
func WithModel(model string) TryOnOption {
	return func(c *TryOnClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) TryOnOption {
	return func(c *TryOnClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClientFactory replaces how the underlying Gemini client is built.
func WithClientFactory(f ClientFactory) TryOnOption {
	return func(c *TryOnClient) {
		c.factory = f
	}
}

// NewTryOnClient creates a try-on client. The API key is not read here but
// on every Generate call.
func NewTryOnClient(opts ...TryOnOption) *TryOnClient {
	c := &TryOnClient{
		model:   GetModelName(),
		timeout: DefaultTryOnTimeout,
		factory: NewGeminiModels,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *TryOnClient) Model() string {
	return c.model
}

// NewGeminiClient creates a Gemini API client for apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// NewGeminiModels is the default ClientFactory.
func NewGeminiModels(ctx context.Context, apiKey string) (ContentGenerator, error) {
	client, err := NewGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// Generate sends the three images and the fixed instruction in one request
// and returns the base64 payload of the first image part in the response.
// Exactly one request is issued; there is no retry.
func (c *TryOnClient) Generate(ctx context.Context, person, top, bottom *encoder.EncodedImage) (string, error) {
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		return "", &GenerationError{Kind: KindConfiguration, Message: MessageCredentialNotSet, Err: err}
	}

	parts := make([]*genai.Part, 0, 4)
	for _, img := range []*encoder.EncodedImage{person, top, bottom} {
		part, err := inlineImagePart(img)
		if err != nil {
			return "", c.failed(err, time.Time{})
		}
		parts = append(parts, part)
	}
	parts = append(parts, genai.NewPartFromText(TryOnInstruction()))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	models, err := c.factory(ctx, apiKey)
	if err != nil {
		return "", c.failed(fmt.Errorf("failed to create Gemini client: %w", err), time.Time{})
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
	}

	start := time.Now()
	log.Info().
		Str("model", c.model).
		Int("person_bytes", len(person.Payload)).
		Int("top_bytes", len(top.Payload)).
		Int("bottom_bytes", len(bottom.Payload)).
		Msg("Sending try-on request to Gemini")

	resp, err := models.GenerateContent(ctx, c.model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return "", c.failed(err, start)
	}

	payload, mimeType, ok := firstInlineImage(resp)
	if !ok {
		log.Warn().
			Str("model", c.model).
			Str("text", truncateString(responseText(resp), 200)).
			Dur("duration", time.Since(start)).
			Msg("Gemini returned no image")
		return "", &GenerationError{
			Kind:    KindNoImage,
			Message: MessageNoImageReturned,
			Err:     errors.New("no inline image data in response"),
		}
	}

	log.Info().
		Int("output_bytes", len(payload)).
		Str("output_mime", mimeType).
		Dur("duration", time.Since(start)).
		Msg("Gemini try-on generation complete")

	return payload, nil
}

// failed logs the cause and hides it behind the generic message.
func (c *TryOnClient) failed(err error, start time.Time) error {
	evt := log.Error().
		Err(err).
		Str("model", c.model).
		Str("category", auth.ClassifyError(err).Type.String())
	if !start.IsZero() {
		evt = evt.Dur("duration", time.Since(start))
	}
	evt.Msg("Error generating try-on image with Gemini")

	return &GenerationError{Kind: KindGenerationFailed, Message: MessageGenerationFailed, Err: err}
}

func inlineImagePart(img *encoder.EncodedImage) (*genai.Part, error) {
	if img == nil {
		return nil, errors.New("missing image")
	}
	data, err := img.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", img.Name, err)
	}
	return genai.NewPartFromBytes(data, img.MediaType), nil
}

// firstInlineImage scans the first candidate's parts in order and returns
// the first inline image, base64 encoded.
func firstInlineImage(resp *genai.GenerateContentResponse) (string, string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", "", false
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return "", "", false
	}
	for _, part := range content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		return base64.StdEncoding.EncodeToString(part.InlineData.Data), part.InlineData.MIMEType, true
	}
	return "", "", false
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text += part.Text
		}
	}
	return text
}

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
