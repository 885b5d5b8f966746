package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/virtual-tryon/internal/auth"
	"github.com/fpang/virtual-tryon/internal/chat"
	"github.com/rs/zerolog/log"
)

// KeyValidationObserver is told how each key check ended.
type KeyValidationObserver interface {
	KeyValidationFinished(d time.Duration, err error)
}

// ValidateKey reads the credential, creates a Gemini client and probes
// model with a minimal request. obs may be nil.
func ValidateKey(ctx context.Context, model string, obs KeyValidationObserver) (err error) {
	if obs != nil {
		start := time.Now()
		defer func() {
			obs.KeyValidationFinished(time.Since(start), err)
		}()
	}

	apiKey, err := auth.GetAPIKey()
	if err != nil {
		return err
	}

	models, err := chat.NewGeminiModels(ctx, apiKey)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Info().Msg("connection successful - Gemini client initialized")

	return auth.ValidateAPIKey(ctx, models, model)
}

// ValidationHint returns the operator-facing message for a failed key check.
func ValidationHint(err error) string {
	var validationErr *auth.ValidationError
	if !errors.As(err, &validationErr) {
		return "unexpected error during API key validation"
	}
	switch validationErr.Type {
	case auth.ErrTypeNoKey:
		return "No API key configured. Set " + auth.EnvAPIKey + " in the environment or the .env file"
	case auth.ErrTypeInvalidKey:
		return "Invalid API key. Please check your API key and try again"
	case auth.ErrTypeNetworkError:
		return "Network error. Please check your internet connection"
	case auth.ErrTypeQuotaExceeded:
		return "API quota exceeded. Please try again later or check your usage limits"
	default:
		return "API key validation failed"
	}
}

// HandleValidationError logs the hint for err and exits.
func HandleValidationError(err error) {
	log.Fatal().Err(err).Msg(ValidationHint(err))
}
