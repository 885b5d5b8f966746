package auth

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Environment variables consulted for the Gemini API key, in priority order.
const (
	EnvAPIKey       = "GEMINI_API_KEY"
	EnvLegacyAPIKey = "API_KEY"
)

// GetAPIKey retrieves the Gemini API key from the process environment.
// It is called at the time of each generation so a key added to the
// environment (or .env) after startup is picked up.
func GetAPIKey() (string, error) {
	for _, name := range []string{EnvAPIKey, EnvLegacyAPIKey} {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			log.Debug().Str("source", name).Msg("Using API key from environment variable")
			return key, nil
		}
	}

	log.Error().Msg("No API key found in environment")
	return "", &ValidationError{
		Type:    ErrTypeNoKey,
		Message: "credential not set",
	}
}
