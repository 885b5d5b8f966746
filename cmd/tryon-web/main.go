package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/virtual-tryon/internal/chat"
	"github.com/fpang/virtual-tryon/internal/cli"
	"github.com/fpang/virtual-tryon/internal/encoder"
	"github.com/fpang/virtual-tryon/internal/logging"
	"github.com/fpang/virtual-tryon/internal/metrics"
	"github.com/fpang/virtual-tryon/internal/preview"
	"github.com/fpang/virtual-tryon/internal/session"
	"github.com/fpang/virtual-tryon/internal/ui"
)

// CLI flags
var (
	portFlag        int
	modelFlag       string
	validateKeyFlag bool
	envFileFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "tryon-web",
	Short: "Web UI for virtual clothing try-on",
	Long: `Tryon Web starts a local web server where you upload a photo of a
person, a top and a bottom. Gemini composites the garments onto the person
and the result is shown in the browser.

The API key is read from GEMINI_API_KEY (or API_KEY), optionally loaded
from a .env file, when the first try-on is requested.

Examples:
  tryon-web
  tryon-web --port 9090
  tryon-web --model gemini-3-pro-image-preview --validate-key`,
	PreRunE: loadEnvFile,
	Run:     runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", chat.GetModelName(), "Gemini model to use")
	rootCmd.Flags().BoolVar(&validateKeyFlag, "validate-key", false, "Probe the API key with a minimal request at startup")
	rootCmd.Flags().StringVar(&envFileFlag, "env-file", ".env", "File of KEY=VALUE pairs loaded into the environment if present")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnvFile loads --env-file. Variables already set in the environment
// win; a missing file is not an error.
func loadEnvFile(cmd *cobra.Command, args []string) error {
	if envFileFlag == "" {
		return nil
	}
	if err := godotenv.Load(envFileFlag); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", envFileFlag, err)
	}
	return nil
}

func runMain(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	logging.Init()

	// The model flag default was computed before the env file was loaded.
	if !cmd.Flags().Changed("model") {
		modelFlag = chat.GetModelName()
	}

	previews := preview.NewStore()
	rec, err := metrics.New(metrics.DefaultNamespace, prometheus.NewRegistry(), previews.Len)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	if validateKeyFlag {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := cli.ValidateKey(ctx, chat.ModelGemini3FlashPreview, rec)
		cancel()
		if err != nil {
			cli.HandleValidationError(err)
		}
		log.Info().Msg("API key validated")
	}

	enc := encoder.New(previews, encoder.WithAllowedTypes(ui.AcceptedTypes...))
	client := chat.NewTryOnClient(chat.WithModel(modelFlag))

	renderer, err := ui.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load page templates")
	}

	ctrl := session.New(enc, client, session.WithObserver(rec))
	s := newServer(ctrl, renderer, previews, rec)

	addr := fmt.Sprintf(":%d", portFlag)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logging.NewStartupLogger("tryon-web").
		Version(commitHash).
		Config("build_time", buildTime).
		Config("port", fmt.Sprint(portFlag)).
		Config("model", client.Model()).
		Config("log_level", logging.EnvOrDefault(logging.EnvLogLevel, "info")).
		Config("env_file", envFileFlag).
		Feature("validate_key", validateKeyFlag).
		Feature("metrics", true).
		InitDuration(time.Since(initStart)).
		Log()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Info().Int("port", portFlag).Msg("Starting web server")
	fmt.Printf("\n  Virtual Try-On: http://localhost:%d\n\n", portFlag)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}

	s.close()
	log.Info().Msg("Server stopped")
}
