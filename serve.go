package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vox/llm"
	"vox/log"
	"vox/server"
	"vox/shutdown"
	"vox/transcriber"
)

const (
	defaultServeAddr   = ":5000"
	defaultGeminiModel = "gemini-2.0-flash"
	shutdownGrace      = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development chat backend",
	Long: `serve answers POST /api/chat with an LLM reply. Text goes straight to the
model; audio is transcribed first. The model is OpenAI when OPENAI_API_KEY is
set, otherwise Gemini through its OpenAI-compatible endpoint when
GOOGLE_API_KEY is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", defaultServeAddr, "listen address")
	f.String("model", "", "chat model (default depends on the provider)")
	f.String("llm-base-url", "", "OpenAI-compatible base URL")
	f.String("stt", "", "speech-to-text provider: groq or openai (default: whichever key is set)")
	f.String("language", "", "spoken language hint for speech-to-text, e.g. en")
	f.String("system-prompt", "", "system prompt sent with every model request")
	for key, flag := range map[string]string{
		"serve.addr":          "addr",
		"serve.model":         "model",
		"serve.llm_base_url":  "llm-base-url",
		"serve.stt":           "stt",
		"serve.language":      "language",
		"serve.system_prompt": "system-prompt",
	} {
		cobra.CheckErr(viper.BindPFlag(key, f.Lookup(flag)))
	}
}

// newModel picks the chat model from the configured API keys. It returns nil
// when no key is set.
func newModel(logger zerolog.Logger) llm.Generator {
	model := viper.GetString("serve.model")
	baseURL := viper.GetString("serve.llm_base_url")
	var opts []llm.Option
	if prompt := viper.GetString("serve.system_prompt"); prompt != "" {
		opts = append(opts, llm.WithSystemPrompt(prompt))
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c := llm.New(key, baseURL, model, opts...)
		logger.Info().Str("provider", "openai").Str("model", c.Model()).Msg("model initialized")
		return c
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		if baseURL == "" {
			baseURL = llm.GeminiBaseURL
		}
		if model == "" {
			model = defaultGeminiModel
		}
		c := llm.New(key, baseURL, model, opts...)
		logger.Info().Str("provider", "gemini").Str("model", c.Model()).Msg("model initialized")
		return c
	}
	logger.Error().Msg("no API key set (OPENAI_API_KEY or GOOGLE_API_KEY); replies will fail")
	return nil
}

// newSTT builds the configured speech-to-text provider and starts warming its
// connection. It returns nil when no provider is available.
func newSTT(ctx context.Context, logger zerolog.Logger) transcriber.Transcriber {
	stt, err := transcriber.New(viper.GetString("serve.stt"))
	if err != nil {
		logger.Warn().Err(err).Msg("speech-to-text disabled")
		return nil
	}
	stt.SetLanguage(viper.GetString("serve.language"))
	go stt.Warm(ctx)
	logger.Info().Str("provider", stt.Name()).Str("language", stt.GetLanguage()).Msg("speech-to-text initialized")
	return stt
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogDir()
	logger, closer := log.NewServer(os.Stderr)
	defer closer.Close()

	ctx, stop := shutdown.Context(cmd.Context())
	defer stop()

	cfg := server.Config{Logger: logger}
	if m := newModel(logger); m != nil {
		cfg.Model = m
	}
	if stt := newSTT(ctx, logger); stt != nil {
		cfg.Transcriber = stt
	}

	srv := server.New(cfg)

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(viper.GetString("serve.addr")) }()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
