package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"voicecmd/config"
	"voicecmd/internal/application"
	"voicecmd/internal/execute"
	"voicecmd/internal/infra/pushover"
	"voicecmd/internal/infra/source"
	"voicecmd/internal/infra/whisper"
	"voicecmd/internal/match"
)

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "path to config file")
	envFile := flag.StringP("env", "e", ".env", "env file path")
	verbose := flag.BoolP("verbose", "v", false, "enable debug logging")
	flag.Parse()

	godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log, *verbose)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	src, closeEngine, err := createSource(cfg, logger)
	if err != nil {
		logger.Error("creating transcript source", "error", err)
		os.Exit(1)
	}
	defer closeEngine()

	specs := cfg.Specs()

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	} else {
		notifier = &application.NoopNotifier{}
	}

	orchestrator := application.NewOrchestrator(
		src,
		match.NewFuzzyGate(cfg.WakeWords, cfg.MatchThreshold),
		match.NewMatcher(specs, cfg.MatchThreshold),
		execute.New(execute.DefaultRegistry(), specs, cfg.Timeout(), logger),
		notifier,
		cfg.ConfidenceThreshold,
		cfg.Dwell(),
		logger,
	)

	logger.Info("starting voice command assistant",
		"source", cfg.Source.Type,
		"wake_words", cfg.WakeWords,
		"commands", len(specs),
	)

	if err := orchestrator.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("orchestrator error", "error", err)
		os.Exit(1)
	}
}

func createSource(cfg *config.Config, logger *slog.Logger) (application.TranscriptSource, func(), error) {
	noop := func() {}

	switch cfg.Source.Type {
	case "http":
		return source.NewHTTPSource(cfg.Source.HTTPAddr, cfg.Source.AuthToken, logger), noop, nil

	case "file":
		engine, err := whisper.New(cfg.Whisper.ModelPath, cfg.Whisper.Language)
		if err != nil {
			return nil, noop, err
		}
		return source.NewFileSource(cfg.Source.FileDir, engine, logger), closeFn(engine, logger), nil

	case "microphone":
		engine, err := whisper.New(cfg.Whisper.ModelPath, cfg.Whisper.Language)
		if err != nil {
			return nil, noop, err
		}
		return source.NewMicrophoneSource(engine, cfg.Source.SampleRate, logger), closeFn(engine, logger), nil

	default:
		return nil, noop, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

func closeFn(engine *whisper.Engine, logger *slog.Logger) func() {
	return func() {
		if err := engine.Close(); err != nil {
			logger.Warn("closing whisper engine", "error", err)
		}
	}
}

func setupLogger(cfg config.LogConfig, verbose bool) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
