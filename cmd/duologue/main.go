package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/duologue-ai/duologue-core/core"
	"github.com/duologue-ai/duologue-core/internal/config"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		recordPath  string
		printSchema bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&recordPath, "record-wav", "", "Dump captured audio to a WAV file")
	flag.BoolVar(&printSchema, "print-config-schema", false, "Print the configuration JSON schema and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}
	if printSchema {
		schema, err := config.Schema()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(schema))
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if recordPath != "" {
		cfg.Audio.RecordPath = recordPath
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Telemetry.LogLevel)}))
	ctx := context.Background()

	telemetryShutdown, err := setupTelemetry(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	recognizer, synthesizer, cleanup, err := buildEngines(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	orch := orchestration.NewOrchestrator(orchestration.WithLogger(logger))
	defer orch.Close()

	availability := orch.Bind(ctx, recognizer, synthesizer)
	logger.Info("engines bound",
		slog.Bool("recognition", availability.Recognition),
		slog.Bool("synthesis", availability.Synthesis),
		slog.String("details", availability.Details),
	)

	responder := newScriptedResponder()
	program := tea.NewProgram(newModel(orch, cfg, responder.respond), tea.WithAltScreen())
	unsubscribe := wireFeeds(program, orch)
	defer unsubscribe()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui failed: %w", err)
	}
	return nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
