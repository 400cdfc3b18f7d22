package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/clawinfra/tenx/internal/api"
	"github.com/clawinfra/tenx/internal/config"
	"github.com/clawinfra/tenx/internal/conversation"
	"github.com/clawinfra/tenx/internal/executor"
	"github.com/clawinfra/tenx/internal/memory"
	"github.com/clawinfra/tenx/internal/metrics"
	"github.com/clawinfra/tenx/internal/models"
	"github.com/clawinfra/tenx/internal/orchestrator"
	"github.com/clawinfra/tenx/internal/ratelimit"
	"github.com/clawinfra/tenx/internal/snapshot"
	"github.com/clawinfra/tenx/internal/tools"
	"github.com/clawinfra/tenx/internal/turnlog"
)

// App holds all the runtime components
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Sessions  *conversation.Store
	Turns     *turnlog.Store
	Memory    *memory.WorkingMemory
	Executor  executor.Backend
	Events    *api.Hub
	Assistant *orchestrator.Assistant
}

// setup wires every component from cfg. Close releases what it opened.
func setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	app = &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Memory:   memory.New(),
	}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(app.Registry)
	app.Events = api.NewHub(logger)

	catalog, err := tools.LoadCatalog(cfg.Tools.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load tool catalog: %w", err)
	}
	profiles, err := orchestrator.LoadProfiles(cfg.Agents.ProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("load agent profiles: %w", err)
	}
	for c, p := range profiles {
		if _, missing := catalog.Subset(p.Tools...); len(missing) > 0 {
			return nil, fmt.Errorf("profile %s references unknown tools: %s", c.Key(), strings.Join(missing, ", "))
		}
	}

	if app.Sessions, err = conversation.NewStore(cfg.SessionsDir(), logger); err != nil {
		return nil, err
	}
	if app.Turns, err = turnlog.Open(cfg.TurnLogPath()); err != nil {
		return nil, err
	}
	if app.Executor, err = executor.New(ctx, cfg.Executor, logger); err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute,
		ratelimit.WithPeriod(config.Seconds(cfg.RateLimit.WindowSeconds)))
	gateway := models.NewGateway(models.NewAnthropicProvider(cfg.Model), limiter, logger,
		models.WithModel(cfg.Model.Model, cfg.Model.MaxTokens),
		models.WithPrompt(models.PromptBuilder{Persona: cfg.Prompt.Persona, Sections: cfg.Prompt.Sections}),
		models.WithBackoff(
			config.Durations(cfg.Retry.StandardDelaysMs),
			config.Durations(cfg.Retry.ExtendedDelaysMs),
			config.Millis(cfg.Retry.StandardJitterMs),
			config.Millis(cfg.Retry.ExtendedJitterMs),
		),
		models.WithMetrics(app.Metrics),
	)

	loop := orchestrator.NewToolLoop(gateway, tools.NewNotepad(app.Executor), app.Memory, logger,
		orchestrator.WithPacer(orchestrator.TieredPacer(
			config.Millis(cfg.Loop.PacingEarlyMs),
			config.Millis(cfg.Loop.PacingMiddleMs),
			config.Millis(cfg.Loop.PacingLateMs),
		)),
		orchestrator.WithTokenBudget(cfg.Loop.HistoryTokenBudget),
		orchestrator.WithRepeatThreshold(cfg.Loop.RepeatThreshold),
		orchestrator.WithLoopMetrics(app.Metrics),
	)
	coordinator := orchestrator.NewCoordinator(
		orchestrator.NewIntentRouter(gateway, app.Memory, logger),
		orchestrator.NewAgentRunner(loop, catalog, profiles, logger, app.Metrics),
		logger,
	)

	var source snapshot.Source = snapshot.Static{}
	if cfg.Snapshot.Path != "" {
		source = snapshot.FileSource{Path: cfg.Snapshot.Path}
	}

	app.Assistant = orchestrator.NewAssistant(coordinator, loop, catalog, source, logger,
		orchestrator.WithTurnRecorder(app.Turns),
		orchestrator.WithNotifier(app.Events),
		orchestrator.WithSessionSaver(app.Sessions),
		orchestrator.WithAssistantMetrics(app.Metrics),
		orchestrator.WithFallbackIterations(cfg.Loop.FallbackMaxIterations),
		orchestrator.WithDuplicateWindow(cfg.Loop.DuplicateWindow),
		orchestrator.WithTurnTimeout(config.Seconds(cfg.Loop.TurnTimeoutSeconds)),
		orchestrator.WithHistoryBudget(cfg.Loop.HistoryTokenBudget),
	)

	logger.Info("assistant ready",
		"model", cfg.Model.Model,
		"tools", catalog.Len(),
		"executor", cfg.Executor.Kind,
		"multi_agent", cfg.Loop.MultiAgent,
	)
	return app, nil
}

// Close releases the executor and the turn log.
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		a.Events.Close()
	}
	if a.Executor != nil {
		errs = append(errs, a.Executor.Close())
	}
	if a.Turns != nil {
		errs = append(errs, a.Turns.Close())
	}
	return errors.Join(errs...)
}

// loadConfig loads configuration from file or creates default
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	logger.Info("no config found, creating default", "path", path)
	cfg = config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("save default config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return cfg, nil
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
