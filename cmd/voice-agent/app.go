package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-agent/internal/backend"
	"github.com/book-expert/voice-agent/internal/config"
	"github.com/book-expert/voice-agent/internal/core"
	"github.com/book-expert/voice-agent/internal/dispatcher"
	"github.com/book-expert/voice-agent/internal/orchestrator"
	"github.com/book-expert/voice-agent/internal/voicestore"
)

const defaultDatabasePath = "voices.db"

// ErrNoBackends indicates that neither kokoro nor zonos is configured.
var ErrNoBackends = errors.New("no synthesis backends configured")

// app bundles everything a command mode needs after bootstrap.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	store      *voicestore.SQLiteStore
	backends   []core.Backend
	dispatcher *dispatcher.Dispatcher
}

// healthChecker is implemented by backends that can probe their engine.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkBackends probes every backend that supports it. Failures are logged,
// not fatal: an engine may come up after the agent does, and per-job errors
// surface as ResourceError anyway.
func (a *app) checkBackends(ctx context.Context) {
	for _, b := range a.backends {
		checker, ok := b.(healthChecker)
		if !ok {
			continue
		}

		err := checker.HealthCheck(ctx)
		if err != nil {
			a.log.Warn("Backend %s health check failed: %v", b.Name(), err)

			continue
		}

		a.log.Info("Backend %s is healthy", b.Name())
	}
}

// Close releases the voice store and the logger.
func (a *app) Close() {
	err := a.store.Close()
	if err != nil {
		a.log.Warn("Failed to close voice store: %v", err)
	}

	closeErr := a.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

// setup loads configuration through a bootstrap logger, then switches to
// the configured log directory.
func setup() (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), "voice-agent-bootstrap.log")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logsDir := cfg.Paths.BaseLogsDir
	if logsDir == "" {
		logsDir = os.TempDir()
	}

	finalLog, err := logger.New(logsDir, "voice-agent.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	return cfg, finalLog, nil
}

// newApp builds the full pipeline from a loaded configuration. The object
// store is optional and only the worker mode supplies one.
func newApp(cfg *config.Config, log *logger.Logger, objectStore core.ObjectStore) (*app, error) {
	dbPath := cfg.Store.DatabasePath
	if dbPath == "" {
		dbPath = defaultDatabasePath
	}

	store, err := voicestore.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open voice store: %w", err)
	}

	orch, backends, err := buildOrchestrator(cfg, store, log)
	if err != nil {
		closeErr := store.Close()
		if closeErr != nil {
			log.Warn("Failed to close voice store: %v", closeErr)
		}

		return nil, err
	}

	timeout := time.Duration(cfg.Limits.JobTimeoutSeconds) * time.Second

	return &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		backends:   backends,
		dispatcher: dispatcher.New(orch, objectStore, timeout, log),
	}, nil
}

func buildOrchestrator(
	cfg *config.Config, store *voicestore.SQLiteStore, log *logger.Logger,
) (*orchestrator.Orchestrator, []core.Backend, error) {
	var backends []core.Backend

	if cfg.Backends.Kokoro.BinaryPath != "" {
		backends = append(backends, backend.NewKokoro(backend.KokoroConfig{
			BinaryPath:     cfg.Backends.Kokoro.BinaryPath,
			ModelPath:      cfg.Backends.Kokoro.ModelPath,
			Presets:        cfg.Backends.Kokoro.Presets,
			Default:        cfg.Backends.Kokoro.DefaultPreset,
			TimeoutSeconds: cfg.Backends.Kokoro.TimeoutSeconds,
		}, backend.ExecRunner{}, log))
	}

	if cfg.Backends.Zonos.BaseURL != "" {
		backends = append(backends, backend.NewZonos(backend.ZonosConfig{
			BaseURL:        cfg.Backends.Zonos.BaseURL,
			TimeoutSeconds: cfg.Backends.Zonos.TimeoutSeconds,
		}, log))
	}

	if len(backends) == 0 {
		return nil, nil, ErrNoBackends
	}

	defaultBackend := core.BackendName(cfg.Backends.Default)
	if defaultBackend == "" {
		defaultBackend = backends[0].Name()
	}

	orch, err := orchestrator.New(backends, store, defaultBackend, limitsFromConfig(cfg), log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	return orch, backends, nil
}

func limitsFromConfig(cfg *config.Config) orchestrator.Limits {
	limits := orchestrator.DefaultLimits()

	if cfg.Limits.MinSpeed > 0 {
		limits.MinSpeed = cfg.Limits.MinSpeed
	}

	if cfg.Limits.MaxSpeed > 0 {
		limits.MaxSpeed = cfg.Limits.MaxSpeed
	}

	if cfg.Limits.MaxTextChars > 0 {
		limits.MaxTextChars = cfg.Limits.MaxTextChars
	}

	return limits
}
