package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/martinemde/oxbot/engine"
	"github.com/martinemde/oxbot/health"
	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/observability"
	"github.com/martinemde/oxbot/provider"
	"github.com/martinemde/oxbot/session"
	"github.com/martinemde/oxbot/settings"
	"github.com/martinemde/oxbot/transcript"
	"github.com/martinemde/oxbot/vision"
)

// app holds the components of a running chat.
type app struct {
	store      *settings.Store
	logger     *slog.Logger
	metrics    *observability.Metrics
	engine     *engine.Interpreter
	augmenter  *vision.Augmenter
	transcript *transcript.Store
	session    *session.Coordinator
	monitor    *health.Monitor

	// applied is the last settings snapshot pushed into the session.
	mu      sync.Mutex
	applied settings.Settings

	closers []func() error
}

// openSettings opens the settings file named by --config, or the default.
func openSettings(flags *globalFlags, opts ...settings.Option) (*settings.Store, error) {
	path := strings.TrimSpace(flags.configPath)
	if path == "" {
		var err error
		if path, err = settings.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return settings.Open(path, opts...)
}

// newLogger builds the process logger. Logs go to logging.file when set,
// otherwise to fallback; a nil fallback discards them.
func newLogger(s settings.LoggingSettings, flags *globalFlags, fallback io.Writer) (*slog.Logger, func() error, error) {
	level := s.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	out := fallback
	closeFn := func() error { return nil }
	if s.File != "" {
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = f.Close
	}
	if out == nil {
		return observability.NopLogger(), closeFn, nil
	}
	return observability.NewLogger(observability.LogConfig{Level: level, Format: s.Format, Output: out}), closeFn, nil
}

// transcriptPath returns transcript.path, or history.db next to the
// settings file.
func transcriptPath(store *settings.Store) string {
	if p := store.Settings().Transcript.Path; p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(store.Path()), "history.db")
}

func openTranscript(store *settings.Store) (*transcript.Store, error) {
	path := transcriptPath(store)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	return transcript.Open(path)
}

// sessionConfig maps settings onto the coordinator configuration.
func sessionConfig(s settings.Settings, pc provider.Config) session.Config {
	cfg := session.DefaultConfig()
	cfg.MaxRoundsPerTurn = s.Session.MaxRoundsPerTurn
	cfg.LoopWindow = s.Session.LoopWindow
	cfg.ExecTimeout = s.Session.ExecTimeout
	cfg.SystemPrompt = s.Session.SystemPrompt
	cfg.WorkDir = s.Session.WorkDir
	cfg.Capabilities = engine.Capabilities{AutoRun: s.Features.AutoRun, ComputerUse: s.Features.ComputerUse}
	cfg.Provider = pc
	return cfg
}

// openApp wires settings, logging, metrics, the engine, vision, the
// transcript, the health monitor and the session coordinator.
func openApp(ctx context.Context, flags *globalFlags, logOut io.Writer) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// The logging section decides where logs go, so the file is read once
	// before the logger exists and again with it attached.
	boot, err := openSettings(flags)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := newLogger(boot.Settings().Logging, flags, logOut)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLog)
	a.logger = logger
	if a.store, err = openSettings(flags, settings.WithLogger(logger)); err != nil {
		return nil, err
	}
	s := a.store.Settings()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(registry)
	addr := flags.metricsAddr
	if addr == "" {
		addr = s.Metrics.Addr
	}
	if addr != "" {
		serveMetrics(ctx, addr, registry, logger)
	}

	pc, err := s.ProviderConfig()
	if err != nil {
		return nil, fmt.Errorf("provider settings: %w", err)
	}

	client := llm.NewClient(
		llm.WithRetryPolicy(llm.DefaultRetryPolicy()),
		llm.WithMiddleware(observability.LLMMiddleware(a.metrics, logger)),
	)
	a.closers = append(a.closers, client.Close)
	a.engine = engine.NewInterpreter(engine.WithClient(client), engine.WithLogger(logger))

	augOpts := []vision.Option{
		vision.WithLogger(logger),
		vision.WithModel(pc.Model),
		vision.WithEnabled(s.Features.Vision),
	}
	if src, err := vision.DetectCommandSource(); err == nil {
		logger.Debug("screen capture available", "tool", src.Name())
		augOpts = append(augOpts, vision.WithSource(src))
	} else {
		logger.Debug("screen capture unavailable", "error", err)
	}
	a.augmenter = vision.NewAugmenter(augOpts...)

	opts := []session.Option{
		session.WithConfig(sessionConfig(s, pc)),
		session.WithLogger(logger),
		session.WithMetrics(a.metrics),
		session.WithRequestTransforms(a.augmenter),
	}
	if s.Transcript.Enabled {
		ts, err := openTranscript(a.store)
		if err != nil {
			logger.Warn("transcript disabled", "error", err)
		} else {
			a.transcript = ts
			a.closers = append(a.closers, ts.Close)
			opts = append(opts, session.WithRecorder(ts))
		}
	}

	if a.session, err = session.New(a.engine, opts...); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.session.Close)

	a.monitor = health.NewMonitor(a.engine,
		health.WithInterval(s.Health.Interval),
		health.WithTimeout(s.Health.Timeout),
		health.WithMetrics(a.metrics),
		health.WithLogger(logger),
	)
	return a, nil
}

// start begins background work: health polling and settings reload.
func (a *app) start(ctx context.Context) {
	a.monitor.Start(ctx)
	a.closers = append(a.closers, func() error { a.monitor.Stop(); return nil })

	a.mu.Lock()
	a.applied = a.store.Settings()
	a.mu.Unlock()
	err := a.store.Watch(ctx, func(next settings.Settings) {
		a.reload(ctx, next)
	})
	if err != nil {
		a.logger.Warn("settings reload disabled", "error", err)
	}
}

// reload applies next. A provider change refused mid-turn is retried once
// the turn ends, against whatever the file holds by then.
func (a *app) reload(ctx context.Context, next settings.Settings) {
	a.mu.Lock()
	applied, err := a.applySettings(a.applied, next)
	a.applied = applied
	a.mu.Unlock()
	if !errors.Is(err, session.ErrConfigurationLocked) {
		return
	}
	go func() {
		if a.session.Wait(ctx) == nil {
			a.reload(ctx, a.store.Settings())
		}
	}()
}

// applySettings pushes a reloaded settings file into the running session
// and returns what was applied. Provider changes start a new conversation
// and are refused mid-turn; the returned settings then keep prev's provider.
func (a *app) applySettings(prev, next settings.Settings) (settings.Settings, error) {
	a.session.SetAutoRun(next.Features.AutoRun)
	a.session.SetCapabilities(engine.Capabilities{AutoRun: next.Features.AutoRun, ComputerUse: next.Features.ComputerUse})
	a.augmenter.SetEnabled(next.Features.Vision)
	if next.Session.SystemPrompt != prev.Session.SystemPrompt {
		a.session.ReconfigureSystemPrompt(next.Session.SystemPrompt)
	}

	if next.Provider == prev.Provider {
		return next, nil
	}
	kept := next
	kept.Provider = prev.Provider
	pc, err := next.ProviderConfig()
	if err != nil {
		a.logger.Warn("ignoring provider settings", "error", err)
		return kept, err
	}
	if err := a.session.Configure(pc); err != nil {
		if errors.Is(err, session.ErrConfigurationLocked) {
			a.logger.Info("provider change deferred until the turn ends")
		} else {
			a.logger.Warn("provider change not applied", "error", err)
		}
		return kept, err
	}
	a.augmenter.SetModel(pc.Model)
	a.logger.Info("provider reconfigured", "provider", pc.Redacted())
	return next, nil
}

// close releases everything in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Debug("close failed", "error", err)
		}
	}
	a.closers = nil
}

// serveMetrics serves the registry on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
