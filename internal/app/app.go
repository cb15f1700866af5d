// Package app wires the triage service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"dispatch_triage/config"
	"dispatch_triage/generative"
	"dispatch_triage/internal/dispatch"
	"dispatch_triage/internal/events"
	"dispatch_triage/internal/httpapi"
	"dispatch_triage/internal/logging"
	"dispatch_triage/internal/notify"
	"dispatch_triage/internal/session"
	"dispatch_triage/internal/store"
	"dispatch_triage/internal/watch"
	"dispatch_triage/metrics"
	"dispatch_triage/queue"
	"dispatch_triage/reference"
	"dispatch_triage/triage"
)

const (
	purgeInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
	eventBuffer     = 32
)

// App owns the service components.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	jobs     *queue.Queue
	metrics  *metrics.Metrics
	adapter  *generative.Adapter
	sessions *session.Manager
	watcher  *watch.Watcher
	mux      *http.ServeMux
}

// BuildEngine loads the rule table from cfg.RulesPath, or the embedded one.
func BuildEngine(cfg config.Config) (*triage.Engine, error) {
	ds, err := reference.Default()
	if err != nil {
		return nil, err
	}
	rs, err := triage.DefaultRules()
	if cfg.RulesPath != "" {
		rs, err = triage.LoadRules(cfg.RulesPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return triage.NewEngine(ds, triage.NewExtractor(rs)), nil
}

// NewAdapter builds the generative adapter with its metrics hook.
func NewAdapter(cfg config.Config, m *metrics.Metrics) *generative.Adapter {
	return generative.New(cfg.Generative, cfg.Prompts, logging.New("generative"), m)
}

func New(cfg config.Config) (*App, error) {
	logger := logging.New("app")
	engine, err := BuildEngine(cfg)
	if err != nil {
		return nil, err
	}
	ds := engine.Dataset()
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	met := metrics.New()
	jobs := queue.New(cfg.JobQueueSize, cfg.WorkerCount, time.Duration(cfg.JobTimeoutSec)*time.Second,
		queue.WithLogger(logging.New("queue")),
		queue.WithCompletionHook(met.RecordJobCompletion))
	bus := events.NewBus(eventBuffer)
	calls := dispatch.NewCallQueue(dispatch.Options{
		HistoryLimit: cfg.HistoryLimit,
		Retention:    time.Duration(cfg.RetentionMin) * time.Minute,
		Rand:         reference.GlobalRand(),
		Events:       bus,
		Archive:      st,
		Logger:       logging.New("calls"),
	})
	adapter := NewAdapter(cfg, met)

	var notifier session.Notifier
	if hook := notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyBotID, nil); hook.Enabled() {
		notifier = hook
	}
	sessions := session.NewManager(session.Options{
		Engine:   engine,
		Calls:    calls,
		Resolver: adapter,
		Jobs:     jobs,
		Notifier: notifier,
		Metrics:  met,
		Debounce: cfg.Debounce,
		Logger:   logging.New("session"),
	})
	watcher := watch.New(cfg.InboxDir, cfg.EnableWatcher, func(ctx context.Context, name, text string) error {
		_, err := sessions.Ingest(ctx, name, text)
		return err
	}, logging.New("watch"))

	mux := http.NewServeMux()
	httpapi.NewRouter(httpapi.Deps{
		Sessions:   sessions,
		Dataset:    ds,
		Matcher:    reference.NewMatcher(ds, reference.GlobalRand(), time.Now),
		Bus:        bus,
		Metrics:    met,
		Store:      st,
		Generative: adapter,
		Jobs:       jobs,
		Logger:     logging.New("http"),
	}).Register(mux)

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		jobs:     jobs,
		metrics:  met,
		adapter:  adapter,
		sessions: sessions,
		watcher:  watcher,
		mux:      mux,
	}, nil
}

// Run starts workers, the backend monitor, the inbox watcher, retention and
// the HTTP server, and blocks until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.sessions.Close()

	g, ctx := errgroup.WithContext(ctx)
	a.jobs.Start(ctx)

	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	g.Go(func() error {
		return a.watcher.Backfill(ctx)
	})
	g.Go(func() error {
		a.adapter.Monitor(ctx, a.cfg.Generative.ProbeInterval())
		return nil
	})
	g.Go(func() error {
		a.retain(ctx)
		return nil
	})

	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		a.logger.Info("http listening", "addr", a.cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		a.jobs.Stop(shutdownCtx)
		return err
	})
	return g.Wait()
}

// retain drops expired history from memory and the store.
func (a *App) retain(ctx context.Context) {
	if a.cfg.RetentionMin <= 0 {
		return
	}
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := a.sessions.Calls().Purge()
			cutoff := now.Add(-time.Duration(a.cfg.RetentionMin) * time.Minute)
			rows, err := a.store.DeleteEndedBefore(ctx, cutoff)
			if err != nil {
				a.logger.Warn("purge stored calls failed", "error", err)
				continue
			}
			if n > 0 || rows > 0 {
				a.logger.Info("retention purge", "memory", n, "stored", rows)
			}
		}
	}
}

func (a *App) Sessions() *session.Manager { return a.sessions }
func (a *App) Store() *store.Store        { return a.store }
func (a *App) Mux() *http.ServeMux        { return a.mux }
