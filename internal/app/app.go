package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tv-alert-mirror/internal/browser"
	"tv-alert-mirror/internal/config"
	"tv-alert-mirror/internal/fetcher"
	"tv-alert-mirror/internal/metrics"
	"tv-alert-mirror/internal/notify"
	"tv-alert-mirror/internal/pending"
	"tv-alert-mirror/internal/pipeline"
	"tv-alert-mirror/internal/scheduler"
	"tv-alert-mirror/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// openStore returns the durable store, falling back to an in-memory store
// when no database is configured.
func (a *App) openStore(ctx context.Context) (storage.KV, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newSyncClient() *fetcher.Client {
	cfg := a.Config.Sync
	return fetcher.NewClient(fetcher.Options{
		BaseURL:   cfg.BaseURL,
		Cookie:    cfg.Cookie,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		PageLimit: cfg.PageLimit,
		PageDelay: cfg.PageDelay,
	}, a.Logger)
}

func (a *App) newPipeline(store storage.KV, notifier notify.Notifier) (*pipeline.Pipeline, *pending.Table) {
	table := pending.NewTable(a.Logger, pending.WithTTL(a.Config.Browser.PendingTTL))
	gate := pipeline.NewGate(a.Config.Pipeline.DebounceInterval)
	pipe := pipeline.New(table, gate, store, notifier, a.Logger, pipeline.Options{
		MaxLogsPerAlert: a.Config.Logs.MaxPerAlert,
		LogRetention:    a.Config.Logs.Retention,
	})
	return pipe, table
}

// Run executes the long-running mirroring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; mirrored state will not survive restarts")
		store = storage.NewMemoryStore()
	}
	if closeStore != nil {
		defer closeStore()
	}

	if err := storage.Seed(ctx, store); err != nil {
		return err
	}

	var notifier notify.Notifier = notify.Nop{}
	if a.Config.Notify.Enabled {
		hub := notify.NewHub(a.Logger)
		defer hub.Close()
		notifier = hub

		if a.Config.Notify.Metrics {
			metrics.Init()
		}
		a.serveHub(ctx, hub)
	}

	pipe, table := a.newPipeline(store, notifier)

	sweep := scheduler.New(scheduler.Options{
		Interval:     a.Config.Logs.SweepInterval,
		StartupDelay: time.Minute,
	}, a.Logger)
	go func() {
		_ = sweep.Run(ctx, pipe.SweepLogs)
	}()

	manager := browser.NewManager(browser.Options{
		DevToolsURL:          a.Config.Browser.DevToolsURL,
		TargetHost:           a.Config.Browser.TargetHost,
		PendingSweepInterval: a.Config.Browser.PendingTTL,
	}, pipe, table, a.Logger)

	a.Logger.Info().Msg("starting mirroring service")
	err = manager.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("mirroring service stopped")
	return nil
}

// serveHub exposes the websocket hub plus metrics over one listener.
func (a *App) serveHub(ctx context.Context, hub *notify.Hub) {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	if a.Config.Notify.Metrics {
		mux.Handle("/metrics", metrics.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: a.Config.Notify.ListenAddr, Handler: mux}
	go func() {
		a.Logger.Info().Str("addr", server.Addr).Msg("notification hub listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("notification hub failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Collection string
	Limit      int
}

// ExportOptions hold parameters for exporting mirrored logs.
type ExportOptions struct {
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// SyncOptions select which collections the sync command rebuilds.
type SyncOptions struct {
	Alerts bool
	Logs   bool
}
