// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/quotagate/adapters/clock"
	gatehttp "github.com/artpar/quotagate/adapters/http"
	"github.com/artpar/quotagate/adapters/idgen"
	"github.com/artpar/quotagate/adapters/memory"
	"github.com/artpar/quotagate/adapters/metrics"
	"github.com/artpar/quotagate/adapters/sqlite"
	"github.com/artpar/quotagate/adapters/upstream"
	"github.com/artpar/quotagate/app"
	"github.com/artpar/quotagate/config"
	"github.com/artpar/quotagate/ports"
)

// Version is the build version reported by the /version endpoint. The
// CLI stamps it from its ldflags before initializing the app.
var Version = "dev"

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Holder     *config.Holder

	// Services
	Quotas        *app.QuotaService
	Subscriptions *app.SubscriptionService
	Gate          *app.Gate
	Webhooks      *app.BillingWebhookService

	upstream ports.Upstream
}

// New creates and initializes the application from a loaded config.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("initializing quotagate")

	a := &App{Logger: logger}

	records, history, subs, err := a.initStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("init stores: %w", err)
	}

	// Each App gets its own registry so repeated initialization (tests,
	// embedded use) cannot collide on metric names.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(registry)

	a.upstream = upstream.NewClient(upstream.ClientConfig{
		BaseURL: cfg.Upstream.URL,
		APIKey:  cfg.Upstream.APIKey,
		Timeout: cfg.Upstream.Timeout,
		Headers: cfg.Upstream.Headers,
	})

	clk := clock.Real{}
	a.Subscriptions = app.NewSubscriptionService(subs, clk, logger, a.Metrics)
	a.Subscriptions.SetCacheTTL(cfg.Quota.SubscriptionCacheTTL)

	a.Quotas = app.NewQuotaService(records, history, a.Subscriptions, clk, idgen.UUID{}, logger, a.Metrics)
	a.Quotas.SetLimits(quotaLimits(cfg))

	a.Gate = app.NewGate(a.Quotas, clk, logger, a.Metrics)
	a.Webhooks = app.NewBillingWebhookService(a.Subscriptions, logger)

	handler := gatehttp.NewQuotaHandler(a.Gate, a.Quotas, a.Subscriptions, a.Webhooks, a.upstream, logger)
	handler.SetHistoryPageSize(cfg.Quota.HistoryPageSize)
	health := gatehttp.NewHealthHandler(a.upstream)

	routerCfg := gatehttp.RouterConfig{Version: Version}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		routerCfg.MetricsPath = cfg.Metrics.Path
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	router := gatehttp.NewRouter(handler, health, logger, routerCfg)
	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// NewWithHotReload creates the application with config hot reload: file
// watch plus SIGHUP, pushing quota changes into the running engine.
func NewWithHotReload(path string) (*App, error) {
	bootLogger := setupLogger(config.LoggingConfig{Level: "info", Format: "json"})

	holder, err := config.NewHolder(path, bootLogger)
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get())
	if err != nil {
		holder.Stop()
		return nil, err
	}
	a.Holder = holder

	holder.OnChange(func(cfg *config.Config) {
		a.Quotas.SetLimits(quotaLimits(cfg))
		a.Subscriptions.SetCacheTTL(cfg.Quota.SubscriptionCacheTTL)
	})

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	holder.WatchSignals()

	return a, nil
}

func quotaLimits(cfg *config.Config) app.Limits {
	// Loaded configs always carry the pointer; hand-built ones may not.
	failOpen := true
	if cfg.Quota.FailOpen != nil {
		failOpen = *cfg.Quota.FailOpen
	}
	return app.Limits{
		FreeLimit:    cfg.Quota.FreeLimit,
		PeriodLength: cfg.Quota.PeriodLength,
		FailOpen:     failOpen,
	}
}

func (a *App) initStores(cfg *config.Config) (ports.UsageRecordStore, ports.UsageHistoryStore, ports.SubscriptionStore, error) {
	switch cfg.Database.Driver {
	case "memory":
		a.Logger.Warn().Msg("using in-memory stores, state is lost on restart")
		return memory.NewUsageRecordStore(), memory.NewUsageHistoryStore(), memory.NewSubscriptionStore(), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		a.DB = db
		a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database ready")
		return sqlite.NewUsageRecordStore(db), sqlite.NewUsageHistoryStore(db), sqlite.NewSubscriptionStore(db), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.Holder != nil {
		a.Holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
