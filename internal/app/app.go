// Package app wires configuration, clients, services and the HTTP server.
package app

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/data/db"
	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/http"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  *Clients
	Services *Services
	Server   *http.Server

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	cfg := LoadConfig()
	if cfg.JobDispatch != DispatchWorker && cfg.JobDispatch != DispatchTemporal {
		return nil, fmt.Errorf("unknown JOB_DISPATCH %q", cfg.JobDispatch)
	}

	pg, err := openDatabase(log)
	if err != nil {
		return nil, err
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	var metrics observability.Recorder = observability.NoopRecorder{}
	var metricsHandler nethttp.Handler
	if cfg.MetricsEnabled {
		prom := observability.NewPrometheusRecorder(nil)
		metrics, metricsHandler = prom, prom.Handler()
	}
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})

	svc, err := wireServices(pg.DB(), log, cfg, clients, metrics)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		return nil, err
	}

	return &App{
		Log:          log,
		DB:           pg.DB(),
		Cfg:          cfg,
		Clients:      clients,
		Services:     svc,
		Server:       wireServer(pg.DB(), log, cfg, svc, metrics, metricsHandler),
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Migrate creates or updates the schema and exits.
func Migrate(log *logger.Logger) error {
	pg, err := openDatabase(log)
	if err != nil {
		return err
	}
	return pg.Close()
}

// Deposit tops up an owner's balance outside the HTTP surface, for operators.
func Deposit(ctx context.Context, log *logger.Logger, ownerID uuid.UUID, cents int64) (int64, error) {
	pg, err := openDatabase(log)
	if err != nil {
		return 0, err
	}
	defer func() { _ = pg.Close() }()
	rs := repos.NewSet(pg.DB(), log)
	ledger := billing.NewLedger(pg.DB(), rs.Account, rs.Transaction, LoadConfig().PageCents, nil, log)
	return ledger.Deposit(dbctx.New(ctx), ownerID, cents)
}

func openDatabase(log *logger.Logger) (*db.PostgresService, error) {
	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	if err := db.EnsureIndexes(pg.DB()); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("postgres indexes: %w", err)
	}
	return pg, nil
}

// StartJobs begins executing queued runs until ctx is done, either on the
// in-process worker pool or as a Temporal worker.
func (a *App) StartJobs(ctx context.Context) error {
	if a.Cfg.JobDispatch == DispatchTemporal {
		runner, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Clients.TemporalCfg, a.Services.Repos.JobRun, a.Services.Worker, a.Services.Worker.Concurrency())
		if err != nil {
			return err
		}
		return runner.Start(ctx)
	}
	a.Services.Worker.Start(ctx)
	return nil
}

func (a *App) Serve(ctx context.Context) error {
	addr := ":" + a.Cfg.Port
	a.Log.Info("server listening", "address", addr, "job_dispatch", a.Cfg.JobDispatch)
	return a.Server.Run(ctx, addr)
}

// Close waits for in-flight job runs and releases connections.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Cfg.JobDispatch == DispatchWorker && a.Services != nil {
		a.Services.Worker.Wait()
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Clients.Close()
	if err := a.pg.Close(); err != nil {
		a.Log.Warn("postgres close failed", "error", err)
	}
	a.Log.Sync()
}
