package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/generation/elements"
	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/topictree"
	"github.com/yungbote/clusterforge-backend/internal/jobs/pipeline/cluster_generate"
	"github.com/yungbote/clusterforge-backend/internal/jobs/pipeline/cluster_structure"
	jobruntime "github.com/yungbote/clusterforge-backend/internal/jobs/runtime"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/jobs/worker"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/platform/search"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
	"github.com/yungbote/clusterforge-backend/internal/services"
	"github.com/yungbote/clusterforge-backend/internal/temporalx/jobrun"
)

type Services struct {
	Repos      repos.Set
	Events     *realtime.Emitter
	Ledger     *billing.Ledger
	Machine    *state.Machine
	Registry   *jobruntime.Registry
	Worker     *worker.Worker
	Jobs       services.JobService
	Clusters   services.ClusterService
	Generation services.GenerationService
	Auth       services.AuthService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients *Clients, metrics observability.Recorder) (*Services, error) {
	log.Info("wiring services")
	rs := repos.NewSet(db, log)
	events := realtime.NewEmitter(clients.Bus, log)
	ledger := billing.NewLedger(db, rs.Account, rs.Transaction, cfg.PageCents, metrics, log)

	var locker state.Locker = state.NewMemoryLocker()
	var linkCache search.Cache = search.NewMemoryCache()
	if clients.Redis != nil {
		locker = state.NewRedisLocker(clients.Redis)
		linkCache = search.NewRedisCache(clients.Redis, cfg.LinkValidTTL, cfg.LinkInvalidTTL)
	}
	machine := state.NewMachine(rs.Cluster, locker, cfg.LockTTL, log)

	invoker := llm.NewInvoker(clients.OpenAI, cfg.LLMAttempts, log)
	links := search.NewValidator(linkCache, cfg.LinkCheckTimeout, cfg.LinkCheckLimit, log)
	elementSvc := elements.NewService(elements.Deps{
		Invoker: invoker,
		Images:  clients.Store,
		Search:  clients.Search,
		Links:   links,
		Metrics: metrics,
	}, elements.Config{
		MaxAttempts:   cfg.ElementMaxAttempts,
		MaxReferences: cfg.MaxReferences,
		ImageMaxWidth: cfg.ImageMaxWidth,
	}, log)

	registry := jobruntime.NewRegistry()
	pipelines := []jobruntime.Handler{
		cluster_structure.New(db, log, rs, machine, topictree.NewBuilder(invoker, log), topictree.NewProfiler(invoker, log), events),
		cluster_generate.New(cluster_generate.Deps{
			DB:       db,
			Repos:    rs,
			Ledger:   ledger,
			Machine:  machine,
			Store:    clients.Store,
			Elements: elementSvc,
			Links:    links,
			Events:   events,
			Metrics:  metrics,
		}, cluster_generate.ConfigFromEnv(), log),
	}
	if err := registry.Register(pipelines...); err != nil {
		return nil, fmt.Errorf("register pipelines: %w", err)
	}

	jobWorker := worker.NewWorker(db, log, rs.JobRun, registry, events, metrics, worker.ConfigFromEnv())

	var dispatcher services.Dispatcher
	if cfg.JobDispatch == DispatchTemporal {
		dispatcher = jobrun.NewDispatcher(clients.Temporal, clients.TemporalCfg.TaskQueue, log)
	}
	jobSvc := services.NewJobService(db, log, rs.JobRun, events, dispatcher)

	return &Services{
		Repos:      rs,
		Events:     events,
		Ledger:     ledger,
		Machine:    machine,
		Registry:   registry,
		Worker:     jobWorker,
		Jobs:       jobSvc,
		Clusters:   services.NewClusterService(db, log, rs, jobSvc),
		Generation: services.NewGenerationService(db, log, rs, ledger, machine, jobSvc, events),
		Auth:       services.NewAuthService(log, cfg.JWTSecretKey),
	}, nil
}
