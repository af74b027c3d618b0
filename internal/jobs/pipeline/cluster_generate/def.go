package cluster_generate

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/generation/elements"
	"github.com/yungbote/clusterforge-backend/internal/generation/engine"
	jobrt "github.com/yungbote/clusterforge-backend/internal/jobs/runtime"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/platform/envutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/platform/objectstore"
	"github.com/yungbote/clusterforge-backend/internal/platform/search"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

type Config struct {
	MaxWorkers int
	// CancelPoll is how often the run re-reads its job row for a cancel.
	CancelPoll time.Duration
	// Heartbeat is how often the run refreshes heartbeat_at while generating.
	Heartbeat time.Duration
	// FinalizeBackoff is the base delay between finalize attempts.
	FinalizeBackoff time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		MaxWorkers: envutil.Int("MAX_WORKERS", engine.DefaultMaxWorkers),
		CancelPoll: envutil.Duration("CANCEL_POLL_INTERVAL", 2*time.Second),
		Heartbeat:  envutil.Duration("JOB_HEARTBEAT_INTERVAL", jobrt.DefaultHeartbeat),

		FinalizeBackoff: envutil.Duration("FINALIZE_BACKOFF", 500*time.Millisecond),
	}
}

type Deps struct {
	DB       *gorm.DB
	Repos    repos.Set
	Ledger   *billing.Ledger
	Machine  *state.Machine
	Store    objectstore.Store
	Elements *elements.Service
	// Links is optional; each run layers its own memory cache on top.
	Links   *search.Validator
	Events  *realtime.Emitter
	Metrics observability.Recorder
}

type Pipeline struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
}

func New(deps Deps, cfg Config, baseLog *logger.Logger) *Pipeline {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = engine.DefaultMaxWorkers
	}
	if cfg.CancelPoll <= 0 {
		cfg.CancelPoll = 2 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = jobrt.DefaultHeartbeat
	}
	if cfg.FinalizeBackoff <= 0 {
		cfg.FinalizeBackoff = 500 * time.Millisecond
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopRecorder{}
	}
	return &Pipeline{
		deps: deps,
		cfg:  cfg,
		log:  baseLog.With("job", jobs.JobTypeClusterGenerate),
	}
}

func (p *Pipeline) Type() string { return jobs.JobTypeClusterGenerate }
