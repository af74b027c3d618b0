package cluster_structure

import (
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/generation/topictree"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

const profileParallelism = 4

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	repos    repos.Set
	machine  *state.Machine
	builder  *topictree.Builder
	profiler *topictree.Profiler
	events   *realtime.Emitter
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	rs repos.Set,
	machine *state.Machine,
	builder *topictree.Builder,
	profiler *topictree.Profiler,
	events *realtime.Emitter,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", jobs.JobTypeClusterStructure),
		repos:    rs,
		machine:  machine,
		builder:  builder,
		profiler: profiler,
		events:   events,
	}
}

func (p *Pipeline) Type() string { return jobs.JobTypeClusterStructure }
