package services

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	maxTopics     = 100
	defaultLocale = "en"
)

type CreateClusterRequest struct {
	Keyword        string                  `json:"keyword"`
	TopicsNumber   int                     `json:"topics_number"`
	Language       string                  `json:"language"`
	TargetCountry  string                  `json:"target_country"`
	TargetAudience string                  `json:"target_audience"`
	Intent         cluster.Intent          `json:"intent,omitempty"`
	MainSourceLink *cluster.MainSourceLink `json:"main_source_link,omitempty"`
}

func (r *CreateClusterRequest) normalize() error {
	r.Keyword = strings.TrimSpace(r.Keyword)
	if r.Keyword == "" {
		return fmt.Errorf("%w: keyword is required", ErrInvalidInput)
	}
	if r.TopicsNumber < 1 || r.TopicsNumber > maxTopics {
		return fmt.Errorf("%w: topics_number must be between 1 and %d", ErrInvalidInput, maxTopics)
	}
	if r.Intent != "" && !r.Intent.Valid() {
		return fmt.Errorf("%w: unknown intent %q", ErrInvalidInput, r.Intent)
	}
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	if r.Language == "" {
		r.Language = defaultLocale
	}
	if l := r.MainSourceLink; l != nil {
		u, err := url.Parse(strings.TrimSpace(l.Link))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: main_source_link.link must be an absolute http(s) url", ErrInvalidInput)
		}
		switch l.Mode {
		case "":
			l.Mode = cluster.SourceModeAll
		case cluster.SourceModeAll, cluster.SourceModeHead:
		default:
			return fmt.Errorf("%w: main_source_link.mode must be %q or %q", ErrInvalidInput, cluster.SourceModeAll, cluster.SourceModeHead)
		}
		l.Link = u.String()
	}
	return nil
}

type ClusterService interface {
	// Create stores a DRAFT cluster in the owner's default project and
	// queues the run that builds its topic tree.
	Create(dbc dbctx.Context, ownerID uuid.UUID, req CreateClusterRequest) (*cluster.Cluster, *jobs.JobRun, error)
}

type clusterService struct {
	db    *gorm.DB
	log   *logger.Logger
	repos repos.Set
	jobs  JobService
}

func NewClusterService(db *gorm.DB, baseLog *logger.Logger, rs repos.Set, jobSvc JobService) ClusterService {
	return &clusterService{
		db:    db,
		log:   baseLog.With("service", "ClusterService"),
		repos: rs,
		jobs:  jobSvc,
	}
}

func (s *clusterService) Create(dbc dbctx.Context, ownerID uuid.UUID, req CreateClusterRequest) (*cluster.Cluster, *jobs.JobRun, error) {
	if ownerID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: missing owner", ErrInvalidInput)
	}
	if err := req.normalize(); err != nil {
		return nil, nil, err
	}
	ctx := dbc.Context()
	var (
		created *cluster.Cluster
		job     *jobs.JobRun
	)
	err := dbc.Conn(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.WithTx(ctx, tx)
		project, err := s.repos.Project.GetOrCreate(inner, ownerID, cluster.ProjectTypeDefault)
		if err != nil {
			return err
		}
		created, err = s.repos.Cluster.Create(inner, &cluster.Cluster{
			OwnerID:        ownerID,
			ProjectID:      &project.ID,
			Keyword:        req.Keyword,
			Language:       req.Language,
			TargetCountry:  strings.TrimSpace(req.TargetCountry),
			TargetAudience: strings.TrimSpace(req.TargetAudience),
			TopicsNumber:   req.TopicsNumber,
			Status:         cluster.StatusDraft,
		})
		if err != nil {
			return err
		}
		payload := jobs.StructurePayload{
			ClusterID:      created.ID,
			OwnerID:        ownerID,
			Intent:         req.Intent,
			MainSourceLink: req.MainSourceLink,
		}
		if td := ctxutil.GetTraceData(ctx); td != nil {
			payload.RequestID = td.RequestID
		}
		job, err = s.jobs.Enqueue(inner, JobSpec{
			OwnerID:  ownerID,
			JobType:  jobs.JobTypeClusterStructure,
			EntityID: created.ID,
			Payload:  payload,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if err := s.jobs.Dispatch(dbctx.Context{Ctx: ctx}, job); err != nil {
		return created, job, err
	}
	s.log.Info("cluster created", "cluster_id", created.ID, "job_id", job.ID, "topics", created.TopicsNumber)
	return created, job, nil
}
