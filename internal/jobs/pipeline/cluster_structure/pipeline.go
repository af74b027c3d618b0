package cluster_structure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/generation/topictree"
	jobrt "github.com/yungbote/clusterforge-backend/internal/jobs/runtime"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

type statusEvent struct {
	ClusterID uuid.UUID      `json:"cluster_id"`
	Status    cluster.Status `json:"status"`
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	var in jobs.StructurePayload
	if err := jc.Decode(&in); err != nil {
		jc.Fail("decode", err)
		return nil
	}
	ctx := jc.Ctx
	dbc := dbctx.Context{Ctx: ctx}

	c, err := p.repos.Cluster.GetByID(dbc, in.ClusterID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if c == nil {
		jc.Fail("load", state.ErrNotFound)
		return nil
	}
	if err := p.machine.Transition(dbc, c.ID, cluster.StatusDraft, cluster.StatusStructuring); err != nil {
		jc.Fail("load", err)
		return nil
	}
	p.emitStatus(ctx, c, cluster.StatusStructuring)
	log := p.log.With("cluster_id", c.ID, "job_id", jc.Job.ID)
	defer jc.KeepAlive(ctx, jobrt.DefaultHeartbeat)()

	jc.Progress("topics", 10, "Building topic tree")
	req := topictree.Request{
		Keyword:  c.Keyword,
		Count:    c.TopicsNumber,
		Language: c.Language,
		Country:  c.TargetCountry,
		Audience: c.TargetAudience,
	}
	tree, err := p.builder.Build(ctx, req)
	if err != nil {
		log.Warn("topic tree failed", "error", err)
		p.rollback(jc, c, "topics", err)
		return nil
	}

	jc.Progress("profiles", 40, "Planning pages")
	pages, err := p.profilePages(ctx, c, req, tree, in.Intent)
	if err != nil {
		p.rollback(jc, c, "profiles", err)
		return nil
	}
	settings, err := seedSettings(c.ID, in.MainSourceLink)
	if err != nil {
		p.rollback(jc, c, "settings", err)
		return nil
	}

	jc.Progress("persist", 90, "Saving pages")
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := p.repos.Page.Create(inner, pages); err != nil {
			return fmt.Errorf("create pages: %w", err)
		}
		if err := p.repos.Settings.Create(inner, settings); err != nil {
			return fmt.Errorf("create settings: %w", err)
		}
		return p.machine.Transition(inner, c.ID, cluster.StatusStructuring, cluster.StatusConfiguring)
	})
	if err != nil {
		p.rollback(jc, c, "persist", err)
		return nil
	}
	p.emitStatus(ctx, c, cluster.StatusConfiguring)
	log.Info("cluster structured", "pages", len(pages))
	jc.Succeed("done", map[string]any{"cluster_id": c.ID, "pages": len(pages)})
	return nil
}

// rollback returns the cluster to DRAFT so the request can be repeated.
func (p *Pipeline) rollback(jc *jobrt.Context, c *cluster.Cluster, stage string, cause error) {
	ctx := context.WithoutCancel(jc.Ctx)
	if err := p.machine.Transition(dbctx.Context{Ctx: ctx}, c.ID, cluster.StatusStructuring, cluster.StatusDraft); err != nil {
		p.log.Error("rollback to draft failed", "cluster_id", c.ID, "error", err)
	} else {
		p.emitStatus(ctx, c, cluster.StatusDraft)
	}
	jc.Fail(stage, cause)
}

func (p *Pipeline) emitStatus(ctx context.Context, c *cluster.Cluster, s cluster.Status) {
	p.events.Emit(ctx, c.OwnerID, realtime.EventClusterStatusChanged, statusEvent{ClusterID: c.ID, Status: s})
}

// profilePages turns the tree into draft pages in breadth-first order.
func (p *Pipeline) profilePages(ctx context.Context, c *cluster.Cluster, req topictree.Request, tree *topictree.Tree, force cluster.Intent) ([]*cluster.Page, error) {
	nodes := tree.Nodes()
	out := make([]*cluster.Page, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(profileParallelism)
	for i, n := range nodes {
		g.Go(func() error {
			prof := p.profiler.Profile(gctx, req, n.Text)
			intent := prof.SearchIntent
			if force.Valid() {
				intent = force
			}
			out[i] = &cluster.Page{
				ID:              n.ID,
				ClusterID:       c.ID,
				ParentID:        n.ParentID,
				Topic:           n.Text,
				Position:        i,
				Keywords:        cluster.EncodeStrings(prof.Keywords),
				SearchIntent:    intent,
				Category:        prof.Category,
				H2Count:         prof.H2Count,
				WordsPerSection: prof.WordsPerSection,
				ResearchSummary: prof.Summary,
				Status:          cluster.PageStatusDraft,
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// seedSettings builds one settings row per intent from the embedded presets.
func seedSettings(clusterID uuid.UUID, source *cluster.MainSourceLink) ([]*cluster.ClusterSettings, error) {
	var link datatypes.JSON
	if source != nil && source.Link != "" {
		if source.Mode == "" {
			source.Mode = cluster.SourceModeAll
		}
		raw, err := json.Marshal(source)
		if err != nil {
			return nil, err
		}
		link = datatypes.JSON(raw)
	}
	out := make([]*cluster.ClusterSettings, 0, len(cluster.Intents))
	for _, intent := range cluster.Intents {
		doc, err := structure.LoadPreset(intent)
		if err != nil {
			return nil, err
		}
		els, err := json.Marshal(doc.Elements)
		if err != nil {
			return nil, err
		}
		row := &cluster.ClusterSettings{
			ClusterID:      clusterID,
			Intent:         intent,
			Elements:       datatypes.JSON(els),
			MainSourceLink: link,
		}
		if len(doc.GeneralStyle) > 0 {
			style, err := json.Marshal(doc.GeneralStyle)
			if err != nil {
				return nil, err
			}
			row.GeneralStyle = datatypes.JSON(style)
		}
		out = append(out, row)
	}
	return out, nil
}
