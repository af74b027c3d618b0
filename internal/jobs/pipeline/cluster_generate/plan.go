package cluster_generate

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/generation/elements"
	"github.com/yungbote/clusterforge-backend/internal/generation/engine"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
)

// plan is everything a run needs before the first page starts.
type plan struct {
	templates map[cluster.Intent]*structure.Structure
	styles    map[cluster.Intent]map[string]string
	tasks     []engine.Task
}

func (pl *plan) hasImages() bool {
	for _, t := range pl.templates {
		if t.HasImages() {
			return true
		}
	}
	return false
}

func (p *Pipeline) prepare(dbc dbctx.Context, c *cluster.Cluster, pageIDs []uuid.UUID) (*plan, error) {
	rows, err := p.deps.Repos.Settings.ListByCluster(dbc, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	templates, err := structure.CompileAll(rows)
	if err != nil {
		return nil, err
	}
	all, err := p.deps.Repos.Page.ListByCluster(dbc, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	settings := make(map[cluster.Intent]*cluster.ClusterSettings, len(rows))
	styles := make(map[cluster.Intent]map[string]string, len(rows))
	for _, r := range rows {
		settings[r.Intent] = r
		styles[r.Intent] = r.Style()
	}
	return &plan{
		templates: templates,
		styles:    styles,
		tasks:     buildTasks(c, all, settings, pageIDs),
	}, nil
}

// buildTasks turns the draft pages listed in pageIDs into page tasks, in tree
// position order. An empty pageIDs selects every draft page.
func buildTasks(c *cluster.Cluster, all []*cluster.Page, settings map[cluster.Intent]*cluster.ClusterSettings, pageIDs []uuid.UUID) []engine.Task {
	want := make(map[uuid.UUID]bool, len(pageIDs))
	for _, id := range pageIDs {
		want[id] = true
	}
	byID := make(map[uuid.UUID]*cluster.Page, len(all))
	children := map[uuid.UUID][]*cluster.Page{}
	var roots []*cluster.Page
	for _, pg := range all {
		byID[pg.ID] = pg
		if pg.ParentID == nil {
			roots = append(roots, pg)
			continue
		}
		children[*pg.ParentID] = append(children[*pg.ParentID], pg)
	}
	for _, kids := range children {
		sortPages(kids)
	}

	sorted := append([]*cluster.Page(nil), all...)
	sortPages(sorted)
	var tasks []engine.Task
	for _, pg := range sorted {
		if pg.Status != cluster.PageStatusDraft || (len(want) > 0 && !want[pg.ID]) {
			continue
		}
		intent := pg.SearchIntent
		if !intent.Valid() {
			intent = cluster.IntentInformational
		}
		pc := &elements.PageContext{
			PageID:          pg.ID,
			ClusterID:       c.ID,
			OwnerID:         c.OwnerID,
			Topic:           pg.Topic,
			Keyword:         c.Keyword,
			Keywords:        pg.KeywordList(),
			Language:        c.Language,
			Country:         c.TargetCountry,
			Audience:        c.TargetAudience,
			Intent:          intent,
			Category:        pg.Category,
			H2Count:         pg.H2Count,
			WordsPerSection: pg.WordsPerSection,
			Research:        pg.ResearchSummary,
			Children:        relations(children[pg.ID], uuid.Nil),
		}
		if pg.ParentID != nil {
			if parent := byID[*pg.ParentID]; parent != nil {
				pc.Parent = &elements.Relation{ID: parent.ID, Topic: parent.Topic}
			}
			pc.Neighbours = relations(children[*pg.ParentID], pg.ID)
		} else {
			pc.Neighbours = relations(roots, pg.ID)
		}
		if s := settings[intent]; s != nil {
			if src := s.Source(); src != nil && (src.Mode != cluster.SourceModeHead || pg.ParentID == nil) {
				pc.Source = src
			}
			pc.Geolocation = s.Geolocation
			pc.Author = s.AuthorInfo()
		}
		tasks = append(tasks, engine.Task{PageID: pg.ID, Intent: intent, Context: pc})
	}
	return tasks
}

func relations(pages []*cluster.Page, skip uuid.UUID) []elements.Relation {
	var out []elements.Relation
	for _, pg := range pages {
		if pg.ID == skip {
			continue
		}
		out = append(out, elements.Relation{ID: pg.ID, Topic: pg.Topic})
	}
	return out
}

func sortPages(pages []*cluster.Page) {
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Position < pages[j].Position })
}
