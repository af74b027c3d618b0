// Package pages runs the per-intent element pipelines that turn a content
// structure into a generated page.
package pages

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/generation/elements"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/jobs/progress"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

// Shares of one page budget spent by each phase.
const (
	shareSimple     = 0.05
	shareBody       = 0.75
	shareHyperlinks = 0.03
	shareReferences = 0.17
)

const simpleParallelism = 4

// Generator fills one page for a single intent.
type Generator interface {
	Intent() cluster.Intent
	// Generate instantiates tpl and fills it. tr may be nil.
	Generate(ctx context.Context, tpl *structure.Structure, pc *elements.PageContext, tr *progress.PageTracker) (*Result, error)
}

type options struct {
	intent     cluster.Intent
	injections []string
	bodyLinks  bool
	references bool
}

type pipeline struct {
	opts options
	svc  *elements.Service
	log  *logger.Logger
}

func NewInformational(svc *elements.Service, log *logger.Logger) Generator {
	return newPipeline(options{
		intent:     cluster.IntentInformational,
		injections: elements.InformationalInjections,
		bodyLinks:  true,
		references: true,
	}, svc, log)
}

// NewCommercial skips reference injection. INNER_CTA comes from the compiled
// structure.
func NewCommercial(svc *elements.Service, log *logger.Logger) Generator {
	return newPipeline(options{
		intent:     cluster.IntentCommercial,
		injections: elements.InformationalInjections,
		bodyLinks:  true,
	}, svc, log)
}

func NewNavigational(svc *elements.Service, log *logger.Logger) Generator {
	return newPipeline(options{
		intent:     cluster.IntentNavigational,
		injections: elements.NavigationalInjections,
	}, svc, log)
}

func newPipeline(opts options, svc *elements.Service, log *logger.Logger) *pipeline {
	return &pipeline{opts: opts, svc: svc, log: log.With("component", "PageGenerator", "intent", string(opts.intent))}
}

// Set maps every intent to its generator.
type Set map[cluster.Intent]Generator

func NewSet(svc *elements.Service, log *logger.Logger) Set {
	return Set{
		cluster.IntentInformational: NewInformational(svc, log),
		cluster.IntentCommercial:    NewCommercial(svc, log),
		cluster.IntentNavigational:  NewNavigational(svc, log),
	}
}

func (s Set) For(intent cluster.Intent) (Generator, error) {
	g, ok := s[intent]
	if !ok {
		return nil, fmt.Errorf("no page generator for intent %q", intent)
	}
	return g, nil
}

func (p *pipeline) Intent() cluster.Intent { return p.opts.intent }

func (p *pipeline) Generate(ctx context.Context, tpl *structure.Structure, pageCtx *elements.PageContext, tr *progress.PageTracker) (*Result, error) {
	if tpl == nil {
		return nil, fmt.Errorf("nil content structure")
	}
	st := tpl.Instantiate()
	pc := *pageCtx
	log := p.log.With("page_id", pc.PageID)

	p.fillSimple(ctx, st, &pc)
	tr.Step(shareSimple, "page metadata")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sections := p.fillBody(ctx, st, &pc, tr, log)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pc.Summary = p.svc.Summarize(ctx, elements.BodyText(sections), &pc)
	p.fillDeferred(ctx, st, sections, &pc)
	p.svc.UpdateByContext(ctx, st, &pc)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Original: Filter(st.Elements)}

	banned := p.svc.HeadLinks(ctx, st, &pc)
	if p.opts.bodyLinks {
		p.svc.BodyLinks(ctx, sections, &pc)
	}
	tr.Step(shareHyperlinks, "hyperlinks")

	if p.opts.references {
		p.svc.References(ctx, st, sections, &pc, banned)
	}
	tr.Step(shareReferences, "references")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Release = Filter(st.Elements)
	log.Debug("page filled", "original", len(res.Original), "release", len(res.Release))
	return res, nil
}

// fillSimple fills every element that needs only the page context.
func (p *pipeline) fillSimple(ctx context.Context, st *structure.Structure, pc *elements.PageContext) {
	var g errgroup.Group
	g.SetLimit(simpleParallelism)
	for _, e := range st.Elements {
		if elements.Deferred(e.Tag) {
			continue
		}
		e := e
		elements.Go(&g, func() error {
			p.svc.FillSimple(ctx, e, pc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.log.Warn("simple filler failed", "page_id", pc.PageID, "error", err)
	}
}

func (p *pipeline) fillBody(ctx context.Context, st *structure.Structure, pc *elements.PageContext, tr *progress.PageTracker, log *logger.Logger) []*structure.Element {
	injections := 0
	for _, tag := range p.opts.injections {
		if st.Has(tag) {
			injections++
		}
	}
	n := elements.SectionCount(pc.H2Count, injections)
	sections := elements.PlaceSections(st, n, p.opts.injections)
	step := shareBody / float64(n)
	err := p.svc.FillSections(ctx, sections, pc, func() { tr.Step(step, "body") })
	if err != nil && ctx.Err() == nil {
		log.Warn("body outline failed", "error", err)
	}
	return sections
}

// fillDeferred fills the elements that consume the body copy or its summary.
func (p *pipeline) fillDeferred(ctx context.Context, st *structure.Structure, sections []*structure.Element, pc *elements.PageContext) {
	var g errgroup.Group
	g.SetLimit(simpleParallelism)
	for _, e := range st.Elements {
		e := e
		switch {
		case structure.IsImage(e.Tag):
			elements.Go(&g, func() error {
				p.svc.FillImage(ctx, e, pc)
				return nil
			})
		case (e.Tag == structure.TagCTA || e.Tag == structure.TagInnerCTA) && e.Processed:
			elements.Go(&g, func() error {
				p.svc.FillCTAImage(ctx, e, pc)
				return nil
			})
		case e.Tag == structure.TagContentMenu:
			elements.BuildContentMenu(e, sections)
		case e.Tag == structure.TagRelatedPages:
			elements.BuildRelatedPages(e, pc)
		}
	}
	if err := g.Wait(); err != nil {
		p.log.Warn("deferred filler failed", "page_id", pc.PageID, "error", err)
	}
}
