package topictree

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

const (
	DefaultH2Count         = 5
	DefaultWordsPerSection = 200
	maxKeywords            = 10
)

// Profile is the per-page text plan stored with each draft page.
type Profile struct {
	SearchIntent    cluster.Intent
	Category        string
	Keywords        []string
	H2Count         int
	WordsPerSection int
	Summary         string
}

type profileOutput struct {
	SearchIntent    string   `json:"search_intent"`
	Category        string   `json:"category"`
	Keywords        []string `json:"keywords"`
	H2Count         int      `json:"h2_count"`
	WordsPerSection int      `json:"words_per_section"`
	Summary         string   `json:"summary"`
}

type Profiler struct {
	inv Invoker
	log *logger.Logger
}

func NewProfiler(inv Invoker, log *logger.Logger) *Profiler {
	return &Profiler{inv: inv, log: log.With("component", "PageProfiler")}
}

// Profile never fails; a collaborator error yields the default profile.
func (p *Profiler) Profile(ctx context.Context, req Request, topic string) Profile {
	def := Profile{
		SearchIntent:    cluster.IntentInformational,
		Keywords:        []string{topic},
		H2Count:         DefaultH2Count,
		WordsPerSection: DefaultWordsPerSection,
	}
	var out profileOutput
	err := p.inv.Invoke(ctx, llm.Prompt{
		Name:   "page_profile",
		System: "You plan single web pages inside a topic cluster.",
		User: fmt.Sprintf("Topic: %s\nCluster keyword: %s\nLanguage: %s\nCountry: %s\nAudience: %s\n"+
			"Return the search intent (commercial, informational or navigational), a category, "+
			"search keywords, the number of H2 sections, words per section and a short research summary.",
			topic, req.Keyword, req.Language, req.Country, req.Audience),
		Schema: llm.Object(map[string]any{
			"search_intent":     llm.String(),
			"category":          llm.String(),
			"keywords":          llm.StringList(),
			"h2_count":          llm.Integer(),
			"words_per_section": llm.Integer(),
			"summary":           llm.String(),
		}),
	}, &out)
	if err != nil {
		p.log.Warn("page profile failed, using defaults", "topic", topic, "error", err)
		return def
	}

	prof := def
	if in := cluster.Intent(strings.ToLower(strings.TrimSpace(out.SearchIntent))); in.Valid() {
		prof.SearchIntent = in
	}
	prof.Category = strings.TrimSpace(out.Category)
	if kws := cleanKeywords(out.Keywords); len(kws) > 0 {
		prof.Keywords = kws
	}
	if out.H2Count > 0 {
		prof.H2Count = min(out.H2Count, 10)
	}
	if out.WordsPerSection > 0 {
		prof.WordsPerSection = out.WordsPerSection
	}
	prof.Summary = strings.TrimSpace(out.Summary)
	return prof
}

func cleanKeywords(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := dedupeKey(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
