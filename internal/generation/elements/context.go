package elements

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
)

// Relation is another page of the same cluster.
type Relation struct {
	ID    uuid.UUID `json:"id"`
	Topic string    `json:"topic"`
}

// Anchor renders the in-cluster link the site builder resolves by page id.
func (r Relation) Anchor() string {
	return fmt.Sprintf(`<a id="%s">%s</a>`, r.ID, html.EscapeString(r.Topic))
}

// PageContext is everything a page pipeline knows about the page it fills.
type PageContext struct {
	PageID    uuid.UUID
	ClusterID uuid.UUID
	OwnerID   uuid.UUID

	Topic    string
	Keyword  string
	Keywords []string
	Language string
	Country  string
	Audience string
	Intent   cluster.Intent
	Category string

	H2Count         int
	WordsPerSection int
	Research        string

	Parent     *Relation
	Neighbours []Relation
	Children   []Relation

	Source      *cluster.MainSourceLink
	Geolocation string
	Author      *cluster.Author

	// Summary is set once the body copy exists.
	Summary string
}

func (pc *PageContext) describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page topic: %s\n", pc.Topic)
	fmt.Fprintf(&b, "Cluster keyword: %s\n", pc.Keyword)
	if len(pc.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(pc.Keywords, ", "))
	}
	fmt.Fprintf(&b, "Language: %s\n", pc.Language)
	if pc.Country != "" {
		fmt.Fprintf(&b, "Country: %s\n", pc.Country)
	}
	if pc.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", pc.Audience)
	}
	if pc.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", pc.Category)
	}
	if pc.Geolocation != "" {
		fmt.Fprintf(&b, "Geolocation: %s\n", pc.Geolocation)
	}
	fmt.Fprintf(&b, "Search intent: %s\n", pc.Intent)
	if pc.Summary != "" {
		fmt.Fprintf(&b, "Page summary: %s\n", pc.Summary)
	} else if pc.Research != "" {
		fmt.Fprintf(&b, "Research notes: %s\n", pc.Research)
	}
	return b.String()
}
