package cluster_generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/generation/engine"
	"github.com/yungbote/clusterforge-backend/internal/generation/pages"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/platform/objectstore"
)

const (
	originalPostfix = "original"
	releasePostfix  = "release_v1"
)

var errEmptyURI = errors.New("object store returned no uri")

// pageDocument is the JSON written for each generated page version.
type pageDocument struct {
	PageID       uuid.UUID            `json:"page_id"`
	ClusterID    uuid.UUID            `json:"cluster_id"`
	Topic        string               `json:"topic"`
	Intent       cluster.Intent       `json:"intent"`
	GeneralStyle map[string]string    `json:"general_style,omitempty"`
	Elements     []*structure.Element `json:"elements"`
}

// pageSink writes both versions of a page and marks it generated. A page is
// generated only when both objects and the row update landed.
type pageSink struct {
	pages   repos.PageRepo
	store   objectstore.Store
	ownerID uuid.UUID
	styles  map[cluster.Intent]map[string]string
	log     *logger.Logger
}

func (s *pageSink) Persist(ctx context.Context, t engine.Task, res *pages.Result) error {
	doc := pageDocument{
		PageID:       t.PageID,
		ClusterID:    t.Context.ClusterID,
		Topic:        t.Context.Topic,
		Intent:       t.Intent,
		GeneralStyle: s.styles[t.Intent],
	}
	doc.Elements = res.Original
	originalURI, err := s.save(ctx, t, originalPostfix, doc)
	if err == nil {
		doc.Elements = res.Release
		var releaseURI string
		releaseURI, err = s.save(ctx, t, releasePostfix, doc)
		if err == nil {
			err = s.pages.MarkGenerated(dbctx.Context{Ctx: ctx}, t.PageID, originalURI, releaseURI)
		}
	}
	if err != nil {
		s.discard(t)
		return err
	}
	return nil
}

func (s *pageSink) save(ctx context.Context, t engine.Task, postfix string, doc pageDocument) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", postfix, err)
	}
	key := objectstore.PageDocumentKey(s.ownerID, t.Context.ClusterID, t.PageID, postfix)
	uri, err := s.store.Save(ctx, key, raw)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", postfix, err)
	}
	if uri == "" {
		return "", fmt.Errorf("save %s: %w", postfix, errEmptyURI)
	}
	return uri, nil
}

func (s *pageSink) discard(t engine.Task) {
	prefix := objectstore.PagePrefix(s.ownerID, t.Context.ClusterID, t.PageID)
	if err := s.store.DeletePrefix(context.Background(), prefix); err != nil {
		s.log.Warn("discard page objects failed", "page_id", t.PageID, "prefix", prefix, "error", err)
	}
}
