package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

func TestValidatorChecksStatusAndContentType(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html></html>"))
		case "/text":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("hello"))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	v := NewValidator(NewMemoryCache(), time.Second, 4, logger.Nop())
	urls := []string{srv.URL + "/pdf", srv.URL + "/html", srv.URL + "/missing", srv.URL + "/text"}
	got := v.Filter(context.Background(), urls)
	assert.Equal(t, []string{srv.URL + "/html", srv.URL + "/text"}, got)
	assert.EqualValues(t, 4, hits.Load())

	v.Filter(context.Background(), urls)
	assert.EqualValues(t, 4, hits.Load(), "cached results must not be refetched")
}

func TestValidatorJobCacheLayersOverShared(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
	}))
	defer srv.Close()

	shared := NewMemoryCache()
	base := NewValidator(shared, time.Second, 2, logger.Nop())
	job := NewMemoryCache()
	v := base.WithCache(job)

	assert.True(t, v.Valid(context.Background(), srv.URL))
	assert.Equal(t, 1, job.Len())
	assert.Equal(t, 1, shared.Len())

	other := base.WithCache(NewMemoryCache())
	assert.True(t, other.Valid(context.Background(), srv.URL))
	assert.EqualValues(t, 1, hits.Load())
}

func TestClientSearch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "espresso", req.Q)
		assert.Equal(t, "de", req.GL)
		_ = json.NewEncoder(w).Encode(map[string]any{"organic": []map[string]any{
			{"title": "A", "link": "https://a.example"},
			{"title": "B", "link": "ftp://b.example"},
		}})
	}))
	defer srv.Close()

	c := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 2})
	res, err := c.Search(context.Background(), "espresso", "de", "DE")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "https://a.example", res[0].Link)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientWithoutKeyIsDisabled(t *testing.T) {
	_, err := NewClient(logger.Nop(), Config{}).Search(context.Background(), "q", "en", "us")
	assert.ErrorIs(t, err, ErrDisabled)
}
