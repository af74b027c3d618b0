package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

// CacheEntry is the remembered outcome of one URL check.
type CacheEntry struct {
	URL         string    `json:"url"`
	Valid       bool      `json:"valid"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

type Cache interface {
	Get(ctx context.Context, url string) (*CacheEntry, error)
	Set(ctx context.Context, e *CacheEntry) error
}

// Validator decides whether a candidate URL is usable as a reference:
// a GET must answer 2xx with an HTML or plain text body.
type Validator struct {
	http    *http.Client
	cache   Cache
	limit   int
	log     *logger.Logger
	allowed map[string]bool
}

func NewValidator(cache Cache, timeout time.Duration, limit int, log *logger.Logger) *Validator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if limit <= 0 {
		limit = 8
	}
	return &Validator{
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				return nil
			},
		},
		cache:   cache,
		limit:   limit,
		log:     log.With("component", "LinkValidator"),
		allowed: map[string]bool{"text/html": true, "text/plain": true},
	}
}

// WithCache returns a validator that consults c before the shared cache.
// Jobs use it to keep their own memory of checked links.
func (v *Validator) WithCache(c Cache) *Validator {
	cp := *v
	cp.cache = Tiered{c, v.cache}
	return &cp
}

func (v *Validator) Valid(ctx context.Context, url string) bool {
	if v.cache != nil {
		if e, err := v.cache.Get(ctx, url); err == nil && e != nil {
			return e.Valid
		}
	}
	entry := v.check(ctx, url)
	if ctx.Err() != nil {
		return false
	}
	if v.cache != nil {
		if err := v.cache.Set(ctx, entry); err != nil {
			v.log.Debug("link cache write failed", "url", url, "error", err)
		}
	}
	return entry.Valid
}

// Filter checks urls concurrently and returns the valid ones in input order.
func (v *Validator) Filter(ctx context.Context, urls []string) []string {
	ok := make([]bool, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.limit)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			ok[i] = v.Valid(gctx, u)
			return nil
		})
	}
	_ = g.Wait()
	out := make([]string, 0, len(urls))
	for i, u := range urls {
		if ok[i] {
			out = append(out, u)
		}
	}
	return out
}

func (v *Validator) check(ctx context.Context, url string) *CacheEntry {
	entry := &CacheEntry{URL: url, CheckedAt: time.Now()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return entry
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; clusterforge-linkcheck/1.0)")
	resp, err := v.http.Do(req)
	if err != nil {
		v.log.Debug("link check failed", "url", url, "error", err)
		return entry
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, 64<<10)

	entry.Status = resp.StatusCode
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	entry.ContentType = mediaType
	entry.Valid = resp.StatusCode >= 200 && resp.StatusCode < 300 && v.allowed[mediaType]
	return entry
}

// Tiered reads through caches in order and writes to all of them.
type Tiered []Cache

func (t Tiered) Get(ctx context.Context, url string) (*CacheEntry, error) {
	for _, c := range t {
		if c == nil {
			continue
		}
		if e, err := c.Get(ctx, url); err == nil && e != nil {
			return e, nil
		}
	}
	return nil, nil
}

func (t Tiered) Set(ctx context.Context, e *CacheEntry) error {
	var errs []error
	for _, c := range t {
		if c == nil {
			continue
		}
		if err := c.Set(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryCache lives for one job.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]*CacheEntry{}}
}

func (m *MemoryCache) Get(_ context.Context, url string) (*CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[url], nil
}

func (m *MemoryCache) Set(_ context.Context, e *CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.URL] = e
	return nil
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RedisCache shares link results between workers. Broken links are kept for
// a shorter time than working ones.
type RedisCache struct {
	rdb        *goredis.Client
	prefix     string
	validTTL   time.Duration
	invalidTTL time.Duration
}

func NewRedisCache(rdb *goredis.Client, validTTL, invalidTTL time.Duration) *RedisCache {
	if validTTL <= 0 {
		validTTL = 24 * time.Hour
	}
	if invalidTTL <= 0 {
		invalidTTL = time.Hour
	}
	return &RedisCache{rdb: rdb, prefix: "linkcheck:", validTTL: validTTL, invalidTTL: invalidTTL}
}

func (r *RedisCache) Get(ctx context.Context, url string) (*CacheEntry, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+url).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, nil
	}
	return &e, nil
}

func (r *RedisCache) Set(ctx context.Context, e *CacheEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ttl := r.validTTL
	if !e.Valid {
		ttl = r.invalidTTL
	}
	return r.rdb.Set(ctx, r.prefix+e.URL, raw, ttl).Err()
}
