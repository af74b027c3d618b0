package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/clusterforge-backend/internal/pkg/httpx"
	"github.com/yungbote/clusterforge-backend/internal/platform/envutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

var ErrDisabled = errors.New("search: no api key configured")

type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher is the web search collaborator used for reference lookup.
type Searcher interface {
	Search(ctx context.Context, query, language, country string) ([]Result, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Results    int
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("SEARCH_API_KEY", ""),
		BaseURL:    envutil.String("SEARCH_BASE_URL", "https://google.serper.dev"),
		Results:    envutil.Int("SEARCH_RESULTS", 10),
		Timeout:    envutil.Duration("SEARCH_TIMEOUT", 20*time.Second),
		MaxRetries: envutil.Int("SEARCH_MAX_RETRIES", 2),
	}
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
}

func NewClient(log *logger.Logger, cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Results <= 0 {
		cfg.Results = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("client", "SearchClient"),
	}
}

type searchRequest struct {
	Q   string `json:"q"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
	Num int    `json:"num"`
}

type searchResponse struct {
	Organic []Result `json:"organic"`
}

func (c *Client) Search(ctx context.Context, query, language, country string) ([]Result, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrDisabled
	}
	body, err := json.Marshal(searchRequest{
		Q:   query,
		GL:  strings.ToLower(country),
		HL:  strings.ToLower(language),
		Num: c.cfg.Results,
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		out, resp, err := c.doOnce(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			break
		}
		wait := httpx.RetryAfterDuration(resp, httpx.Backoff(500*time.Millisecond, 5*time.Second, attempt+1), 10*time.Second)
		c.log.Debug("search retrying", "query", query, "attempt", attempt+1, "error", err)
		if err := httpx.Sleep(ctx, httpx.JitterSleep(wait)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("search %q: %w", query, lastErr)
}

func (c *Client) doOnce(ctx context.Context, body []byte) ([]Result, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp, &httpx.StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, resp, fmt.Errorf("decode search response: %w", err)
	}
	out := make([]Result, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		if strings.HasPrefix(r.Link, "http://") || strings.HasPrefix(r.Link, "https://") {
			out = append(out, r)
		}
	}
	return out, resp, nil
}
