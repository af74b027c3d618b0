package app

import (
	"strings"
	"time"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/generation/elements"
	"github.com/yungbote/clusterforge-backend/internal/platform/envutil"
)

const (
	DispatchWorker   = "worker"
	DispatchTemporal = "temporal"
)

type Config struct {
	ServiceName    string
	Environment    string
	Port           string
	JWTSecretKey   string
	AllowedOrigins []string
	// JobDispatch picks who executes queued runs: the in-process table
	// worker or Temporal workflows.
	JobDispatch        string
	PageCents          int64
	LockTTL            time.Duration
	ElementMaxAttempts int
	MaxReferences      int
	ImageMaxWidth      int
	LLMAttempts        int
	LinkCheckTimeout   time.Duration
	LinkCheckLimit     int
	LinkValidTTL       time.Duration
	LinkInvalidTTL     time.Duration
	MetricsEnabled     bool
}

func LoadConfig() Config {
	return Config{
		ServiceName:        envutil.String("SERVICE_NAME", "clusterforge"),
		Environment:        envutil.String("ENVIRONMENT", "development"),
		Port:               envutil.String("PORT", "8080"),
		JWTSecretKey:       envutil.String("JWT_SECRET_KEY", "defaultsecret"),
		AllowedOrigins:     splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		JobDispatch:        strings.ToLower(envutil.String("JOB_DISPATCH", DispatchWorker)),
		PageCents:          envutil.Int64("PAGE_PRICE_CENTS", billing.DefaultPageCents),
		LockTTL:            envutil.Duration("GENERATION_LOCK_TTL", 6*time.Hour),
		ElementMaxAttempts: envutil.Int("ELEMENT_MAX_ATTEMPTS", elements.DefaultMaxAttempts),
		MaxReferences:      envutil.Int("MAX_REFERENCES", elements.DefaultMaxReferences),
		ImageMaxWidth:      envutil.Int("IMAGE_MAX_WIDTH", 1024),
		LLMAttempts:        envutil.Int("LLM_MAX_ATTEMPTS", 3),
		LinkCheckTimeout:   envutil.Duration("LINK_CHECK_TIMEOUT", 5*time.Second),
		LinkCheckLimit:     envutil.Int("LINK_CHECK_CONCURRENCY", 8),
		LinkValidTTL:       envutil.Duration("LINK_CACHE_VALID_TTL", 7*24*time.Hour),
		LinkInvalidTTL:     envutil.Duration("LINK_CACHE_INVALID_TTL", 6*time.Hour),
		MetricsEnabled:     envutil.Bool("METRICS_ENABLED", true),
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
