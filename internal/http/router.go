package http

import (
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/clusterforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/clusterforge-backend/internal/http/middleware"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        observability.Recorder
	// MetricsHandler serves /metrics when set.
	MetricsHandler nethttp.Handler

	AuthMiddleware *httpMW.AuthMiddleware
	ClusterHandler *httpH.ClusterHandler
	BillingHandler *httpH.BillingHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.Trace())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		if cfg.ClusterHandler != nil {
			protected.POST("/clusters", cfg.ClusterHandler.CreateCluster)
			protected.POST("/clusters/:id/generate", cfg.ClusterHandler.Generate)
			protected.POST("/clusters/:id/cancel", cfg.ClusterHandler.Cancel)
			protected.GET("/clusters/:id/generation", cfg.ClusterHandler.GenerationStatus)
		}
		if cfg.BillingHandler != nil {
			protected.GET("/billing/balance", cfg.BillingHandler.Balance)
		}
	}
	return r
}
