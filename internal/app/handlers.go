package app

import (
	nethttp "net/http"

	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/http"
	httpH "github.com/yungbote/clusterforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/clusterforge-backend/internal/http/middleware"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

func wireServer(db *gorm.DB, log *logger.Logger, cfg Config, svc *Services, metrics observability.Recorder, metricsHandler nethttp.Handler) *http.Server {
	log.Info("wiring handlers")
	return http.NewServer(http.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, svc.Auth),
		ClusterHandler: httpH.NewClusterHandler(svc.Clusters, svc.Generation),
		BillingHandler: httpH.NewBillingHandler(svc.Ledger),
		HealthHandler:  httpH.NewHealthHandler(db),
	})
}
