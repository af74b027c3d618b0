package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clusterforge-backend/internal/observability"
)

// Metrics observes every request by route template, so /clusters/:id
// stays one series. Unrouted paths are folded into "unmatched".
func Metrics(rec observability.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rec == nil {
			c.Next()
			return
		}
		begin := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rec.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(begin))
	}
}
