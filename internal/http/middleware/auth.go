package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/clusterforge-backend/internal/http/response"
	"github.com/yungbote/clusterforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/services"
)

var errMissingToken = errors.New("missing bearer token")

// AuthMiddleware resolves the bearer token to the owner the request acts for.
type AuthMiddleware struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, auth services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "auth"), auth: auth}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingToken)
			return
		}
		ctx, err := m.auth.SetContextFromToken(c.Request.Context(), raw)
		if err != nil {
			m.log.Debug("token rejected", "error", err)
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		if rd := ctxutil.GetRequestData(ctx); rd == nil || rd.OwnerID == uuid.Nil {
			response.RespondError(c, http.StatusForbidden, "forbidden", nil)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
