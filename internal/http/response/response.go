// Package response renders the JSON bodies of the HTTP API. Failures share
// one envelope: {"error": {"code", "message", "request_id"}}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clusterforge-backend/internal/platform/apierr"
	"github.com/yungbote/clusterforge-backend/internal/platform/ctxutil"
)

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// RespondError aborts the chain with status. A nil err falls back to the
// status text.
func RespondError(c *gin.Context, status int, code string, err error) {
	body := ErrorBody{Code: code, Message: http.StatusText(status)}
	if err != nil {
		body.Message = err.Error()
	}
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		body.RequestID = td.RequestID
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: body})
}

func RespondAPIError(c *gin.Context, err *apierr.Error) {
	if err != nil {
		RespondError(c, err.Status, err.Code, err)
	}
}

func RespondOK(c *gin.Context, payload any)       { c.JSON(http.StatusOK, payload) }
func RespondAccepted(c *gin.Context, payload any) { c.JSON(http.StatusAccepted, payload) }
