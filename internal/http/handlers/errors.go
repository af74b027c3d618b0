package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/http/response"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/platform/apierr"
	"github.com/yungbote/clusterforge-backend/internal/services"
)

var errorRules = []apierr.Rule{
	{Target: billing.ErrInsufficientBalance, Status: http.StatusPaymentRequired, Code: "insufficient_balance"},
	{Target: billing.ErrAlreadyCharged, Status: http.StatusConflict, Code: "already_charged"},
	{Target: state.ErrJobLocked, Status: http.StatusConflict, Code: "job_locked"},
	{Target: state.ErrNotAllowed, Status: http.StatusConflict, Code: "not_allowed"},
	{Target: state.ErrConcurrentTransition, Status: http.StatusConflict, Code: "status_changed"},
	{Target: services.ErrAlreadyGenerated, Status: http.StatusConflict, Code: "already_generated"},
	{Target: services.ErrJobFinished, Status: http.StatusConflict, Code: "job_finished"},
	{Target: structure.ErrCompile, Status: http.StatusUnprocessableEntity, Code: "structure_invalid"},
	{Target: services.ErrInvalidInput, Status: http.StatusUnprocessableEntity, Code: "invalid_input"},
	{Target: state.ErrNotFound, Status: http.StatusNotFound, Code: "cluster_not_found"},
	{Target: services.ErrJobNotFound, Status: http.StatusNotFound, Code: "job_not_found"},
}

func respondErr(c *gin.Context, err error) {
	response.RespondAPIError(c, apierr.Classify(err, errorRules...))
}
