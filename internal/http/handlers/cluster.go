package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/clusterforge-backend/internal/http/response"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/clusterforge-backend/internal/services"
)

type ClusterHandler struct {
	clusters   services.ClusterService
	generation services.GenerationService
}

func NewClusterHandler(clusters services.ClusterService, generation services.GenerationService) *ClusterHandler {
	return &ClusterHandler{clusters: clusters, generation: generation}
}

func ownerID(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.OwnerID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return uuid.Nil, false
	}
	return rd.OwnerID, true
}

func clusterID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_cluster_id", err)
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/clusters
func (h *ClusterHandler) CreateCluster(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	var req services.CreateClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	created, job, err := h.clusters.Create(dbctx.Context{Ctx: c.Request.Context()}, owner, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"cluster": created, "job_id": job.ID})
}

// POST /api/clusters/:id/generate
func (h *ClusterHandler) Generate(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := clusterID(c)
	if !ok {
		return
	}
	ticket, err := h.generation.Request(dbctx.Context{Ctx: c.Request.Context()}, owner, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{
		"cluster_id": ticket.Cluster.ID,
		"status":     ticket.Cluster.Status,
		"job_id":     ticket.Job.ID,
		"pages":      ticket.Pages,
		"amount":     ticket.Charge.Amount,
	})
}

// POST /api/clusters/:id/cancel
func (h *ClusterHandler) Cancel(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := clusterID(c)
	if !ok {
		return
	}
	job, err := h.generation.Cancel(dbctx.Context{Ctx: c.Request.Context()}, owner, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/clusters/:id/generation
func (h *ClusterHandler) GenerationStatus(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := clusterID(c)
	if !ok {
		return
	}
	st, err := h.generation.Status(dbctx.Context{Ctx: c.Request.Context()}, owner, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, st)
}
