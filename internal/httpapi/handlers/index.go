package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/finchat/internal/chat"
	"github.com/suPer8Hu/finchat/internal/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RefreshIndex queues a rebuild when a publisher is configured, otherwise
// rebuilds before answering.
func (h *Handler) RefreshIndex(c *gin.Context) {
	ctx := c.Request.Context()

	job, err := h.ChatSvc.CreateIndexJob(ctx)
	if err != nil {
		h.Logger.Error("create index job failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to refresh index")
		return
	}

	if h.Publisher != nil {
		if err := h.Publisher.PublishRefresh(ctx, job.ID); err != nil {
			h.Logger.Error("publish refresh failed", zap.String("job_id", job.ID), zap.Error(err))
			_ = h.ChatSvc.FailIndexJob(ctx, job.ID, "enqueue failed: "+err.Error())
			common.Fail(c, http.StatusInternalServerError, 50004, "enqueue failed")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": chat.JobQueued})
		return
	}

	if err := h.ChatSvc.RunIndexJob(ctx, job.ID); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to refresh index")
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "status": chat.JobSucceeded})
}

func (h *Handler) GetIndexJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetIndexJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"job": j})
}

type createDocumentReq struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *Handler) CreateDocument(c *gin.Context) {
	var req createDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	d, err := h.ChatSvc.AddDocument(c.Request.Context(), req.Title, req.Content)
	if err != nil {
		h.Logger.Error("create document failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to create document")
		return
	}
	common.OK(c, gin.H{"document": d})
}
