package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/gradebridge-backend/internal/http/response"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/services"
)

type ApprovalHandler struct {
	approvals services.ApprovalService
}

func NewApprovalHandler(approvals services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

// GET /api/approvals?status=pending&limit=100
func (h *ApprovalHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.approvals.List(dbctx.Context{Ctx: c.Request.Context()}, c.Query("status"), limit)
	if err != nil {
		response.RespondServiceError(c, "list_approvals_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"approvals": rows})
}

// POST /api/approvals/:id/approve
func (h *ApprovalHandler) Approve(c *gin.Context) {
	id, ok := approvalID(c)
	if !ok {
		return
	}
	res, err := h.approvals.Approve(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "approve_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

type denyRequest struct {
	CreateNew bool `json:"create_new"`
}

// POST /api/approvals/:id/deny
func (h *ApprovalHandler) Deny(c *gin.Context) {
	id, ok := approvalID(c)
	if !ok {
		return
	}
	var req denyRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.approvals.Deny(c.Request.Context(), id, req.CreateNew)
	if err != nil {
		response.RespondServiceError(c, "deny_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

func approvalID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_approval_id", err)
		return uuid.Nil, false
	}
	return id, true
}
