package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/gradebridge-backend/internal/http/response"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/services"
)

const (
	sweepTrigger      = "api"
	maxCurriculumBody = 4 << 20
)

type SweepHandler struct {
	sweeps      services.SweepService
	projections services.ProjectionService
}

func NewSweepHandler(sweeps services.SweepService, projections services.ProjectionService) *SweepHandler {
	return &SweepHandler{sweeps: sweeps, projections: projections}
}

// POST /api/sweeps/:pass
func (h *SweepHandler) Run(c *gin.Context) {
	rep, err := h.sweeps.Run(c.Request.Context(), c.Param("pass"), sweepTrigger)
	if err != nil {
		response.RespondServiceError(c, "sweep_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"report": rep})
}

// POST /api/sweeps/curriculum-enforce
//
// The body is an optional hierarchy YAML document; an empty body enforces the seeded curriculum.
func (h *SweepHandler) Enforce(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCurriculumBody))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	rep, err := h.sweeps.Enforce(c.Request.Context(), raw, sweepTrigger)
	if err != nil {
		response.RespondServiceError(c, "sweep_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"report": rep})
}

// GET /api/sweeps?pass=class-dedup&limit=20
func (h *SweepHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.sweeps.Recent(dbctx.Context{Ctx: c.Request.Context()}, c.Query("pass"), limit)
	if err != nil {
		response.RespondServiceError(c, "list_sweeps_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"runs": rows})
}

// POST /api/projections/rebuild
func (h *SweepHandler) Rebuild(c *gin.Context) {
	stats, err := h.projections.RebuildAll(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "rebuild_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"projection": stats})
}
