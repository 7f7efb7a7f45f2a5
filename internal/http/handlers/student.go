package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/gradebridge-backend/internal/http/response"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/services"
)

type StudentHandler struct {
	students services.StudentService
	roster   services.RosterService
}

func NewStudentHandler(students services.StudentService, roster services.RosterService) *StudentHandler {
	return &StudentHandler{students: students, roster: roster}
}

// GET /api/students?q=jane&limit=50
func (h *StudentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.students.List(dbctx.Context{Ctx: c.Request.Context()}, c.Query("q"), limit)
	if err != nil {
		response.RespondServiceError(c, "list_students_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"students": rows})
}

// GET /api/students/:id/record
func (h *StudentHandler) Record(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_student_id", err)
		return
	}
	rec, err := h.students.Record(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondServiceError(c, "get_student_record_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"record": rec})
}

// POST /api/roster
func (h *StudentHandler) LoadRoster(c *gin.Context) {
	var req services.RosterLoad
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.roster.Load(c.Request.Context(), req)
	if err != nil {
		response.RespondServiceError(c, "roster_load_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}
