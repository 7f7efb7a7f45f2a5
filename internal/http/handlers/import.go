package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/gradebridge-backend/internal/http/response"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/importer"
	"github.com/yungbote/gradebridge-backend/internal/services"
)

type ImportHandler struct {
	imports services.ImportService
}

func NewImportHandler(imports services.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// POST /api/imports
func (h *ImportHandler) Create(c *gin.Context) {
	var req importer.Batch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.imports.Import(c.Request.Context(), req)
	if err != nil {
		response.RespondServiceError(c, "import_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}
