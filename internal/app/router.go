package app

import (
	"github.com/gin-gonic/gin"

	apphttp "github.com/yungbote/gradebridge-backend/internal/http"
	"github.com/yungbote/gradebridge-backend/internal/observability"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, otelCfg observability.OtelConfig, metrics *observability.Metrics, h Handlers) *gin.Engine {
	serviceName := ""
	if otelCfg.Enabled {
		serviceName = otelCfg.ServiceName
	}
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.CORSOrigins,
		HealthHandler:   h.Health,
		ImportHandler:   h.Import,
		ApprovalHandler: h.Approval,
		StudentHandler:  h.Student,
		SweepHandler:    h.Sweep,
	})
}
