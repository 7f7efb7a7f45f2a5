package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/gradebridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/gradebridge-backend/internal/http/middleware"
	"github.com/yungbote/gradebridge-backend/internal/observability"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	HealthHandler   *httpH.HealthHandler
	ImportHandler   *httpH.ImportHandler
	ApprovalHandler *httpH.ApprovalHandler
	StudentHandler  *httpH.StudentHandler
	SweepHandler    *httpH.SweepHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Imports
		if cfg.ImportHandler != nil {
			api.POST("/imports", cfg.ImportHandler.Create)
		}

		// Approval queue
		if cfg.ApprovalHandler != nil {
			api.GET("/approvals", cfg.ApprovalHandler.List)
			api.POST("/approvals/:id/approve", cfg.ApprovalHandler.Approve)
			api.POST("/approvals/:id/deny", cfg.ApprovalHandler.Deny)
		}

		// Students
		if cfg.StudentHandler != nil {
			api.GET("/students", cfg.StudentHandler.List)
			api.GET("/students/:id/record", cfg.StudentHandler.Record)
			api.POST("/roster", cfg.StudentHandler.LoadRoster)
		}

		// Sweeper + projections
		if cfg.SweepHandler != nil {
			api.GET("/sweeps", cfg.SweepHandler.List)
			api.POST("/sweeps/curriculum-enforce", cfg.SweepHandler.Enforce)
			api.POST("/sweeps/:pass", cfg.SweepHandler.Run)
			api.POST("/projections/rebuild", cfg.SweepHandler.Rebuild)
		}
	}

	return r
}
