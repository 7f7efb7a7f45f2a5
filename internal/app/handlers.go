package app

import (
	"gorm.io/gorm"

	httpH "github.com/yungbote/gradebridge-backend/internal/http/handlers"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Import   *httpH.ImportHandler
	Approval *httpH.ApprovalHandler
	Student  *httpH.StudentHandler
	Sweep    *httpH.SweepHandler
}

func wireHandlers(db *gorm.DB, s Services) Handlers {
	return Handlers{
		Health:   httpH.NewHealthHandler(db),
		Import:   httpH.NewImportHandler(s.Import),
		Approval: httpH.NewApprovalHandler(s.Approval),
		Student:  httpH.NewStudentHandler(s.Student, s.Roster),
		Sweep:    httpH.NewSweepHandler(s.Sweep, s.Projection),
	}
}
