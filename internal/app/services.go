package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/identity"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/importer"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/projector"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/snapshot"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/sweeper"
	"github.com/yungbote/gradebridge-backend/internal/services"
)

// Engine is the reconciliation core shared by the HTTP server and reconcilectl.
type Engine struct {
	Resolver  *identity.Resolver
	Store     *snapshot.Store
	Projector *projector.Projector
	Importer  *importer.Importer
	Sweeper   *sweeper.Sweeper
}

type Services struct {
	Import     services.ImportService
	Approval   services.ApprovalService
	Student    services.StudentService
	Roster     services.RosterService
	Sweep      services.SweepService
	Projection services.ProjectionService
	Catalog    services.CatalogService
}

func wireEngine(db *gorm.DB, log *logger.Logger, cfg Config, set repos.Set, seed *hierarchy.Hierarchy, clients Clients) Engine {
	resolver := identity.NewResolver(log, set.Students, set.Classes, seed, identity.Config{
		FuzzyThreshold: cfg.FuzzyThreshold,
		ExactThreshold: cfg.ExactThreshold,
	})
	store := snapshot.NewStore(db, log, set)
	proj := projector.New(db, log, set, cfg.ProjectorBatchSize)
	opts := sweeper.Options{
		BatchSize: cfg.SweepBatchSize,
		LockTTL:   cfg.SweepLockTTL,
		Seed:      seed,
	}
	if clients.Bus != nil {
		opts.Lock = clients.Bus
	}
	return Engine{
		Resolver:  resolver,
		Store:     store,
		Projector: proj,
		Importer:  importer.New(db, log, set, resolver, store, proj, cfg.ImportWorkers),
		Sweeper:   sweeper.New(db, log, set, proj, opts),
	}
}

func wireServices(db *gorm.DB, log *logger.Logger, set repos.Set, eng Engine, clients Clients) Services {
	var events services.EventPublisher
	if clients.Bus != nil {
		events = clients.Bus
	}
	return Services{
		Import:     services.NewImportService(log, eng.Importer, events),
		Approval:   services.NewApprovalService(log, set.Approvals, eng.Importer),
		Student:    services.NewStudentService(log, set),
		Roster:     services.NewRosterService(db, log, set.Students),
		Sweep:      services.NewSweepService(log, eng.Sweeper, set.SweepRuns, events),
		Projection: services.NewProjectionService(log, eng.Projector),
		Catalog:    services.NewCatalogService(db, log, set.Classes),
	}
}
