package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/apierr"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/platform/redisbus"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/projector"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/sweeper"
)

type SweepService interface {
	Run(ctx context.Context, pass, trigger string) (*sweeper.Report, error)
	// Enforce runs curriculum-enforce against a canonical curriculum given as hierarchy YAML.
	// Empty raw falls back to the seeded hierarchy.
	Enforce(ctx context.Context, raw []byte, trigger string) (*sweeper.Report, error)
	Recent(dbc dbctx.Context, pass string, limit int) ([]*types.SweepRun, error)
}

type sweepService struct {
	log     *logger.Logger
	sweeper *sweeper.Sweeper
	runs    repos.SweepRunRepo
	events  EventPublisher
}

func NewSweepService(baseLog *logger.Logger, sw *sweeper.Sweeper, runs repos.SweepRunRepo, events EventPublisher) SweepService {
	return &sweepService{
		log:     baseLog.With("service", "SweepService"),
		sweeper: sw,
		runs:    runs,
		events:  events,
	}
}

func (s *sweepService) Run(ctx context.Context, pass, trigger string) (*sweeper.Report, error) {
	rep, err := s.sweeper.Run(ctx, pass, trigger)
	if err != nil {
		return nil, sweepErr(err)
	}
	s.announce(ctx, rep)
	return &rep, nil
}

func (s *sweepService) Enforce(ctx context.Context, raw []byte, trigger string) (*sweeper.Report, error) {
	if len(raw) == 0 {
		return s.Run(ctx, sweeper.PassCurriculumEnforce, trigger)
	}
	h, err := hierarchy.Parse(raw)
	if err != nil {
		return nil, apierr.BadRequest("invalid_curriculum", err)
	}
	rep, err := s.sweeper.Enforce(ctx, h.Canonical(), trigger)
	if err != nil {
		return nil, sweepErr(err)
	}
	s.announce(ctx, rep)
	return &rep, nil
}

func (s *sweepService) Recent(dbc dbctx.Context, pass string, limit int) ([]*types.SweepRun, error) {
	if pass != "" && !sweeper.KnownPass(pass) {
		return nil, apierr.BadRequest("unknown_pass", fmt.Errorf("%w: %q", sweeper.ErrUnknownPass, pass))
	}
	rows, err := s.runs.ListRecent(dbc, pass, limit)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "list_sweeps_failed", err)
	}
	return rows, nil
}

func (s *sweepService) announce(ctx context.Context, rep sweeper.Report) {
	publish(ctx, s.log, s.events, redisbus.Event{
		Type:   redisbus.EventSweepCompleted,
		Pass:   rep.Pass,
		Counts: rep.Counts,
	})
}

func sweepErr(err error) error {
	switch {
	case errors.Is(err, sweeper.ErrUnknownPass):
		return apierr.BadRequest("unknown_pass", err)
	case errors.Is(err, sweeper.ErrNoCanonical):
		return apierr.BadRequest("no_canonical_curriculum", err)
	case errors.Is(err, sweeper.ErrSweepInProgress):
		return apierr.Conflict("sweep_in_progress", err)
	default:
		return apierr.New(http.StatusInternalServerError, "sweep_failed", err)
	}
}

type ProjectionService interface {
	RebuildAll(ctx context.Context) (projector.Stats, error)
}

type projectionService struct {
	log       *logger.Logger
	projector *projector.Projector
}

func NewProjectionService(baseLog *logger.Logger, proj *projector.Projector) ProjectionService {
	return &projectionService{log: baseLog.With("service", "ProjectionService"), projector: proj}
}

func (s *projectionService) RebuildAll(ctx context.Context) (projector.Stats, error) {
	stats, err := s.projector.RebuildAll(ctx)
	if err != nil {
		return stats, apierr.New(http.StatusInternalServerError, "rebuild_failed", err)
	}
	return stats, nil
}
