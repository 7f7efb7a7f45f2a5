package sweeper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/observability"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	apperrors "github.com/yungbote/gradebridge-backend/internal/platform/errors"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/projector"
)

const (
	PassClassDedup        = "class-dedup"
	PassCurriculumDedup   = "curriculum-dedup"
	PassOrphanPurge       = "orphan-purge"
	PassStudentDedup      = "student-dedup"
	PassCurriculumEnforce = "curriculum-enforce"
	PassAll               = "all"

	defaultBatchSize = 200
	maxBatchSize     = 2000
	lockKey          = "gradebridge:sweep"
)

// Bump a pass version whenever its repair rules change so SweepRun rows stay comparable.
var passVersions = map[string]int{
	PassClassDedup:        1,
	PassCurriculumDedup:   1,
	PassOrphanPurge:       1,
	PassStudentDedup:      1,
	PassCurriculumEnforce: 1,
	PassAll:               1,
}

var allPasses = []string{PassClassDedup, PassCurriculumDedup, PassOrphanPurge, PassStudentDedup}

var (
	ErrUnknownPass     = fmt.Errorf("%w: unknown sweep pass", apperrors.ErrInvalidArgument)
	ErrSweepInProgress = fmt.Errorf("%w: sweep already running on another instance", apperrors.ErrConflict)
	ErrNoCanonical     = errors.New("no canonical curriculum configured")
)

func KnownPass(pass string) bool {
	_, ok := passVersions[pass]
	return ok
}

// Locker is the cross-instance lock; the redis bus satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Options struct {
	BatchSize int
	Lock      Locker
	LockTTL   time.Duration
	Seed      *hierarchy.Hierarchy
}

type Report struct {
	RunID      uuid.UUID      `json:"run_id"`
	Pass       string         `json:"pass"`
	Status     string         `json:"status"`
	Counts     map[string]int `json:"counts"`
	Errors     []string       `json:"errors"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

type Sweeper struct {
	db        *gorm.DB
	log       *logger.Logger
	set       repos.Set
	proj      *projector.Projector
	lock      Locker
	lockTTL   time.Duration
	seed      *hierarchy.Hierarchy
	batchSize int

	sf    singleflight.Group
	runMu sync.Mutex
}

func New(db *gorm.DB, baseLog *logger.Logger, set repos.Set, proj *projector.Projector, opts Options) *Sweeper {
	bs := opts.BatchSize
	if bs <= 0 {
		bs = defaultBatchSize
	}
	if bs > maxBatchSize {
		bs = maxBatchSize
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Sweeper{
		db:        db,
		log:       baseLog.With("component", "Sweeper"),
		set:       set,
		proj:      proj,
		lock:      opts.Lock,
		lockTTL:   ttl,
		seed:      opts.Seed,
		batchSize: bs,
	}
}

// run is the per-pass accumulator. Group failures land in errs and never stop the pass.
type run struct {
	counts map[string]int
	errs   []string
}

func newRun() *run { return &run{counts: map[string]int{}} }

func (r *run) add(key string, n int) {
	if n != 0 {
		r.counts[key] += n
	}
}

func (r *run) fail(group string, err error) {
	r.errs = append(r.errs, fmt.Sprintf("%s: %v", group, err))
}

// Run executes pass. Concurrent calls for the same pass (and, for enforce, the same canonical
// list) share one execution; everything else queues behind the running sweep.
func (s *Sweeper) Run(ctx context.Context, pass, trigger string) (Report, error) {
	if !KnownPass(pass) {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownPass, pass)
	}
	var specs []hierarchy.ClassSpec
	if pass == PassCurriculumEnforce {
		specs = s.seed.Canonical()
		if len(specs) == 0 {
			return Report{}, ErrNoCanonical
		}
	}
	return s.do(ctx, pass, trigger, specs)
}

// Enforce runs curriculum-enforce against an explicit canonical list.
func (s *Sweeper) Enforce(ctx context.Context, specs []hierarchy.ClassSpec, trigger string) (Report, error) {
	if len(specs) == 0 {
		return Report{}, ErrNoCanonical
	}
	return s.do(ctx, PassCurriculumEnforce, trigger, specs)
}

func (s *Sweeper) do(ctx context.Context, pass, trigger string, specs []hierarchy.ClassSpec) (Report, error) {
	key, err := flightKey(pass, specs)
	if err != nil {
		return Report{Pass: pass}, err
	}
	// Joined callers share this run, so it must not die with the first caller's request.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lockTTL)
	defer cancel()
	v, err, shared := s.sf.Do(key, func() (interface{}, error) {
		s.runMu.Lock()
		defer s.runMu.Unlock()
		return s.execute(runCtx, pass, trigger, specs)
	})
	if shared {
		s.log.Debug("Sweep call shared an in-flight run", "pass", pass)
	}
	rep, _ := v.(Report)
	return rep, err
}

// flightKey only lets calls share a run when they would do the same work: enforce calls with
// different canonical lists get different keys.
func flightKey(pass string, specs []hierarchy.ClassSpec) (string, error) {
	if len(specs) == 0 {
		return pass, nil
	}
	raw, err := json.Marshal(specs)
	if err != nil {
		return "", fmt.Errorf("fingerprint canonical list: %w", err)
	}
	sum := sha256.Sum256(raw)
	return pass + ":" + hex.EncodeToString(sum[:8]), nil
}

func (s *Sweeper) execute(ctx context.Context, pass, trigger string, specs []hierarchy.ClassSpec) (rep Report, err error) {
	if trigger == "" {
		trigger = "manual"
	}
	ctx, span := observability.StartSpan(ctx, "sweeper."+pass, attribute.String("trigger", trigger))
	defer func() { observability.EndSpan(span, err) }()

	if s.lock != nil {
		release, ok, lerr := s.lock.TryLock(ctx, lockKey, s.lockTTL)
		switch {
		case lerr != nil:
			s.log.Warn("Sweep lock unavailable, continuing with in-process guard only", "pass", pass, "error", lerr)
		case !ok:
			return Report{Pass: pass}, ErrSweepInProgress
		default:
			defer release()
		}
	}

	now := time.Now().UTC()
	auditRow := &types.SweepRun{
		ID:          uuid.New(),
		Pass:        pass,
		PassVersion: passVersions[pass],
		TriggeredBy: trigger,
		Status:      types.SweepStatusRunning,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.set.SweepRuns.Create(dbctx.Context{Ctx: ctx}, auditRow); err != nil {
		return Report{Pass: pass}, fmt.Errorf("record sweep run: %w", err)
	}

	r := newRun()
	var passErr error
	switch pass {
	case PassAll:
		for _, p := range allPasses {
			if passErr = s.runPass(ctx, p, nil, r); passErr != nil {
				break
			}
		}
	default:
		passErr = s.runPass(ctx, pass, specs, r)
	}

	rep = Report{
		RunID:      auditRow.ID,
		Pass:       pass,
		Status:     types.SweepStatusSucceeded,
		Counts:     r.counts,
		Errors:     r.errs,
		StartedAt:  now,
		FinishedAt: time.Now().UTC(),
	}
	if passErr != nil {
		rep.Status = types.SweepStatusFailed
		rep.Errors = append(rep.Errors, passErr.Error())
	}
	if ferr := s.finish(ctx, rep); ferr != nil {
		s.log.Warn("Failed to finish sweep run row", "run_id", rep.RunID, "error", ferr)
	}
	observability.Current().ObserveSweep(pass, rep.Status, rep.Counts)
	s.log.Info("Sweep finished",
		"pass", pass,
		"status", rep.Status,
		"counts", rep.Counts,
		"group_errors", len(r.errs),
		"elapsed", rep.FinishedAt.Sub(rep.StartedAt).String(),
	)
	return rep, passErr
}

func (s *Sweeper) runPass(ctx context.Context, pass string, specs []hierarchy.ClassSpec, r *run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch pass {
	case PassClassDedup:
		return s.classDedup(ctx, r)
	case PassCurriculumDedup:
		return s.curriculumDedup(ctx, r)
	case PassOrphanPurge:
		return s.orphanPurge(ctx, r)
	case PassStudentDedup:
		return s.studentDedup(ctx, r)
	case PassCurriculumEnforce:
		return s.enforce(ctx, specs, r)
	}
	return fmt.Errorf("%w: %q", ErrUnknownPass, pass)
}

func (s *Sweeper) finish(ctx context.Context, rep Report) error {
	counts, err := json.Marshal(rep.Counts)
	if err != nil {
		return err
	}
	errs := rep.Errors
	if errs == nil {
		errs = []string{}
	}
	rawErrs, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	// The pass may have run out its context; the audit row still gets closed.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return s.set.SweepRuns.Finish(dbctx.Context{Ctx: fctx}, rep.RunID, rep.Status, datatypes.JSON(counts), datatypes.JSON(rawErrs))
}

// group runs one repair group in its own transaction. Its counts only reach r when the
// transaction commits; a failure is recorded and the pass moves on.
func (s *Sweeper) group(ctx context.Context, r *run, label string, fn func(dbc dbctx.Context, g *run) error) bool {
	g := newRun()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx}, g)
	})
	if err != nil {
		s.log.Warn("Sweep group failed (continuing)", "group", label, "error", err)
		r.fail(label, err)
		return false
	}
	for k, v := range g.counts {
		r.add(k, v)
	}
	return true
}

func earliestClassFirst(rows []*types.ClassOffering) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
}

func earliestItemFirst(rows []*types.CurriculumItem) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
}

func pairsOf(snaps []*types.ClassSnapshot) []types.PairKey {
	out := make([]types.PairKey, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, types.PairKey{StudentID: s.StudentID, ClassID: s.ClassID})
	}
	return out
}
