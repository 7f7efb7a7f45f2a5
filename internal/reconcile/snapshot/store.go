package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/observability"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/merge"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/reconerr"
)

type Meta struct {
	SourceFile string
	ImportedAt time.Time
}

type Result struct {
	SnapshotID uuid.UUID  `json:"snapshot_id"`
	Accepted   bool       `json:"accepted"`
	Mode       merge.Mode `json:"mode"`
	Total      int        `json:"total"`
	Completed  int        `json:"completed"`
	Average    *float64   `json:"average,omitempty"`
	Added      int        `json:"added"`
	Version    int        `json:"version"`
	Freshness  *time.Time `json:"freshness,omitempty"`
}

// Store is the only writer that arbitrates snapshot freshness. Writes to one (student, class)
// pair are serialized; distinct pairs proceed in parallel.
type Store struct {
	db        *gorm.DB
	log       *logger.Logger
	snapshots repos.ClassSnapshotRepo
	students  repos.StudentRepo
	classes   repos.ClassOfferingRepo
	locks     *keyedMutex
}

func NewStore(db *gorm.DB, baseLog *logger.Logger, set repos.Set) *Store {
	return &Store{
		db:        db,
		log:       baseLog.With("component", "SnapshotStore"),
		snapshots: set.Snapshots,
		students:  set.Students,
		classes:   set.Classes,
		locks:     newKeyedMutex(),
	}
}

// Upsert applies one import for pair under the merge policy. A missing student or class yields
// reconerr.ErrWriteConflict; a MERGE that adds nothing returns Accepted=false.
func (s *Store) Upsert(ctx context.Context, pair types.PairKey, freshness *time.Time, entries []types.SnapshotEntry, meta Meta) (res Result, err error) {
	if !pair.Valid() {
		return Result{}, reconerr.New(reconerr.KindInvalidRecord, "", "student and class are required")
	}
	ctx, span := observability.StartSpan(ctx, "snapshot.Upsert",
		attribute.String("student_id", pair.StudentID.String()),
		attribute.String("class_id", pair.ClassID.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	unlock := s.locks.Lock(pair.String())
	defer unlock()

	if meta.ImportedAt.IsZero() {
		meta.ImportedAt = time.Now().UTC()
	}
	for attempt := 0; ; attempt++ {
		res, err = s.upsertOnce(ctx, pair, freshness, entries, meta)
		if err != nil && attempt == 0 && isUniqueViolation(err) {
			s.log.Warn("Lost first-insert race, retrying", "student_id", pair.StudentID, "class_id", pair.ClassID)
			continue
		}
		if err == nil {
			observability.Current().IncSnapshotWrite(string(res.Mode), res.Accepted)
		}
		return res, err
	}
}

func (s *Store) upsertOnce(ctx context.Context, pair types.PairKey, freshness *time.Time, entries []types.SnapshotEntry, meta Meta) (Result, error) {
	var res Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := LockPairs(tx, pair); err != nil {
			return fmt.Errorf("lock pair: %w", err)
		}
		if err := s.ensureRefs(dbc, pair); err != nil {
			return err
		}

		existing, err := s.snapshots.GetByPair(dbc, pair, true)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		var prev *merge.Existing
		if existing != nil {
			decoded, err := existing.DecodeEntries()
			if err != nil {
				return reconerr.Wrap(reconerr.KindIntegrityViolation, "", fmt.Errorf("decode snapshot %s: %w", existing.ID, err))
			}
			prev = &merge.Existing{Entries: decoded, Freshness: existing.Freshness}
		}

		out := merge.Apply(prev, entries, freshness)
		res = Result{
			Mode:      out.Mode,
			Total:     out.Total,
			Completed: out.Completed,
			Average:   out.Average,
			Added:     out.Added,
			Freshness: out.Freshness,
		}
		if !out.Changed {
			if existing != nil {
				res.SnapshotID, res.Version = existing.ID, existing.Version
			}
			return nil
		}

		raw, err := types.EncodeEntries(out.Entries)
		if err != nil {
			return fmt.Errorf("encode entries: %w", err)
		}
		now := time.Now().UTC()
		row := existing
		if row == nil {
			row = &types.ClassSnapshot{
				ID:        uuid.New(),
				StudentID: pair.StudentID,
				ClassID:   pair.ClassID,
				CreatedAt: now,
			}
		}
		row.Freshness = out.Freshness
		row.TotalCount = out.Total
		row.CompletedCount = out.Completed
		row.Average = out.Average
		row.Entries = raw
		row.Version++
		row.SourceFile = meta.SourceFile
		row.ImportedAt = meta.ImportedAt
		row.UpdatedAt = now
		if existing == nil {
			err = s.snapshots.Create(dbc, row)
		} else {
			err = s.snapshots.Update(dbc, row)
		}
		if err != nil {
			return err
		}
		res.Accepted = true
		res.SnapshotID, res.Version = row.ID, row.Version
		return nil
	})
	return res, err
}

func (s *Store) ensureRefs(dbc dbctx.Context, pair types.PairKey) error {
	students, err := s.students.GetByIDs(dbc, []uuid.UUID{pair.StudentID})
	if err != nil {
		return err
	}
	if len(students) == 0 {
		return reconerr.New(reconerr.KindWriteConflict, pair.StudentID.String(), "student no longer exists")
	}
	classes, err := s.classes.GetByIDs(dbc, []uuid.UUID{pair.ClassID})
	if err != nil {
		return err
	}
	if len(classes) == 0 {
		return reconerr.New(reconerr.KindWriteConflict, pair.ClassID.String(), "class no longer exists")
	}
	return nil
}

// Get returns the stored snapshot for pair, or nil.
func (s *Store) Get(ctx context.Context, pair types.PairKey) (*types.ClassSnapshot, error) {
	return s.snapshots.GetByPair(dbctx.Context{Ctx: ctx}, pair, false)
}
