package projector

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
	"github.com/yungbote/gradebridge-backend/internal/reconcile/activity"
)

const (
	defaultBatchSize = 200
	maxBatchSize     = 2000
)

type Stats struct {
	Pairs             int `json:"pairs"`
	SkippedNoSnapshot int `json:"skipped_no_snapshot"`
	RecordsUpserted   int `json:"records_upserted"`
	RecordsDeleted    int `json:"records_deleted"`
	EntriesUnresolved int `json:"entries_unresolved"`
}

func (s *Stats) add(o Stats) {
	s.Pairs += o.Pairs
	s.SkippedNoSnapshot += o.SkippedNoSnapshot
	s.RecordsUpserted += o.RecordsUpserted
	s.RecordsDeleted += o.RecordsDeleted
	s.EntriesUnresolved += o.EntriesUnresolved
}

// Projector derives Enrollment aggregates and AssignmentRecord rows from ClassSnapshots. It only
// reads snapshots and never creates curriculum items.
type Projector struct {
	db        *gorm.DB
	log       *logger.Logger
	set       repos.Set
	batchSize int
}

func New(db *gorm.DB, baseLog *logger.Logger, set repos.Set, batchSize int) *Projector {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	return &Projector{db: db, log: baseLog.With("component", "Projector"), set: set, batchSize: batchSize}
}

// ProjectPairs refreshes the projection of pairs in one transaction.
func (p *Projector) ProjectPairs(ctx context.Context, pairs []types.PairKey) (stats Stats, err error) {
	pairs = types.UniquePairs(pairs)
	if len(pairs) == 0 {
		return Stats{}, nil
	}
	ctx, span := observability.StartSpan(ctx, "projector.ProjectPairs", attribute.Int("pairs", len(pairs)))
	defer func() { observability.EndSpan(span, err) }()

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		stats, txErr = p.ProjectPairsTx(dbctx.Context{Ctx: ctx, Tx: tx}, pairs)
		return txErr
	})
	return stats, err
}

// ProjectPairsTx is ProjectPairs inside the caller's transaction.
func (p *Projector) ProjectPairsTx(dbc dbctx.Context, pairs []types.PairKey) (Stats, error) {
	stats := Stats{}
	pairs = types.UniquePairs(pairs)
	if len(pairs) == 0 {
		return stats, nil
	}

	snaps, err := p.set.Snapshots.GetByPairs(dbc, pairs)
	if err != nil {
		return stats, fmt.Errorf("load snapshots: %w", err)
	}
	live := make([]types.PairKey, 0, len(pairs))
	classIDs := make([]uuid.UUID, 0, len(pairs))
	for _, pk := range pairs {
		if snaps[pk] == nil {
			stats.SkippedNoSnapshot++
			continue
		}
		live = append(live, pk)
		classIDs = append(classIDs, pk.ClassID)
	}
	stats.Pairs = len(live)
	if len(live) == 0 {
		return stats, nil
	}

	enrollments, err := p.set.Enrollments.Ensure(dbc, live)
	if err != nil {
		return stats, fmt.Errorf("ensure enrollments: %w", err)
	}
	items, err := p.set.Items.GetByClassIDs(dbc, classIDs)
	if err != nil {
		return stats, fmt.Errorf("load curriculum: %w", err)
	}
	ix := activity.NewIndex(items)

	now := time.Now().UTC()
	aggRows := make([]*types.Enrollment, 0, len(live))
	var records []*types.AssignmentRecord
	keep := map[uuid.UUID]map[uuid.UUID]bool{}
	enrollmentIDs := make([]uuid.UUID, 0, len(live))

	for _, pk := range live {
		snap, enr := snaps[pk], enrollments[pk]
		if enr == nil {
			return stats, fmt.Errorf("enrollment missing after ensure for %s", pk)
		}
		enrollmentIDs = append(enrollmentIDs, enr.ID)
		importedAt := snap.ImportedAt
		enr.CurrentGrade = snap.Average
		enr.TotalCount = snap.TotalCount
		enr.CompletedCount = snap.CompletedCount
		enr.LastFreshness = snap.Freshness
		enr.SourceFile = snap.SourceFile
		enr.LastImportedAt = &importedAt
		enr.UpdatedAt = now
		aggRows = append(aggRows, enr)

		entries, err := snap.DecodeEntries()
		if err != nil {
			p.log.Warn("Skipping undecodable snapshot", "snapshot_id", snap.ID, "error", err)
			continue
		}
		byItem := map[uuid.UUID]*types.AssignmentRecord{}
		order := []uuid.UUID{}
		for _, e := range entries {
			m, ok := ix.Resolve(pk.ClassID, e)
			if !ok {
				stats.EntriesUnresolved++
				continue
			}
			rec := &types.AssignmentRecord{
				ID:               uuid.New(),
				EnrollmentID:     enr.ID,
				CurriculumItemID: m.Item.ID,
				Score:            e.Score,
				Possible:         e.Possible,
				Percentage:       e.Percentage,
				Status:           e.Status,
				SubmittedOn:      e.Date,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			prev, seen := byItem[m.Item.ID]
			if !seen {
				order = append(order, m.Item.ID)
			}
			// Several entries can land on one item; the later one wins unless it would
			// downgrade a completed record.
			if seen && prev.Status == types.StatusComplete && rec.Status != types.StatusComplete {
				continue
			}
			byItem[m.Item.ID] = rec
		}
		keep[enr.ID] = map[uuid.UUID]bool{}
		for _, itemID := range order {
			records = append(records, byItem[itemID])
			keep[enr.ID][itemID] = true
		}
	}

	if err := p.set.Enrollments.Upsert(dbc, aggRows); err != nil {
		return stats, fmt.Errorf("upsert enrollments: %w", err)
	}
	for start := 0; start < len(records); start += p.batchSize {
		end := start + p.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := p.set.Records.Upsert(dbc, records[start:end]); err != nil {
			return stats, fmt.Errorf("upsert records: %w", err)
		}
	}
	stats.RecordsUpserted = len(records)

	existing, err := p.set.Records.GetByEnrollmentIDs(dbc, enrollmentIDs)
	if err != nil {
		return stats, fmt.Errorf("load records: %w", err)
	}
	var stale []uuid.UUID
	for _, r := range existing {
		if !keep[r.EnrollmentID][r.CurriculumItemID] {
			stale = append(stale, r.ID)
		}
	}
	n, err := p.set.Records.DeleteByIDs(dbc, stale)
	if err != nil {
		return stats, fmt.Errorf("delete stale records: %w", err)
	}
	stats.RecordsDeleted = int(n)

	m := observability.Current()
	m.AddProjected("assignment_record", "upsert", stats.RecordsUpserted)
	m.AddProjected("assignment_record", "delete", stats.RecordsDeleted)
	m.AddProjected("enrollment", "upsert", len(aggRows))
	return stats, nil
}

// RebuildAll re-projects every snapshot, walking them in id-ordered batches. A failed batch is
// logged and skipped.
func (p *Projector) RebuildAll(ctx context.Context) (Stats, error) {
	ctx, span := observability.StartSpan(ctx, "projector.RebuildAll")
	defer span.End()

	total := Stats{}
	after := uuid.Nil
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := p.set.Snapshots.ListPage(dbctx.Context{Ctx: ctx}, after, p.batchSize)
		if err != nil {
			return total, fmt.Errorf("list snapshots: %w", err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].ID
		pairs := make([]types.PairKey, 0, len(page))
		for _, s := range page {
			pairs = append(pairs, types.PairKey{StudentID: s.StudentID, ClassID: s.ClassID})
		}
		st, err := p.ProjectPairs(ctx, pairs)
		if err != nil {
			p.log.Warn("Projection batch failed (continuing)", "after", after, "error", err)
			continue
		}
		total.add(st)
		batches++
	}
	p.log.Info("Projection rebuilt", "batches", batches, "pairs", total.Pairs, "records_upserted", total.RecordsUpserted, "records_deleted", total.RecordsDeleted)
	return total, nil
}
