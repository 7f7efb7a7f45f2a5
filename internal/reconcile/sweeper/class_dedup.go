package sweeper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/merge"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/snapshot"
)

type classGroupKey struct {
	subject string
	title   string
}

// classDedup folds every (subject, normalized title) group of classes into its earliest row.
func (s *Sweeper) classDedup(ctx context.Context, r *run) error {
	classes, err := s.set.Classes.ListAll(dbctx.Context{Ctx: ctx})
	if err != nil {
		return fmt.Errorf("list classes: %w", err)
	}
	groups := map[classGroupKey][]*types.ClassOffering{}
	var order []classGroupKey
	for _, c := range classes {
		k := classGroupKey{c.SubjectCode, c.NormalizedTitle}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}
	for _, k := range order {
		g := groups[k]
		if len(g) < 2 {
			continue
		}
		earliestClassFirst(g)
		s.group(ctx, r, "class "+k.subject+"/"+k.title, func(dbc dbctx.Context, gr *run) error {
			if err := s.foldClasses(dbc, g[0], g[1:], gr); err != nil {
				return err
			}
			gr.add("groups", 1)
			gr.add("classes_deleted", len(g)-1)
			return nil
		})
	}
	return nil
}

func (s *Sweeper) foldClasses(dbc dbctx.Context, winner *types.ClassOffering, losers []*types.ClassOffering, r *run) error {
	loserIDs := make([]uuid.UUID, 0, len(losers))
	for _, l := range losers {
		loserIDs = append(loserIDs, l.ID)
	}

	items, err := s.set.Items.GetByClassIDs(dbc, loserIDs)
	if err != nil {
		return err
	}
	itemIDs := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ID)
	}
	moved, err := s.set.Items.UpdateClassID(dbc, itemIDs, winner.ID)
	if err != nil {
		return fmt.Errorf("move curriculum: %w", err)
	}
	r.add("items_moved", int(moved))

	loserSnaps, err := s.set.Snapshots.GetByClassIDs(dbc, loserIDs)
	if err != nil {
		return err
	}
	lockSet := pairsOf(loserSnaps)
	for _, ls := range loserSnaps {
		lockSet = append(lockSet, types.PairKey{StudentID: ls.StudentID, ClassID: winner.ID})
	}
	if err := snapshot.LockPairs(dbc.Tx, lockSet...); err != nil {
		return fmt.Errorf("lock pairs: %w", err)
	}

	winnerPairs := make([]types.PairKey, 0, len(loserSnaps))
	for _, ls := range loserSnaps {
		winnerPairs = append(winnerPairs, types.PairKey{StudentID: ls.StudentID, ClassID: winner.ID})
	}
	winnerSnaps, err := s.set.Snapshots.GetByPairs(dbc, winnerPairs)
	if err != nil {
		return err
	}

	// Losers are visited in class creation order, so an older duplicate's snapshot becomes the
	// base that younger ones merge into.
	rank := map[uuid.UUID]int{}
	for i, l := range losers {
		rank[l.ID] = i
	}
	sortSnapshots(loserSnaps, rank)

	for _, ls := range loserSnaps {
		wp := types.PairKey{StudentID: ls.StudentID, ClassID: winner.ID}
		ws := winnerSnaps[wp]
		if ws == nil {
			if _, err := s.set.Snapshots.UpdateFields(dbc, []uuid.UUID{ls.ID}, map[string]interface{}{
				"class_id":   winner.ID,
				"updated_at": time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("rehome snapshot: %w", err)
			}
			ls.ClassID = winner.ID
			winnerSnaps[wp] = ls
			r.add("snapshots_rehomed", 1)
			continue
		}
		if err := s.mergeInto(dbc, ws, ls); err != nil {
			return err
		}
		if _, err := s.set.Snapshots.DeleteByIDs(dbc, []uuid.UUID{ls.ID}); err != nil {
			return fmt.Errorf("delete merged snapshot: %w", err)
		}
		r.add("snapshots_merged", 1)
	}

	enrollments, err := s.set.Enrollments.GetByClassIDs(dbc, append([]uuid.UUID{winner.ID}, loserIDs...))
	if err != nil {
		return err
	}
	hasWinner := map[uuid.UUID]bool{}
	for _, e := range enrollments {
		if e.ClassID == winner.ID {
			hasWinner[e.StudentID] = true
		}
	}
	var dropIDs []uuid.UUID
	for _, e := range enrollments {
		if e.ClassID == winner.ID {
			continue
		}
		if hasWinner[e.StudentID] {
			dropIDs = append(dropIDs, e.ID)
			continue
		}
		if _, err := s.set.Enrollments.UpdateFields(dbc, []uuid.UUID{e.ID}, map[string]interface{}{
			"class_id":   winner.ID,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("move enrollment: %w", err)
		}
		hasWinner[e.StudentID] = true
		r.add("enrollments_moved", 1)
	}
	if len(dropIDs) > 0 {
		n, err := s.set.Records.DeleteByEnrollmentIDs(dbc, dropIDs)
		if err != nil {
			return err
		}
		r.add("records_deleted", int(n))
		n, err = s.set.Enrollments.DeleteByIDs(dbc, dropIDs)
		if err != nil {
			return err
		}
		r.add("enrollments_deleted", int(n))
	}

	if _, err := s.set.Classes.DeleteByIDs(dbc, loserIDs); err != nil {
		return fmt.Errorf("delete classes: %w", err)
	}

	stats, err := s.proj.ProjectPairsTx(dbc, winnerPairs)
	if err != nil {
		return fmt.Errorf("project: %w", err)
	}
	r.add("pairs_projected", stats.Pairs)
	return nil
}

// mergeInto applies src's entries to dst with src as the incoming side of the merge policy.
func (s *Sweeper) mergeInto(dbc dbctx.Context, dst, src *types.ClassSnapshot) error {
	dstEntries, err := dst.DecodeEntries()
	if err != nil {
		return fmt.Errorf("decode snapshot %s: %w", dst.ID, err)
	}
	srcEntries, err := src.DecodeEntries()
	if err != nil {
		return fmt.Errorf("decode snapshot %s: %w", src.ID, err)
	}
	out := merge.Apply(&merge.Existing{Entries: dstEntries, Freshness: dst.Freshness}, srcEntries, src.Freshness)
	if !out.Changed {
		return nil
	}
	raw, err := types.EncodeEntries(out.Entries)
	if err != nil {
		return err
	}
	dst.Entries = raw
	dst.Freshness = out.Freshness
	dst.TotalCount = out.Total
	dst.CompletedCount = out.Completed
	dst.Average = out.Average
	dst.Version++
	if out.Mode == merge.ModeReplace {
		dst.SourceFile = src.SourceFile
		dst.ImportedAt = src.ImportedAt
	}
	dst.UpdatedAt = time.Now().UTC()
	return s.set.Snapshots.Update(dbc, dst)
}

func sortSnapshots(snaps []*types.ClassSnapshot, classRank map[uuid.UUID]int) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return classRank[snaps[i].ClassID] < classRank[snaps[j].ClassID]
	})
}
