package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/snapshot"
)

type itemGroupKey struct {
	classID uuid.UUID
	title   string
}

// curriculumDedup walks classes in keyset batches and folds each (class, normalized title)
// group of curriculum items into its earliest row.
func (s *Sweeper) curriculumDedup(ctx context.Context, r *run) error {
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.set.Classes.ListPage(dbctx.Context{Ctx: ctx}, after, s.batchSize)
		if err != nil {
			return fmt.Errorf("list classes: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		after = page[len(page)-1].ID
		classIDs := make([]uuid.UUID, 0, len(page))
		for _, c := range page {
			classIDs = append(classIDs, c.ID)
		}
		items, err := s.set.Items.GetByClassIDs(dbctx.Context{Ctx: ctx}, classIDs)
		if err != nil {
			return fmt.Errorf("list curriculum: %w", err)
		}
		groups := map[itemGroupKey][]*types.CurriculumItem{}
		var order []itemGroupKey
		for _, it := range items {
			k := itemGroupKey{it.ClassID, it.NormalizedTitle}
			if _, ok := groups[k]; !ok {
				order = append(order, k)
			}
			groups[k] = append(groups[k], it)
		}
		for _, k := range order {
			g := groups[k]
			if len(g) < 2 {
				continue
			}
			earliestItemFirst(g)
			s.group(ctx, r, "curriculum "+k.classID.String()+"/"+k.title, func(dbc dbctx.Context, gr *run) error {
				if err := s.foldItems(dbc, g[0], g[1:], gr); err != nil {
					return err
				}
				gr.add("groups", 1)
				gr.add("items_deleted", len(g)-1)
				return nil
			})
		}
	}
}

func (s *Sweeper) foldItems(dbc dbctx.Context, winner *types.CurriculumItem, losers []*types.CurriculumItem, r *run) error {
	loserIDs := make([]uuid.UUID, 0, len(losers))
	isLoser := map[uuid.UUID]bool{}
	for _, l := range losers {
		loserIDs = append(loserIDs, l.ID)
		isLoser[l.ID] = true
	}

	taken := map[uuid.UUID]bool{}
	winnerRecs, err := s.set.Records.GetByCurriculumItemIDs(dbc, []uuid.UUID{winner.ID})
	if err != nil {
		return err
	}
	for _, rec := range winnerRecs {
		taken[rec.EnrollmentID] = true
	}
	loserRecs, err := s.set.Records.GetByCurriculumItemIDs(dbc, loserIDs)
	if err != nil {
		return err
	}
	var repoint, drop []uuid.UUID
	for _, rec := range loserRecs {
		if taken[rec.EnrollmentID] {
			drop = append(drop, rec.ID)
			continue
		}
		taken[rec.EnrollmentID] = true
		repoint = append(repoint, rec.ID)
	}
	n, err := s.set.Records.DeleteByIDs(dbc, drop)
	if err != nil {
		return fmt.Errorf("delete conflicting records: %w", err)
	}
	r.add("records_deleted", int(n))
	n, err = s.set.Records.UpdateCurriculumItem(dbc, repoint, winner.ID)
	if err != nil {
		return fmt.Errorf("repoint records: %w", err)
	}
	r.add("records_repointed", int(n))

	// Snapshot entries remember the item they matched; point them at the survivor.
	snaps, err := s.set.Snapshots.GetByClassIDs(dbc, []uuid.UUID{winner.ClassID})
	if err != nil {
		return err
	}
	if err := snapshot.LockPairs(dbc.Tx, pairsOf(snaps)...); err != nil {
		return fmt.Errorf("lock pairs: %w", err)
	}
	for _, snap := range snaps {
		entries, err := snap.DecodeEntries()
		if err != nil {
			return fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
		}
		changed := 0
		for i := range entries {
			if id := entries[i].CurriculumItemID; id != nil && isLoser[*id] {
				wid := winner.ID
				entries[i].CurriculumItemID = &wid
				changed++
			}
		}
		if changed == 0 {
			continue
		}
		raw, err := types.EncodeEntries(entries)
		if err != nil {
			return err
		}
		if _, err := s.set.Snapshots.UpdateFields(dbc, []uuid.UUID{snap.ID}, map[string]interface{}{
			"entries":    raw,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("repoint snapshot entries: %w", err)
		}
		r.add("snapshot_entries_repointed", changed)
	}

	if _, err := s.set.Items.DeleteByIDs(dbc, loserIDs); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return nil
}
