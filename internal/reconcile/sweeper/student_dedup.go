package sweeper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/snapshot"
)

type studentHistory struct {
	student *types.Student
	records int
	entries int
}

// studentDedup folds students sharing a normalized name into the member with the most history.
func (s *Sweeper) studentDedup(ctx context.Context, r *run) error {
	students, err := s.set.Students.ListAll(dbctx.Context{Ctx: ctx})
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	groups := map[string][]*types.Student{}
	var order []string
	for _, st := range students {
		if st.NormalizedName == "" {
			continue
		}
		if _, ok := groups[st.NormalizedName]; !ok {
			order = append(order, st.NormalizedName)
		}
		groups[st.NormalizedName] = append(groups[st.NormalizedName], st)
	}
	for _, name := range order {
		g := groups[name]
		if len(g) < 2 {
			continue
		}
		s.group(ctx, r, "student "+name, func(dbc dbctx.Context, gr *run) error {
			ranked, err := s.rankStudents(dbc, g)
			if err != nil {
				return err
			}
			if err := s.foldStudents(dbc, ranked[0], ranked[1:], gr); err != nil {
				return err
			}
			gr.add("groups", 1)
			gr.add("students_deleted", len(ranked)-1)
			return nil
		})
	}
	return nil
}

// rankStudents orders a duplicate group winner first: most assignment records, then most
// snapshot entries, then earliest creation.
func (s *Sweeper) rankStudents(dbc dbctx.Context, g []*types.Student) ([]*types.Student, error) {
	ids := make([]uuid.UUID, 0, len(g))
	for _, st := range g {
		ids = append(ids, st.ID)
	}
	recCounts, err := s.set.Records.CountByStudentIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	snaps, err := s.set.Snapshots.GetByStudentIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	entryCounts := map[uuid.UUID]int{}
	for _, snap := range snaps {
		entries, err := snap.DecodeEntries()
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
		}
		entryCounts[snap.StudentID] += len(entries)
	}
	hist := make([]studentHistory, 0, len(g))
	for _, st := range g {
		hist = append(hist, studentHistory{student: st, records: recCounts[st.ID], entries: entryCounts[st.ID]})
	}
	sort.SliceStable(hist, func(i, j int) bool {
		a, b := hist[i], hist[j]
		if a.records != b.records {
			return a.records > b.records
		}
		if a.entries != b.entries {
			return a.entries > b.entries
		}
		if !a.student.CreatedAt.Equal(b.student.CreatedAt) {
			return a.student.CreatedAt.Before(b.student.CreatedAt)
		}
		return a.student.ID.String() < b.student.ID.String()
	})
	out := make([]*types.Student, 0, len(hist))
	for _, h := range hist {
		out = append(out, h.student)
	}
	return out, nil
}

func (s *Sweeper) foldStudents(dbc dbctx.Context, winner *types.Student, losers []*types.Student, r *run) error {
	loserIDs := make([]uuid.UUID, 0, len(losers))
	for _, l := range losers {
		loserIDs = append(loserIDs, l.ID)
	}
	snaps, err := s.set.Snapshots.GetByStudentIDs(dbc, append([]uuid.UUID{winner.ID}, loserIDs...))
	if err != nil {
		return err
	}
	lockSet := pairsOf(snaps)
	for _, snap := range snaps {
		lockSet = append(lockSet, types.PairKey{StudentID: winner.ID, ClassID: snap.ClassID})
	}
	if err := snapshot.LockPairs(dbc.Tx, lockSet...); err != nil {
		return fmt.Errorf("lock pairs: %w", err)
	}

	winnerHas := map[uuid.UUID]bool{}
	for _, snap := range snaps {
		if snap.StudentID == winner.ID {
			winnerHas[snap.ClassID] = true
		}
	}
	// Losers are already in rank order, so the better-documented duplicate claims a class first.
	rank := map[uuid.UUID]int{}
	for i, l := range losers {
		rank[l.ID] = i
	}
	sort.SliceStable(snaps, func(i, j int) bool { return rank[snaps[i].StudentID] < rank[snaps[j].StudentID] })

	var touched []types.PairKey
	var drop []uuid.UUID
	for _, snap := range snaps {
		if snap.StudentID == winner.ID {
			continue
		}
		if winnerHas[snap.ClassID] {
			drop = append(drop, snap.ID)
			continue
		}
		if _, err := s.set.Snapshots.UpdateFields(dbc, []uuid.UUID{snap.ID}, map[string]interface{}{
			"student_id": winner.ID,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("rehome snapshot: %w", err)
		}
		winnerHas[snap.ClassID] = true
		touched = append(touched, types.PairKey{StudentID: winner.ID, ClassID: snap.ClassID})
		r.add("snapshots_rehomed", 1)
	}
	n, err := s.set.Snapshots.DeleteByIDs(dbc, drop)
	if err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	r.add("snapshots_deleted", int(n))

	enrollments, err := s.set.Enrollments.GetByStudentIDs(dbc, loserIDs)
	if err != nil {
		return err
	}
	enrIDs := make([]uuid.UUID, 0, len(enrollments))
	for _, e := range enrollments {
		enrIDs = append(enrIDs, e.ID)
	}
	n, err = s.set.Records.DeleteByEnrollmentIDs(dbc, enrIDs)
	if err != nil {
		return err
	}
	r.add("records_deleted", int(n))
	n, err = s.set.Enrollments.DeleteByIDs(dbc, enrIDs)
	if err != nil {
		return err
	}
	r.add("enrollments_deleted", int(n))

	if _, err := s.set.Students.DeleteByIDs(dbc, loserIDs); err != nil {
		return fmt.Errorf("delete students: %w", err)
	}

	stats, err := s.proj.ProjectPairsTx(dbc, touched)
	if err != nil {
		return fmt.Errorf("project: %w", err)
	}
	r.add("pairs_projected", stats.Pairs)
	return nil
}
