package sweeper

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
)

// orphanPurge removes projection rows that no longer hang together: enrollments of deleted
// students or classes, assignment records whose enrollment or item is gone or whose item belongs
// to another class, and snapshots of deleted students or classes.
func (s *Sweeper) orphanPurge(ctx context.Context, r *run) error {
	if err := s.purgeLoop(ctx, "enrollments", s.set.Enrollments.ListOrphanIDs, func(dbc dbctx.Context, ids []uuid.UUID, g *run) error {
		n, err := s.set.Records.DeleteByEnrollmentIDs(dbc, ids)
		if err != nil {
			return err
		}
		g.add("records_deleted", int(n))
		n, err = s.set.Enrollments.DeleteByIDs(dbc, ids)
		g.add("enrollments_deleted", int(n))
		return err
	}, r); err != nil {
		return err
	}
	if err := s.purgeLoop(ctx, "records", s.set.Records.ListOrphanIDs, func(dbc dbctx.Context, ids []uuid.UUID, g *run) error {
		n, err := s.set.Records.DeleteByIDs(dbc, ids)
		g.add("records_deleted", int(n))
		return err
	}, r); err != nil {
		return err
	}
	return s.purgeLoop(ctx, "snapshots", s.set.Snapshots.ListOrphanIDs, func(dbc dbctx.Context, ids []uuid.UUID, g *run) error {
		n, err := s.set.Snapshots.DeleteByIDs(dbc, ids)
		g.add("snapshots_deleted", int(n))
		return err
	}, r)
}

type orphanLister func(dbc dbctx.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)

func (s *Sweeper) purgeLoop(ctx context.Context, what string, list orphanLister, purge func(dbc dbctx.Context, ids []uuid.UUID, g *run) error, r *run) error {
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := list(dbctx.Context{Ctx: ctx}, after, s.batchSize)
		if err != nil {
			return fmt.Errorf("list orphan %s: %w", what, err)
		}
		if len(ids) == 0 {
			return nil
		}
		after = ids[len(ids)-1]
		s.group(ctx, r, "orphan "+what, func(dbc dbctx.Context, g *run) error {
			return purge(dbc, ids, g)
		})
	}
}
