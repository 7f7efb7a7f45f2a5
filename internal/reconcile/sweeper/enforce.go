package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
)

// enforce makes each declared class's curriculum exactly its canonical list. Classes that do
// not exist are reported, not created.
func (s *Sweeper) enforce(ctx context.Context, specs []hierarchy.ClassSpec, r *run) error {
	titles := make([]string, 0, len(specs))
	for _, spec := range specs {
		titles = append(titles, normalization.TitleKey(spec.Title))
	}
	classes, err := s.set.Classes.GetByNormalizedTitles(dbctx.Context{Ctx: ctx}, titles)
	if err != nil {
		return fmt.Errorf("load classes: %w", err)
	}
	earliestClassFirst(classes)
	byKey := map[classGroupKey]*types.ClassOffering{}
	for _, c := range classes {
		k := classGroupKey{c.SubjectCode, c.NormalizedTitle}
		if _, ok := byKey[k]; !ok {
			byKey[k] = c
		}
	}

	for _, spec := range specs {
		if len(spec.Curriculum) == 0 {
			continue
		}
		class := byKey[classGroupKey{spec.Subject, normalization.TitleKey(spec.Title)}]
		if class == nil {
			r.add("classes_missing", 1)
			r.fail("enforce "+spec.Subject+"/"+spec.Title, fmt.Errorf("class not found"))
			continue
		}
		s.group(ctx, r, "enforce "+spec.Subject+"/"+spec.Title, func(dbc dbctx.Context, g *run) error {
			if err := s.enforceClass(dbc, class, spec.Curriculum, g); err != nil {
				return err
			}
			g.add("classes_enforced", 1)
			return nil
		})
	}
	return nil
}

func (s *Sweeper) enforceClass(dbc dbctx.Context, class *types.ClassOffering, canonical []hierarchy.ItemEntry, r *run) error {
	want := map[string]hierarchy.ItemEntry{}
	var wantOrder []string
	for _, it := range canonical {
		k := normalization.TitleKey(it.Title)
		if k == "" {
			continue
		}
		if _, dup := want[k]; !dup {
			wantOrder = append(wantOrder, k)
		}
		want[k] = it
	}

	items, err := s.set.Items.GetByClassIDs(dbc, []uuid.UUID{class.ID})
	if err != nil {
		return err
	}
	have := map[string]bool{}
	var remove []uuid.UUID
	for _, it := range items {
		if _, ok := want[it.NormalizedTitle]; ok {
			have[it.NormalizedTitle] = true
			continue
		}
		remove = append(remove, it.ID)
	}

	n, err := s.set.Records.DeleteByCurriculumItemIDs(dbc, remove)
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	r.add("records_deleted", int(n))
	n, err = s.set.Items.DeleteByIDs(dbc, remove)
	if err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	r.add("items_deleted", int(n))

	now := time.Now().UTC()
	var create []*types.CurriculumItem
	for i, k := range wantOrder {
		if have[k] {
			continue
		}
		it := want[k]
		// Offsets keep the declared order visible in created_at.
		at := now.Add(time.Duration(i) * time.Microsecond)
		create = append(create, &types.CurriculumItem{
			ID:              uuid.New(),
			ClassID:         class.ID,
			Title:           normalization.Title(it.Title),
			NormalizedTitle: k,
			Code:            normalization.StructuredCode(it.Title),
			Points:          it.Points,
			CreatedAt:       at,
			UpdatedAt:       at,
		})
	}
	if len(create) > 0 {
		if _, err := s.set.Items.Create(dbc, create); err != nil {
			return fmt.Errorf("create items: %w", err)
		}
	}
	r.add("items_created", len(create))

	if len(remove) == 0 && len(create) == 0 {
		return nil
	}
	snaps, err := s.set.Snapshots.GetByClassIDs(dbc, []uuid.UUID{class.ID})
	if err != nil {
		return err
	}
	stats, err := s.proj.ProjectPairsTx(dbc, pairsOf(snaps))
	if err != nil {
		return fmt.Errorf("project: %w", err)
	}
	r.add("pairs_projected", stats.Pairs)
	return nil
}
