package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
	"github.com/yungbote/gradebridge-backend/internal/platform/apierr"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/hierarchy"
)

type SeedResult struct {
	Declared int                    `json:"declared"`
	Created  []*types.ClassOffering `json:"created"`
	Existing int                    `json:"existing"`
}

// CatalogService seeds class offerings from a hierarchy file. Curriculum items are left to the
// curriculum-enforce pass.
type CatalogService interface {
	Seed(ctx context.Context, h *hierarchy.Hierarchy) (*SeedResult, error)
}

type catalogService struct {
	db      *gorm.DB
	log     *logger.Logger
	classes repos.ClassOfferingRepo
}

func NewCatalogService(db *gorm.DB, baseLog *logger.Logger, classes repos.ClassOfferingRepo) CatalogService {
	return &catalogService{
		db:      db,
		log:     baseLog.With("service", "CatalogService"),
		classes: classes,
	}
}

func (s *catalogService) Seed(ctx context.Context, h *hierarchy.Hierarchy) (*SeedResult, error) {
	specs := h.Classes()
	if len(specs) == 0 {
		return nil, apierr.BadRequest("empty_hierarchy", fmt.Errorf("hierarchy declares no classes"))
	}
	out := &SeedResult{Declared: len(specs), Created: []*types.ClassOffering{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		titles := make([]string, 0, len(specs))
		for _, c := range specs {
			titles = append(titles, normalization.TitleKey(c.Title))
		}
		existing, err := s.classes.GetByNormalizedTitles(dbc, titles)
		if err != nil {
			return err
		}
		have := map[string]bool{}
		for _, c := range existing {
			have[c.SubjectCode+"\x00"+c.NormalizedTitle] = true
		}

		now := time.Now().UTC()
		var create []*types.ClassOffering
		for i, c := range specs {
			key := c.Subject + "\x00" + normalization.TitleKey(c.Title)
			if have[key] {
				out.Existing++
				continue
			}
			have[key] = true
			create = append(create, &types.ClassOffering{
				ID:              uuid.New(),
				SubjectCode:     c.Subject,
				Title:           c.Title,
				NormalizedTitle: normalization.TitleKey(c.Title),
				// File order decides the earliest row if duplicates ever appear.
				CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
				UpdatedAt: now,
			})
		}
		if len(create) == 0 {
			return nil
		}
		created, err := s.classes.Create(dbc, create)
		if err != nil {
			return err
		}
		out.Created = created
		return nil
	})
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "seed_failed", err)
	}
	s.log.Info("Hierarchy seeded", "declared", out.Declared, "created", len(out.Created), "existing", out.Existing)
	return out, nil
}
