package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/normalization"
	"github.com/yungbote/gradebridge-backend/internal/platform/apierr"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
)

type RosterEntry struct {
	Name     string `json:"name" yaml:"name" validate:"required,max=256"`
	Grade    *int   `json:"grade,omitempty" yaml:"grade,omitempty" validate:"omitempty,gte=0,lte=13"`
	Homeroom string `json:"homeroom,omitempty" yaml:"homeroom,omitempty" validate:"max=64"`
}

type RosterLoad struct {
	Students []RosterEntry `json:"students" validate:"required,min=1,max=5000,dive"`
}

type RosterResult struct {
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Unchanged int              `json:"unchanged"`
	Students  []*types.Student `json:"students"`
}

// RosterService loads students by exact normalized name. It never fuzzy-matches: a roster is
// authoritative about who exists.
type RosterService interface {
	Load(ctx context.Context, in RosterLoad) (*RosterResult, error)
}

type rosterService struct {
	db       *gorm.DB
	log      *logger.Logger
	students repos.StudentRepo
	validate *validator.Validate
}

func NewRosterService(db *gorm.DB, baseLog *logger.Logger, students repos.StudentRepo) RosterService {
	return &rosterService{
		db:       db,
		log:      baseLog.With("service", "RosterService"),
		students: students,
		validate: validator.New(),
	}
}

func (s *rosterService) Load(ctx context.Context, in RosterLoad) (*RosterResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apierr.BadRequest("invalid_roster", err)
	}

	// Later rows for the same name override earlier ones.
	wanted := map[string]RosterEntry{}
	order := []string{}
	for _, e := range in.Students {
		display := normalization.StudentName(e.Name)
		key := normalization.StudentKey(display)
		if key == "" {
			return nil, apierr.BadRequest("invalid_roster", fmt.Errorf("blank student name %q", e.Name))
		}
		if _, seen := wanted[key]; !seen {
			order = append(order, key)
		}
		e.Name = display
		wanted[key] = e
	}

	out := &RosterResult{Students: []*types.Student{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		existing, err := s.students.GetByNormalizedNames(dbc, order)
		if err != nil {
			return err
		}
		sort.SliceStable(existing, func(i, j int) bool {
			if !existing[i].CreatedAt.Equal(existing[j].CreatedAt) {
				return existing[i].CreatedAt.Before(existing[j].CreatedAt)
			}
			return existing[i].ID.String() < existing[j].ID.String()
		})
		byKey := map[string]*types.Student{}
		for _, st := range existing {
			if _, ok := byKey[st.NormalizedName]; !ok {
				byKey[st.NormalizedName] = st
			}
		}

		now := time.Now().UTC()
		var create []*types.Student
		for _, key := range order {
			e := wanted[key]
			st, ok := byKey[key]
			if !ok {
				st = &types.Student{
					ID:             uuid.New(),
					Name:           e.Name,
					NormalizedName: key,
					Grade:          e.Grade,
					Homeroom:       normalization.CollapseSpace(e.Homeroom),
					CreatedAt:      now,
					UpdatedAt:      now,
				}
				create = append(create, st)
				out.Students = append(out.Students, st)
				continue
			}
			if !applyRoster(st, e) {
				out.Unchanged++
				out.Students = append(out.Students, st)
				continue
			}
			st.UpdatedAt = now
			if err := s.students.Update(dbc, st); err != nil {
				return err
			}
			out.Updated++
			out.Students = append(out.Students, st)
		}
		if len(create) > 0 {
			if _, err := s.students.Create(dbc, create); err != nil {
				return err
			}
			out.Created = len(create)
		}
		return nil
	})
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "roster_load_failed", err)
	}
	s.log.Info("Roster loaded", "created", out.Created, "updated", out.Updated, "unchanged", out.Unchanged)
	return out, nil
}

// applyRoster copies roster fields onto st and reports whether anything changed. Omitted fields
// keep their stored values.
func applyRoster(st *types.Student, e RosterEntry) bool {
	changed := false
	if st.Name != e.Name {
		st.Name = e.Name
		changed = true
	}
	if e.Grade != nil && (st.Grade == nil || *st.Grade != *e.Grade) {
		g := *e.Grade
		st.Grade = &g
		changed = true
	}
	if hr := normalization.CollapseSpace(e.Homeroom); hr != "" && hr != st.Homeroom {
		st.Homeroom = hr
		changed = true
	}
	return changed
}
