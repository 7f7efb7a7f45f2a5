package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yungbote/gradebridge-backend/internal/platform/apierr"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/platform/redisbus"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/activity"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/importer"
)

// MaxImportRecords caps a single batch. Larger imports should be split by the caller.
const MaxImportRecords = 5000

type ImportService interface {
	Import(ctx context.Context, batch importer.Batch) (importer.Result, error)
}

type importService struct {
	log      *logger.Logger
	importer *importer.Importer
	events   EventPublisher
}

func NewImportService(baseLog *logger.Logger, im *importer.Importer, events EventPublisher) ImportService {
	return &importService{
		log:      baseLog.With("service", "ImportService"),
		importer: im,
		events:   events,
	}
}

func (s *importService) Import(ctx context.Context, batch importer.Batch) (importer.Result, error) {
	if _, err := importer.ParseMode(string(batch.Mode)); err != nil {
		return importer.Result{}, apierr.BadRequest("invalid_mode", err)
	}
	if _, err := activity.ParseMode(string(batch.MatchMode)); err != nil {
		return importer.Result{}, apierr.BadRequest("invalid_match_mode", err)
	}
	if len(batch.Records) == 0 {
		return importer.Result{}, apierr.BadRequest("empty_batch", fmt.Errorf("batch has no records"))
	}
	if len(batch.Records) > MaxImportRecords {
		return importer.Result{}, apierr.BadRequest("batch_too_large", fmt.Errorf("batch has %d records, max %d", len(batch.Records), MaxImportRecords))
	}

	res, err := s.importer.Import(ctx, batch)
	if err != nil {
		return res, apierr.New(http.StatusInternalServerError, "import_failed", err)
	}
	if res.Mode == importer.ModeImport {
		publish(ctx, s.log, s.events, redisbus.Event{
			Type:    redisbus.EventImportCompleted,
			BatchID: res.BatchID.String(),
			Counts: map[string]int{
				"successes":         len(res.Successes),
				"errors":            len(res.Errors),
				"pending_approvals": len(res.PendingApprovals),
			},
		})
	}
	return res, nil
}
