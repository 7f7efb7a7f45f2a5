package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	"github.com/yungbote/gradebridge-backend/internal/observability"
	"github.com/yungbote/gradebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/gradebridge-backend/internal/platform/logger"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/activity"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/identity"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/merge"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/projector"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/reconerr"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/snapshot"
)

const defaultWorkers = 4

var validate = validator.New()

type Importer struct {
	db       *gorm.DB
	log      *logger.Logger
	set      repos.Set
	resolver *identity.Resolver
	store    *snapshot.Store
	proj     *projector.Projector
	workers  int
}

func New(db *gorm.DB, baseLog *logger.Logger, set repos.Set, resolver *identity.Resolver, store *snapshot.Store, proj *projector.Projector, workers int) *Importer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Importer{
		db:       db,
		log:      baseLog.With("component", "Importer"),
		set:      set,
		resolver: resolver,
		store:    store,
		proj:     proj,
		workers:  workers,
	}
}

// resolved carries one record through the batch. Exactly one of err, pending or a usable
// (studentID, classID) pair is set once resolution is done.
type resolved struct {
	idx   int
	rec     Record
	student identity.StudentMatch
	class   identity.ClassMatch

	studentID      uuid.UUID
	studentCreated bool
	classID        uuid.UUID
	classCreated   bool

	err     *RecordError
	pending *Approval
	success *Success
	dropped []RecordError
}

func (r *resolved) fail(kind reconerr.Kind, label, reason string) {
	r.err = &RecordError{Index: r.idx, Kind: kind, Label: label, Reason: reason}
}

func (r *resolved) failErr(label string, err error) {
	kind := reconerr.KindOf(err)
	if kind == "" {
		kind = reconerr.KindWriteConflict
	}
	r.fail(kind, label, err.Error())
}

func (r *resolved) pair() types.PairKey {
	return types.PairKey{StudentID: r.studentID, ClassID: r.classID}
}

// Import reconciles a batch. Per-record failures land in the result; the returned error is
// reserved for problems that stop the whole batch, such as an unreadable catalog.
func (im *Importer) Import(ctx context.Context, b Batch) (Result, error) {
	mode, err := ParseMode(string(b.Mode))
	if err != nil {
		return Result{}, err
	}
	matchMode, err := activity.ParseMode(string(b.MatchMode))
	if err != nil {
		return Result{}, err
	}
	return im.run(ctx, uuid.New(), b.Records, mode, matchMode)
}

func (im *Importer) run(ctx context.Context, batchID uuid.UUID, records []Record, mode Mode, matchMode activity.Mode) (res Result, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "importer.Import",
		attribute.String("batch_id", batchID.String()),
		attribute.String("mode", string(mode)),
		attribute.Int("records", len(records)),
	)
	defer func() { observability.EndSpan(span, err) }()

	res = Result{
		BatchID:          batchID,
		Mode:             mode,
		MatchMode:        matchMode,
		Successes:        []Success{},
		Errors:           []RecordError{},
		PendingApprovals: []Approval{},
	}

	rs := make([]*resolved, 0, len(records))
	labels := make([]string, 0, len(records))
	for i, rec := range records {
		r := &resolved{idx: i, rec: rec}
		rs = append(rs, r)
		if verr := validate.Struct(rec); verr != nil {
			r.fail(reconerr.KindInvalidRecord, rec.StudentLabel, verr.Error())
			continue
		}
		labels = append(labels, rec.ClassLabel)
	}

	dbc := dbctx.Context{Ctx: ctx}
	students, err := im.resolver.LoadStudents(dbc)
	if err != nil {
		return res, err
	}
	classes, err := im.resolver.LoadClasses(dbc, labels)
	if err != nil {
		return res, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, r := range rs {
		if r.err != nil {
			continue
		}
		g.Go(func() error {
			im.lookup(dbctx.Context{Ctx: gctx}, r, students, classes)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	for _, r := range rs {
		if r.err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		im.settle(dbc, r, students, classes, mode)
	}

	if err := im.queueApprovals(ctx, batchID, rs, mode, matchMode); err != nil {
		return res, err
	}

	ready := make([]*resolved, 0, len(rs))
	classIDs := []uuid.UUID{}
	for _, r := range rs {
		if r.err == nil && r.pending == nil {
			ready = append(ready, r)
			classIDs = append(classIDs, r.classID)
		}
	}
	items, err := im.set.Items.GetByClassIDs(dbc, classIDs)
	if err != nil {
		return res, fmt.Errorf("load curriculum: %w", err)
	}
	ix := activity.NewIndex(items)

	if mode == ModeAudit {
		for _, r := range ready {
			im.audit(ctx, r, ix, matchMode)
		}
	} else if err := im.applyPairs(ctx, ready, ix, matchMode); err != nil {
		return res, err
	}

	var touched []types.PairKey
	for _, r := range rs {
		switch {
		case r.err != nil:
			res.Errors = append(res.Errors, *r.err)
		case r.pending != nil:
			res.PendingApprovals = append(res.PendingApprovals, *r.pending)
		case r.success != nil:
			res.Successes = append(res.Successes, *r.success)
			touched = append(touched, r.pair())
		}
		res.Errors = append(res.Errors, r.dropped...)
	}
	sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Index < res.Errors[j].Index })

	if mode == ModeImport && len(touched) > 0 {
		stats, perr := im.proj.ProjectPairs(ctx, touched)
		if perr != nil {
			// Snapshots are committed; a rebuild recovers the projection.
			im.log.Warn("Projection after import failed", "batch_id", batchID, "error", perr)
		}
		res.Projection = stats
	}

	outcomes := map[string]int{
		"success": len(res.Successes),
		"error":   len(res.Errors),
		"pending": len(res.PendingApprovals),
	}
	observability.Current().ObserveImport(string(mode), outcomes, time.Since(start))
	im.log.Info("Import batch finished",
		"batch_id", batchID,
		"mode", mode,
		"match_mode", matchMode,
		"records", len(records),
		"successes", len(res.Successes),
		"errors", len(res.Errors),
		"pending_approvals", len(res.PendingApprovals),
		"elapsed", time.Since(start).String(),
	)
	return res, nil
}

// lookup matches a record against the catalog as it stood when the batch started. It never
// writes, so records can be looked up in parallel without seeing each other's creations.
func (im *Importer) lookup(dbc dbctx.Context, r *resolved, students *identity.StudentIndex, classes *identity.ClassIndex) {
	rec := r.rec
	r.class = classes.Match(rec.ClassLabel, rec.SubjectHint)
	if rec.StudentID == nil {
		r.student = students.Match(rec.StudentLabel)
		return
	}
	st, err := im.resolver.StudentExists(dbc, *rec.StudentID)
	if err != nil {
		r.failErr(rec.StudentLabel, err)
		return
	}
	if st == nil {
		r.fail(reconerr.KindIdentityUnresolved, rec.StudentID.String(), "student id does not exist")
		return
	}
	r.studentID = st.ID
	r.student = identity.StudentMatch{Label: rec.StudentLabel, StudentID: st.ID, StudentName: st.Name, Confidence: identity.ConfidenceExact}
}

// settle turns lookup results into ids, creating missing students and classes. It runs in batch
// order so creations are the same on every run of the same batch.
func (im *Importer) settle(dbc dbctx.Context, r *resolved, students *identity.StudentIndex, classes *identity.ClassIndex, mode Mode) {
	rec := r.rec
	m := r.student

	if m.Confidence == identity.ConfidenceNone && mode == ModeAudit {
		r.fail(reconerr.KindIdentityUnresolved, rec.StudentLabel, "no matching student")
		return
	}
	if !r.class.Found {
		if mode == ModeAudit {
			r.fail(reconerr.KindIdentityUnresolved, rec.ClassLabel, "no matching class")
			return
		}
		// A new class has no curriculum, so none of the entries could match it.
		if len(rec.Entries) > 0 {
			r.fail(reconerr.KindActivityUnmatched, rec.ClassLabel, "class does not exist and has no curriculum to match entries against")
			return
		}
	}

	switch m.Confidence {
	case identity.ConfidenceExact:
		r.studentID = m.StudentID
	case identity.ConfidenceFuzzy:
		r.pending = &Approval{
			Index:              r.idx,
			ImportedLabel:      rec.StudentLabel,
			MatchedStudentID:   m.StudentID,
			MatchedStudentName: m.StudentName,
			Score:              m.Score,
		}
		return
	default:
		id, created, err := im.resolver.EnsureStudent(dbc, students, rec.StudentLabel)
		if err != nil {
			r.failErr(rec.StudentLabel, err)
			return
		}
		r.studentID, r.studentCreated = id, created
	}

	if r.class.Found {
		r.classID = r.class.ClassID
		return
	}
	id, created, err := im.resolver.EnsureClass(dbc, classes, r.class)
	if err != nil {
		r.failErr(rec.ClassLabel, err)
		return
	}
	r.classID, r.classCreated = id, created
}

func (im *Importer) queueApprovals(ctx context.Context, batchID uuid.UUID, rs []*resolved, mode Mode, matchMode activity.Mode) error {
	if mode != ModeImport {
		return nil
	}
	now := time.Now().UTC()
	var rows []*types.PendingApproval
	var owners []*resolved
	for _, r := range rs {
		if r.pending == nil {
			continue
		}
		payload, err := json.Marshal(queuedRecord{Record: r.rec, MatchMode: matchMode})
		if err != nil {
			return fmt.Errorf("encode queued record: %w", err)
		}
		row := &types.PendingApproval{
			ID:                 uuid.New(),
			BatchID:            batchID,
			ImportedLabel:      r.pending.ImportedLabel,
			MatchedStudentID:   r.pending.MatchedStudentID,
			MatchedStudentName: r.pending.MatchedStudentName,
			Score:              r.pending.Score,
			Record:             payload,
			Status:             types.ApprovalPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		rows = append(rows, row)
		owners = append(owners, r)
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := im.set.Approvals.Create(dbctx.Context{Ctx: ctx}, rows); err != nil {
		return fmt.Errorf("queue approvals: %w", err)
	}
	for i, r := range owners {
		r.pending.ID = rows[i].ID
	}
	return nil
}

// applyPairs writes snapshots. Distinct pairs run in parallel on a bounded pool; records that
// share a pair are applied in batch order by one worker.
func (im *Importer) applyPairs(ctx context.Context, ready []*resolved, ix *activity.Index, matchMode activity.Mode) error {
	byPair := map[types.PairKey][]*resolved{}
	var order []types.PairKey
	for _, r := range ready {
		pk := r.pair()
		if _, ok := byPair[pk]; !ok {
			order = append(order, pk)
		}
		byPair[pk] = append(byPair[pk], r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, pk := range order {
		group := byPair[pk]
		g.Go(func() error {
			for _, r := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				im.applyOne(gctx, r, ix, matchMode)
			}
			return nil
		})
	}
	return g.Wait()
}

func (im *Importer) match(r *resolved, ix *activity.Index, matchMode activity.Mode) ([]types.SnapshotEntry, bool) {
	entries := r.rec.snapshotEntries()
	matched, unmatched := ix.MatchEntries(r.classID, entries, matchMode)
	for _, u := range unmatched {
		r.dropped = append(r.dropped, RecordError{Index: r.idx, Kind: reconerr.KindActivityUnmatched, Label: u.ActivityLabel, Reason: u.Reason})
	}
	if len(entries) > 0 && len(matched) == 0 {
		r.fail(reconerr.KindActivityUnmatched, r.rec.ClassLabel, "no entry matched the class curriculum")
		return nil, false
	}
	return matched, true
}

func (im *Importer) applyOne(ctx context.Context, r *resolved, ix *activity.Index, matchMode activity.Mode) {
	entries, ok := im.match(r, ix, matchMode)
	if !ok {
		return
	}
	fresh := merge.ResolveFreshness(r.rec.Freshness, r.rec.FileModifiedAt)
	meta := snapshot.Meta{SourceFile: r.rec.SourceFile, ImportedAt: time.Now().UTC()}

	out, err := im.store.Upsert(ctx, r.pair(), fresh, entries, meta)
	if errors.Is(err, reconerr.ErrWriteConflict) {
		// A sweep removed the student or class between resolution and write.
		if rerr := im.reensure(ctx, r); rerr != nil {
			r.failErr(r.rec.StudentLabel, rerr)
			return
		}
		out, err = im.store.Upsert(ctx, r.pair(), fresh, entries, meta)
	}
	if err != nil {
		r.failErr(r.rec.StudentLabel, err)
		return
	}
	r.success = im.successOf(r, out)
}

func (im *Importer) reensure(ctx context.Context, r *resolved) error {
	dbc := dbctx.Context{Ctx: ctx}
	st, err := im.resolver.StudentExists(dbc, r.studentID)
	if err != nil {
		return err
	}
	if st == nil {
		if r.rec.StudentID != nil {
			return reconerr.New(reconerr.KindWriteConflict, r.rec.StudentID.String(), "student was removed")
		}
		id, created, err := im.resolver.EnsureStudent(dbc, im.resolver.FreshStudentIndex(), r.rec.StudentLabel)
		if err != nil {
			return err
		}
		r.studentID, r.studentCreated = id, r.studentCreated || created
	}
	classes, err := im.set.Classes.GetByIDs(dbc, []uuid.UUID{r.classID})
	if err != nil {
		return err
	}
	if len(classes) == 0 {
		m := r.class
		m.Found = false
		id, created, err := im.resolver.EnsureClass(dbc, im.resolver.FreshClassIndex(), m)
		if err != nil {
			return err
		}
		r.classID, r.classCreated = id, r.classCreated || created
	}
	return nil
}

// audit reports what an import would do without writing anything.
func (im *Importer) audit(ctx context.Context, r *resolved, ix *activity.Index, matchMode activity.Mode) {
	entries, ok := im.match(r, ix, matchMode)
	if !ok {
		return
	}
	existing, err := im.store.Get(ctx, r.pair())
	if err != nil {
		r.failErr(r.rec.StudentLabel, err)
		return
	}
	var prev *merge.Existing
	if existing != nil {
		decoded, err := existing.DecodeEntries()
		if err != nil {
			r.fail(reconerr.KindIntegrityViolation, r.rec.ClassLabel, err.Error())
			return
		}
		prev = &merge.Existing{Entries: decoded, Freshness: existing.Freshness}
	}
	out := merge.Apply(prev, entries, merge.ResolveFreshness(r.rec.Freshness, r.rec.FileModifiedAt))
	r.success = im.successOf(r, snapshot.Result{
		Mode:      out.Mode,
		Total:     out.Total,
		Completed: out.Completed,
		Average:   out.Average,
		Added:     out.Added,
		Freshness: out.Freshness,
	})
}

func (im *Importer) successOf(r *resolved, out snapshot.Result) *Success {
	return &Success{
		Index:          r.idx,
		StudentLabel:   r.rec.StudentLabel,
		StudentID:      r.studentID,
		StudentCreated: r.studentCreated,
		ClassLabel:     r.rec.ClassLabel,
		ClassID:        r.classID,
		ClassCreated:   r.classCreated,
		ClassAmbiguous: r.class.Ambiguous,
		Subject:        r.class.Subject,
		Mode:           out.Mode,
		Accepted:       out.Accepted,
		Added:          out.Added,
		Version:        out.Version,
		Total:          out.Total,
		Completed:      out.Completed,
		Average:        out.Average,
		Freshness:      out.Freshness,
	}
}
