package http

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/gradebridge-backend/internal/data/repos"
	"github.com/yungbote/gradebridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/gradebridge-backend/internal/domain"
	httpH "github.com/yungbote/gradebridge-backend/internal/http/handlers"
	"github.com/yungbote/gradebridge-backend/internal/http/response"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/identity"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/importer"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/projector"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/snapshot"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/sweeper"
	"github.com/yungbote/gradebridge-backend/internal/services"
)

type testAPI struct {
	engine *gin.Engine
	jane   *types.Student
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	proj := projector.New(db, log, set, 0)
	resolver := identity.NewResolver(log, set.Students, set.Classes, nil, identity.Config{})
	im := importer.New(db, log, set, resolver, snapshot.NewStore(db, log, set), proj, 2)
	sw := sweeper.New(db, log, set, proj, sweeper.Options{})

	t0 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	jane := testutil.SeedStudent(t, ctx, db, "Jane Doe", t0)
	bio := testutil.SeedClass(t, ctx, db, types.SubjectScience, "Biology A", t0)
	testutil.SeedCurriculumItem(t, ctx, db, bio.ID, "Lab 1", 10, t0)
	testutil.SeedCurriculumItem(t, ctx, db, bio.ID, "Lab 2", 10, t0)

	engine := NewRouter(RouterConfig{
		Log:             log,
		HealthHandler:   httpH.NewHealthHandler(db),
		ImportHandler:   httpH.NewImportHandler(services.NewImportService(log, im, nil)),
		ApprovalHandler: httpH.NewApprovalHandler(services.NewApprovalService(log, set.Approvals, im)),
		StudentHandler: httpH.NewStudentHandler(
			services.NewStudentService(log, set),
			services.NewRosterService(db, log, set.Students),
		),
		SweepHandler: httpH.NewSweepHandler(
			services.NewSweepService(log, sw, set.SweepRuns, nil),
			services.NewProjectionService(log, proj),
		),
	})
	return testAPI{engine: engine, jane: jane}
}

func (a testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *nethttp.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, status, rec.Body.String())
	}
	var env response.ErrorEnvelope
	decode(t, rec, &env)
	if env.Error.Code != code {
		t.Fatalf("unexpected error code: got=%q want=%q", env.Error.Code, code)
	}
	if env.Error.Message == "" {
		t.Fatalf("error message should not be empty")
	}
}

const janeImport = `{
  "mode": "import",
  "match_mode": "exact_title",
  "records": [{
    "student_label": "Doe, Jane",
    "class_label": "Biology A",
    "subject_hint": "Science",
    "freshness": "2025-09-15T00:00:00Z",
    "entries": [
      {"activity_label": "Lab 1", "score": 9, "possible": 10, "status": "Complete"},
      {"activity_label": "Lab 2", "status": "Incomplete"},
      {"activity_label": "Field Trip", "status": "Complete"}
    ]
  }]
}`

func TestHealthcheck(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, nethttp.MethodGet, "/healthcheck", "")
	if rec.Code != nethttp.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthcheck: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestImportThenReadStudentRecord(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, nethttp.MethodPost, "/api/imports", janeImport)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("import failed: %d %s", rec.Code, rec.Body.String())
	}
	var imported struct {
		Result importer.Result `json:"result"`
	}
	decode(t, rec, &imported)
	if len(imported.Result.Successes) != 1 {
		t.Fatalf("expected 1 success, got %+v", imported.Result)
	}
	if len(imported.Result.Errors) != 1 || imported.Result.Errors[0].Label != "Field Trip" {
		t.Fatalf("expected the unmatched activity to be reported, got %+v", imported.Result.Errors)
	}

	rec = a.do(t, nethttp.MethodGet, "/api/students/"+a.jane.ID.String()+"/record", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("record failed: %d %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Record services.StudentRecord `json:"record"`
	}
	decode(t, rec, &got)
	if len(got.Record.Classes) != 1 || got.Record.Classes[0].Title != "Biology A" {
		t.Fatalf("unexpected classes: %+v", got.Record.Classes)
	}
	if len(got.Record.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(got.Record.Assignments))
	}

	rec = a.do(t, nethttp.MethodGet, "/api/students?q=jane", "")
	if rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), a.jane.ID.String()) {
		t.Fatalf("student search missed jane: %d %s", rec.Code, rec.Body.String())
	}
}

func TestErrorEnvelopes(t *testing.T) {
	a := newTestAPI(t)

	expectError(t, a.do(t, nethttp.MethodPost, "/api/imports", `{"records":`), nethttp.StatusBadRequest, "invalid_request")
	expectError(t, a.do(t, nethttp.MethodPost, "/api/imports", `{"mode":"preview","records":[{}]}`), nethttp.StatusBadRequest, "invalid_mode")
	expectError(t, a.do(t, nethttp.MethodGet, "/api/students/not-a-uuid/record", ""), nethttp.StatusBadRequest, "invalid_student_id")
	expectError(t, a.do(t, nethttp.MethodGet, "/api/students/"+uuid.NewString()+"/record", ""), nethttp.StatusNotFound, "student_not_found")
	expectError(t, a.do(t, nethttp.MethodPost, "/api/approvals/"+uuid.NewString()+"/approve", ""), nethttp.StatusNotFound, "approval_not_found")
	expectError(t, a.do(t, nethttp.MethodPost, "/api/approvals/nope/deny", `{"create_new":true}`), nethttp.StatusBadRequest, "invalid_approval_id")
	expectError(t, a.do(t, nethttp.MethodPost, "/api/sweeps/everything", ""), nethttp.StatusBadRequest, "unknown_pass")
	expectError(t, a.do(t, nethttp.MethodPost, "/api/sweeps/curriculum-enforce", ""), nethttp.StatusBadRequest, "no_canonical_curriculum")
	expectError(t, a.do(t, nethttp.MethodPost, "/api/roster", `{"students":[]}`), nethttp.StatusBadRequest, "invalid_roster")
}

func TestSweepAndRebuildRoutes(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, nethttp.MethodPost, "/api/sweeps/all", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("sweep failed: %d %s", rec.Code, rec.Body.String())
	}
	var swept struct {
		Report sweeper.Report `json:"report"`
	}
	decode(t, rec, &swept)
	if swept.Report.Pass != sweeper.PassAll || swept.Report.Status != types.SweepStatusSucceeded {
		t.Fatalf("unexpected report: %+v", swept.Report)
	}

	rec = a.do(t, nethttp.MethodGet, "/api/sweeps?pass=all", "")
	var runs struct {
		Runs []types.SweepRun `json:"runs"`
	}
	decode(t, rec, &runs)
	if len(runs.Runs) != 1 || runs.Runs[0].TriggeredBy != "api" {
		t.Fatalf("unexpected sweep runs: %+v", runs.Runs)
	}

	rec = a.do(t, nethttp.MethodPost, "/api/projections/rebuild", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("rebuild failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRosterRoute(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, nethttp.MethodPost, "/api/roster", `{"students":[{"name":"Ng, Ben","grade":9},{"name":"Jane Doe"}]}`)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("roster failed: %d %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Result services.RosterResult `json:"result"`
	}
	decode(t, rec, &got)
	if got.Result.Created != 1 || got.Result.Unchanged != 1 {
		t.Fatalf("unexpected roster result: %+v", got.Result)
	}
}
