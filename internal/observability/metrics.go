package observability

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics is the process-wide registry scraped at /metrics.
type Metrics struct {
	apiRequests    *CounterVec
	apiLatency     *HistogramVec
	importRecords  *CounterVec
	importLatency  *HistogramVec
	snapshotWrites *CounterVec
	projectedRows  *CounterVec
	sweepChanges   *CounterVec
	sweepRuns      *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init builds the registry when enabled; a nil *Metrics is valid and records nothing.
func Init(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests: NewCounterVec("gb_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
			apiLatency: NewHistogramVec(
				"gb_api_request_duration_seconds",
				"API request latency in seconds by method/route.",
				[]string{"method", "route"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			),
			importRecords: NewCounterVec("gb_import_records_total", "Imported records by batch mode and outcome.", []string{"mode", "outcome"}),
			importLatency: NewHistogramVec(
				"gb_import_batch_duration_seconds",
				"Import batch latency in seconds.",
				[]string{"mode"},
				[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			),
			snapshotWrites: NewCounterVec("gb_snapshot_writes_total", "Snapshot upserts by merge mode and acceptance.", []string{"mode", "accepted"}),
			projectedRows:  NewCounterVec("gb_projected_rows_total", "Rows written or deleted by the projector.", []string{"table", "op"}),
			sweepChanges:   NewCounterVec("gb_sweep_changes_total", "Rows changed by sweeper passes.", []string{"pass", "change"}),
			sweepRuns:      NewCounterVec("gb_sweep_runs_total", "Sweeper pass runs by status.", []string{"pass", "status"}),
		}
	})
	return instance
}

func Current() *Metrics {
	return instance
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency,
		m.importRecords, m.importLatency,
		m.snapshotWrites, m.projectedRows,
		m.sweepChanges, m.sweepRuns,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) ObserveImport(mode string, outcomes map[string]int, dur time.Duration) {
	if m == nil {
		return
	}
	for outcome, n := range outcomes {
		m.importRecords.Add(float64(n), mode, outcome)
	}
	m.importLatency.Observe(dur.Seconds(), mode)
}

func (m *Metrics) IncSnapshotWrite(mode string, accepted bool) {
	if m == nil {
		return
	}
	m.snapshotWrites.Inc(mode, strconv.FormatBool(accepted))
}

func (m *Metrics) AddProjected(table, op string, n int) {
	if m == nil {
		return
	}
	m.projectedRows.Add(float64(n), table, op)
}

func (m *Metrics) ObserveSweep(pass, status string, changes map[string]int) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc(pass, status)
	for change, n := range changes {
		m.sweepChanges.Add(float64(n), pass, change)
	}
}
