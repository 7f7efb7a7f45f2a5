package observability

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", 200, time.Millisecond)
	m.IncSnapshotWrite("merge", true)
	m.ObserveSweep("orphan-purge", "succeeded", map[string]int{"records_deleted": 1})
	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	assert.Empty(t, buf.String())
}

func TestCountersRender(t *testing.T) {
	c := NewCounterVec("gb_test_total", "test counter", []string{"pass", "change"})
	c.Inc("class-dedup", "classes_deleted")
	c.Add(2, "class-dedup", "classes_deleted")
	c.Add(0, "class-dedup", "noop")
	assert.Equal(t, 3.0, c.Value("class-dedup", "classes_deleted"))

	var buf bytes.Buffer
	require.NoError(t, c.WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, "# TYPE gb_test_total counter")
	assert.Contains(t, out, `gb_test_total{pass="class-dedup",change="classes_deleted"} 3.000000`)
	assert.NotContains(t, out, "noop")
}

func TestHistogramRender(t *testing.T) {
	h := NewHistogramVec("gb_test_seconds", "test histogram", []string{"mode"}, []float64{0.1, 1})
	h.Observe(0.05, "import")
	h.Observe(0.5, "import")
	h.Observe(5, "import")

	var buf bytes.Buffer
	require.NoError(t, h.WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, `gb_test_seconds_bucket{mode="import",le="0.1"} 1`)
	assert.Contains(t, out, `gb_test_seconds_bucket{mode="import",le="1"} 2`)
	assert.Contains(t, out, `gb_test_seconds_bucket{mode="import",le="+Inf"} 3`)
	assert.Contains(t, out, `gb_test_seconds_count{mode="import"} 3`)
}
