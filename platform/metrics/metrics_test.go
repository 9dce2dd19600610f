package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordAlarm(2, true)
	m.RecordAlarm(2, true)
	m.RecordAlarm(2, false)
	m.RecordSweep("escalation", 150*time.Millisecond, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AlarmsSent.WithLabelValues("2", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlarmsSent.WithLabelValues("2", "failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepItemsFailed.WithLabelValues("escalation")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordClaim("claimed")
		m.RecordBreach("contact")
		m.RecordFirstAction(time.Minute)
	})
}
