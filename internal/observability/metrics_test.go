package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/v1/tickets/", "GET", 200, time.Millisecond)
	m.RecordRequest("/api/v1/tickets/", "GET", 200, time.Millisecond)
	m.RecordError("/api/v1/tickets/create_ticket", "POST", "NOT_FOUND")
	m.RecordJob("auto_reply", true)
	m.RecordJob("close_notice", false)
	m.RecordPoll("created", 2)
	m.RecordPoll("rejected", 0)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/api/v1/tickets/|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/api/v1/tickets/create_ticket|POST|NOT_FOUND"])
	assert.Equal(t, int64(1), snap.Jobs["auto_reply|ok"])
	assert.Equal(t, int64(1), snap.Jobs["close_notice|failed"])
	assert.Equal(t, int64(2), snap.Polls["created"])
	assert.NotContains(t, snap.Polls, "rejected")

	snap.Jobs["auto_reply|ok"] = 100
	assert.Equal(t, int64(1), m.Snapshot().Jobs["auto_reply|ok"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordJob("auto_reply", true)
	m.RecordPoll("created", 1)
	assert.Empty(t, m.Snapshot().Jobs)
}
