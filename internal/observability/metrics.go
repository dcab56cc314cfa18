package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	jobCount     map[string]int64
	pollCount    map[string]int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests map[string]int64 `json:"requests"`
	Errors   map[string]int64 `json:"errors"`
	Jobs     map[string]int64 `json:"jobs"`
	Polls    map[string]int64 `json:"polls"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		jobCount:     make(map[string]int64),
		pollCount:    make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordJob counts a notification job by kind and terminal outcome.
func (m *Metrics) RecordJob(kind string, ok bool) {
	if m == nil {
		return
	}
	key := kind + "|" + outcome(ok)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobCount[key]++
}

// RecordPoll counts inbox poll cycles by result, e.g. "created", "rejected", "dial_failed".
func (m *Metrics) RecordPoll(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollCount[result] += int64(n)
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests: copyCounts(m.requestCount),
		Errors:   copyCounts(m.errorCount),
		Jobs:     copyCounts(m.jobCount),
		Polls:    copyCounts(m.pollCount),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
