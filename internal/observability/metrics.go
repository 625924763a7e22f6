package observability

import (
	"strconv"
	"sync"
	"time"
)

// Notification outcomes recorded by RecordNotification.
const (
	NotificationDelivered = "delivered"
	NotificationFailed    = "failed"
	NotificationSkipped   = "skipped"
	NotificationDropped   = "dropped"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu                sync.Mutex
	requestCount      map[string]int64
	requestMillis     map[string]int64
	errorCount        map[string]int64
	notificationCount map[string]int64
	aggregationRuns   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:      make(map[string]int64),
		requestMillis:     make(map[string]int64),
		errorCount:        make(map[string]int64),
		notificationCount: make(map[string]int64),
		aggregationRuns:   make(map[string]int64),
	}
}

// RecordRequest counts a request and adds its latency to the per-route total.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestMillis[key] += duration.Milliseconds()
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

// RecordNotification counts webhook outcomes.
func (m *Metrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notificationCount[outcome]++
}

// RecordAggregation counts aggregation runs by result ("ok" or "failed").
func (m *Metrics) RecordAggregation(result string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregationRuns[result]++
}

// Notifications returns the count for one outcome.
func (m *Metrics) Notifications(outcome string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notificationCount[outcome]
}

// Snapshot copies every counter, keyed by family.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]map[string]int64{
		"requests":      copyCounts(m.requestCount),
		"request_ms":    copyCounts(m.requestMillis),
		"errors":        copyCounts(m.errorCount),
		"notifications": copyCounts(m.notificationCount),
		"aggregations":  copyCounts(m.aggregationRuns),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
