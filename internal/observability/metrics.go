package observability

import (
	"strconv"
	"sync"
	"time"
)

// Dispatch outcomes counted by RecordDispatch.
const (
	DispatchPersisted = "persisted"
	DispatchFailed    = "failed"
	DispatchPushed    = "pushed"
	// DispatchRelayed means the push was handed to a cross-instance relay;
	// whether a socket received it is counted by RecordRelay.
	DispatchRelayed = "relayed"
)

// Relay outcomes counted by RecordRelay.
const (
	RelayDelivered     = "delivered"
	RelayNoSubscribers = "no_subscribers"
	RelayFailed        = "failed"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	dispatchCount map[string]int64
	relayCount    map[string]int64
	latencyTotal  time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		dispatchCount: make(map[string]int64),
		relayCount:    make(map[string]int64),
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
	m.latencyTotal += duration
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

// RecordDispatch counts one notification outcome for a mutation kind.
func (m *Metrics) RecordDispatch(mutation, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchCount[mutation+"|"+outcome]++
}

// RecordRelay counts one relayed event as this instance's hub handled it.
func (m *Metrics) RecordRelay(event, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayCount[event+"|"+outcome]++
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests        map[string]int64 `json:"requests"`
	Errors          map[string]int64 `json:"errors"`
	Dispatch        map[string]int64 `json:"dispatch"`
	Relay           map[string]int64 `json:"relay"`
	AvgLatencyMilli float64          `json:"avg_latency_ms"`
}

// Snapshot copies the counters so callers can serialize them without holding the lock.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Requests: copyCounts(m.requestCount),
		Errors:   copyCounts(m.errorCount),
		Dispatch: copyCounts(m.dispatchCount),
		Relay:    copyCounts(m.relayCount),
	}
	var total int64
	for _, n := range m.requestCount {
		total += n
	}
	if total > 0 {
		snap.AvgLatencyMilli = float64(m.latencyTotal.Milliseconds()) / float64(total)
	}
	return snap
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
