package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Ticket outcome counter names.
const (
	TicketOpened       = "opened"
	TicketClosed       = "closed"
	TicketForceClosed  = "force_closed"
	TicketGrantApplied = "grant_applied"
	TicketAutoClosed   = "auto_closed"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	tickets      map[string]int64
	deliveries   map[string]int64
	latencyTotal time.Duration
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests          map[string]int64 `json:"requests"`
	Errors            map[string]int64 `json:"errors"`
	Tickets           map[string]int64 `json:"tickets"`
	Deliveries        map[string]int64 `json:"deliveries"`
	AvgRequestLatency string           `json:"avg_request_latency"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		tickets:      make(map[string]int64),
		deliveries:   make(map[string]int64),
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

// RecordTicket counts a ticket lifecycle outcome.
func (m *Metrics) RecordTicket(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[outcome]++
}

// RecordDelivery counts a reward delivery outcome.
func (m *Metrics) RecordDelivery(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[outcome]++
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, v := range m.requestCount {
		total += v
	}
	avg := time.Duration(0)
	if total > 0 {
		avg = m.latencyTotal / time.Duration(total)
	}
	return Snapshot{
		Requests:          copyCounts(m.requestCount),
		Errors:            copyCounts(m.errorCount),
		Tickets:           copyCounts(m.tickets),
		Deliveries:        copyCounts(m.deliveries),
		AvgRequestLatency: avg.String(),
	}
}

// Keys returns a map's keys in sorted order.
func Keys(counts map[string]int64) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
