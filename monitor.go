package evserve

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is C13's point-in-time monitoring surface (§7 "monitoring
// surface"), returned by Server.Snapshot for ad-hoc inspection alongside
// the always-on Prometheus export below.
type Snapshot struct {
	State             LifecycleState
	ActiveConnections int64
	KeepAliveQueued   int
	TotalRequests     int64
	TotalBytesOut     int64
	StatusCounts      map[int]int64
}

// monitor is C13: request/byte/status counters plus a prometheus.Collector
// adapter, grounded on nabbar-golib's monitor package contract (observed
// via its test suite in the retrieval pack, since its implementation
// itself was not retrieved — see DESIGN.md) generalized onto
// prometheus/client_golang's Collector interface directly rather than a
// custom registry shape.
type monitor struct {
	srv *Server

	totalRequests atomic.Int64
	totalBytes    atomic.Int64

	mu           sync.Mutex
	statusCounts map[int]int64

	reqDesc    *prometheus.Desc
	bytesDesc  *prometheus.Desc
	activeDesc *prometheus.Desc
	statusDesc *prometheus.Desc
}

func newMonitor(srv *Server) *monitor {
	return &monitor{
		srv:          srv,
		statusCounts: make(map[int]int64),
		reqDesc:      prometheus.NewDesc("evserve_requests_total", "Total requests dispatched.", nil, nil),
		bytesDesc:    prometheus.NewDesc("evserve_response_bytes_total", "Total response bytes written.", nil, nil),
		activeDesc:   prometheus.NewDesc("evserve_active_connections", "Currently open connections.", nil, nil),
		statusDesc:   prometheus.NewDesc("evserve_responses_total", "Responses by status code.", []string{"status"}, nil),
	}
}

// observeRequest records one completed response for C13 accounting;
// called from the Response completion hook wired in conn.go.
func (m *monitor) observeRequest(req *Request, status int, bytesOut int64) {
	m.totalRequests.Add(1)
	m.totalBytes.Add(bytesOut)
	m.mu.Lock()
	m.statusCounts[status]++
	m.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (m *monitor) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.reqDesc
	ch <- m.bytesDesc
	ch <- m.activeDesc
	ch <- m.statusDesc
}

// Collect implements prometheus.Collector.
func (m *monitor) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(m.reqDesc, prometheus.CounterValue, float64(m.totalRequests.Load()))
	ch <- prometheus.MustNewConstMetric(m.bytesDesc, prometheus.CounterValue, float64(m.totalBytes.Load()))
	ch <- prometheus.MustNewConstMetric(m.activeDesc, prometheus.GaugeValue, float64(m.srv.activeConns()))

	m.mu.Lock()
	counts := make(map[int]int64, len(m.statusCounts))
	for k, v := range m.statusCounts {
		counts[k] = v
	}
	m.mu.Unlock()
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(m.statusDesc, prometheus.CounterValue, float64(n), statusLabel(status))
	}
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// Snapshot returns a consistent point-in-time view, for tooling that
// would rather poll than scrape Prometheus.
func (srv *Server) Snapshot() Snapshot {
	srv.monitor.mu.Lock()
	counts := make(map[int]int64, len(srv.monitor.statusCounts))
	for k, v := range srv.monitor.statusCounts {
		counts[k] = v
	}
	srv.monitor.mu.Unlock()

	return Snapshot{
		State:             srv.lc.State(),
		ActiveConnections: srv.activeConns(),
		KeepAliveQueued:   srv.keepAlive.Len(),
		TotalRequests:     srv.monitor.totalRequests.Load(),
		TotalBytesOut:     srv.monitor.totalBytes.Load(),
		StatusCounts:      counts,
	}
}
