package evserve

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"
)

// admission is C3: global and per-IP-block connection counters, with
// inclusive caps and atomic both-counters-or-neither admission. Grounded on
// badu-http/server.go's trackConn/trackListener map bookkeeping,
// generalized from an unbounded map to a pair of counting semaphores so
// the "crossed the cap" check (§4.2 step 2) is a single TryAcquire.
type admission struct {
	global *semaphore.Weighted
	maxGlb int64

	mu      sync.Mutex
	perIP   map[string]*semaphore.Weighted
	maxPerB int64
}

func newAdmission(maxConnections, connectionsPerIP int64) *admission {
	return &admission{
		global:  semaphore.NewWeighted(maxConnections),
		maxGlb:  maxConnections,
		perIP:   make(map[string]*semaphore.Weighted),
		maxPerB: connectionsPerIP,
	}
}

// ipBlock derives the per-IP aggregation key from spec §4.2 step 1: the
// full address for IPv4, the first 7 bytes (≈/56) for IPv6. Unix-domain
// peers (no IP) return "" and skip accounting (step 2's final sentence).
func ipBlock(addr net.Addr) string {
	host, _, err := splitHostPort(addr)
	if err != nil || host == "" {
		return ""
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	v6 := ip.To16()
	if v6 == nil {
		return ""
	}
	return string(v6[:7])
}

func splitHostPort(addr net.Addr) (string, string, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String(), "", nil
	case *net.UDPAddr:
		return a.IP.String(), "", nil
	default:
		return "", "", errNotIPAddr
	}
}

var errNotIPAddr = &net.AddrError{Err: "not an IP address", Addr: ""}

// TryAdmit attempts to admit one connection from block. It returns false
// (and leaves both counters untouched — rollback is implicit because a
// failed TryAcquire never acquires) when either cap would be crossed. An
// empty block (Unix-domain) only consults the global cap.
func (a *admission) TryAdmit(block string) bool {
	if !a.global.TryAcquire(1) {
		return false
	}
	if block == "" {
		return true
	}
	sem := a.blockSemaphore(block)
	if !sem.TryAcquire(1) {
		a.global.Release(1)
		return false
	}
	return true
}

// Release gives back one admitted slot on connection close/export.
func (a *admission) Release(block string) {
	a.global.Release(1)
	if block == "" {
		return
	}
	a.mu.Lock()
	sem, ok := a.perIP[block]
	a.mu.Unlock()
	if ok {
		sem.Release(1)
	}
}

func (a *admission) blockSemaphore(block string) *semaphore.Weighted {
	a.mu.Lock()
	defer a.mu.Unlock()
	sem, ok := a.perIP[block]
	if !ok {
		sem = semaphore.NewWeighted(a.maxPerB)
		a.perIP[block] = sem
	}
	return sem
}

// Snapshot reports the current global usage and the number of distinct IP
// blocks seen, for C13 Monitoring.
func (a *admission) Snapshot() (inUse, max int64, uniqueBlocks int) {
	// semaphore.Weighted has no public "in use" accessor, so mirror the
	// count with a best-effort acquire/release probe is wrong under
	// concurrency; evserve instead tracks usage with the connection
	// registry (see Server.conns in server.go) and only uses this type
	// for admission control itself. uniqueBlocks is the only thing this
	// type can answer authoritatively.
	a.mu.Lock()
	defer a.mu.Unlock()
	return 0, a.maxGlb, len(a.perIP)
}

// acquireCtx lets a caller (e.g. a test) block on admission respecting a
// context deadline, rather than polling TryAdmit.
func (a *admission) acquireCtx(ctx context.Context) error {
	return a.global.Acquire(ctx, 1)
}
