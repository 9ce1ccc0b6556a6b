package evserve

import (
	"net"
	"sync"

	"github.com/badu/evserve/evlog"
)

// Server is C10's owner: it holds every other component (C1-C9, C11-C13)
// and exposes the lifecycle operations applications call. Grounded on
// badu-http/server.go's Server struct, generalized from one hardcoded
// net.Listener + handler pair into the full component set SPEC_FULL
// names.
type Server struct {
	opts   Options
	vhosts *VHostSet
	log    evlog.Logger

	lc            *lifecycle
	binder        Binder
	tlsNegotiator *TLSNegotiator
	driverFactory DriverFactory
	listenSpecs   []ListenerSpec

	clock     *clock
	admission *admission
	keepAlive *keepAliveQueue
	monitor   *monitor

	listeners []net.Listener
	stopCh    chan struct{}
	sweepDone chan struct{}

	connsMu sync.Mutex
	conns   map[*clientConn]struct{}
}

// NewServer constructs a Server ready for Start. listenSpecs names every
// address C4 should bind; driverFactory picks C7's implementation per
// negotiated protocol (see driverhttp1/driverhttp2's New functions).
func NewServer(opts Options, vhosts *VHostSet, listenSpecs []ListenerSpec, driverFactory DriverFactory, log evlog.Logger) *Server {
	if log == nil {
		log = evlog.Nop
	}
	srv := &Server{
		opts:          opts,
		vhosts:        vhosts,
		log:           log,
		lc:            newLifecycle(),
		binder:        netBinder{},
		driverFactory: driverFactory,
		listenSpecs:   listenSpecs,
		conns:         make(map[*clientConn]struct{}),
	}
	srv.monitor = newMonitor(srv)
	return srv
}

// SetBinder overrides the default net.Listen binder, e.g. with
// NewTableflipBinder; must be called before Start.
func (srv *Server) SetBinder(b Binder) { srv.binder = b }

// SetTLSNegotiator installs C5 for listener specs marked TLS; must be
// called before Start.
func (srv *Server) SetTLSNegotiator(n *TLSNegotiator) { srv.tlsNegotiator = n }

// AddObserver registers a C10 lifecycle Observer.
func (srv *Server) AddObserver(o Observer) { srv.lc.AddObserver(o) }

// Collector exposes C13's prometheus.Collector for registration with a
// prometheus.Registry.
func (srv *Server) Collector() *monitor { return srv.monitor }

func (srv *Server) registerConn(c *clientConn) {
	srv.connsMu.Lock()
	srv.conns[c] = struct{}{}
	srv.connsMu.Unlock()
}

func (srv *Server) unregisterConn(c *clientConn) {
	srv.connsMu.Lock()
	delete(srv.conns, c)
	srv.connsMu.Unlock()
}

func (srv *Server) activeConns() int64 {
	srv.connsMu.Lock()
	defer srv.connsMu.Unlock()
	return int64(len(srv.conns))
}

func (srv *Server) forceCloseAll() {
	srv.connsMu.Lock()
	conns := make([]*clientConn, 0, len(srv.conns))
	for c := range srv.conns {
		conns = append(conns, c)
	}
	srv.connsMu.Unlock()
	for _, c := range conns {
		c.closeNow()
	}
}

func (srv *Server) touchKeepAlive(c *clientConn) {
	srv.keepAlive.Touch(c)
}
