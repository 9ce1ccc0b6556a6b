package evserve

import "net"

// Binder is C4's listener contract (§7 "listener contract"): given an
// address, produce a bound, listening net.Listener. The default binder
// uses net.Listen; tableflipBinder (see
// binder_tableflip.go) uses cloudflare/tableflip for zero-downtime
// restarts, swapping in without the rest of C4 knowing the difference.
type Binder interface {
	Bind(network, address string) (net.Listener, error)
}

// netBinder is the default Binder, grounded on badu-http/server.go's
// net.Listen-based ListenAndServe.
type netBinder struct{}

func (netBinder) Bind(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}

// ListenerSpec names one address/network pair to bind at Start.
type ListenerSpec struct {
	Network string // "tcp", "tcp4", "tcp6", "unix"
	Address string
	TLS     bool // whether C5 negotiation wraps this listener
}

// bindListeners implements C4 (§4.2 step 1): bind every configured
// listener, apply SocketBacklogSize to listeners that implement
// backlogSetter and, where TLS is requested, wrap it in C5's negotiator.
// Admission is checked per connection in acceptLoop.
func (srv *Server) bindListeners() error {
	for _, spec := range srv.listenSpecs {
		ln, err := srv.binder.Bind(spec.Network, spec.Address)
		if err != nil {
			srv.closeBoundListeners()
			return err
		}
		if bl, ok := ln.(backlogSetter); ok {
			bl.SetBacklog(srv.opts.SocketBacklogSize)
		}
		if spec.TLS && srv.tlsNegotiator != nil {
			ln = srv.tlsNegotiator.Wrap(ln)
		}
		srv.listeners = append(srv.listeners, ln)
	}
	return nil
}

// Addrs returns the bound address of every listener C4 is serving,
// useful when a ListenerSpec's Address used port 0 and the actual port
// is only known after Start.
func (srv *Server) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(srv.listeners))
	for _, ln := range srv.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

func (srv *Server) closeBoundListeners() {
	for _, ln := range srv.listeners {
		_ = ln.Close()
	}
	srv.listeners = nil
}

// backlogSetter is implemented by binders that can adjust an
// already-created listener's backlog (most net.Listener
// implementations bake the backlog in at bind time via listen(2), so
// this is an optional extension point rather than part of Binder
// itself).
type backlogSetter interface {
	SetBacklog(n int)
}

// acceptLoop is the remainder of C4: accept connections until the
// listener closes (Stop's signal), admitting each through C3 before
// spawning its connection goroutine.
func (srv *Server) acceptLoop(ln net.Listener) {
	for {
		rwc, err := ln.Accept()
		if err != nil {
			return
		}
		block := ipBlock(rwc.RemoteAddr())
		if !srv.admission.TryAdmit(block) {
			_ = rwc.Close()
			continue
		}
		proto := HTTP1_1
		if tc, ok := rwc.(tlsConnNegotiated); ok {
			proto = tc.NegotiatedProtocol()
		}
		driver := srv.driverFactory(proto)
		c := newClientConn(srv, rwc, driver, block)
		srv.keepAlive.Touch(c)
		go c.serve()
	}
}

// tlsConnNegotiated is implemented by the connection type C5 returns
// once the TLS handshake (including ALPN) completes.
type tlsConnNegotiated interface {
	NegotiatedProtocol() string
}
