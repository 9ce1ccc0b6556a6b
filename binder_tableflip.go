package evserve

import (
	"net"

	"github.com/cloudflare/tableflip"
)

// tableflipBinder is the zero-downtime-restart Binder from SPEC_FULL's
// domain-stack expansion (§B.2): it hands bound sockets to
// cloudflare/tableflip's Upgrader so a SIGHUP-triggered process restart
// can inherit already-listening file descriptors instead of dropping
// connections, which the teacher never needed (badu-http never forks a
// new binary) but which the spec's "Server Lifecycle" C10 gains for
// free by sitting behind the same Binder seam.
type tableflipBinder struct {
	upg *tableflip.Upgrader
}

// NewTableflipBinder wraps an already-constructed *tableflip.Upgrader.
// Callers are responsible for calling upg.Ready() once Start returns and
// for watching upg.Exit() to know when to stop accepting.
func NewTableflipBinder(upg *tableflip.Upgrader) Binder {
	return &tableflipBinder{upg: upg}
}

func (b *tableflipBinder) Bind(network, address string) (net.Listener, error) {
	return b.upg.Listen(network, address)
}

// Upgrade triggers tableflip's fork-exec-and-handoff sequence. It is
// exposed on Server so a caller (e.g. the SIGHUP goroutine in
// cmd/evserved) can call it without reaching into the binder directly.
func (srv *Server) Upgrade() error {
	tb, ok := srv.binder.(*tableflipBinder)
	if !ok {
		return errNotTableflip
	}
	return tb.upg.Upgrade()
}
