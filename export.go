package evserve

import "net"

// Upgrader is C12's Export Protocol: given an exported connection and
// the request that triggered the upgrade, take ownership of the raw
// socket. driverws.Upgrade implements this for WebSocket (§4.5 "Export
// Protocol": hand off the live socket without closing it).
type Upgrader interface {
	Upgrade(raw net.Conn, req *Request) error
}

// Export implements C12 for one connection: it removes c from every
// server-wide accounting structure that would otherwise try to manage
// its lifetime (keep-alive queue, connection registry), then releases
// the raw socket to upgrader. After Export returns nil, the core never
// touches the connection again; the caller owns rwc exclusively.
//
// Grounded on the teacher's ErrHijacked-return hijack contract
// (ResponseWriter hijacking), generalized from "caller reads/writes
// directly" to "a named Upgrader takes over", since the spec frames
// Export as a protocol rather than a raw conn handoff.
func (srv *Server) Export(c *clientConn, req *Request, upgrader Upgrader) error {
	srv.keepAlive.Remove(c)
	srv.unregisterConn(c)

	raw, err := c.export()
	if err != nil {
		return err
	}
	srv.admission.Release(c.block)
	return upgrader.Upgrade(raw, req)
}
