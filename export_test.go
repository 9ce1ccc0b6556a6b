package evserve

import (
	"net"
	"testing"
	"time"

	"github.com/badu/evserve/evlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingUpgrader struct {
	raw net.Conn
	req *Request
}

func (u *recordingUpgrader) Upgrade(raw net.Conn, req *Request) error {
	u.raw = raw
	u.req = req
	return nil
}

func TestExportHandsOffSocketAndStopsTracking(t *testing.T) {
	opts := DefaultOptions()
	srv := &Server{
		opts:      opts,
		log:       evlog.Nop,
		keepAlive: newKeepAliveQueue(time.Minute),
		admission: newAdmission(10, 5),
		conns:     make(map[*clientConn]struct{}),
	}

	client, server := net.Pipe()
	defer client.Close()

	c := newClientConn(srv, server, nil, "127.0.0.1")
	require.True(t, srv.admission.TryAdmit("127.0.0.1"))
	srv.registerConn(c)
	srv.keepAlive.Touch(c)

	req := &Request{Method: GET, Path: "/ws"}
	up := &recordingUpgrader{}
	require.NoError(t, srv.Export(c, req, up))

	assert.Same(t, server, up.raw)
	assert.Same(t, req, up.req)
	assert.Equal(t, 0, srv.keepAlive.Len())
	assert.Equal(t, int64(0), srv.activeConns())
	assert.Equal(t, connExported, connState(c.state.Load()))
}

func TestExportTwiceFails(t *testing.T) {
	opts := DefaultOptions()
	srv := &Server{
		opts:      opts,
		log:       evlog.Nop,
		keepAlive: newKeepAliveQueue(time.Minute),
		admission: newAdmission(10, 5),
		conns:     make(map[*clientConn]struct{}),
	}
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newClientConn(srv, server, nil, "127.0.0.1")
	require.True(t, srv.admission.TryAdmit("127.0.0.1"))
	srv.registerConn(c)

	require.NoError(t, srv.Export(c, &Request{}, &recordingUpgrader{}))
	assert.ErrorIs(t, srv.Export(c, &Request{}, &recordingUpgrader{}), ErrExported)
}
