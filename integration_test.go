package evserve_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badu/evserve"
	"github.com/badu/evserve/driverhttp1"
)

func TestHTTP1RoundTripOverRealConnection(t *testing.T) {
	opts := evserve.DefaultOptions()
	vhosts := evserve.NewVHostSet()
	vhosts.Register(&evserve.VHost{Handler: evserve.HandlerFunc(func(resp *evserve.Response, req *evserve.Request) {
		resp.Header.Set(evserve.ContentType, "text/plain; charset=utf-8")
		resp.Header.Set(evserve.ContentLength, "5")
		resp.WriteHeader(evserve.StatusOK)
		_, _ = resp.Write([]byte("howdy"))
	})})

	srv := evserve.NewServer(opts, vhosts, []evserve.ListenerSpec{{Network: "tcp", Address: "127.0.0.1:0"}},
		func(string) evserve.Driver { return driverhttp1.New() }, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	addr := addrOf(t, srv)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	buf := make([]byte, 5)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, "howdy", string(buf))
}

func TestHTTP1MethodNotAllowedOverRealConnection(t *testing.T) {
	opts := evserve.DefaultOptions()
	opts.AllowedMethods = []string{evserve.GET}
	vhosts := evserve.NewVHostSet()
	vhosts.Register(&evserve.VHost{Handler: evserve.HandlerFunc(func(resp *evserve.Response, req *evserve.Request) {
		t.Fatal("handler must not run for a disallowed method")
	})})

	srv := evserve.NewServer(opts, vhosts, []evserve.ListenerSpec{{Network: "tcp", Address: "127.0.0.1:0"}},
		func(string) evserve.Driver { return driverhttp1.New() }, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	addr := addrOf(t, srv)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("POST / HTTP/1.1\r\nHost: example.com\r\nContent-Length: 0\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 405, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Allow"))
}

func addrOf(t *testing.T, srv *evserve.Server) string {
	t.Helper()
	addrs := srv.Addrs()
	require.Len(t, addrs, 1)
	return addrs[0].String()
}
