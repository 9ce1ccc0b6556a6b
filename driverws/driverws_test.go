package driverws

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badu/evserve"
)

const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + wsGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func TestUpgraderCompletesHandshakeAndInvokesHandler(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	handled := make(chan *websocket.Conn, 1)
	u := New(func(conn *websocket.Conn, req *evserve.Request) {
		handled <- conn
	}, func(r *http.Request) bool { return true })

	req := &evserve.Request{
		Method: "GET",
		Host:   "example.com",
		Header: evserve.Header{
			"Upgrade":               []string{"websocket"},
			"Connection":            []string{"Upgrade"},
			"Sec-Websocket-Key":     []string{"dGhlIHNhbXBsZSBub25jZQ=="},
			"Sec-Websocket-Version": []string{"13"},
		},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- u.Upgrade(server, req) }()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, acceptKey("dGhlIHNhbXBsZSBub25jZQ=="), resp.Header.Get("Sec-WebSocket-Accept"))

	require.NoError(t, <-errCh)

	select {
	case conn := <-handled:
		assert.NotNil(t, conn)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestUpgraderRejectsNonWebSocketRequest(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	u := New(func(conn *websocket.Conn, req *evserve.Request) {
		t.Fatal("handler must not run on a failed handshake")
	}, func(r *http.Request) bool { return true })

	req := &evserve.Request{Method: "GET", Host: "example.com", Header: evserve.Header{}}

	errCh := make(chan error, 1)
	go func() { errCh <- u.Upgrade(server, req) }()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, _ := client.Read(buf)
	assert.Contains(t, string(buf[:n]), "400")

	// net.Pipe is unbuffered: closing the client unblocks the rest of
	// the error response the server is still writing.
	client.Close()
	assert.Error(t, <-errCh)
}
