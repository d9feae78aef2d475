package server

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"

	"mini-tracker/registry"
)

func dialAndSend(t *testing.T, addr string, req string) []byte {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 512)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}

	return buf
}

func startTestServer(t *testing.T) (addr string, srv *Server) {
	t.Helper()

	reg := registry.New(clock.NewMock())
	srv = New(reg, nil)

	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start: %v", err)
	}

	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Stop() })

	return srv.listener.Addr().String(), srv
}

func TestAnnounceFirstPeerCompact(t *testing.T) {
	addr, _ := startTestServer(t)

	reply := dialAndSend(t, addr, "GET /announce.php?info_hash=HASH1&peer_id=PEER01&port=6881&uploaded=0&downloaded=0&left=100&compact=1 HTTP/1.0\r\n\r\n")

	body := "d8:intervali900e5:peers0:e"
	if !contains(reply, body) {
		t.Fatalf("reply %q does not contain expected body %q", reply, body)
	}
	if !contains(reply, "200 OK") {
		t.Fatalf("reply %q missing 200 OK status line", reply)
	}
}

func TestScrapeReturns404(t *testing.T) {
	addr, _ := startTestServer(t)

	reply := dialAndSend(t, addr, "GET /scrape.php?info_hash=HASH1 HTTP/1.0\r\n\r\n")
	if !contains(reply, "404 Not Found") {
		t.Fatalf("reply %q missing 404 status line", reply)
	}
}

func TestAnnounceMissingFieldYieldsBareFailureBody(t *testing.T) {
	addr, _ := startTestServer(t)

	reply := dialAndSend(t, addr, "GET /announce.php?info_hash=HASH1&peer_id=PEER01&port=6881 HTTP/1.0\r\n\r\n")

	want := `d14:failure reason69:invalid request (see http://bitconjurer.org/BitTorrent/protocol.html)e`
	if string(reply) != want {
		t.Fatalf("reply = %q, want exactly %q (no HTTP headers)", reply, want)
	}
}

func TestUnknownEndpointReturns404(t *testing.T) {
	addr, _ := startTestServer(t)

	reply := dialAndSend(t, addr, "GET /unknown.php?a=1 HTTP/1.0\r\n\r\n")
	if !contains(reply, "404 Not Found") {
		t.Fatalf("reply %q missing 404 status line", reply)
	}
}

func TestNonGetVerbReturns404(t *testing.T) {
	addr, _ := startTestServer(t)

	reply := dialAndSend(t, addr, "POST /announce.php?info_hash=HASH1 HTTP/1.0\r\n\r\n")
	if !contains(reply, "404 Not Found") {
		t.Fatalf("reply %q missing 404 status line", reply)
	}
}

func TestBareParameterClosesSilently(t *testing.T) {
	addr, _ := startTestServer(t)

	reply := dialAndSend(t, addr, "GET /announce.php?bare HTTP/1.0\r\n\r\n")
	if len(reply) != 0 {
		t.Fatalf("expected silent close, got reply %q", reply)
	}
}

func contains(haystack []byte, needle string) bool {
	return bytes.Contains(haystack, []byte(needle))
}
