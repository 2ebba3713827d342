package wstarget

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap/zaptest"

	"psxvault/bridge"
)

func dial(t *testing.T, srv *httptest.Server) net.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/bridge/"
	conn, _, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitTargets(t *testing.T, b *bridge.Bridge, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(b.Targets()) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d targets, have %d", n, len(b.Targets()))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func readEnvelope(t *testing.T, conn net.Conn) bridge.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	p, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatal(err)
	}
	var e bridge.Envelope
	if err := json.Unmarshal(p, &e); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEndpoint_RequestResponse(t *testing.T) {
	b := bridge.New(zaptest.NewLogger(t).Sugar())
	endpoint := NewEndpoint(b, zaptest.NewLogger(t).Sugar())
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	conn := dial(t, srv)
	waitTargets(t, b, 1)

	card := []byte{0x4D, 0x43, 0x00, 0xFF}
	go func() {
		p, err := wsutil.ReadServerText(conn)
		if err != nil {
			return
		}
		var e bridge.Envelope
		if json.Unmarshal(p, &e) != nil || e.Type != bridge.TypeRequestMcr {
			return
		}
		// garbage first, then the answer:
		_ = wsutil.WriteClientText(conn, []byte(`{"type":"export-mcr"}`))
		_ = wsutil.WriteClientText(conn, []byte(`hello`))
		p, _ = json.Marshal(bridge.NewEnvelope(bridge.TypeExportMcr, card))
		_ = wsutil.WriteClientText(conn, p)
	}()

	got, ok := b.Request(context.Background(), bridge.TypeRequestMcr, bridge.TypeExportMcr, 2*time.Second)
	if !ok || !bytes.Equal(got, card) {
		t.Fatalf("got %x ok=%v", got, ok)
	}
}

func TestEndpoint_Push(t *testing.T) {
	b := bridge.New(zaptest.NewLogger(t).Sugar())
	srv := httptest.NewServer(NewEndpoint(b, nil))
	defer srv.Close()

	conn := dial(t, srv)
	waitTargets(t, b, 1)

	if n := b.Push(bridge.TypeImportState, []byte{0x00, 0xFF, 0x10}); n != 1 {
		t.Fatalf("push accepted by %d", n)
	}
	e := readEnvelope(t, conn)
	if e.Type != bridge.TypeImportState || e.Payload == nil || *e.Payload != bridge.Encode([]byte{0x00, 0xFF, 0x10}) {
		t.Fatalf("received %+v", e)
	}
}

func TestEndpoint_DisconnectDetaches(t *testing.T) {
	b := bridge.New(zaptest.NewLogger(t).Sugar())
	endpoint := NewEndpoint(b, nil)
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	conn := dial(t, srv)
	waitTargets(t, b, 1)
	if endpoint.Count() != 1 {
		t.Fatal("socket not tracked")
	}

	_ = conn.Close()
	waitTargets(t, b, 0)
	if endpoint.Count() != 0 {
		t.Fatal("socket not removed")
	}
}

func TestSocket_PostAfterClose(t *testing.T) {
	b := bridge.New(nil)
	endpoint := NewEndpoint(b, nil)
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	dial(t, srv)
	waitTargets(t, b, 1)
	target := b.Targets()[0]

	endpoint.Close()
	if err := target.Post(bridge.Envelope{Type: bridge.TypeRequestMcr}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
