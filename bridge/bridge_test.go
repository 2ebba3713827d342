package bridge

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type recordingTarget struct {
	name string
	fail error

	lock sync.Mutex
	seen []Envelope

	// called after recording; may answer through the bridge:
	onPost func(e Envelope)
}

func (r *recordingTarget) Name() string { return r.name }

func (r *recordingTarget) Post(e Envelope) error {
	if r.fail != nil {
		return r.fail
	}
	r.lock.Lock()
	r.seen = append(r.seen, e)
	r.lock.Unlock()
	if r.onPost != nil {
		r.onPost(e)
	}
	return nil
}

func (r *recordingTarget) Seen() []Envelope {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Envelope(nil), r.seen...)
}

func newTestBridge(t *testing.T) *Bridge {
	return New(zaptest.NewLogger(t).Sugar())
}

func TestRequest_NoTarget_TimesOut(t *testing.T) {
	b := newTestBridge(t)

	timeout := 60 * time.Millisecond
	start := time.Now()
	data, ok := b.Request(context.Background(), TypeRequestMcr, TypeExportMcr, timeout)
	elapsed := time.Since(start)

	if ok || data != nil {
		t.Fatalf("expected absent result, got %v %v", data, ok)
	}
	if elapsed < timeout {
		t.Fatalf("resolved after %v, before timeout %v", elapsed, timeout)
	}
	if elapsed > timeout+500*time.Millisecond {
		t.Fatalf("resolved after %v, far beyond timeout %v", elapsed, timeout)
	}
	if n := b.Pending(TypeExportMcr); n != 0 {
		t.Fatalf("listener leaked: %d pending", n)
	}
}

func TestRequest_UnresponsiveTarget_TimesOut(t *testing.T) {
	b := newTestBridge(t)
	target := &recordingTarget{name: "silent"}
	b.Attach(target)

	_, ok := b.Request(context.Background(), TypeRequestMcr, TypeExportMcr, 30*time.Millisecond)
	if ok {
		t.Fatal("expected absent result")
	}

	seen := target.Seen()
	if len(seen) != 1 || seen[0].Type != TypeRequestMcr || seen[0].Payload != nil {
		t.Fatalf("target saw %+v", seen)
	}
}

func TestRequest_ResolvesOnResponse(t *testing.T) {
	b := newTestBridge(t)
	want := []byte{0x00, 0x01, 0xFE, 0xFF}

	target := &recordingTarget{name: "emu"}
	target.onPost = func(e Envelope) {
		if e.Type != TypeRequestMcr {
			return
		}
		go func() {
			time.Sleep(20 * time.Millisecond)
			b.Deliver(NewEnvelope(TypeExportMcr, want))
			// a second response must not affect the resolved request:
			b.Deliver(NewEnvelope(TypeExportMcr, []byte{0x42}))
		}()
	}
	b.Attach(target)

	start := time.Now()
	got, ok := b.Request(context.Background(), TypeRequestMcr, TypeExportMcr, 2*time.Second)
	elapsed := time.Since(start)

	if !ok {
		t.Fatal("expected payload")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
	if elapsed > time.Second {
		t.Fatalf("resolved after %v; expected roughly the response time", elapsed)
	}
	if n := b.Pending(TypeExportMcr); n != 0 {
		t.Fatalf("listener leaked: %d pending", n)
	}
}

func TestRequest_IgnoresMalformedResponses(t *testing.T) {
	b := newTestBridge(t)
	target := &recordingTarget{name: "emu"}
	target.onPost = func(e Envelope) {
		go func() {
			// right type, missing payload:
			b.Deliver(Envelope{Type: TypeExportState})
			// right type, bad payload:
			bad := "%%%"
			b.Deliver(Envelope{Type: TypeExportState, Payload: &bad})
			// garbage:
			b.DeliverRaw([]byte(`{"base64":"AAE="}`))
			b.DeliverRaw([]byte(`not json`))
			// wrong type:
			b.Deliver(NewEnvelope(TypeExportMcr, []byte{1}))
		}()
	}
	b.Attach(target)

	_, ok := b.Request(context.Background(), TypeRequestState, TypeExportState, 80*time.Millisecond)
	if ok {
		t.Fatal("malformed or mismatched envelopes must not resolve the request")
	}
}

func TestRequest_EmptyPayloadKeepsWaiting(t *testing.T) {
	b := newTestBridge(t)
	target := &recordingTarget{name: "emu"}
	target.onPost = func(e Envelope) {
		go func() {
			b.DeliverRaw([]byte(`{"type":"export-mcr","base64":""}`))
			b.Deliver(NewEnvelope(TypeExportMcr, []byte{0x4d, 0x43}))
		}()
	}
	b.Attach(target)

	got, ok := b.Request(context.Background(), TypeRequestMcr, TypeExportMcr, time.Second)
	if !ok {
		t.Fatal("expected the later non-empty payload")
	}
	if !bytes.Equal(got, []byte{0x4d, 0x43}) {
		t.Fatalf("unexpected payload %x", got)
	}
}

func TestRequest_OnlyEmptyPayloadTimesOut(t *testing.T) {
	b := newTestBridge(t)
	target := &recordingTarget{name: "emu"}
	target.onPost = func(e Envelope) {
		go b.DeliverRaw([]byte(`{"type":"export-state","base64":""}`))
	}
	b.Attach(target)

	if got, ok := b.Request(context.Background(), TypeRequestState, TypeExportState, 50*time.Millisecond); ok {
		t.Fatalf("expected absent result, got %x", got)
	}
	if n := b.Pending(TypeExportState); n != 0 {
		t.Fatalf("%d requests still pending", n)
	}
}

func TestRequest_ContextCancel(t *testing.T) {
	b := newTestBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, ok := b.Request(ctx, TypeRequestState, TypeExportState, 5*time.Second)
	if ok {
		t.Fatal("expected absent result")
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancel did not end the request")
	}
	if n := b.Pending(TypeExportState); n != 0 {
		t.Fatalf("listener leaked: %d pending", n)
	}
}

func TestRequest_SameTypeResolvedOldestFirst(t *testing.T) {
	b := newTestBridge(t)

	type result struct {
		data []byte
		ok   bool
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		d, ok := b.Request(context.Background(), TypeRequestMcr, TypeExportMcr, time.Second)
		first <- result{d, ok}
	}()
	waitPending(t, b, TypeExportMcr, 1)

	go func() {
		d, ok := b.Request(context.Background(), TypeRequestMcr, TypeExportMcr, 100*time.Millisecond)
		second <- result{d, ok}
	}()
	waitPending(t, b, TypeExportMcr, 2)

	b.Deliver(NewEnvelope(TypeExportMcr, []byte{0x01}))

	r := <-first
	if !r.ok || !bytes.Equal(r.data, []byte{0x01}) {
		t.Fatalf("first request got %x %v", r.data, r.ok)
	}
	r = <-second
	if r.ok {
		t.Fatalf("second request should time out, got %x", r.data)
	}
}

func waitPending(t *testing.T, b *Bridge, tag MessageType, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for b.Pending(tag) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d pending %s", n, tag)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPush_BroadcastsToAllTargets(t *testing.T) {
	b := newTestBridge(t)
	one := &recordingTarget{name: "one"}
	two := &recordingTarget{name: "two"}
	broken := &recordingTarget{name: "broken", fail: errors.New("frame gone")}
	b.Attach(one)
	b.Attach(broken)
	b.Attach(two)

	n := b.Push(TypeImportState, []byte{0x00, 0xFF, 0x10})
	if n != 2 {
		t.Fatalf("accepted by %d targets, want 2", n)
	}

	for _, target := range []*recordingTarget{one, two} {
		seen := target.Seen()
		if len(seen) != 1 {
			t.Fatalf("%s saw %d envelopes", target.name, len(seen))
		}
		if seen[0].Type != TypeImportState || seen[0].Payload == nil || *seen[0].Payload != Encode([]byte{0x00, 0xFF, 0x10}) {
			t.Fatalf("%s saw %+v", target.name, seen[0])
		}
	}
}

func TestPush_NoTargets(t *testing.T) {
	b := newTestBridge(t)
	if n := b.Push(TypeImportMcr, []byte{1, 2, 3}); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestDetach(t *testing.T) {
	b := newTestBridge(t)
	target := &recordingTarget{name: "emu"}
	b.Attach(target)
	b.Detach(target)
	if len(b.Targets()) != 0 {
		t.Fatal("target not detached")
	}
	b.Push(TypeImportMcr, []byte{1})
	if len(target.Seen()) != 0 {
		t.Fatal("detached target received a push")
	}
}

func TestSubscribe(t *testing.T) {
	b := newTestBridge(t)

	var got []MessageType
	cancel := b.Subscribe(func(e Envelope) { got = append(got, e.Type) })

	b.Deliver(NewEnvelope(TypeExportMcr, []byte{1}))
	b.Deliver(Envelope{Type: TypeExportMcr}) // dropped
	b.DeliverRaw([]byte(`{"type":"export-state","base64":"AQ=="}`))
	cancel()
	b.Deliver(NewEnvelope(TypeExportMcr, []byte{2}))

	if len(got) != 2 || got[0] != TypeExportMcr || got[1] != TypeExportState {
		t.Fatalf("observer saw %v", got)
	}
}
