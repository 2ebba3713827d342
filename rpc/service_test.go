package rpc

import (
	"bytes"
	"context"
	"net"
	"testing"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"psxvault/engine"
	"psxvault/interfaces"
	"psxvault/session"
)

type fakeEngine struct {
	card     []byte
	state    []byte
	slot     int
	imported []byte
	loaded   []byte
}

func (f *fakeEngine) ExportMemoryCard(context.Context) ([]byte, error) {
	if f.card == nil {
		return nil, engine.ErrUnavailable
	}
	return f.card, nil
}

func (f *fakeEngine) ImportMemoryCard(_ context.Context, data []byte) (bool, error) {
	if len(data) == 0 {
		return false, engine.ErrEmptyData
	}
	f.imported = data
	return true, nil
}

func (f *fakeEngine) ExportState(context.Context) ([]byte, error) {
	if f.state == nil {
		return nil, engine.ErrUnavailable
	}
	return f.state, nil
}

func (f *fakeEngine) LoadState(_ context.Context, data []byte) error {
	if f.state == nil {
		return engine.ErrNotAccepted
	}
	f.loaded = data
	return nil
}

func (f *fakeEngine) SelectSlot(n int) error {
	if n < 1 || n > session.SlotCount {
		return session.ErrBadSlot
	}
	f.slot = n
	return nil
}

func (f *fakeEngine) ExportSlot() (*interfaces.Download, error) {
	if f.imported == nil {
		return nil, session.ErrNoSlotData
	}
	return &interfaces.Download{Name: "memorycard_slot1.mcr", Data: f.imported}, nil
}

func newClient(t *testing.T, e Engine) *VaultClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewServer(e, zaptest.NewLogger(t).Sugar())
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cc, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	return NewVaultClient(cc)
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if status.Code(err) != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestVault_MemoryCard(t *testing.T) {
	e := &fakeEngine{}
	c := newClient(t, e)
	ctx := context.Background()

	_, err := c.ExportMemoryCard(ctx)
	wantCode(t, err, codes.Unavailable)

	e.card = []byte{0x4D, 0x43}
	got, err := c.ExportMemoryCard(ctx)
	if err != nil || !bytes.Equal(got, e.card) {
		t.Fatalf("export: %x %v", got, err)
	}

	_, err = c.ExportSlot(ctx)
	wantCode(t, err, codes.FailedPrecondition)

	accepted, err := c.ImportMemoryCard(ctx, []byte{1, 2, 3})
	if err != nil || !accepted {
		t.Fatalf("import: %v %v", accepted, err)
	}
	got, err = c.ExportSlot(ctx)
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("export slot: %x %v", got, err)
	}

	_, err = c.ImportMemoryCard(ctx, nil)
	wantCode(t, err, codes.InvalidArgument)
}

func TestVault_State(t *testing.T) {
	e := &fakeEngine{}
	c := newClient(t, e)
	ctx := context.Background()

	_, err := c.SaveState(ctx)
	wantCode(t, err, codes.Unavailable)
	wantCode(t, c.LoadState(ctx, []byte{1}), codes.Unavailable)

	e.state = []byte{0x00, 0xFF}
	got, err := c.SaveState(ctx)
	if err != nil || !bytes.Equal(got, e.state) {
		t.Fatalf("save: %x %v", got, err)
	}
	if err = c.LoadState(ctx, []byte{9}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(e.loaded, []byte{9}) {
		t.Fatal("state not loaded")
	}
}

func TestVault_SelectSlot(t *testing.T) {
	e := &fakeEngine{}
	c := newClient(t, e)

	if err := c.SelectSlot(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if e.slot != 3 {
		t.Fatalf("slot %d", e.slot)
	}
	wantCode(t, c.SelectSlot(context.Background(), 9), codes.InvalidArgument)
}

func TestToStatus_Context(t *testing.T) {
	wantCode(t, toStatus(context.DeadlineExceeded), codes.DeadlineExceeded)
	wantCode(t, toStatus(context.Canceled), codes.Canceled)
}
