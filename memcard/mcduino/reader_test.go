package mcduino

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
)

// fakeDevice answers the serial protocol from an in-memory card.
type fakeDevice struct {
	lock sync.Mutex
	in   []byte
	out  bytes.Buffer

	id   string
	card []byte

	// frames that answer with a corrupted checksum this many times:
	corrupt map[int]int
	// frames that report a bad sector:
	bad map[int]bool
	// frames whose write reports a bad checksum this many times:
	rejectWrite map[int]int

	closed bool
}

func newFakeDevice() *fakeDevice {
	card := make([]byte, CardSize)
	for i := range card {
		card[i] = byte(i * 7)
	}
	return &fakeDevice{
		id:          identifier,
		card:        card,
		corrupt:     map[int]int{},
		bad:         map[int]bool{},
		rejectWrite: map[int]int{},
	}
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	// a timed out read returns nothing:
	return d.out.Read(p)
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.in = append(d.in, p...)
	d.process()
	return len(p), nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDevice) process() {
	for len(d.in) > 0 {
		switch d.in[0] {
		case cmdGetID:
			d.out.WriteString(d.id)
			d.in = d.in[1:]
		case cmdGetVer:
			d.out.WriteByte(0x08)
			d.in = d.in[1:]
		case cmdRead:
			if len(d.in) < 3 {
				return
			}
			msb, lsb := d.in[1], d.in[2]
			d.in = d.in[3:]
			n := int(msb)<<8 | int(lsb)
			data := d.card[n*FrameSize : (n+1)*FrameSize]
			d.out.Write(data)
			sum := checksum(msb, lsb, data)
			if d.corrupt[n] > 0 {
				d.corrupt[n]--
				sum ^= 0x01
			}
			d.out.WriteByte(sum)
			if d.bad[n] {
				d.out.WriteByte(statusBadSector)
			} else {
				d.out.WriteByte(statusGood)
			}
		case cmdWrite:
			if len(d.in) < 3+FrameSize+1 {
				return
			}
			msb, lsb := d.in[1], d.in[2]
			data := d.in[3 : 3+FrameSize]
			sum := d.in[3+FrameSize]
			d.in = d.in[3+FrameSize+1:]
			n := int(msb)<<8 | int(lsb)

			switch {
			case d.rejectWrite[n] > 0:
				d.rejectWrite[n]--
				d.out.WriteByte(statusBadChecksum)
			case checksum(msb, lsb, data) != sum:
				d.out.WriteByte(statusBadChecksum)
			default:
				copy(d.card[n*FrameSize:], data)
				d.out.WriteByte(statusGood)
			}
		default:
			// unknown byte; drop it like the firmware does
			d.in = d.in[1:]
		}
	}
}

func TestIdentify(t *testing.T) {
	d := newFakeDevice()
	r := New(d, zaptest.NewLogger(t).Sugar())

	v, err := r.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x08 {
		t.Fatalf("version 0x%02x", v)
	}

	d.id = "ARDUIN"
	if _, err = r.Identify(); !errors.Is(err, ErrIdentity) {
		t.Fatalf("expected ErrIdentity, got %v", err)
	}
}

func TestReadCard(t *testing.T) {
	d := newFakeDevice()
	d.corrupt[5] = 2
	r := New(d, zaptest.NewLogger(t).Sugar())

	frames := 0
	r.Progress = func(int) { frames++ }

	card, err := r.ReadCard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(card, d.card) {
		t.Fatal("card mismatch")
	}
	if frames != FrameCount {
		t.Fatalf("progress called %d times", frames)
	}
}

func TestReadFrame_Failures(t *testing.T) {
	d := newFakeDevice()
	r := New(d, zaptest.NewLogger(t).Sugar())

	d.bad[3] = true
	if _, err := r.ReadFrame(3); !errors.Is(err, ErrBadSector) {
		t.Fatalf("expected ErrBadSector, got %v", err)
	}

	d.corrupt[4] = 10
	if _, err := r.ReadCard(context.Background()); !errors.Is(err, ErrBadSector) {
		t.Fatalf("bad sector must stop the dump, got %v", err)
	}

	d.bad[3] = false
	r.Retries = 1
	if _, err := r.ReadCard(context.Background()); !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("expected ErrBadChecksum after retries, got %v", err)
	}

	if _, err := r.ReadFrame(FrameCount); err == nil {
		t.Fatal("out of range frame must fail")
	}
}

func TestReadFrame_Timeout(t *testing.T) {
	d := newFakeDevice()
	r := New(&silentPort{d}, zaptest.NewLogger(t).Sugar())
	if _, err := r.ReadFrame(0); err == nil {
		t.Fatal("expected timeout error")
	}
}

// silentPort never answers.
type silentPort struct{ *fakeDevice }

func (s *silentPort) Read(p []byte) (int, error)  { return 0, nil }
func (s *silentPort) Write(p []byte) (int, error) { return len(p), nil }

func TestWriteCard(t *testing.T) {
	d := newFakeDevice()
	d.rejectWrite[100] = 1
	r := New(d, zaptest.NewLogger(t).Sugar())

	img := bytes.Repeat([]byte{0x4D, 0x43}, CardSize/2)
	if err := r.WriteCard(context.Background(), img); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d.card, img) {
		t.Fatal("card not written")
	}

	if err := r.WriteCard(context.Background(), img[:10]); !errors.Is(err, ErrCardSize) {
		t.Fatalf("expected ErrCardSize, got %v", err)
	}
	if err := r.WriteFrame(0, []byte{1}); err == nil {
		t.Fatal("short frame must fail")
	}
}

func TestReadCard_ContextCancelled(t *testing.T) {
	d := newFakeDevice()
	r := New(d, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	r.Progress = func(n int) {
		if n == 10 {
			cancel()
		}
	}
	if _, err := r.ReadCard(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestChecksum(t *testing.T) {
	data := make([]byte, FrameSize)
	data[0] = 0x0F
	data[127] = 0xF0
	if got := checksum(0x01, 0x02, data); got != 0x01^0x02^0x0F^0xF0 {
		t.Fatalf("checksum 0x%02x", got)
	}
	msb, lsb := frameAddress(0x3FF)
	if msb != 0x03 || lsb != 0xFF {
		t.Fatalf("address %02x %02x", msb, lsb)
	}
}
