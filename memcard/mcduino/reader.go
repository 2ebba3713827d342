// Package mcduino talks to a MemCARDuino-compatible memory card reader over a
// serial port. Frames are moved as raw bytes; nothing here looks inside them.
package mcduino

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	cmdGetID  = 0xA0
	cmdGetVer = 0xA1
	cmdRead   = 0xA2
	cmdWrite  = 0xA3

	statusGood        = 'G'
	statusBadChecksum = 'N'
	statusBadSector   = 0xFF

	identifier = "MCDINO"

	FrameSize  = 128
	FrameCount = 1024
	CardSize   = FrameSize * FrameCount

	DefaultBaudRate = 115200
)

var (
	ErrNotFound    = errors.New("mcduino: no reader found among serial ports")
	ErrIdentity    = errors.New("mcduino: device did not identify as a MemCARDuino")
	ErrBadChecksum = errors.New("mcduino: bad checksum")
	ErrBadSector   = errors.New("mcduino: bad sector")
	ErrCardSize    = fmt.Errorf("mcduino: card image must be %d bytes", CardSize)
)

type Reader struct {
	log  *zap.SugaredLogger
	port io.ReadWriteCloser

	lock sync.Mutex

	// Retries is how many times a frame is re-read or re-written after a
	// checksum failure.
	Retries int
	// Progress, when set, is called after each frame is transferred.
	Progress func(frame int)
}

// New wraps an already open port.
func New(port io.ReadWriteCloser, log *zap.SugaredLogger) *Reader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reader{log: log, port: port, Retries: 3}
}

// Open opens the reader on portName and checks that it identifies itself.
func Open(portName string, baud int, log *zap.SugaredLogger) (*Reader, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}

	f, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("mcduino: open %s: %w", portName, err)
	}

	if err = f.SetDTR(true); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mcduino: failed to set DTR: %w", err)
	}
	if t, ok := f.(interface{ SetReadTimeout(time.Duration) error }); ok {
		_ = t.SetReadTimeout(2 * time.Second)
	}

	// the board resets when the port opens:
	time.Sleep(2 * time.Second)

	r := New(f, log)
	version, err := r.Identify()
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.log.Infof("mcduino: %s is a MemCARDuino, firmware 0x%02x", portName, version)
	return r, nil
}

func (r *Reader) Close() error {
	if p, ok := r.port.(serial.Port); ok {
		_ = p.SetDTR(false)
	}
	if err := r.port.Close(); err != nil {
		return fmt.Errorf("mcduino: could not close serial port: %w", err)
	}
	return nil
}

func (r *Reader) send(buf []byte) error {
	sent := 0
	for sent < len(buf) {
		n, err := r.port.Write(buf[sent:])
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}

func (r *Reader) recv(rsp []byte) error {
	o := 0
	for o < len(rsp) {
		n, err := r.port.Read(rsp[o:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("mcduino: read timed out after %d of %d bytes", o, len(rsp))
		}
		o += n
	}
	return nil
}

// Identify checks the device identifier and returns its firmware version.
func (r *Reader) Identify() (version byte, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err = r.send([]byte{cmdGetID}); err != nil {
		return
	}
	id := make([]byte, len(identifier))
	if err = r.recv(id); err != nil {
		return 0, fmt.Errorf("mcduino: identify: %w", err)
	}
	if string(id) != identifier {
		return 0, fmt.Errorf("%w: got %q", ErrIdentity, id)
	}

	if err = r.send([]byte{cmdGetVer}); err != nil {
		return
	}
	v := make([]byte, 1)
	if err = r.recv(v); err != nil {
		return 0, fmt.Errorf("mcduino: version: %w", err)
	}
	return v[0], nil
}

func checksum(msb, lsb byte, data []byte) byte {
	c := msb ^ lsb
	for _, b := range data {
		c ^= b
	}
	return c
}

func frameAddress(n int) (msb, lsb byte) {
	return byte(n >> 8), byte(n)
}

func statusError(s byte) error {
	switch s {
	case statusGood:
		return nil
	case statusBadChecksum:
		return ErrBadChecksum
	case statusBadSector:
		return ErrBadSector
	}
	return fmt.Errorf("mcduino: unknown status 0x%02x", s)
}

// ReadFrame reads frame n (0-1023).
func (r *Reader) ReadFrame(n int) ([]byte, error) {
	if n < 0 || n >= FrameCount {
		return nil, fmt.Errorf("mcduino: frame %d out of range", n)
	}
	msb, lsb := frameAddress(n)

	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.send([]byte{cmdRead, msb, lsb}); err != nil {
		return nil, err
	}

	// [128] data, [1] checksum, [1] status
	rsp := make([]byte, FrameSize+2)
	if err := r.recv(rsp); err != nil {
		return nil, fmt.Errorf("mcduino: read frame %d: %w", n, err)
	}

	data, sum, st := rsp[:FrameSize], rsp[FrameSize], rsp[FrameSize+1]
	if err := statusError(st); err != nil {
		return nil, fmt.Errorf("mcduino: read frame %d: %w", n, err)
	}
	if checksum(msb, lsb, data) != sum {
		return nil, fmt.Errorf("mcduino: read frame %d: %w", n, ErrBadChecksum)
	}
	return data, nil
}

// WriteFrame writes data to frame n.
func (r *Reader) WriteFrame(n int, data []byte) error {
	if n < 0 || n >= FrameCount {
		return fmt.Errorf("mcduino: frame %d out of range", n)
	}
	if len(data) != FrameSize {
		return fmt.Errorf("mcduino: frame must be %d bytes, got %d", FrameSize, len(data))
	}
	msb, lsb := frameAddress(n)

	r.lock.Lock()
	defer r.lock.Unlock()

	cmd := make([]byte, 0, 3+FrameSize+1)
	cmd = append(cmd, cmdWrite, msb, lsb)
	cmd = append(cmd, data...)
	cmd = append(cmd, checksum(msb, lsb, data))
	if err := r.send(cmd); err != nil {
		return err
	}

	st := make([]byte, 1)
	if err := r.recv(st); err != nil {
		return fmt.Errorf("mcduino: write frame %d: %w", n, err)
	}
	if err := statusError(st[0]); err != nil {
		return fmt.Errorf("mcduino: write frame %d: %w", n, err)
	}
	return nil
}

// retry runs op until it succeeds, fails with something other than a bad
// checksum, or runs out of retries.
func (r *Reader) retry(n int, op func() error) (err error) {
	for attempt := 0; attempt <= r.Retries; attempt++ {
		if err = op(); err == nil || !errors.Is(err, ErrBadChecksum) {
			return
		}
		r.log.Debugf("mcduino: frame %d: %v; retrying", n, err)
	}
	return
}

// ReadCard reads the whole card. It implements engine.CardReader.
func (r *Reader) ReadCard(ctx context.Context) ([]byte, error) {
	card := make([]byte, 0, CardSize)
	for n := 0; n < FrameCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var frame []byte
		err := r.retry(n, func() (err error) {
			frame, err = r.ReadFrame(n)
			return
		})
		if err != nil {
			return nil, err
		}
		card = append(card, frame...)

		if r.Progress != nil {
			r.Progress(n)
		}
	}
	r.log.Infof("mcduino: read %d frames", FrameCount)
	return card, nil
}

// WriteCard writes a whole card image. It implements engine.CardReader.
func (r *Reader) WriteCard(ctx context.Context, data []byte) error {
	if len(data) != CardSize {
		return ErrCardSize
	}

	for n := 0; n < FrameCount; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame := data[n*FrameSize : (n+1)*FrameSize]
		if err := r.retry(n, func() error { return r.WriteFrame(n, frame) }); err != nil {
			return err
		}

		if r.Progress != nil {
			r.Progress(n)
		}
	}
	r.log.Infof("mcduino: wrote %d frames", FrameCount)
	return nil
}
