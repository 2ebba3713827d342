// Package mock provides an in-memory emulator that answers the bridge
// protocol, for testing and for running the UI without a real core.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"psxvault/bridge"
	"psxvault/emulator"
)

// MemoryCardSize is the size of a blank card image.
const MemoryCardSize = 128 * 1024

var ErrNotStarted = errors.New("mock: emulator not started")

// Emulator is a bridge.Target that keeps one memory card and one state.
type Emulator struct {
	name string
	b    *bridge.Bridge

	// Delay before answering a request.
	Delay time.Duration
	// Silent emulators never answer requests.
	Silent bool
	// Duplicate answers every request twice.
	Duplicate bool

	lock       sync.Mutex
	started    bool
	options    emulator.Options
	memoryCard []byte
	state      []byte
	received   []bridge.Envelope
}

func New(name string, b *bridge.Bridge) *Emulator {
	return &Emulator{
		name:       name,
		b:          b,
		memoryCard: make([]byte, MemoryCardSize),
	}
}

func (m *Emulator) Name() string { return m.name }

// Post receives a message from the host. Requests are answered back through
// the bridge on a separate goroutine, like a frame posting back to its parent.
func (m *Emulator) Post(e bridge.Envelope) error {
	m.lock.Lock()
	m.received = append(m.received, e)
	m.lock.Unlock()

	switch e.Type {
	case bridge.TypeRequestMcr:
		m.answer(bridge.TypeExportMcr, m.MemoryCard())
	case bridge.TypeRequestState:
		m.answer(bridge.TypeExportState, m.snapshot())
	case bridge.TypeImportMcr, bridge.TypeImportState:
		data, err := e.Data()
		if err != nil {
			return nil
		}
		m.lock.Lock()
		if e.Type == bridge.TypeImportMcr {
			m.memoryCard = data
		} else {
			m.state = data
		}
		m.lock.Unlock()
	}
	return nil
}

func (m *Emulator) answer(t bridge.MessageType, data []byte) {
	if m.Silent || m.b == nil {
		return
	}
	n := 1
	if m.Duplicate {
		n = 2
	}
	go func() {
		if m.Delay > 0 {
			time.Sleep(m.Delay)
		}
		for i := 0; i < n; i++ {
			m.b.Deliver(bridge.NewEnvelope(t, data))
		}
	}()
}

func (m *Emulator) snapshot() []byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state != nil {
		return append([]byte(nil), m.state...)
	}
	// a fresh state is a copy of the card plus the game id so successive
	// snapshots of different games differ:
	s := append([]byte(m.options.GameID), m.memoryCard...)
	return s
}

func (m *Emulator) MemoryCard() []byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]byte(nil), m.memoryCard...)
}

func (m *Emulator) SetMemoryCard(data []byte) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.memoryCard = append([]byte(nil), data...)
}

func (m *Emulator) State() []byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]byte(nil), m.state...)
}

func (m *Emulator) Options() (emulator.Options, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.options, m.started
}

// Received returns every envelope posted to the emulator.
func (m *Emulator) Received() []bridge.Envelope {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]bridge.Envelope(nil), m.received...)
}

// Define registers the emulator's start function and, when direct is true,
// the in-process import/export entry points.
func (m *Emulator) Define(g *emulator.Globals, direct bool) {
	_ = g.Define(emulator.StartEntryPoint, func(opts emulator.Options) error {
		m.lock.Lock()
		defer m.lock.Unlock()
		m.options = opts
		m.started = true
		return nil
	})
	if !direct {
		return
	}

	_ = g.Define(bridge.MemoryCardExport.EntryPoint(), func(context.Context) ([]byte, error) {
		if !m.isStarted() {
			return nil, ErrNotStarted
		}
		return m.MemoryCard(), nil
	})
	_ = g.Define(bridge.MemoryCardImport.EntryPoint(), func(_ context.Context, p []byte) error {
		if !m.isStarted() {
			return ErrNotStarted
		}
		m.SetMemoryCard(p)
		return nil
	})
	_ = g.Define(bridge.StateExport.EntryPoint(), func(context.Context) ([]byte, error) {
		if !m.isStarted() {
			return nil, ErrNotStarted
		}
		return m.snapshot(), nil
	})
	_ = g.Define(bridge.StateImport.EntryPoint(), func(_ context.Context, p []byte) error {
		if !m.isStarted() {
			return ErrNotStarted
		}
		m.lock.Lock()
		m.state = append([]byte(nil), p...)
		m.lock.Unlock()
		return nil
	})
}

func (m *Emulator) isStarted() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.started
}
