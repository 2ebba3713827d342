package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// ExportFunc is an in-process entry point returning an opaque payload.
type ExportFunc func(ctx context.Context) ([]byte, error)

// ImportFunc is an in-process entry point applying an opaque payload.
type ImportFunc func(ctx context.Context, payload []byte) error

// EntryPoints resolves in-process entry points by their agreed names.
type EntryPoints interface {
	Exporter(name string) (ExportFunc, bool)
	Importer(name string) (ImportFunc, bool)
}

// Strategy is how a capability reaches the emulator.
type Strategy int

const (
	// CrossContext goes through the broadcast message protocol.
	CrossContext Strategy = iota
	// InProcess calls a same-context entry point directly.
	InProcess
)

func (s Strategy) String() string {
	switch s {
	case InProcess:
		return "in-process"
	case CrossContext:
		return "cross-context"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

type Capability int

const (
	MemoryCardExport Capability = iota
	MemoryCardImport
	StateExport
	StateImport
)

var AllCapabilities = []Capability{MemoryCardExport, MemoryCardImport, StateExport, StateImport}

var capabilityNames = map[Capability]string{
	MemoryCardExport: "memory card export",
	MemoryCardImport: "memory card import",
	StateExport:      "state export",
	StateImport:      "state import",
}

func (c Capability) String() string {
	if s, ok := capabilityNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Capability(%d)", int(c))
}

// EntryPoint is the fixed name of the in-process function for c.
func (c Capability) EntryPoint() string {
	switch c {
	case MemoryCardExport:
		return "EJS_exportMcr"
	case MemoryCardImport:
		return "EJS_importMcr"
	case StateExport:
		return "EJS_exportState"
	case StateImport:
		return "EJS_importState"
	}
	return ""
}

func (c Capability) IsExport() bool {
	return c == MemoryCardExport || c == StateExport
}

// Tags returns the message types used on the cross-context path. For imports
// response is empty.
func (c Capability) Tags() (request, response MessageType) {
	switch c {
	case MemoryCardExport:
		return TypeRequestMcr, TypeExportMcr
	case StateExport:
		return TypeRequestState, TypeExportState
	case MemoryCardImport:
		return TypeImportMcr, ""
	case StateImport:
		return TypeImportState, ""
	}
	return "", ""
}

type Timeouts struct {
	MemoryCard time.Duration
	State      time.Duration
}

var DefaultTimeouts = Timeouts{
	MemoryCard: 3000 * time.Millisecond,
	State:      5000 * time.Millisecond,
}

func (t Timeouts) For(c Capability) time.Duration {
	if c == StateExport || c == StateImport {
		return t.State
	}
	return t.MemoryCard
}

type selection struct {
	strategy Strategy
	export   ExportFunc
	apply    ImportFunc
}

// Capabilities holds the strategy chosen for each capability. Selection
// happens once in Select; operations never probe for entry points again.
type Capabilities struct {
	b        *Bridge
	timeouts Timeouts
	selected map[Capability]selection
}

// Select picks a strategy per capability: InProcess when entries defines the
// capability's entry point, CrossContext otherwise. entries may be nil.
func Select(b *Bridge, entries EntryPoints, timeouts Timeouts) *Capabilities {
	c := &Capabilities{
		b:        b,
		timeouts: timeouts,
		selected: make(map[Capability]selection, len(AllCapabilities)),
	}

	for _, cp := range AllCapabilities {
		s := selection{strategy: CrossContext}
		if entries != nil {
			if cp.IsExport() {
				if fn, ok := entries.Exporter(cp.EntryPoint()); ok && fn != nil {
					s = selection{strategy: InProcess, export: fn}
				}
			} else {
				if fn, ok := entries.Importer(cp.EntryPoint()); ok && fn != nil {
					s = selection{strategy: InProcess, apply: fn}
				}
			}
		}
		c.selected[cp] = s
		b.log.Infof("bridge: %s uses %s", cp, s.strategy)
	}

	return c
}

func (c *Capabilities) Strategy(cp Capability) Strategy {
	return c.selected[cp].strategy
}

// Export obtains the payload for an export capability. A failing direct call
// is logged and followed by the cross-context request.
func (c *Capabilities) Export(ctx context.Context, cp Capability) ([]byte, bool) {
	if !cp.IsExport() {
		c.b.log.Errorf("bridge: %s is not an export capability", cp)
		return nil, false
	}

	s := c.selected[cp]
	if s.strategy == InProcess {
		data, err := callExport(ctx, s.export)
		if err == nil && len(data) == 0 {
			err = fmt.Errorf("%s returned no data", cp.EntryPoint())
		}
		if err == nil {
			c.b.log.Infof("bridge: %s via %s (%d bytes)", cp, cp.EntryPoint(), len(data))
			return data, true
		}
		c.b.log.Warnf("bridge: %s via %s failed; falling back to messages: %v", cp, cp.EntryPoint(), err)
	}

	request, response := cp.Tags()
	return c.b.Request(ctx, request, response, c.timeouts.For(cp))
}

// Import hands payload to the emulator and reports whether anything accepted
// it. Memory cards are always pushed to message targets as well as to the
// direct entry point; states stop at a successful direct call.
func (c *Capabilities) Import(ctx context.Context, cp Capability, payload []byte) bool {
	if cp.IsExport() {
		c.b.log.Errorf("bridge: %s is not an import capability", cp)
		return false
	}

	tag, _ := cp.Tags()
	s := c.selected[cp]

	pushed := 0
	if cp == MemoryCardImport {
		pushed = c.b.Push(tag, payload)
	}

	if s.strategy == InProcess {
		err := callImport(ctx, s.apply, payload)
		if err == nil {
			c.b.log.Infof("bridge: %s via %s (%d bytes)", cp, cp.EntryPoint(), len(payload))
			return true
		}
		c.b.log.Warnf("bridge: %s via %s failed; falling back to messages: %v", cp, cp.EntryPoint(), err)
	}

	if cp != MemoryCardImport {
		pushed = c.b.Push(tag, payload)
	}
	return pushed > 0
}

func callExport(ctx context.Context, fn ExportFunc) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entry point panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

func callImport(ctx context.Context, fn ImportFunc, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entry point panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, payload)
}
