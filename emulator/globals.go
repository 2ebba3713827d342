// Package emulator models the emulator's same-context surface: the named
// entry points it may define and the boot sequence that starts it.
package emulator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"psxvault/bridge"
)

// StartFunc starts the emulator with the given options.
type StartFunc func(opts Options) error

const StartEntryPoint = "EJS_start"

// Globals is a registry of named entry points. An emulator adapter living in
// the same process defines them; the controller probes them by name.
type Globals struct {
	lock    sync.RWMutex
	entries map[string]interface{}
}

func NewGlobals() *Globals {
	return &Globals{entries: make(map[string]interface{})}
}

// Define makes fn available under name. fn must be a StartFunc,
// bridge.ExportFunc or bridge.ImportFunc (or a func literal of one of those
// shapes). Defining the same name twice replaces the previous entry.
func (g *Globals) Define(name string, fn interface{}) error {
	switch fn.(type) {
	case StartFunc, func(Options) error,
		bridge.ExportFunc, func(context.Context) ([]byte, error),
		bridge.ImportFunc, func(context.Context, []byte) error:
	default:
		return fmt.Errorf("emulator: define %s: unsupported entry point type %T", name, fn)
	}

	g.lock.Lock()
	defer g.lock.Unlock()
	g.entries[name] = fn
	return nil
}

func (g *Globals) Undefine(name string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	delete(g.entries, name)
}

// Names returns the sorted list of defined entry points.
func (g *Globals) Names() []string {
	g.lock.RLock()
	defer g.lock.RUnlock()
	list := make([]string, 0, len(g.entries))
	for name := range g.entries {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

func (g *Globals) lookup(name string) (interface{}, bool) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	fn, ok := g.entries[name]
	return fn, ok
}

func (g *Globals) Starter() (StartFunc, bool) {
	fn, ok := g.lookup(StartEntryPoint)
	if !ok {
		return nil, false
	}
	switch f := fn.(type) {
	case StartFunc:
		return f, true
	case func(Options) error:
		return f, true
	}
	return nil, false
}

// Exporter implements bridge.EntryPoints.
func (g *Globals) Exporter(name string) (bridge.ExportFunc, bool) {
	fn, ok := g.lookup(name)
	if !ok {
		return nil, false
	}
	switch f := fn.(type) {
	case bridge.ExportFunc:
		return f, true
	case func(context.Context) ([]byte, error):
		return f, true
	}
	return nil, false
}

// Importer implements bridge.EntryPoints.
func (g *Globals) Importer(name string) (bridge.ImportFunc, bool) {
	fn, ok := g.lookup(name)
	if !ok {
		return nil, false
	}
	switch f := fn.(type) {
	case bridge.ImportFunc:
		return f, true
	case func(context.Context, []byte) error:
		return f, true
	}
	return nil, false
}
