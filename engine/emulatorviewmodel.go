package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"psxvault/bridge"
	"psxvault/emulator"
	"psxvault/interfaces"
)

type EmulatorViewModel struct {
	commands map[string]interfaces.Command

	c *ViewModel
}

type emulatorView struct {
	Started    bool              `json:"started"`
	Core       string            `json:"core"`
	DataPath   string            `json:"pathToData"`
	Targets    []string          `json:"targets"`
	EntryNames []string          `json:"entryPoints"`
	Strategies map[string]string `json:"strategies"`
}

func (v *EmulatorViewModel) ViewModel() interface{} {
	c := v.c
	c.capsLock.Lock()
	caps, started := c.caps, c.started
	c.capsLock.Unlock()

	m := emulatorView{
		Started:    started,
		Core:       c.cfg.Core,
		DataPath:   c.cfg.DataPath,
		Targets:    make([]string, 0, 2),
		EntryNames: c.globals.Names(),
		Strategies: make(map[string]string, len(bridge.AllCapabilities)),
	}
	for _, t := range c.bridge.Targets() {
		m.Targets = append(m.Targets, t.Name())
	}
	for _, cp := range bridge.AllCapabilities {
		m.Strategies[cp.String()] = caps.Strategy(cp).String()
	}
	return m
}

func (v *EmulatorViewModel) CommandFor(command string) (ce interfaces.Command, err error) {
	var ok bool
	ce, ok = v.commands[command]
	if !ok {
		err = fmt.Errorf("no command '%s' found", command)
	}
	return
}

func NewEmulatorViewModel(c *ViewModel) *EmulatorViewModel {
	v := &EmulatorViewModel{
		c: c,
	}

	v.commands = map[string]interfaces.Command{
		"boot":    &EmulatorBootCommand{v},
		"refresh": &EmulatorRefreshCommand{v},
	}

	return v
}

// Init picks strategies again from the entry points defined while wiring up.
func (v *EmulatorViewModel) Init() {
	v.c.capsLock.Lock()
	started := v.c.started
	v.c.capsLock.Unlock()
	v.c.reselect(started)
}

// Commands:

type EmulatorBootCommand struct{ v *EmulatorViewModel }

func (ce *EmulatorBootCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (ce *EmulatorBootCommand) Execute(_ interfaces.CommandArgs) error {
	ce.v.c.background("boot", ce.v.c.Reboot)
	return nil
}

// EmulatorRefreshCommand republishes the emulator view, e.g. after a frame
// connects to the bridge.
type EmulatorRefreshCommand struct{ v *EmulatorViewModel }

func (ce *EmulatorRefreshCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (ce *EmulatorRefreshCommand) Execute(_ interfaces.CommandArgs) error {
	ce.v.c.NotifyView("emulator", ce.v)
	return nil
}

// Reboot starts the emulator again with the loaded ROM.
func (vm *ViewModel) Reboot(ctx context.Context) error {
	desc := vm.state.ROM()
	if desc == nil {
		vm.Status("Load a ROM first.")
		return fmt.Errorf("engine: no rom loaded")
	}

	opts := emulator.Options{
		Player:   emulator.DefaultPlayer,
		Core:     vm.cfg.Core,
		GameURL:  desc.URL,
		DataPath: vm.cfg.DataPath,
		GameID:   desc.GameID,
	}
	if opts.Core == "" {
		opts.Core = emulator.DefaultCore
	}
	if opts.DataPath == "" {
		opts.DataPath = emulator.DefaultDataPath
	}
	return vm.boot(ctx, opts)
}

// background runs op off the view's socket; its outcome is reported through
// the status view.
func (vm *ViewModel) background(what string, op func(ctx context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				vm.log.Errorf("viewmodel: %s paniced with %v\n%s", what, r, debug.Stack())
			}
		}()

		if err := op(context.Background()); err != nil {
			vm.log.Warnf("viewmodel: %s: %v", what, err)
		}
	}()
}

// TargetsChanged republishes the emulator view when relay sockets come and go.
func (vm *ViewModel) TargetsChanged(count int) {
	vm.log.Debugf("viewmodel: %d emulator targets", count)
	vm.NotifyView("emulator", vm.emulatorViewModel)
}
