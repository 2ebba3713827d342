package engine

import (
	"context"
	"fmt"

	"psxvault/bridge"
	"psxvault/interfaces"
	"psxvault/session"
)

type StateViewModel struct {
	commands map[string]interfaces.Command

	c *ViewModel
}

type stateView struct {
	SaveStrategy string `json:"saveStrategy"`
	LoadStrategy string `json:"loadStrategy"`
}

func (v *StateViewModel) ViewModel() interface{} {
	caps := v.c.capabilities()
	return stateView{
		SaveStrategy: caps.Strategy(bridge.StateExport).String(),
		LoadStrategy: caps.Strategy(bridge.StateImport).String(),
	}
}

func (v *StateViewModel) CommandFor(command string) (ce interfaces.Command, err error) {
	var ok bool
	ce, ok = v.commands[command]
	if !ok {
		err = fmt.Errorf("no command '%s' found", command)
	}
	return
}

func NewStateViewModel(c *ViewModel) *StateViewModel {
	v := &StateViewModel{
		c: c,
	}

	v.commands = map[string]interfaces.Command{
		"save": &StateSaveCommand{v},
		"load": &StateLoadCommand{v},
	}

	return v
}

// Commands:

type StateSaveCommand struct{ v *StateViewModel }

type StateSaveCommandArgs struct {
	Name string `json:"name"`
}

func (ce *StateSaveCommand) CreateArgs() interfaces.CommandArgs { return &StateSaveCommandArgs{} }
func (ce *StateSaveCommand) Execute(args interfaces.CommandArgs) error {
	name := args.(*StateSaveCommandArgs).Name
	ce.v.c.background("save state", func(ctx context.Context) error {
		_, err := ce.v.c.SaveState(ctx, name)
		return err
	})
	return nil
}

type StateLoadCommand struct{ v *StateViewModel }

func (ce *StateLoadCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (ce *StateLoadCommand) Execute(args interfaces.CommandArgs) error {
	data, ok := args.([]byte)
	if !ok {
		return fmt.Errorf("state: load is a binary command")
	}
	ce.v.c.background("load state", func(ctx context.Context) error {
		return ce.v.c.LoadState(ctx, data)
	})
	return nil
}

// Operations:

// ExportState asks the emulator for a save state snapshot.
func (vm *ViewModel) ExportState(ctx context.Context) ([]byte, error) {
	data, ok := vm.capabilities().Export(ctx, bridge.StateExport)
	if !ok || len(data) == 0 {
		return nil, ErrUnavailable
	}
	return data, nil
}

// SaveState offers a snapshot from the emulator as <name>.state.
func (vm *ViewModel) SaveState(ctx context.Context, name string) (*interfaces.Download, error) {
	file := session.StateFileName(name, vm.now())
	vm.Status("Requesting save state %s from the emulator...", file)

	data, err := vm.ExportState(ctx)
	if err != nil {
		vm.Status("Could not create a save state; the core may not support it.")
		return nil, err
	}

	dl := vm.offer(file, data)
	vm.Status("State saved: %s", file)
	return dl, nil
}

// LoadState hands a save state to the emulator.
func (vm *ViewModel) LoadState(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyData
	}

	if !vm.capabilities().Import(ctx, bridge.StateImport, data) {
		vm.Status("Could not load the state; the core may not support it.")
		return ErrNotAccepted
	}
	vm.Status("State sent to the emulator.")
	return nil
}
