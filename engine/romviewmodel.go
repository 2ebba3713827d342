package engine

import (
	"context"
	"fmt"
	"sync"

	"psxvault/emulator"
	"psxvault/interfaces"
	"psxvault/rom"
	"psxvault/session"
)

type ROMViewModel struct {
	commands map[string]interfaces.Command

	c *ViewModel

	lock sync.Mutex
	name string // filename provided by the view ahead of the data
}

type romView struct {
	IsLoaded bool   `json:"isLoaded"`
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Hash     string `json:"hash"`
	GameID   string `json:"gameId"`
	URL      string `json:"url"`
}

func (v *ROMViewModel) ViewModel() interface{} {
	r := v.c.state.ROM()
	if r == nil {
		return romView{}
	}
	return romView{
		IsLoaded: true,
		Name:     r.Name,
		Size:     r.Size,
		Hash:     fmt.Sprintf("%016x", r.Hash),
		GameID:   r.GameID,
		URL:      r.URL,
	}
}

func (v *ROMViewModel) CommandFor(command string) (ce interfaces.Command, err error) {
	var ok bool
	ce, ok = v.commands[command]
	if !ok {
		err = fmt.Errorf("no command '%s' found", command)
	}
	return
}

func NewROMViewModel(c *ViewModel) *ROMViewModel {
	v := &ROMViewModel{
		c: c,
	}

	v.commands = map[string]interfaces.Command{
		"name": &ROMNameCommand{v},
		"data": &ROMDataCommand{v},
	}

	return v
}

// Commands:

type ROMNameCommand struct{ v *ROMViewModel }

type ROMNameCommandArgs struct {
	Name string `json:"name"`
}

func (ce *ROMNameCommand) CreateArgs() interfaces.CommandArgs { return &ROMNameCommandArgs{} }
func (ce *ROMNameCommand) Execute(args interfaces.CommandArgs) error {
	return ce.v.NameProvided(args.(*ROMNameCommandArgs))
}

func (v *ROMViewModel) NameProvided(args *ROMNameCommandArgs) error {
	v.lock.Lock()
	v.name = args.Name
	v.lock.Unlock()
	return nil
}

type ROMDataCommand struct{ v *ROMViewModel }

func (ce *ROMDataCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (ce *ROMDataCommand) Execute(args interfaces.CommandArgs) error {
	data, ok := args.([]byte)
	if !ok {
		return fmt.Errorf("rom: data is a binary command")
	}
	return ce.v.DataProvided(data)
}

func (v *ROMViewModel) DataProvided(data []byte) error {
	v.lock.Lock()
	name := v.name
	v.lock.Unlock()

	v.c.background("load rom", func(ctx context.Context) error {
		return v.c.LoadROM(ctx, name, data)
	})
	return nil
}

// LoadROM unpacks the game, publishes it for the emulator to fetch and boots
// the emulator with it.
func (vm *ViewModel) LoadROM(ctx context.Context, name string, contents []byte) error {
	r, err := rom.New(name, contents)
	if err != nil {
		vm.Status("Could not load ROM %s: %v", name, err)
		return err
	}

	opts := emulator.NewOptions("", vm.now())
	opts.GameURL = vm.cfg.romURL(opts.GameID)
	if vm.cfg.Core != "" {
		opts.Core = vm.cfg.Core
	}
	if vm.cfg.DataPath != "" {
		opts.DataPath = vm.cfg.DataPath
	}

	vm.romLock.Lock()
	vm.rom = r
	vm.romGameID = opts.GameID
	vm.romLock.Unlock()

	vm.state.SetROM(&session.ROM{
		Name:   r.Name,
		Size:   len(r.Contents),
		Hash:   r.Hash,
		GameID: opts.GameID,
		URL:    opts.GameURL,
	})
	vm.NotifyView("rom", vm.romViewModel)
	vm.Status("Starting emulator with ROM %s.", r.Name)

	return vm.boot(ctx, opts)
}

func (vm *ViewModel) boot(ctx context.Context, opts emulator.Options) error {
	err := emulator.Boot(ctx, vm.globals, opts, vm.cfg.Boot, vm.log)

	// the emulator defines its entry points once started:
	vm.reselect(err == nil)
	vm.NotifyView("emulator", vm.emulatorViewModel)
	vm.NotifyView("state", vm.stateViewModel)

	if err != nil {
		vm.Status("Emulator did not start: %v", err)
		return err
	}
	vm.Status("Emulator started with %s.", opts.GameURL)
	return nil
}

// ROMContents implements interfaces.ROMProvider.
func (vm *ViewModel) ROMContents(gameID string) (name string, contents []byte, ok bool) {
	vm.romLock.Lock()
	defer vm.romLock.Unlock()
	if vm.rom == nil || vm.romGameID != gameID {
		return "", nil, false
	}
	return vm.rom.Name, vm.rom.Contents, true
}
