package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"psxvault/bridge"
	"psxvault/interfaces"
	"psxvault/session"
)

var (
	ErrEmptyData    = errors.New("engine: no data provided")
	ErrUnavailable  = errors.New("engine: emulator did not respond")
	ErrNotAccepted  = errors.New("engine: emulator did not accept the data")
	ErrNoCardReader = errors.New("engine: no memory card reader configured")
)

type MemoryCardViewModel struct {
	commands map[string]interfaces.Command

	c *ViewModel
}

type slotView struct {
	Slot   int  `json:"slot"`
	Filled bool `json:"filled"`
	Size   int  `json:"size"`
}

type memcardView struct {
	Selected  int        `json:"selected"`
	Slots     []slotView `json:"slots"`
	CanExport bool       `json:"canExport"`

	// last card the emulator sent us:
	LastSize int    `json:"lastSize"`
	LastAt   string `json:"lastAt,omitempty"`

	HasReader bool `json:"hasReader"`
}

func (v *MemoryCardViewModel) ViewModel() interface{} {
	st := v.c.state
	m := memcardView{
		Selected:  st.Selected(),
		Slots:     make([]slotView, 0, session.SlotCount),
		HasReader: v.c.reader != nil,
	}
	for i := 1; i <= session.SlotCount; i++ {
		data := st.Get(i)
		m.Slots = append(m.Slots, slotView{Slot: i, Filled: data != nil, Size: len(data)})
	}
	m.CanExport = m.Slots[m.Selected-1].Filled

	last, at := st.LastMemoryCard()
	if last != nil {
		m.LastSize = len(last)
		m.LastAt = at.UTC().Format(time.RFC3339)
	}
	return m
}

func (v *MemoryCardViewModel) CommandFor(command string) (ce interfaces.Command, err error) {
	var ok bool
	ce, ok = v.commands[command]
	if !ok {
		err = fmt.Errorf("no command '%s' found", command)
	}
	return
}

func NewMemoryCardViewModel(c *ViewModel) *MemoryCardViewModel {
	v := &MemoryCardViewModel{
		c: c,
	}

	v.commands = map[string]interfaces.Command{
		"select":   &SlotSelectCommand{v},
		"import":   &MemoryCardImportCommand{v},
		"export":   &MemoryCardExportCommand{v},
		"autosave": &MemoryCardAutoSaveCommand{v},
		"dump":     &MemoryCardDumpCommand{v},
		"write":    &MemoryCardWriteCommand{v},
	}

	return v
}

// Commands:

type SlotSelectCommand struct{ v *MemoryCardViewModel }

type SlotSelectCommandArgs struct {
	Slot int `json:"slot"`
}

func (ce *SlotSelectCommand) CreateArgs() interfaces.CommandArgs { return &SlotSelectCommandArgs{} }
func (ce *SlotSelectCommand) Execute(args interfaces.CommandArgs) error {
	return ce.v.c.SelectSlot(args.(*SlotSelectCommandArgs).Slot)
}

type MemoryCardImportCommand struct{ v *MemoryCardViewModel }

func (ce *MemoryCardImportCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (ce *MemoryCardImportCommand) Execute(args interfaces.CommandArgs) error {
	data, ok := args.([]byte)
	if !ok {
		return fmt.Errorf("memcard: import is a binary command")
	}
	_, err := ce.v.c.ImportMemoryCard(context.Background(), data)
	return err
}

type MemoryCardExportCommand struct{ v *MemoryCardViewModel }

func (ce *MemoryCardExportCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (ce *MemoryCardExportCommand) Execute(_ interfaces.CommandArgs) error {
	_, err := ce.v.c.ExportSlot()
	return err
}

type MemoryCardAutoSaveCommand struct{ v *MemoryCardViewModel }

func (ce *MemoryCardAutoSaveCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (ce *MemoryCardAutoSaveCommand) Execute(_ interfaces.CommandArgs) error {
	ce.v.c.background("autosave", func(ctx context.Context) error {
		_, err := ce.v.c.AutoSave(ctx)
		return err
	})
	return nil
}

type MemoryCardDumpCommand struct{ v *MemoryCardViewModel }

func (ce *MemoryCardDumpCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (ce *MemoryCardDumpCommand) Execute(_ interfaces.CommandArgs) error {
	if ce.v.c.reader == nil {
		return ErrNoCardReader
	}
	ce.v.c.background("dump card", ce.v.c.DumpCard)
	return nil
}

type MemoryCardWriteCommand struct{ v *MemoryCardViewModel }

func (ce *MemoryCardWriteCommand) CreateArgs() interfaces.CommandArgs { return nil }
func (ce *MemoryCardWriteCommand) Execute(_ interfaces.CommandArgs) error {
	if ce.v.c.reader == nil {
		return ErrNoCardReader
	}
	ce.v.c.background("write card", ce.v.c.WriteCard)
	return nil
}

// Operations:

func (vm *ViewModel) SelectSlot(n int) error {
	if err := vm.state.Select(n); err != nil {
		return err
	}
	vm.log.Debugf("viewmodel: selected slot %d", n)
	vm.NotifyView("memcard", vm.memcardViewModel)
	return nil
}

// ImportMemoryCard stores data in the selected slot and hands it to the
// emulator. The card stays in the slot even when the emulator does not take it.
func (vm *ViewModel) ImportMemoryCard(ctx context.Context, data []byte) (accepted bool, err error) {
	if len(data) == 0 {
		return false, ErrEmptyData
	}

	slot := vm.state.Selected()
	if err = vm.state.Put(slot, data); err != nil {
		return false, err
	}
	vm.saveSession()
	vm.NotifyView("memcard", vm.memcardViewModel)

	accepted = vm.capabilities().Import(ctx, bridge.MemoryCardImport, data)
	if accepted {
		vm.Status("Imported memory card into slot %d and sent it to the emulator.", slot)
	} else {
		vm.Status("Imported memory card into slot %d; the emulator may not have picked it up.", slot)
	}
	return accepted, nil
}

// ExportSlot offers the selected slot as memorycard_slot<N>.mcr.
func (vm *ViewModel) ExportSlot() (*interfaces.Download, error) {
	slot, data, err := vm.state.SelectedData()
	if err != nil {
		vm.Status("No memory card in slot %d.", slot)
		return nil, err
	}

	dl := vm.offer(session.SlotFileName(slot), data)
	vm.Status("Exported memory card from slot %d.", slot)
	return dl, nil
}

// ExportMemoryCard asks the emulator for its current memory card.
func (vm *ViewModel) ExportMemoryCard(ctx context.Context) ([]byte, error) {
	data, ok := vm.capabilities().Export(ctx, bridge.MemoryCardExport)
	if !ok || len(data) == 0 {
		return nil, ErrUnavailable
	}
	vm.state.SetLastMemoryCard(data, vm.now())
	vm.NotifyView("memcard", vm.memcardViewModel)
	return data, nil
}

// AutoSave offers the emulator's memory card as autosave_<ts>.mcr. When the
// emulator does not answer, the selected slot is offered as
// fallback_slot<N>_<ts>.mcr instead.
func (vm *ViewModel) AutoSave(ctx context.Context) (*interfaces.Download, error) {
	vm.Status("Requesting memory card from the emulator...")

	data, err := vm.ExportMemoryCard(ctx)
	if err == nil {
		name := session.AutosaveFileName(vm.now())
		dl := vm.offer(name, data)
		vm.Status("Memory card exported: %s", name)
		return dl, nil
	}

	slot, data, serr := vm.state.SelectedData()
	if serr == nil {
		dl := vm.offer(session.FallbackFileName(slot, vm.now()), data)
		vm.Status("Emulator did not respond; exported backup of slot %d.", slot)
		return dl, nil
	}

	vm.Status("Could not export the memory card from the emulator. Import a .mcr file or check that the core supports it.")
	return nil, fmt.Errorf("%w and slot %d is empty; import a memory card first", ErrUnavailable, slot)
}

// DumpCard reads a card from the hardware reader into the selected slot.
func (vm *ViewModel) DumpCard(ctx context.Context) error {
	if vm.reader == nil {
		return ErrNoCardReader
	}

	vm.Status("Reading memory card from the reader...")
	data, err := vm.reader.ReadCard(ctx)
	if err != nil {
		vm.Status("Could not read the memory card: %v", err)
		return err
	}
	_, err = vm.ImportMemoryCard(ctx, data)
	return err
}

// WriteCard writes the selected slot to the hardware reader.
func (vm *ViewModel) WriteCard(ctx context.Context) error {
	if vm.reader == nil {
		return ErrNoCardReader
	}

	slot, data, err := vm.state.SelectedData()
	if err != nil {
		vm.Status("No memory card in slot %d.", slot)
		return err
	}

	vm.Status("Writing slot %d to the memory card reader...", slot)
	if err = vm.reader.WriteCard(ctx, data); err != nil {
		vm.Status("Could not write the memory card: %v", err)
		return err
	}
	vm.Status("Wrote slot %d to the memory card.", slot)
	return nil
}
