package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"psxvault/bridge"
	"psxvault/emulator"
	"psxvault/interfaces"
	"psxvault/rom"
	"psxvault/session"
)

// CardReader is a hardware memory-card reader.
type CardReader interface {
	ReadCard(ctx context.Context) ([]byte, error)
	WriteCard(ctx context.Context, data []byte) error
}

type ViewModel struct {
	log *zap.SugaredLogger
	cfg Config
	now func() time.Time

	// state:
	state   *session.State
	bridge  *bridge.Bridge
	globals *emulator.Globals

	capsLock sync.Mutex
	caps     *bridge.Capabilities
	started  bool

	romLock   sync.Mutex
	rom       *rom.ROM
	romGameID string

	reader    CardReader
	downloads *Downloads

	unsubscribe func()

	// dependency that notifies view of updated view model:
	viewNotifier interfaces.ViewNotifier

	// View Models:
	viewModels     map[string]interface{}
	viewModelsLock sync.Mutex
	handlers       map[string]interfaces.ViewModelCommandHandler

	romViewModel      *ROMViewModel
	memcardViewModel  *MemoryCardViewModel
	stateViewModel    *StateViewModel
	emulatorViewModel *EmulatorViewModel
}

func NewViewModel(cfg Config, b *bridge.Bridge, globals *emulator.Globals, log *zap.SugaredLogger) *ViewModel {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	vm := &ViewModel{
		log:       log,
		cfg:       cfg,
		now:       time.Now,
		state:     session.New(),
		bridge:    b,
		globals:   globals,
		downloads: NewDownloads(),
	}

	// instantiate each child view model:
	vm.romViewModel = NewROMViewModel(vm)
	vm.memcardViewModel = NewMemoryCardViewModel(vm)
	vm.stateViewModel = NewStateViewModel(vm)
	vm.emulatorViewModel = NewEmulatorViewModel(vm)

	// assign unique names to each view for easy binding with html/js UI:
	vm.viewModels = map[string]interface{}{
		"status":   "Interface ready. Load a ROM to start the emulator.",
		"rom":      vm.romViewModel,
		"memcard":  vm.memcardViewModel,
		"state":    vm.stateViewModel,
		"emulator": vm.emulatorViewModel,
	}
	vm.handlers = map[string]interfaces.ViewModelCommandHandler{
		"rom":      vm.romViewModel,
		"memcard":  vm.memcardViewModel,
		"state":    vm.stateViewModel,
		"emulator": vm.emulatorViewModel,
	}

	vm.caps = bridge.Select(b, globals, cfg.Timeouts)

	return vm
}

// Init loads the persisted session, starts observing the emulator and
// publishes every view model.
func (vm *ViewModel) Init() {
	if vm.cfg.SessionPath != "" {
		err := vm.state.Load(vm.cfg.SessionPath)
		if err != nil && !os.IsNotExist(err) {
			vm.log.Warnf("viewmodel: load session: %v", err)
		}
	}

	vm.unsubscribe = vm.bridge.Subscribe(vm.observe)

	for _, h := range vm.handlers {
		if i, ok := h.(interfaces.Initializable); ok {
			i.Init()
		}
	}
	vm.UpdateAndNotifyView()
}

func (vm *ViewModel) Close() {
	if vm.unsubscribe != nil {
		vm.unsubscribe()
		vm.unsubscribe = nil
	}
	vm.saveSession()
}

func (vm *ViewModel) Session() *session.State { return vm.state }

func (vm *ViewModel) Downloads() *Downloads { return vm.downloads }

func (vm *ViewModel) ProvideViewNotifier(viewNotifier interfaces.ViewNotifier) {
	vm.viewNotifier = viewNotifier
}

func (vm *ViewModel) ProvideCardReader(reader CardReader) {
	vm.reader = reader
	vm.UpdateAndNotifyView()
}

// observe caches memory cards the emulator sends on its own.
func (vm *ViewModel) observe(e bridge.Envelope) {
	switch e.Type {
	case bridge.TypeExportMcr:
		data, err := e.Data()
		if err != nil || len(data) == 0 {
			return
		}
		vm.state.SetLastMemoryCard(data, vm.now())
		vm.Status("Received memory card from the emulator (%d bytes).", len(data))
		vm.NotifyView("memcard", vm.memcardViewModel)
	case bridge.TypeExportState:
		if data, err := e.Data(); err != nil || len(data) == 0 {
			return
		}
		vm.Status("Received save state from the emulator.")
	}
}

func (vm *ViewModel) capabilities() *bridge.Capabilities {
	vm.capsLock.Lock()
	defer vm.capsLock.Unlock()
	return vm.caps
}

// reselect picks strategies again; the emulator defines its entry points
// when it starts.
func (vm *ViewModel) reselect(started bool) {
	caps := bridge.Select(vm.bridge, vm.globals, vm.cfg.Timeouts)
	vm.capsLock.Lock()
	vm.caps = caps
	vm.started = started
	vm.capsLock.Unlock()
}

// Status shows a one-line message in the view and logs it.
func (vm *ViewModel) Status(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	vm.log.Info(msg)
	vm.NotifyView("status", msg)
}

func (vm *ViewModel) saveSession() {
	if vm.cfg.SessionPath == "" {
		return
	}
	if err := vm.state.Save(vm.cfg.SessionPath); err != nil {
		vm.log.Warnf("viewmodel: save session: %v", err)
	}
}

func (vm *ViewModel) offer(name string, data []byte) *interfaces.Download {
	dl := vm.downloads.Offer(name, data)
	vm.NotifyView("download", dl)
	return dl
}

func (vm *ViewModel) GetViewModel(view string) (interface{}, bool) {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	viewModel, ok := vm.viewModels[view]
	return viewModel, ok
}

func (vm *ViewModel) NotifyView(view string, model interface{}) {
	vm.viewModelsLock.Lock()

	// allow model to customize the instance to be stored as a view model:
	viewModel := model
	if viewModeler, ok := model.(interfaces.ViewModeler); ok {
		viewModel = viewModeler.ViewModel()
	}

	// cache the viewModel for new websocket connections so they get the updates on first connect;
	// downloads are one-shot and are not replayed:
	if view != "download" {
		vm.viewModels[view] = viewModel
	}

	vn := vm.viewNotifier
	vm.viewModelsLock.Unlock()

	// notify downstream if applicable:
	if vn == nil {
		return
	}
	vn.NotifyView(view, viewModel)
}

func (vm *ViewModel) NotifyViewTo(viewNotifier interfaces.ViewNotifier) {
	if viewNotifier == nil {
		return
	}

	vm.viewModelsLock.Lock()
	snapshot := make(map[string]interface{}, len(vm.viewModels))
	for view, model := range vm.viewModels {
		snapshot[view] = model
	}
	vm.viewModelsLock.Unlock()

	// send all view models to this notifier:
	for view, model := range snapshot {
		viewNotifier.NotifyView(view, model)
	}
}

// refreshes all view models and notifies view:
func (vm *ViewModel) UpdateAndNotifyView() {
	for view, h := range vm.handlers {
		vm.NotifyView(view, h)
	}
}

// Implements ViewCommandHandler
func (vm *ViewModel) CommandFor(view, command string) (ce interfaces.Command, err error) {
	h, ok := vm.handlers[view]
	if !ok {
		err = fmt.Errorf("no view model '%s' found", view)
		return
	}

	ce, err = h.CommandFor(command)
	return
}
