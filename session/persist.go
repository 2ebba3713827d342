package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

type snapshot struct {
	Version  int      `msgpack:"v"`
	Selected int      `msgpack:"selected"`
	Slots    [][]byte `msgpack:"slots"`
}

const snapshotVersion = 1

// Save writes the slots and selected slot to path.
func (s *State) Save(path string) error {
	s.lock.RLock()
	snap := snapshot{
		Version:  snapshotVersion,
		Selected: s.selected,
		Slots:    make([][]byte, SlotCount),
	}
	for i := 1; i <= SlotCount; i++ {
		snap.Slots[i-1] = s.slots[i]
	}
	s.lock.RUnlock()

	b, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("session: save: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("session: save: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Load restores slots from path. A missing file leaves the state untouched
// and returns an error satisfying os.IsNotExist.
func (s *State) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var snap snapshot
	if err := msgpack.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("session: load %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("session: load %s: unsupported version %d", path, snap.Version)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	for i := 1; i <= SlotCount; i++ {
		s.slots[i] = nil
		if i-1 < len(snap.Slots) {
			s.slots[i] = snap.Slots[i-1]
		}
	}
	if validSlot(snap.Selected) {
		s.selected = snap.Selected
	}
	return nil
}
