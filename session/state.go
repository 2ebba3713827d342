// Package session holds the controller's mutable state: the memory-card slots,
// the selected slot, the last card seen from the emulator and the loaded ROM.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// SlotCount is the number of memory-card slots. Slots are numbered from 1.
const SlotCount = 4

var (
	ErrNoSlotData = errors.New("session: no memory card in selected slot")
	ErrBadSlot    = errors.New("session: slot out of range")
)

// ROM describes the loaded game.
type ROM struct {
	Name   string
	Size   int
	Hash   uint64
	GameID string
	URL    string
}

type State struct {
	lock sync.RWMutex

	selected int
	slots    [SlotCount + 1][]byte

	lastMemoryCard   []byte
	lastMemoryCardAt time.Time

	rom *ROM
}

func New() *State {
	return &State{selected: 1}
}

func validSlot(n int) bool { return n >= 1 && n <= SlotCount }

func (s *State) Select(n int) error {
	if !validSlot(n) {
		return fmt.Errorf("%w: %d", ErrBadSlot, n)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.selected = n
	return nil
}

func (s *State) Selected() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.selected
}

// Put stores a copy of data in slot n.
func (s *State) Put(n int, data []byte) error {
	if !validSlot(n) {
		return fmt.Errorf("%w: %d", ErrBadSlot, n)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.slots[n] = append([]byte{}, data...)
	return nil
}

// Get returns slot n, or nil when it is empty.
func (s *State) Get(n int) []byte {
	if !validSlot(n) {
		return nil
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.slots[n]
}

// SelectedData returns the contents of the selected slot or ErrNoSlotData.
func (s *State) SelectedData() (int, []byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	data := s.slots[s.selected]
	if data == nil {
		return s.selected, nil, ErrNoSlotData
	}
	return s.selected, data, nil
}

// Filled reports which slots hold a card, indexed from 1.
func (s *State) Filled() [SlotCount + 1]bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var filled [SlotCount + 1]bool
	for i := 1; i <= SlotCount; i++ {
		filled[i] = s.slots[i] != nil
	}
	return filled
}

func (s *State) SetLastMemoryCard(data []byte, at time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastMemoryCard = data
	s.lastMemoryCardAt = at
}

func (s *State) LastMemoryCard() ([]byte, time.Time) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastMemoryCard, s.lastMemoryCardAt
}

func (s *State) SetROM(rom *ROM) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rom = rom
}

func (s *State) ROM() *ROM {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.rom
}
