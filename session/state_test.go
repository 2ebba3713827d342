package session

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestState_Slots(t *testing.T) {
	s := New()
	if s.Selected() != 1 {
		t.Fatalf("default slot %d", s.Selected())
	}

	if _, _, err := s.SelectedData(); !errors.Is(err, ErrNoSlotData) {
		t.Fatalf("expected ErrNoSlotData, got %v", err)
	}

	data := []byte{1, 2, 3}
	if err := s.Put(3, data); err != nil {
		t.Fatal(err)
	}
	data[0] = 9 // Put must copy
	if err := s.Select(3); err != nil {
		t.Fatal(err)
	}
	n, got, err := s.SelectedData()
	if err != nil || n != 3 || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("slot %d data %x err %v", n, got, err)
	}

	filled := s.Filled()
	if !filled[3] || filled[1] || filled[2] || filled[4] {
		t.Fatalf("filled %v", filled)
	}

	for _, bad := range []int{0, 5, -1} {
		if err := s.Select(bad); !errors.Is(err, ErrBadSlot) {
			t.Errorf("Select(%d): %v", bad, err)
		}
		if err := s.Put(bad, data); !errors.Is(err, ErrBadSlot) {
			t.Errorf("Put(%d): %v", bad, err)
		}
		if s.Get(bad) != nil {
			t.Errorf("Get(%d) should be nil", bad)
		}
	}
	if s.Selected() != 3 {
		t.Fatal("bad select changed the selection")
	}
}

func TestState_LastMemoryCardAndROM(t *testing.T) {
	s := New()
	at := time.Unix(1700000000, 0)
	s.SetLastMemoryCard([]byte{0xAA}, at)
	card, when := s.LastMemoryCard()
	if !bytes.Equal(card, []byte{0xAA}) || !when.Equal(at) {
		t.Fatal("last memory card")
	}

	if s.ROM() != nil {
		t.Fatal("no rom expected")
	}
	s.SetROM(&ROM{Name: "game.bin", GameID: "hmbtn-1"})
	if s.ROM().Name != "game.bin" {
		t.Fatal("rom")
	}
}

func TestFileNames(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.UTC)

	tests := []struct {
		got, want string
	}{
		{Timestamp(at), "2024-03-09T14-05-07-123Z"},
		{SlotFileName(2), "memorycard_slot2.mcr"},
		{AutosaveFileName(at), "autosave_2024-03-09T14-05-07-123Z.mcr"},
		{FallbackFileName(4, at), "fallback_slot4_2024-03-09T14-05-07-123Z.mcr"},
		{StateFileName("boss fight", at), "boss fight.state"},
		{StateFileName("  ", at), "state_1709993107123.state"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestState_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.msgpack")

	s := New()
	_ = s.Put(1, []byte{0x10})
	_ = s.Put(4, bytes.Repeat([]byte{0xFF}, 1024))
	_ = s.Select(4)
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	r := New()
	_ = r.Put(2, []byte{0x99})
	if err := r.Load(path); err != nil {
		t.Fatal(err)
	}
	if r.Selected() != 4 {
		t.Fatalf("selected %d", r.Selected())
	}
	if !bytes.Equal(r.Get(1), []byte{0x10}) || len(r.Get(4)) != 1024 {
		t.Fatal("slots not restored")
	}
	if r.Get(2) != nil || r.Get(3) != nil {
		t.Fatal("load must replace every slot")
	}
}

func TestState_LoadMissing(t *testing.T) {
	err := New().Load(filepath.Join(t.TempDir(), "missing"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestState_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad")
	if err := os.WriteFile(path, []byte{0xC1, 0x00}, 0644); err != nil {
		t.Fatal(err)
	}
	if err := New().Load(path); err == nil {
		t.Fatal("expected error")
	}
}
