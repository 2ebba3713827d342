package session

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp formats t as an ISO-8601 UTC millisecond timestamp safe for file
// names: ':' and '.' become '-'.
func Timestamp(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	return strings.ReplaceAll(ts, ".", "-")
}

func SlotFileName(slot int) string {
	return fmt.Sprintf("memorycard_slot%d.mcr", slot)
}

func AutosaveFileName(t time.Time) string {
	return "autosave_" + Timestamp(t) + ".mcr"
}

func FallbackFileName(slot int, t time.Time) string {
	return fmt.Sprintf("fallback_slot%d_%s.mcr", slot, Timestamp(t))
}

// StateFileName returns "<name>.state", defaulting name to state_<unix ms>.
func StateFileName(name string, t time.Time) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("state_%d", t.UnixMilli())
	}
	return name + ".state"
}
