package engine

import (
	"strings"

	"psxvault/bridge"
	"psxvault/emulator"
)

type Config struct {
	// PublicURL is the base URL the emulator fetches games from, ending in '/'.
	PublicURL string

	Timeouts bridge.Timeouts
	Boot     emulator.BootConfig

	Core     string
	DataPath string

	// SessionPath persists the memory-card slots when non-empty.
	SessionPath string
}

func DefaultConfig() Config {
	return Config{
		PublicURL: "http://127.0.0.1:27640/",
		Timeouts:  bridge.DefaultTimeouts,
		Boot:      emulator.DefaultBootConfig(),
		Core:      emulator.DefaultCore,
		DataPath:  emulator.DefaultDataPath,
	}
}

func (c Config) romURL(gameID string) string {
	base := c.PublicURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "rom/" + gameID
}
