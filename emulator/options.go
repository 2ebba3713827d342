package emulator

import (
	"fmt"
	"time"
)

const (
	DefaultPlayer   = "#game"
	DefaultCore     = "psx"
	DefaultDataPath = "https://cdn.emulatorjs.org/latest/"
)

// Options are the settings handed to the emulator when it starts.
type Options struct {
	Player   string `json:"player"`
	Core     string `json:"core"`
	GameURL  string `json:"gameUrl"`
	DataPath string `json:"pathToData"`
	GameID   string `json:"gameId"`
}

// NewOptions fills in defaults for a game served at gameURL.
func NewOptions(gameURL string, now time.Time) Options {
	return Options{
		Player:   DefaultPlayer,
		Core:     DefaultCore,
		GameURL:  gameURL,
		DataPath: DefaultDataPath,
		GameID:   GameID(now),
	}
}

// GameID derives the per-load game identifier.
func GameID(now time.Time) string {
	return fmt.Sprintf("hmbtn-%d", now.UnixMilli())
}
