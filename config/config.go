// Package config loads psxvault settings from a TOML file and PSXVAULT_*
// environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"psxvault/bridge"
	"psxvault/emulator"
	"psxvault/engine"
	"psxvault/memcard/mcduino"
	"psxvault/util"
	"psxvault/util/env"
)

type Config struct {
	ListenHost  string
	ListenPort  int
	BrowserHost string

	// RPCAddr is where the gRPC service listens; empty disables it.
	RPCAddr string

	MemoryCardTimeout time.Duration
	StateTimeout      time.Duration

	BootAttempts int
	BootInterval time.Duration

	SessionPath string

	Core     string
	DataPath string

	SerialPort string
	SerialBaud int

	LogLevel string

	// Mock runs an in-memory emulator instead of waiting for a browser.
	Mock bool
}

func Default() Config {
	return Config{
		ListenHost:        "0.0.0.0",
		ListenPort:        27640,
		BrowserHost:       "127.0.0.1",
		RPCAddr:           "127.0.0.1:27641",
		MemoryCardTimeout: bridge.DefaultTimeouts.MemoryCard,
		StateTimeout:      bridge.DefaultTimeouts.State,
		BootAttempts:      emulator.DefaultBootConfig().MaxAttempts,
		BootInterval:      emulator.DefaultBootConfig().InitialDelay,
		SessionPath:       DefaultSessionPath(),
		Core:              emulator.DefaultCore,
		DataPath:          emulator.DefaultDataPath,
		SerialBaud:        mcduino.DefaultBaudRate,
		LogLevel:          "info",
	}
}

// DefaultSessionPath is session.msgpack under the user config directory.
func DefaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "psxvault", "session.msgpack")
}

// DefaultPath is where the config file is looked for when none is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "psxvault.toml"
	}
	return filepath.Join(dir, "psxvault", "psxvault.toml")
}

type fileConfig struct {
	ListenHost   string `toml:"listen_host"`
	ListenPort   int    `toml:"listen_port"`
	BrowserHost  string `toml:"browser_host"`
	RPCAddr      string `toml:"rpc_addr"`
	McrTimeout   string `toml:"mcr_timeout"`
	StateTimeout string `toml:"state_timeout"`
	BootAttempts int    `toml:"boot_attempts"`
	BootInterval string `toml:"boot_interval"`
	SlotCount    int    `toml:"slot_count"`
	SessionPath  string `toml:"session_path"`
	Core         string `toml:"core"`
	DataPath     string `toml:"data_path"`
	SerialPort   string `toml:"serial_port"`
	SerialBaud   int    `toml:"serial_baud"`
	LogLevel     string `toml:"log_level"`
	Mock         bool   `toml:"mock"`
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("listen_host") {
		cfg.ListenHost = strings.TrimSpace(raw.ListenHost)
	}
	if meta.IsDefined("listen_port") {
		cfg.ListenPort = raw.ListenPort
	}
	if meta.IsDefined("browser_host") {
		cfg.BrowserHost = strings.TrimSpace(raw.BrowserHost)
	}
	if meta.IsDefined("rpc_addr") {
		cfg.RPCAddr = strings.TrimSpace(raw.RPCAddr)
	}
	if meta.IsDefined("mcr_timeout") {
		if cfg.MemoryCardTimeout, err = parseDuration("mcr_timeout", raw.McrTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("state_timeout") {
		if cfg.StateTimeout, err = parseDuration("state_timeout", raw.StateTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("boot_attempts") {
		cfg.BootAttempts = raw.BootAttempts
	}
	if meta.IsDefined("boot_interval") {
		if cfg.BootInterval, err = parseDuration("boot_interval", raw.BootInterval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("slot_count") && raw.SlotCount != 4 {
		return Config{}, fmt.Errorf("load config: slot_count is fixed at 4, got %d", raw.SlotCount)
	}
	if meta.IsDefined("session_path") {
		cfg.SessionPath = strings.TrimSpace(raw.SessionPath)
	}
	if meta.IsDefined("core") {
		cfg.Core = strings.TrimSpace(raw.Core)
	}
	if meta.IsDefined("data_path") {
		cfg.DataPath = strings.TrimSpace(raw.DataPath)
	}
	if meta.IsDefined("serial_port") {
		cfg.SerialPort = strings.TrimSpace(raw.SerialPort)
	}
	if meta.IsDefined("serial_baud") {
		cfg.SerialBaud = raw.SerialBaud
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("mock") {
		cfg.Mock = raw.Mock
	}

	return cfg, cfg.Validate()
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// ApplyEnv overrides cfg from PSXVAULT_* variables found through lookup.
func (c *Config) ApplyEnv(lookup env.Lookup) error {
	lookup.String("PSXVAULT_WEB_LISTEN_HOST", &c.ListenHost)
	lookup.String("PSXVAULT_WEB_BROWSER_HOST", &c.BrowserHost)
	lookup.String("PSXVAULT_RPC_ADDR", &c.RPCAddr)
	lookup.String("PSXVAULT_SESSION", &c.SessionPath)
	lookup.String("PSXVAULT_CORE", &c.Core)
	lookup.String("PSXVAULT_DATA_PATH", &c.DataPath)
	lookup.String("PSXVAULT_SERIAL_PORT", &c.SerialPort)
	lookup.String("PSXVAULT_LOG_LEVEL", &c.LogLevel)

	for _, err := range []error{
		lookup.Int("PSXVAULT_WEB_LISTEN_PORT", &c.ListenPort),
		lookup.Int("PSXVAULT_BOOT_ATTEMPTS", &c.BootAttempts),
		lookup.Int("PSXVAULT_SERIAL_BAUD", &c.SerialBaud),
		lookup.Duration("PSXVAULT_MCR_TIMEOUT", &c.MemoryCardTimeout),
		lookup.Duration("PSXVAULT_STATE_TIMEOUT", &c.StateTimeout),
		lookup.Duration("PSXVAULT_BOOT_INTERVAL", &c.BootInterval),
	} {
		if err != nil {
			return err
		}
	}

	if v, ok := lookup("PSXVAULT_MOCK"); ok {
		c.Mock = util.IsTruthy(v)
	}
	return c.Validate()
}

func (c Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.ListenPort)
	}
	if c.MemoryCardTimeout <= 0 || c.StateTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.BootAttempts <= 0 {
		return fmt.Errorf("config: boot attempts must be positive")
	}
	if c.BootInterval <= 0 {
		return fmt.Errorf("config: boot interval must be positive")
	}
	return nil
}

func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// BrowserURL is the address handed to the browser and the emulator.
func (c Config) BrowserURL() string {
	return fmt.Sprintf("http://%s/", net.JoinHostPort(c.BrowserHost, strconv.Itoa(c.ListenPort)))
}

// Engine derives the view model settings.
func (c Config) Engine() engine.Config {
	boot := emulator.DefaultBootConfig()
	boot.MaxAttempts = c.BootAttempts
	boot.InitialDelay = c.BootInterval

	return engine.Config{
		PublicURL: c.BrowserURL(),
		Timeouts: bridge.Timeouts{
			MemoryCard: c.MemoryCardTimeout,
			State:      c.StateTimeout,
		},
		Boot:        boot,
		Core:        c.Core,
		DataPath:    c.DataPath,
		SessionPath: c.SessionPath,
	}
}
