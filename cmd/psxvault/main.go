// Command psxvault serves the PlayStation save manager web UI and the
// emulator bridge, and drives MemCARDuino readers and remote vaults.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/skratchdot/open-golang/open"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"psxvault/config"
	"psxvault/util"
	"psxvault/util/env"
)

// Set via ldflags at build time.
var (
	version = "0.1.0"
	commit  = "unknown"
)

func main() {
	initConsole()

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "psxvault",
		Usage:          "PlayStation memory card and save state manager for EmulatorJS",
		Version:        fmt.Sprintf("%s (commit: %s)", version, commit),
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the TOML config file",
				EnvVars: []string{"PSXVAULT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			serveCommand(),
			cardCommand(),
			portsCommand(),
			remoteCommand(),
			versionCommand(),
		},
	}
}

// exitErrHandler keeps the exit code of cli.Exit errors.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// loadConfig layers the config file, PSXVAULT_* variables and flags, in
// that order.
func loadConfig(c *cli.Context, lookup env.Lookup) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		path = config.DefaultPath()
	} else if _, err := os.Stat(path); err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err = cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("listen-host") {
		cfg.ListenHost = c.String("listen-host")
	}
	if c.IsSet("listen-port") {
		cfg.ListenPort = c.Int("listen-port")
	}
	if c.IsSet("browser-host") {
		cfg.BrowserHost = c.String("browser-host")
	}
	if c.IsSet("rpc-addr") {
		cfg.RPCAddr = c.String("rpc-addr")
	}
	if c.IsSet("session") {
		cfg.SessionPath = c.String("session")
	}
	if c.IsSet("mock") {
		cfg.Mock = c.Bool("mock")
	}
	if c.IsSet("port") {
		cfg.SerialPort = c.String("port")
	}
	if c.IsSet("baud") {
		cfg.SerialBaud = c.Int("baud")
	}

	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) *util.PanicSafeLogger {
	level, ok := util.ParseLevel(cfg.LogLevel)
	logger := util.NewPanicSafeLogger("psxvault", level)
	if !ok {
		logger.Sugar().Warnf("main: unknown log level %q, using %s", cfg.LogLevel, level)
	}
	return logger
}

func openWebUI(browserURL string, log *zap.SugaredLogger) {
	if err := open.Start(browserURL); err != nil {
		log.Warnf("main: open browser: %v", err)
	}
}
