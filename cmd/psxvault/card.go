package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"psxvault/config"
	"psxvault/memcard/mcduino"
	"psxvault/util/env"
)

func cardFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "port", Usage: "serial port; detected when empty"},
		&cli.IntFlag{Name: "baud", Usage: "baud rate"},
	}
}

func cardCommand() *cli.Command {
	return &cli.Command{
		Name:  "card",
		Usage: "Read or write a physical memory card with a MemCARDuino reader",
		Subcommands: []*cli.Command{
			{
				Name:      "dump",
				Usage:     "Read the whole card into a .mcr file",
				ArgsUsage: "<file.mcr>",
				Flags:     cardFlags(),
				Action:    cardDumpAction,
			},
			{
				Name:      "write",
				Usage:     "Write a .mcr file onto the card",
				ArgsUsage: "<file.mcr>",
				Flags:     cardFlags(),
				Action:    cardWriteAction,
			},
		},
	}
}

// withReader opens the configured or detected reader and runs op with it.
func withReader(c *cli.Context, op func(ctx context.Context, r *mcduino.Reader, path string, log *zap.SugaredLogger) error) error {
	if c.NArg() != 1 {
		return cli.Exit(fmt.Sprintf("usage: psxvault card %s %s", c.Command.Name, c.Command.ArgsUsage), 2)
	}

	cfg, err := loadConfig(c, env.OS)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	logger := newLogger(cfg)
	defer logger.Close()
	log := logger.Sugar()

	r, err := openReader(cfg, log.Named("mcduino"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer r.Close()

	last := -1
	r.Progress = func(n int) {
		if pct := n * 100 / mcduino.FrameCount; pct/10 != last/10 {
			last = pct
			log.Infof("card: %d%%", pct)
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	if err = op(ctx, r, c.Args().First(), log); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func openReader(cfg config.Config, log *zap.SugaredLogger) (*mcduino.Reader, error) {
	if cfg.SerialPort == "" {
		return mcduino.Detect(cfg.SerialBaud, log)
	}
	return mcduino.Open(cfg.SerialPort, cfg.SerialBaud, log)
}

func cardDumpAction(c *cli.Context) error {
	return withReader(c, func(ctx context.Context, r *mcduino.Reader, path string, log *zap.SugaredLogger) error {
		data, err := r.ReadCard(ctx)
		if err != nil {
			return err
		}
		if err = os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		log.Infof("card: wrote %d bytes to '%s'", len(data), path)
		return nil
	})
}

func cardWriteAction(c *cli.Context) error {
	return withReader(c, func(ctx context.Context, r *mcduino.Reader, path string, log *zap.SugaredLogger) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if len(data) != mcduino.CardSize {
			return fmt.Errorf("'%s' is %d bytes, a memory card image is %d", path, len(data), mcduino.CardSize)
		}
		if err = r.WriteCard(ctx, data); err != nil {
			return err
		}
		log.Infof("card: wrote '%s' to the card", path)
		return nil
	})
}
