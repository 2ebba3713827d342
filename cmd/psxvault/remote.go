package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"psxvault/rpc"
	"psxvault/util/env"
)

func remoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Drive a running psxvault over its RPC service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc-addr", Usage: "address of the RPC service"},
			&cli.DurationFlag{Name: "timeout", Value: 15 * time.Second, Usage: "deadline for each call"},
		},
		Subcommands: []*cli.Command{
			{
				Name:      "mcr-export",
				Usage:     "Export the running emulator's memory card to a file",
				ArgsUsage: "<file.mcr>",
				Action: remoteAction(1, func(ctx context.Context, v *rpc.VaultClient, args cli.Args) error {
					data, err := v.ExportMemoryCard(ctx)
					if err != nil {
						return err
					}
					return os.WriteFile(args.First(), data, 0o644)
				}),
			},
			{
				Name:      "mcr-import",
				Usage:     "Import a memory card file into the selected slot and the emulator",
				ArgsUsage: "<file.mcr>",
				Action: remoteAction(1, func(ctx context.Context, v *rpc.VaultClient, args cli.Args) error {
					data, err := os.ReadFile(args.First())
					if err != nil {
						return err
					}
					accepted, err := v.ImportMemoryCard(ctx, data)
					if err != nil {
						return err
					}
					if !accepted {
						return fmt.Errorf("stored in the slot but no emulator accepted it")
					}
					return nil
				}),
			},
			{
				Name:      "state-save",
				Usage:     "Save the emulator state to a file",
				ArgsUsage: "<file.state>",
				Action: remoteAction(1, func(ctx context.Context, v *rpc.VaultClient, args cli.Args) error {
					data, err := v.SaveState(ctx)
					if err != nil {
						return err
					}
					return os.WriteFile(args.First(), data, 0o644)
				}),
			},
			{
				Name:      "state-load",
				Usage:     "Load a state file into the emulator",
				ArgsUsage: "<file.state>",
				Action: remoteAction(1, func(ctx context.Context, v *rpc.VaultClient, args cli.Args) error {
					data, err := os.ReadFile(args.First())
					if err != nil {
						return err
					}
					return v.LoadState(ctx, data)
				}),
			},
			{
				Name:      "select",
				Usage:     "Select the memory card slot (1-4)",
				ArgsUsage: "<slot>",
				Action: remoteAction(1, func(ctx context.Context, v *rpc.VaultClient, args cli.Args) error {
					n, err := strconv.Atoi(args.First())
					if err != nil {
						return fmt.Errorf("slot %q: %w", args.First(), err)
					}
					return v.SelectSlot(ctx, n)
				}),
			},
			{
				Name:      "slot-export",
				Usage:     "Write the selected slot's memory card to a file",
				ArgsUsage: "<file.mcr>",
				Action: remoteAction(1, func(ctx context.Context, v *rpc.VaultClient, args cli.Args) error {
					data, err := v.ExportSlot(ctx)
					if err != nil {
						return err
					}
					return os.WriteFile(args.First(), data, 0o644)
				}),
			},
		},
	}
}

type remoteOp func(ctx context.Context, v *rpc.VaultClient, args cli.Args) error

// remoteAction dials the configured RPC address and runs op with a deadline.
func remoteAction(nargs int, op remoteOp) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != nargs {
			return cli.Exit(fmt.Sprintf("usage: psxvault remote %s %s", c.Command.Name, c.Command.ArgsUsage), 2)
		}

		cfg, err := loadConfig(c, env.OS)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		if cfg.RPCAddr == "" {
			return cli.Exit("remote: no rpc address configured", 2)
		}

		cc, err := grpc.Dial(cfg.RPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return cli.Exit(fmt.Sprintf("remote: dial %s: %v", cfg.RPCAddr, err), 1)
		}
		defer cc.Close()

		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		if err = op(ctx, rpc.NewVaultClient(cc), c.Args()); err != nil {
			return cli.Exit(fmt.Sprintf("remote %s: %v", c.Command.Name, err), 1)
		}
		return nil
	}
}
