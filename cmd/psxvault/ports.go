package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"psxvault/memcard/mcduino"
)

func portsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ports",
		Usage: "List serial ports that may host a MemCARDuino reader",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print JSON"},
		},
		Action: func(c *cli.Context) error {
			ports, err := mcduino.Ports()
			if err != nil {
				return cli.Exit(fmt.Sprintf("list ports: %v", err), 1)
			}
			return printPorts(c, ports)
		},
	}
}

func printPorts(c *cli.Context, ports []mcduino.Port) error {
	w := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ports)
	}

	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tUSB\tVID:PID\tSERIAL\tBOARD\t")
	for _, p := range ports {
		usb, id, board := "no", "", p.Description
		if p.IsUSB {
			usb = "yes"
			id = p.VID + ":" + p.PID
		}
		if p.Likely {
			board += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", p.Name, usb, id, p.Serial, board)
	}
	return tw.Flush()
}
