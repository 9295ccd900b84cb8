package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dsa110/mnc/pkg/antenna"
	"github.com/dsa110/mnc/pkg/store"
)

func (a *app) antCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ant N [status | move EL | noise a|b|ab on|off]",
		Short: "Show antenna N's monitor point or send it a command",
		Long: `Show antenna N's monitor point (/mon/ant/N), or write a command to
/cmd/ant/N. Antenna 0 addresses every antenna.

Examples:
  dsactl ant 24
  dsactl ant 0 move 71.6
  dsactl ant 5 noise ab off`,
		Args: cobra.RangeArgs(1, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("antenna number %q: %w", args[0], err)
			}
			action := "status"
			if len(args) > 1 {
				action = args[1]
			}
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				ant, err := antenna.New(st, n)
				if err != nil {
					return err
				}
				return a.antAction(cmd.Context(), ant, action, args[2:])
			})
		},
	}
}

func (a *app) antAction(ctx context.Context, ant *antenna.Antenna, action string, args []string) error {
	switch action {
	case "status":
		if len(args) != 0 {
			return fmt.Errorf("status takes no arguments")
		}
		v, err := ant.Status(ctx)
		if err != nil {
			return err
		}
		return a.printValue(v, true)

	case "move":
		if len(args) != 1 {
			return fmt.Errorf("move needs an elevation in degrees")
		}
		el, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("elevation %q: %w", args[0], err)
		}
		if err := ant.Move(ctx, el); err != nil {
			return err
		}
		a.printf("%s: move %g\n", ant.Key(), el)
		return nil

	case "noise":
		if len(args) != 2 {
			return fmt.Errorf("noise needs a diode (a, b or ab) and on or off")
		}
		var on bool
		switch args[1] {
		case "on":
			on = true
		case "off":
		default:
			return fmt.Errorf("noise state %q: want on or off", args[1])
		}
		var err error
		switch args[0] {
		case "a":
			err = ant.NoiseA(ctx, on)
		case "b":
			err = ant.NoiseB(ctx, on)
		case "ab":
			err = ant.NoiseAB(ctx, on)
		default:
			return fmt.Errorf("noise diode %q: want a, b or ab", args[0])
		}
		if err != nil {
			return err
		}
		a.printf("%s: noise %s %s\n", ant.Key(), args[0], args[1])
		return nil
	}
	return fmt.Errorf("unknown antenna action %q", action)
}
