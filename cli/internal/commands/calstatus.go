package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dsa110/mnc/pkg/calstatus"
)

func (a *app) calstatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calstatus",
		Short: "Decode and encode calibration status words",
	}

	decode := &cobra.Command{
		Use:   "decode CODE",
		Short: "Print the conditions set in CODE (decimal or 0x hex)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			a.printf("0x%08x\t%s\n", uint32(code), code)
			return nil
		},
	}

	var from string
	encode := &cobra.Command{
		Use:   "encode NAME...",
		Short: "Print the status word with the named conditions set",
		Long: `Print the status word with the named conditions set. Names outside the
catalog set unknown_err and are reported on standard error.

Examples:
  dsactl calstatus encode inv_antnum inv_pol
  dsactl calstatus encode --from 0x10 fringes_err`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var current calstatus.Code
			if from != "" {
				c, err := parseCode(from)
				if err != nil {
					return err
				}
				current = c
			}
			for _, n := range calstatus.Unknown(args...) {
				fmt.Fprintf(a.opts.Err, "dsactl: unknown condition %q\n", n)
			}
			code := calstatus.Encode(current, args...)
			a.printf("0x%08x\t%d\n", uint32(code), uint32(code))
			return nil
		},
	}
	encode.Flags().StringVar(&from, "from", "", "status word to add the conditions to")

	names := &cobra.Command{
		Use:   "names",
		Short: "List every condition name in bit order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printf("%s\n", strings.Join(calstatus.Names(), "\n"))
			return nil
		},
	}

	cmd.AddCommand(decode, encode, names)
	return cmd
}

func parseCode(s string) (calstatus.Code, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("status word %q is not a 32-bit unsigned integer", s)
	}
	return calstatus.Code(n), nil
}
