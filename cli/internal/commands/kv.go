package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

// ErrNotFound is returned by get when the key does not exist.
var ErrNotFound = errors.New("key not found")

func (a *app) getCmd() *cobra.Command {
	var allow bool
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the JSON value at KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				v, ok, err := st.Get(cmd.Context(), key, store.AllowNonFinite(allow))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: %w", key, ErrNotFound)
				}
				return a.printValue(v, allow)
			})
		},
	}
	cmd.Flags().BoolVar(&allow, "allow-non-finite", true, "accept and print NaN and Infinity")
	return cmd
}

func (a *app) putCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "put KEY JSON",
		Short: "Write a JSON value to KEY",
		Long: `Write a JSON value to KEY. JSON "-" reads the value from standard input.

With --strict (the default) NaN and Infinity are rejected; --strict=false
stores them as bare tokens.

Examples:
  dsactl put /cmd/ant/0 '{"cmd":"move","val":45.0}'
  dsactl put --strict=false /mon/beb/1 '{"pd_current":NaN}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, raw := args[0], args[1]
			data := []byte(raw)
			if raw == "-" {
				var err error
				if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			v, err := types.Unmarshal(data, !strict)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				return st.Put(cmd.Context(), key, v, store.Strict(strict))
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", true, "reject NaN and Infinity")
	return cmd
}

func (a *app) delCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:     "del KEY",
		Aliases: []string{"rm"},
		Short:   "Delete KEY, or every key under it with -r",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				n, err := st.Delete(cmd.Context(), args[0], recursive)
				if err != nil {
					return err
				}
				a.printf("deleted %d\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "delete every key with KEY as prefix")
	return cmd
}

func (a *app) lsCmd() *cobra.Command {
	var keysOnly bool
	cmd := &cobra.Command{
		Use:   "ls [PREFIX]",
		Short: "List keys under PREFIX (default /mon/)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := store.MonPrefix
			if len(args) == 1 {
				prefix = args[0]
			}
			if !strings.HasPrefix(prefix, "/") {
				return fmt.Errorf("prefix %q must start with /", prefix)
			}
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				entries, err := st.List(cmd.Context(), prefix, store.AllowNonFinite(true))
				if err != nil && entries == nil {
					return err
				}
				for _, e := range entries {
					if keysOnly {
						a.printf("%s\n", e.Key)
						continue
					}
					data, merr := types.Marshal(e.Value, true)
					if merr != nil {
						return merr
					}
					a.printf("%s\t%s\n", e.Key, data)
				}
				for _, e := range multierr.Errors(err) {
					fmt.Fprintf(a.opts.Err, "dsactl: %v\n", e)
				}
				if err != nil {
					return fmt.Errorf("%d keys under %s could not be decoded", len(multierr.Errors(err)), prefix)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&keysOnly, "keys", "k", false, "print key names only")
	return cmd
}

func (a *app) printValue(v types.Value, allow bool) error {
	data, err := types.Marshal(v, allow)
	if err != nil {
		return err
	}
	a.printf("%s\n", data)
	return nil
}
