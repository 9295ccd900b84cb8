package commands

import (
	"github.com/spf13/cobra"

	"github.com/dsa110/mnc/pkg/cnf"
	"github.com/dsa110/mnc/pkg/store"
)

func (a *app) cnfCmd() *cobra.Command {
	var (
		remote   bool
		keysFile string
	)
	registry := func(st *store.Store) (*cnf.Registry, error) {
		opts := cnf.Options{Remote: remote, Store: st, Logger: a.log}
		if keysFile != "" {
			keys, err := cnf.LoadKeys(keysFile)
			if err != nil {
				return nil, err
			}
			opts.Keys = keys
		}
		return cnf.New(opts)
	}

	cmd := &cobra.Command{
		Use:   "cnf",
		Short: "Read subsystem configuration",
	}
	cmd.PersistentFlags().BoolVar(&remote, "remote", false, "read /cnf/<name> from the store instead of the built-in table")
	cmd.PersistentFlags().StringVar(&keysFile, "keys", "", "YAML file mapping subsystem names to keys")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known subsystem names and their keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				r, err := registry(st)
				if err != nil {
					return err
				}
				for _, name := range r.List() {
					key, _ := r.Key(name)
					a.printf("%s\t%s\n", name, key)
				}
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "get NAME",
		Short: "Print one subsystem's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				r, err := registry(st)
				if err != nil {
					return err
				}
				v, err := r.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printValue(v, true)
			})
		},
	}, &cobra.Command{
		Use:   "publish",
		Short: "Write the built-in table to /cnf/<name> for every subsystem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				r, err := registry(st)
				if err != nil {
					return err
				}
				n, err := r.Publish(cmd.Context())
				if err != nil {
					return err
				}
				a.printf("published %d\n", n)
				return nil
			})
		},
	})
	return cmd
}
