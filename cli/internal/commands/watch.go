package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		prefix bool
		count  int
	)
	cmd := &cobra.Command{
		Use:   "watch KEY",
		Short: "Print every change to KEY until interrupted",
		Long: `Print every change to KEY, one "time key value" line per put, until
interrupted. Deletions are not reported.

Examples:
  dsactl watch /mon/status/1
  dsactl watch --prefix /cmd/ant/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			return a.withStore(ctx, func(st *store.Store) error {
				seen := 0
				cb := func(k string, v types.Value) {
					data, err := types.Marshal(v, true)
					if err != nil {
						a.log.Warn("dsactl: unprintable value", "key", k, "err", err)
						return
					}
					a.printf("%s\t%s\t%s\n", time.Now().UTC().Format(time.RFC3339), k, data)
					seen++
					if count > 0 && seen >= count {
						cancel()
					}
				}

				var (
					sub *store.Subscription
					err error
				)
				if prefix {
					sub, err = st.WatchPrefix(ctx, key, cb, store.WatchNonFinite(true))
				} else {
					sub, err = st.Watch(ctx, key, func(v types.Value) { cb(key, v) }, store.WatchNonFinite(true))
				}
				if err != nil {
					return err
				}
				defer sub.Cancel()
				a.log.Debug("dsactl: watching", "key", key, "prefix", prefix, "id", sub.ID)

				select {
				case <-ctx.Done():
					return nil
				case <-sub.Done():
					return sub.Err()
				}
			})
		},
	}
	cmd.Flags().BoolVar(&prefix, "prefix", false, "watch every key with KEY as prefix")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many changes (0 = never)")
	return cmd
}
