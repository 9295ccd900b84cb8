package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsa110/mnc/pkg/mjd"
	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

// criteria names status0..status2 of a verdict payload.
var criteria = []string{"elevation", "dm_coverage", "gulp_status"}

func (a *app) statusCmd() *cobra.Command {
	var num int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the health monitor's latest verdict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := store.StatusKey(num)
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				v, ok, err := st.Get(cmd.Context(), key, store.AllowNonFinite(true))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: %w", key, ErrNotFound)
				}
				return a.printVerdict(key, v, time.Now())
			})
		},
	}
	cmd.Flags().IntVar(&num, "num", 1, "status number: reads /mon/status/<num>")
	return cmd
}

func (a *app) printVerdict(key string, v types.Value, now time.Time) error {
	status, ok := number(v, "status")
	if !ok {
		return fmt.Errorf("%s: payload has no numeric status", key)
	}

	skipped := map[string]bool{}
	if f, ok := v.Field("skipped"); ok {
		items, _ := f.AsArray()
		for _, it := range items {
			if s, ok := it.AsString(); ok {
				skipped[s] = true
			}
		}
	}

	tw := tabwriter.NewWriter(a.opts.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "key:\t%s\n", key)
	fmt.Fprintf(tw, "observing:\t%t\n", status == 1)
	if m, ok := number(v, "time"); ok {
		t := mjd.ToTime(m)
		fmt.Fprintf(tw, "time:\t%s (MJD %.6f, %s ago)\n",
			t.UTC().Format(time.RFC3339), m, now.Sub(t).Round(time.Second))
	}
	for i, name := range criteria {
		res := "unknown"
		c, ok := number(v, "status"+strconv.Itoa(i))
		switch {
		case skipped[name]:
			res = "skipped"
		case ok && c == 1:
			res = "pass"
		case ok:
			res = "fail"
		}
		fmt.Fprintf(tw, "%s:\t%s\n", name, res)
	}
	return tw.Flush()
}

func number(v types.Value, field string) (float64, bool) {
	f, ok := v.Field(field)
	if !ok || !f.Finite() {
		return 0, false
	}
	return f.AsNumber()
}
