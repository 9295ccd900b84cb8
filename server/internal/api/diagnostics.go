package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/dsa110/mnc/server/internal/health"
)

// DiagnosticHint is one human-readable insight about the observing verdict.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint (e.g. age in seconds).
	Value *float64 `json:"value,omitempty"`
}

// criterionDetail explains what a failing criterion means on the array.
var criterionDetail = map[string]string{
	"elevation": "Core antenna elevations disagree by more than the configured RMS limit. " +
		"One or more core antennas is not pointing with the rest of the array. " +
		"Check antmon for antennas far from the median elevation and for drives that are stowed or stuck.",
	"dm_coverage": "The first-stage search covered less than half the configured maximum DM. " +
		"The T1 nodes are running but searching a reduced DM range; check the heimdall configuration on the T1 hosts.",
	"gulp_status": "At least one T2 gulp reported a nonzero status. " +
		"Clustering is falling behind or failing; check the T2 service logs.",
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from the latest verdict. ok is false when
// no verdict has been read. Hints are ordered critical first, then warnings,
// then info.
func computeDiagnostics(v health.Verdict, ok bool, now time.Time, staleAfter time.Duration) []DiagnosticHint {
	if !ok {
		return []DiagnosticHint{{
			Key:   "no_verdict",
			Level: "critical",
			Title: "No verdict",
			Detail: "Nothing has been published at the status key. " +
				"Check that statusmon is running and can reach etcd.",
		}}
	}

	var hints []DiagnosticHint

	if age, known := v.Age(now); !known {
		hints = append(hints, DiagnosticHint{
			Key:    "no_time",
			Level:  "warning",
			Title:  "Verdict has no time",
			Detail: "The verdict carries no MJD time field, so its freshness cannot be judged.",
		})
	} else if age > staleAfter {
		secs := age.Seconds()
		level := "warning"
		if age > 2*staleAfter {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "stale",
			Level: level,
			Title: fmt.Sprintf("Verdict %.0fs old", secs),
			Detail: fmt.Sprintf("The last verdict was published %s ago, past the %s limit. "+
				"statusmon may be stuck or unable to write to etcd.", age.Round(time.Second), staleAfter),
			Value: &secs,
		})
	}

	skipped := make(map[string]bool, len(v.Skipped))
	for _, s := range v.Skipped {
		skipped[s] = true
	}
	for i, name := range health.CriterionNames {
		switch {
		case skipped[name]:
			hints = append(hints, DiagnosticHint{
				Key:   "skipped_" + name,
				Level: "warning",
				Title: name + " skipped",
				Detail: fmt.Sprintf("No %s data arrived in the evaluation window, so the criterion was left out "+
					"of the overall verdict. Check that the producer is writing to the time-series database.", name),
			})
		case v.Criteria[i] == 0:
			hints = append(hints, DiagnosticHint{
				Key:    "failed_" + name,
				Level:  "critical",
				Title:  name + " failed",
				Detail: criterionDetail[name],
			})
		}
	}

	if len(hints) == 0 && v.Observing {
		hints = append(hints, DiagnosticHint{
			Key:    "observing",
			Level:  "ok",
			Title:  "Observing",
			Detail: "Every criterion passed in the last evaluation.",
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
