package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dsa110/mnc/pkg/mjd"
	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
	"github.com/dsa110/mnc/server/internal/health"
)

// deliver posts a to every configured target. Failures are logged only.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body any
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body = httpPayload(a)
		default:
			e.log.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		data, err := json.Marshal(body)
		if err == nil {
			err = e.post(url, data)
		}
		if err != nil {
			e.log.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"key", a.Key,
				"err", err,
			)
			continue
		}
		e.log.Debug("alerts: webhook delivered",
			"type", wh.Type,
			"rule", a.RuleName,
			"key", a.Key,
			"state", a.State,
		)
	}
}

// --- payloads -----------------------------------------------------------------

// fact is one labelled line of an alert notification.
type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// facts renders the monitor-point context of a: where it fired, what the
// rule tested and, for verdict keys, which criteria did not pass.
func facts(a *Alert) []fact {
	out := []fact{
		{"Key", a.Key},
		{"Condition", a.Condition},
		{"Value", a.Value.String()},
		{"Fired (MJD)", fmt.Sprintf("%.5f", mjd.FromTime(a.FiredAt))},
	}
	if len(a.Criteria) > 0 {
		out = append(out, fact{"Criteria", strings.Join(a.Criteria, ", ")})
	}
	if a.ResolvedAt != nil {
		out = append(out, fact{"Resolved (MJD)", fmt.Sprintf("%.5f", mjd.FromTime(*a.ResolvedAt))})
	}
	return out
}

func headline(a *Alert) string {
	return fmt.Sprintf("%s %s %s on %s", strings.ToUpper(a.Severity), a.RuleName, a.State, a.Key)
}

func slackPayload(a *Alert) map[string]any {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*", headline(a))
	for _, f := range facts(a)[1:] {
		fmt.Fprintf(&sb, "\n%s: `%s`", f.Name, f.Value)
	}
	return map[string]any{"text": sb.String()}
}

func teamsPayload(a *Alert) map[string]any {
	return map[string]any{
		"@type":    "MessageCard",
		"@context": "http://schema.org/extensions",
		"summary":  headline(a),
		"title":    "DSA-110 " + headline(a),
		"sections": []map[string]any{{"facts": facts(a)}},
	}
}

func httpPayload(a *Alert) map[string]any {
	return map[string]any{
		"alert": a,
		"mjd":   mjd.FromTime(a.FiredAt),
	}
}

// verdictCriteria names the status criteria of a statusmon verdict that
// failed or were skipped. Other keys yield nil.
func verdictCriteria(key string, v types.Value) []string {
	if _, sub, _, ok := store.SplitKey(key); !ok || sub != "status" || !strings.HasPrefix(key, store.MonPrefix) {
		return nil
	}
	verdict, err := health.ParseVerdict(v)
	if err != nil {
		return nil
	}
	skipped := make(map[string]bool, len(verdict.Skipped))
	for _, s := range verdict.Skipped {
		skipped[s] = true
	}
	var out []string
	for i, name := range health.CriterionNames {
		switch {
		case skipped[name]:
			out = append(out, name+"=skipped")
		case verdict.Criteria[i] == 0:
			out = append(out, name+"=fail")
		}
	}
	return out
}

// --- transport ----------------------------------------------------------------

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
