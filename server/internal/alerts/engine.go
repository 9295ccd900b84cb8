package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dsa110/mnc/pkg/types"
	"github.com/dsa110/mnc/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID        string      `json:"id"`
	RuleName  string      `json:"rule_name"`
	Key       string      `json:"key"`
	Severity  string      `json:"severity"`
	Message   string      `json:"message"`
	Condition string      `json:"condition"`
	Value     types.Value `json:"value"`
	// Criteria lists the failed or skipped health criteria when the key
	// holds a statusmon verdict, e.g. "dm_coverage=fail".
	Criteria   []string   `json:"criteria,omitempty"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

type rule struct {
	config.AlertRule
	prefix string
	cond   condition
}

// Engine evaluates alert rules against monitor-point updates and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:storeKey"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	inflight sync.WaitGroup
}

// New creates an Engine from the server alert configuration.
// An Engine with no rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		webhooks: cfg.Webhooks,
		log:      log,
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, rule{AlertRule: r, prefix: r.EffectivePrefix(), cond: c})
	}
	return e, nil
}

// Rules returns the number of configured rules.
func (e *Engine) Rules() int { return len(e.rules) }

// Evaluate tests every rule whose prefix matches key against v.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(key string, v types.Value) {
	now := e.now()
	for _, r := range e.rules {
		if !strings.HasPrefix(key, r.prefix) {
			continue
		}
		id := r.Name + ":" + key
		fires, value := r.cond.eval(v)
		if fires {
			e.fire(r, id, key, value, verdictCriteria(key, v), now)
		} else {
			e.resolve(r, id, key, now)
		}
	}
}

func (e *Engine) fire(r rule, id, key string, value types.Value, crit []string, now time.Time) {
	cooldown := r.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	e.mu.Lock()
	if last, ok := e.lastFire[id]; ok && now.Sub(last) <= cooldown {
		e.mu.Unlock()
		return
	}
	sev := r.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:        fmt.Sprintf("%s:%d", id, now.UnixNano()),
		RuleName:  r.Name,
		Key:       key,
		Severity:  sev,
		Value:     value,
		Condition: r.Condition,
		Criteria:  crit,
		Message:   fmt.Sprintf("[%s] %s fired on %s: %s (got %s)", sev, r.Name, key, r.Condition, value),
		FiredAt:   now,
		State:     "firing",
	}
	e.active[id] = a
	e.lastFire[id] = now
	alertCopy := *a
	e.mu.Unlock()

	e.log.Warn("alerts: fired",
		"rule", r.Name,
		"key", key,
		"value", value.String(),
		"severity", sev,
	)
	e.send(&alertCopy)
}

func (e *Engine) resolve(r rule, id, key string, now time.Time) {
	e.mu.Lock()
	a, ok := e.active[id]
	if !ok || a.State != "firing" {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = "resolved"
	a.ResolvedAt = &resolved
	delete(e.active, id)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	e.log.Info("alerts: resolved", "rule", r.Name, "key", key)
	e.send(&alertCopy)
}

func (e *Engine) send(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.deliver(a)
	}()
}

// Wait blocks until every webhook delivery started so far has finished.
func (e *Engine) Wait() { e.inflight.Wait() }

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Firing returns the number of alerts currently firing.
func (e *Engine) Firing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
