package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/highstakes/highstakes/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Event is one accepted stake together with the board state it produced.
type Event struct {
	OfferID    int
	CustomerID int
	Stake      int
	Rank       int // 0 when the stake was not retained
	Entries    int
}

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	OfferID    int        `json:"offer_id"`
	CustomerID int        `json:"customer_id"`
	Rank       int        `json:"rank"` // board position of the stake, 0 if not retained
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      int        `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Recorder is notified of every fired alert. *metrics.Metrics satisfies it.
type Recorder interface {
	AlertFired(rule, severity string)
}

// Engine evaluates alert rules against accepted stakes and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: "ruleName:offerID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts

	client   *http.Client
	recorder Recorder
	now      func() time.Time
	wg       sync.WaitGroup // in-flight deliveries
}

// New creates an Engine from the alert configuration.
// An Engine with no rules is valid; Evaluate is then a no-op.
// rec may be nil.
func New(cfg config.AlertsConfig, rec Recorder) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		recorder: rec,
		now:      time.Now,
	}
}

// SetConfig swaps in new rules and webhooks. Active alerts for rules that no
// longer exist are dropped without notification.
func (e *Engine) SetConfig(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = cfg.Rules
	e.webhooks = cfg.Webhooks

	keep := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		keep[r.Name] = true
	}
	for key, a := range e.active {
		if !keep[a.RuleName] {
			delete(e.active, key)
			delete(e.lastFire, key)
		}
	}
	slog.Info("alerts: rules updated", "rules", len(cfg.Rules), "webhooks", len(cfg.Webhooks))
}

// Evaluate tests all configured rules against ev.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing for the same offer but whose condition is now false
// are resolved.
func (e *Engine) Evaluate(ev Event) {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()
	if len(rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range rules {
		key := rule.Name + ":" + strconv.Itoa(ev.OfferID)
		fires, value := evalCondition(rule.Condition, ev)

		e.mu.Lock()

		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			last, seen := e.lastFire[key]
			if !seen || now.Sub(last) > cooldown {
				sev := rule.Severity
				if sev == "" {
					sev = "warning"
				}
				a := &Alert{
					ID:         fmt.Sprintf("%s:%d:%d", rule.Name, ev.OfferID, now.UnixNano()),
					RuleName:   rule.Name,
					OfferID:    ev.OfferID,
					CustomerID: ev.CustomerID,
					Rank:       ev.Rank,
					Severity:   sev,
					Value:      value,
					Message: fmt.Sprintf("[%s] %s fired on offer %d by customer %d: %s (value %d)",
						sev, rule.Name, ev.OfferID, ev.CustomerID, rule.Condition, value),
					FiredAt: now,
					State:   "firing",
				}
				e.active[key] = a
				e.lastFire[key] = now
				alertCopy := *a
				webhooks := e.webhooks
				e.mu.Unlock()

				slog.Warn("alert fired",
					"rule", rule.Name,
					"offer_id", ev.OfferID,
					"customer_id", ev.CustomerID,
					"value", value,
					"severity", sev,
				)
				if e.recorder != nil {
					e.recorder.AlertFired(rule.Name, sev)
				}
				e.goDeliver(webhooks, &alertCopy)
			} else {
				e.mu.Unlock()
			}
		} else {
			if a, ok := e.active[key]; ok && a.State == "firing" {
				resolved := now
				a.State = "resolved"
				a.ResolvedAt = &resolved
				delete(e.active, key)

				e.history = append(e.history, a)
				if len(e.history) > maxHistoryLen {
					e.history = e.history[len(e.history)-maxHistoryLen:]
				}
				alertCopy := *a
				webhooks := e.webhooks
				e.mu.Unlock()

				slog.Info("alert resolved",
					"rule", rule.Name,
					"offer_id", ev.OfferID,
				)
				e.goDeliver(webhooks, &alertCopy)
			} else {
				e.mu.Unlock()
			}
		}
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
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
	sort.Slice(out, func(i, j int) bool {
		return latest(out[i]).After(latest(out[j]))
	})
	return out
}

// Wait blocks until all in-flight webhook deliveries have finished.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) goDeliver(webhooks []config.WebhookConfig, a *Alert) {
	if len(webhooks) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliver(webhooks, a)
	}()
}

// latest returns the most recent state change time of a.
func latest(a *Alert) time.Time {
	if a.ResolvedAt != nil {
		return *a.ResolvedAt
	}
	return a.FiredAt
}
