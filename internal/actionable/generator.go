package actionable

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"call-compass-go/internal/types"
)

// Alert statuses.
const (
	StatusNew          = "new"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

type Alert struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"ruleId"`
	CallID    string    `json:"callId"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Priority  string    `json:"priority"`
	Message   string    `json:"message"`
}

// Engine evaluates rules over call sets and remembers what the user did with each alert.
// Alert ids are stable ("alert-<rule>-<call>"), so a re-evaluation keeps statuses.
type Engine struct {
	mu       sync.RWMutex
	rules    []Rule
	statuses map[string]string
	alerts   []Alert
	now      func() time.Time
}

func NewEngine(rules []Rule) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Engine{rules: rules, statuses: map[string]string{}, now: time.Now}
}

// SetRules replaces the rule set. Call Evaluate to refresh alerts.
func (e *Engine) SetRules(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}

func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// SetEnabled toggles a rule and reports whether it exists.
func (e *Engine) SetEnabled(id string, on bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules[i].Enabled = on
			return true
		}
	}
	return false
}

// Evaluate raises one alert per enabled rule and matching call, high priority first.
func (e *Engine) Evaluate(calls []types.CallRecord) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	alerts := []Alert{}
	for _, c := range calls {
		doc := document(c)
		for _, r := range e.rules {
			if !r.Enabled || !matchAll(doc, r.Conditions) {
				continue
			}
			id := fmt.Sprintf("alert-%s-%s", r.ID, c.ID)
			status, ok := e.statuses[id]
			if !ok {
				status = StatusNew
			}
			alerts = append(alerts, Alert{
				ID:        id,
				RuleID:    r.ID,
				CallID:    c.ID,
				Timestamp: now,
				Status:    status,
				Priority:  r.Priority,
				Message:   r.Message(),
			})
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return priorityRank(alerts[i].Priority) < priorityRank(alerts[j].Priority)
	})
	e.alerts = alerts
	return append([]Alert(nil), alerts...)
}

// Alerts returns the result of the last evaluation.
func (e *Engine) Alerts() []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Alert{}, e.alerts...)
}

func (e *Engine) Acknowledge(id string) bool { return e.setStatus(id, StatusAcknowledged) }
func (e *Engine) Resolve(id string) bool     { return e.setStatus(id, StatusResolved) }

func (e *Engine) setStatus(id, status string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.alerts {
		if e.alerts[i].ID == id {
			e.alerts[i].Status = status
			e.statuses[id] = status
			return true
		}
	}
	return false
}

func priorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	}
	return 2
}

// document turns a call into its JSON object form so conditions can address fields by
// their wire names.
func document(c types.CallRecord) map[string]any {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}

func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func matchAll(doc map[string]any, conds []Condition) bool {
	for _, c := range conds {
		if !match(doc, c) {
			return false
		}
	}
	return true
}

func match(doc map[string]any, c Condition) bool {
	v, ok := lookup(doc, c.Field)
	switch c.Operator {
	case OpEquals:
		return ok && equal(v, c.Value)
	case OpNotEquals:
		return !ok || !equal(v, c.Value)
	case OpContains:
		if !ok {
			return false
		}
		needle := strings.ToLower(fmt.Sprint(c.Value))
		if items, isList := v.([]any); isList {
			for _, it := range items {
				if strings.Contains(strings.ToLower(fmt.Sprint(it)), needle) {
					return true
				}
			}
			return false
		}
		return strings.Contains(strings.ToLower(fmt.Sprint(v)), needle)
	case OpGreaterThan, OpLessThan:
		a, okA := number(v)
		b, okB := number(c.Value)
		if !ok || !okA || !okB {
			return false
		}
		if c.Operator == OpGreaterThan {
			return a > b
		}
		return a < b
	}
	return false
}

func equal(a, b any) bool {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x == y
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
