package views

import (
	"strings"
	"sync"

	"call-compass-go/internal/actionable"
	"call-compass-go/internal/aggregator"
	"call-compass-go/internal/events"
	"call-compass-go/internal/types"
)

// Subscriber is the bus side a view attaches to.
type Subscriber interface {
	Subscribe(events.Handler) func()
}

// callsOf returns the full call set carried by ev, if it carries one.
func callsOf(ev events.Event) ([]types.CallRecord, bool) {
	switch e := ev.(type) {
	case events.CallsUpdated:
		return e.Calls, true
	case events.DataSourceChanged:
		return e.Calls, true
	case events.CallsSelected:
		return e.Calls, true
	case events.AnalysisCompleted:
		return e.AllCalls, true
	}
	return nil, false
}

// Dashboard keeps aggregated statistics for the latest call set.
type Dashboard struct {
	mu      sync.RWMutex
	current func() []types.CallRecord
	stats   aggregator.Dashboard
	source  types.DataSource
	unsub   func()
}

// NewDashboard subscribes to bus. current is consulted when the analysis cache changes,
// since that event carries no call set; it may be nil.
func NewDashboard(bus Subscriber, current func() []types.CallRecord) *Dashboard {
	d := &Dashboard{current: current, stats: aggregator.Aggregate(nil), source: types.SourceAll}
	d.unsub = bus.Subscribe(d.handle)
	return d
}

func (d *Dashboard) handle(ev events.Event) {
	switch e := ev.(type) {
	case events.CallsSelected:
		return
	case events.StoreUpdated:
		if d.current != nil {
			d.set(d.current(), "")
		}
		return
	case events.CallsUpdated:
		d.set(e.Calls, e.Source)
	case events.DataSourceChanged:
		d.set(e.Calls, e.Source)
	case events.AnalysisCompleted:
		d.set(e.AllCalls, e.Source)
	}
}

func (d *Dashboard) set(calls []types.CallRecord, source types.DataSource) {
	stats := aggregator.Aggregate(calls)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = stats
	if source != "" {
		d.source = source
	}
}

func (d *Dashboard) Stats() aggregator.Dashboard {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

func (d *Dashboard) Source() types.DataSource {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.source
}

func (d *Dashboard) Close() { d.unsub() }

// Alerts re-evaluates alert rules whenever the call set changes.
type Alerts struct {
	engine *actionable.Engine
	mu     sync.RWMutex
	calls  []types.CallRecord
	unsub  func()
}

func NewAlerts(bus Subscriber, engine *actionable.Engine) *Alerts {
	a := &Alerts{engine: engine}
	a.unsub = bus.Subscribe(a.handle)
	return a
}

func (a *Alerts) handle(ev events.Event) {
	if _, ok := ev.(events.CallsSelected); ok {
		return
	}
	calls, ok := callsOf(ev)
	if !ok {
		return
	}
	a.mu.Lock()
	a.calls = calls
	a.mu.Unlock()
	a.engine.Evaluate(calls)
}

// Refresh re-evaluates the last call set, e.g. after the rules changed.
func (a *Alerts) Refresh() []actionable.Alert {
	a.mu.RLock()
	calls := a.calls
	a.mu.RUnlock()
	return a.engine.Evaluate(calls)
}

func (a *Alerts) List() []actionable.Alert { return a.engine.Alerts() }

func (a *Alerts) Engine() *actionable.Engine { return a.engine }

func (a *Alerts) Close() { a.unsub() }

// Filter narrows the table. Empty fields match everything.
type Filter struct {
	Status   string
	Operator string
	Tag      string
	Search   string
}

// Row is a call plus whether it is selected.
type Row struct {
	types.CallRecord
	Selected bool `json:"selected"`
}

// Table mirrors the call set and the selection.
type Table struct {
	mu       sync.RWMutex
	calls    []types.CallRecord
	selected map[string]struct{}
	unsub    func()
}

func NewTable(bus Subscriber) *Table {
	t := &Table{selected: map[string]struct{}{}}
	t.unsub = bus.Subscribe(t.handle)
	return t
}

func (t *Table) handle(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e := ev.(type) {
	case events.CallsUpdated:
		t.calls = e.Calls
		t.selected = toSet(e.SelectedIDs)
	case events.DataSourceChanged:
		t.calls = e.Calls
		t.selected = map[string]struct{}{}
	case events.CallsSelected:
		t.calls = e.Calls
		t.selected = toSet(e.SelectedIDs)
	case events.AnalysisCompleted:
		t.calls = e.AllCalls
	}
}

// Rows returns the calls matching f in call-set order.
func (t *Table) Rows(f Filter) []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := []Row{}
	for _, c := range t.calls {
		if f.Status != "" && c.Outcome() != f.Status {
			continue
		}
		if f.Operator != "" && c.Agent != f.Operator {
			continue
		}
		if f.Tag != "" && !hasTag(c.Tags, f.Tag) {
			continue
		}
		if search != "" && !matchesSearch(c, search) {
			continue
		}
		_, sel := t.selected[c.ID]
		out = append(out, Row{CallRecord: c, Selected: sel})
	}
	return out
}

func (t *Table) Close() { t.unsub() }

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func matchesSearch(c types.CallRecord, q string) bool {
	for _, s := range []string{c.ID, c.Agent, c.Customer, c.KeyInsight, c.AISummary, c.Purpose} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}
