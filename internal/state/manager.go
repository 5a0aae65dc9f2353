package state

import (
	"errors"
	"sync"
	"time"

	"call-compass-go/internal/events"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/metrics"
	"call-compass-go/internal/types"
)

// ErrStale is returned by the guarded mutations when a newer call set was applied after
// the ticket was taken. Nothing is changed and nothing is published.
var ErrStale = errors.New("state: result belongs to an older generation")

// Snapshot is a copy of the manager state. Mutating it does not affect the manager.
type Snapshot struct {
	Calls       []types.CallRecord `json:"currentCalls"`
	DataSource  types.DataSource   `json:"dataSource"`
	SelectedIDs []string           `json:"selectedCallIds"`
	LastUpdated time.Time          `json:"lastUpdated"`
	Generation  uint64             `json:"generation"`
}

// Ticket identifies the call set a long-running operation started from.
type Ticket uint64

// Manager owns the working call set, the data source and the selection. Every mutation
// publishes exactly one event, after the state lock is released and before the method
// returns. Mutations hold pub until their event is delivered, so subscribers see events in
// commit order and may read the manager while handling them, but must not mutate it.
type Manager struct {
	pub         sync.Mutex
	mu          sync.RWMutex
	calls       []types.CallRecord
	source      types.DataSource
	selected    []string
	lastUpdated time.Time
	gen         uint64

	bus events.Publisher
	log *logger.Logger
	now func() time.Time
}

func NewManager(bus events.Publisher, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New()
	}
	return &Manager{
		calls:    []types.CallRecord{},
		source:   types.SourceAll,
		selected: []string{},
		bus:      bus,
		log:      log.WithComponent("state"),
		now:      time.Now,
	}
}

// UpdateCalls replaces the call set and source. The selection is kept as is, even when
// some selected ids are no longer present.
func (m *Manager) UpdateCalls(calls []types.CallRecord, source types.DataSource) {
	m.pub.Lock()
	defer m.pub.Unlock()
	m.publish(m.updateCalls(calls, source))
}

// UpdateCallsIf is UpdateCalls guarded by a ticket.
func (m *Manager) UpdateCallsIf(t Ticket, calls []types.CallRecord, source types.DataSource) error {
	m.pub.Lock()
	defer m.pub.Unlock()
	m.mu.Lock()
	if uint64(t) != m.gen {
		m.mu.Unlock()
		m.stale("update_calls", t)
		return ErrStale
	}
	ev := m.updateCallsLocked(calls, source)
	m.mu.Unlock()
	m.publish(ev)
	return nil
}

func (m *Manager) updateCalls(calls []types.CallRecord, source types.DataSource) events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCallsLocked(calls, source)
}

func (m *Manager) updateCallsLocked(calls []types.CallRecord, source types.DataSource) events.Event {
	m.calls = types.CloneAll(calls)
	m.source = source
	m.gen++
	m.touch()
	return events.CallsUpdated{
		Calls:       types.CloneAll(m.calls),
		Source:      m.source,
		SelectedIDs: cloneIDs(m.selected),
		At:          m.lastUpdated,
	}
}

// ChangeDataSource replaces the call set and source and clears the selection.
func (m *Manager) ChangeDataSource(source types.DataSource, calls []types.CallRecord) {
	m.pub.Lock()
	defer m.pub.Unlock()
	m.mu.Lock()
	m.calls = types.CloneAll(calls)
	m.source = source
	m.selected = []string{}
	m.gen++
	m.touch()
	ev := events.DataSourceChanged{
		Source: m.source,
		Calls:  types.CloneAll(m.calls),
		At:     m.lastUpdated,
	}
	m.mu.Unlock()
	m.publish(ev)
}

// UpdateSelection replaces the selection verbatim. Ids are not checked against the call set;
// see PruneSelection.
func (m *Manager) UpdateSelection(ids []string) {
	m.pub.Lock()
	defer m.pub.Unlock()
	m.mu.Lock()
	m.selected = cloneIDs(ids)
	m.touch()
	ev := events.CallsSelected{
		SelectedIDs: cloneIDs(m.selected),
		Calls:       types.CloneAll(m.calls),
		At:          m.lastUpdated,
	}
	m.mu.Unlock()
	m.publish(ev)
}

// PruneSelection drops selected ids that are not in the current call set and reports how
// many were removed. It publishes CallsSelected only when something changed.
func (m *Manager) PruneSelection() int {
	m.pub.Lock()
	defer m.pub.Unlock()
	m.mu.Lock()
	present := make(map[string]struct{}, len(m.calls))
	for _, c := range m.calls {
		present[c.ID] = struct{}{}
	}
	kept := make([]string, 0, len(m.selected))
	for _, id := range m.selected {
		if _, ok := present[id]; ok {
			kept = append(kept, id)
		}
	}
	removed := len(m.selected) - len(kept)
	if removed == 0 {
		m.mu.Unlock()
		return 0
	}
	m.selected = kept
	m.touch()
	ev := events.CallsSelected{
		SelectedIDs: cloneIDs(m.selected),
		Calls:       types.CloneAll(m.calls),
		At:          m.lastUpdated,
	}
	m.mu.Unlock()
	m.publish(ev)
	return removed
}

// CompleteAnalysis merges analysis results into the matching current calls with the
// additive rule. Results for ids outside the current set are ignored.
func (m *Manager) CompleteAnalysis(analyzed []types.CallRecord) {
	m.pub.Lock()
	defer m.pub.Unlock()
	m.publish(m.completeAnalysis(analyzed))
}

// CompleteAnalysisIf is CompleteAnalysis guarded by a ticket.
func (m *Manager) CompleteAnalysisIf(t Ticket, analyzed []types.CallRecord) error {
	m.pub.Lock()
	defer m.pub.Unlock()
	m.mu.Lock()
	if uint64(t) != m.gen {
		m.mu.Unlock()
		m.stale("complete_analysis", t)
		return ErrStale
	}
	ev := m.completeAnalysisLocked(analyzed)
	m.mu.Unlock()
	m.publish(ev)
	return nil
}

func (m *Manager) completeAnalysis(analyzed []types.CallRecord) events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeAnalysisLocked(analyzed)
}

func (m *Manager) completeAnalysisLocked(analyzed []types.CallRecord) events.Event {
	byID := make(map[string]types.CallRecord, len(analyzed))
	for _, a := range analyzed {
		if a.ID == "" {
			continue
		}
		if prev, ok := byID[a.ID]; ok {
			a = types.Merge(prev, a)
		}
		byID[a.ID] = a
	}
	updated := make([]types.CallRecord, len(m.calls))
	for i, c := range m.calls {
		if a, ok := byID[c.ID]; ok {
			updated[i] = types.Merge(c, a)
		} else {
			updated[i] = c
		}
	}
	m.calls = updated
	m.touch()
	return events.AnalysisCompleted{
		AnalyzedCalls: types.CloneAll(analyzed),
		AllCalls:      types.CloneAll(m.calls),
		Source:        m.source,
		At:            m.lastUpdated,
	}
}

// Reset empties the manager and starts a new generation. Subscribers see a
// DataSourceChanged to the default source.
func (m *Manager) Reset() {
	m.ChangeDataSource(types.SourceAll, nil)
}

// Ticket captures the current generation.
func (m *Manager) Ticket() Ticket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Ticket(m.gen)
}

func (m *Manager) State() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Calls:       types.CloneAll(m.calls),
		DataSource:  m.source,
		SelectedIDs: cloneIDs(m.selected),
		LastUpdated: m.lastUpdated,
		Generation:  m.gen,
	}
}

func (m *Manager) CurrentCalls() []types.CallRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return types.CloneAll(m.calls)
}

// SelectedCalls returns the current calls whose ids are selected, in call-set order.
func (m *Manager) SelectedCalls() []types.CallRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sel := make(map[string]struct{}, len(m.selected))
	for _, id := range m.selected {
		sel[id] = struct{}{}
	}
	out := make([]types.CallRecord, 0, len(m.selected))
	for _, c := range m.calls {
		if _, ok := sel[c.ID]; ok {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (m *Manager) DataSource() types.DataSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

func (m *Manager) touch() {
	t := m.now()
	if !t.After(m.lastUpdated) {
		t = m.lastUpdated.Add(time.Nanosecond)
	}
	m.lastUpdated = t
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

func (m *Manager) stale(op string, t Ticket) {
	metrics.StaleDiscarded.WithLabelValues(op).Inc()
	m.log.WithField("op", op).WithField("ticket", uint64(t)).Warn("discarding stale result")
}

func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
