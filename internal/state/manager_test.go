package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-compass-go/internal/events"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/types"
)

type recorder struct {
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) { r.events = append(r.events, ev) }

func (r *recorder) only(t *testing.T) events.Event {
	t.Helper()
	require.Len(t, r.events, 1)
	ev := r.events[0]
	r.events = nil
	return ev
}

func score(v float64) *float64 { return &v }

func threeCalls() []types.CallRecord {
	return []types.CallRecord{{ID: "1", Agent: "Anna"}, {ID: "2", Agent: "Boris"}, {ID: "3", Agent: "Vera"}}
}

func newManager() (*Manager, *recorder) {
	rec := &recorder{}
	return NewManager(rec, logger.Discard()), rec
}

func TestUpdateCallsKeepsSelection(t *testing.T) {
	m, rec := newManager()
	m.UpdateCalls(threeCalls(), types.SourceAll)
	m.UpdateSelection([]string{"1", "3"})
	rec.events = nil

	m.UpdateCalls([]types.CallRecord{{ID: "1"}}, types.SourceAll)

	assert.Equal(t, []string{"1", "3"}, m.State().SelectedIDs)
	ev, ok := rec.only(t).(events.CallsUpdated)
	require.True(t, ok)
	assert.Equal(t, types.SourceAll, ev.Source)
	assert.Equal(t, []string{"1", "3"}, ev.SelectedIDs)
	assert.Len(t, ev.Calls, 1)
}

func TestChangeDataSourceResetsSelection(t *testing.T) {
	m, rec := newManager()
	m.UpdateCalls(threeCalls(), types.SourceAll)
	m.UpdateSelection([]string{"2"})
	rec.events = nil

	m.ChangeDataSource(types.SourceCloud, []types.CallRecord{{ID: "9"}})

	st := m.State()
	assert.Empty(t, st.SelectedIDs)
	assert.Equal(t, types.SourceCloud, st.DataSource)
	ev, ok := rec.only(t).(events.DataSourceChanged)
	require.True(t, ok)
	assert.Equal(t, types.SourceCloud, ev.Source)
	assert.Equal(t, []string{"9"}, types.IDs(ev.Calls))
}

func TestUpdateSelectionIsVerbatim(t *testing.T) {
	m, rec := newManager()
	m.UpdateCalls(threeCalls(), types.SourceAll)
	rec.events = nil

	m.UpdateSelection([]string{"3", "missing", "1"})

	ev, ok := rec.only(t).(events.CallsSelected)
	require.True(t, ok)
	assert.Equal(t, []string{"3", "missing", "1"}, ev.SelectedIDs)
	assert.Len(t, ev.Calls, 3)
	assert.Equal(t, []string{"1", "3"}, types.IDs(m.SelectedCalls()))
}

func TestPruneSelection(t *testing.T) {
	m, rec := newManager()
	m.UpdateCalls(threeCalls(), types.SourceAll)
	m.UpdateSelection([]string{"1", "gone"})
	rec.events = nil

	assert.Equal(t, 1, m.PruneSelection())
	assert.Equal(t, []string{"1"}, m.State().SelectedIDs)
	_, ok := rec.only(t).(events.CallsSelected)
	assert.True(t, ok)

	assert.Equal(t, 0, m.PruneSelection())
	assert.Empty(t, rec.events)
}

func TestCompleteAnalysisMergesMatchingIDs(t *testing.T) {
	m, rec := newManager()
	calls := threeCalls()
	calls[0].KeyInsight = "kept"
	m.UpdateCalls(calls, types.SourceLocal)
	rec.events = nil

	m.CompleteAnalysis([]types.CallRecord{
		{ID: "1", Score: score(8)},
		{ID: "2", Score: score(3), KeyInsight: "new"},
		{ID: "99", Score: score(1)},
	})

	got := m.CurrentCalls()
	require.Len(t, got, 3)
	assert.Equal(t, 8.0, *got[0].Score)
	assert.Equal(t, "kept", got[0].KeyInsight)
	assert.Equal(t, "Anna", got[0].Agent)
	assert.Equal(t, 3.0, *got[1].Score)
	assert.Nil(t, got[2].Score)

	ev, ok := rec.only(t).(events.AnalysisCompleted)
	require.True(t, ok)
	assert.Len(t, ev.AllCalls, 3)
	assert.Len(t, ev.AnalyzedCalls, 3)
	assert.Equal(t, types.SourceLocal, ev.Source)
}

func TestEveryMutationAdvancesLastUpdated(t *testing.T) {
	m, _ := newManager()
	prev := m.State().LastUpdated
	steps := []func(){
		func() { m.UpdateCalls(threeCalls(), types.SourceAll) },
		func() { m.UpdateSelection([]string{"1"}) },
		func() { m.CompleteAnalysis(nil) },
		func() { m.ChangeDataSource(types.SourceCloud, nil) },
	}
	for _, step := range steps {
		step()
		now := m.State().LastUpdated
		assert.True(t, now.After(prev))
		prev = now
	}
}

func TestStaleResultsAreDiscarded(t *testing.T) {
	m, rec := newManager()
	m.UpdateCalls(threeCalls(), types.SourceAll)
	ticket := m.Ticket()

	m.ChangeDataSource(types.SourceCloud, []types.CallRecord{{ID: "c1"}})
	rec.events = nil

	err := m.CompleteAnalysisIf(ticket, []types.CallRecord{{ID: "1", Score: score(9)}})
	assert.ErrorIs(t, err, ErrStale)
	err = m.UpdateCallsIf(ticket, threeCalls(), types.SourceAll)
	assert.ErrorIs(t, err, ErrStale)

	assert.Empty(t, rec.events)
	assert.Equal(t, types.SourceCloud, m.DataSource())
	assert.Equal(t, []string{"c1"}, types.IDs(m.CurrentCalls()))
}

func TestCurrentTicketApplies(t *testing.T) {
	m, rec := newManager()
	m.UpdateCalls(threeCalls(), types.SourceAll)
	ticket := m.Ticket()
	rec.events = nil

	require.NoError(t, m.CompleteAnalysisIf(ticket, []types.CallRecord{{ID: "2", Score: score(6)}}))
	assert.Equal(t, 6.0, *m.CurrentCalls()[1].Score)
	_, ok := rec.only(t).(events.AnalysisCompleted)
	assert.True(t, ok)
}

func TestAccessorsReturnCopies(t *testing.T) {
	m, _ := newManager()
	m.UpdateCalls([]types.CallRecord{{ID: "1", Tags: []string{"a"}}}, types.SourceAll)

	calls := m.CurrentCalls()
	calls[0].Tags[0] = "mutated"
	calls[0].ID = "x"

	st := m.State()
	assert.Equal(t, "1", st.Calls[0].ID)
	assert.Equal(t, []string{"a"}, st.Calls[0].Tags)
}

func TestPublishesAfterUnlock(t *testing.T) {
	bus := events.NewBus(logger.Discard())
	m := NewManager(bus, logger.Discard())
	var seen []string
	bus.Subscribe(func(ev events.Event) {
		// reading back from inside a handler must not deadlock
		seen = types.IDs(m.CurrentCalls())
	})
	m.UpdateCalls(threeCalls(), types.SourceAll)
	assert.Equal(t, []string{"1", "2", "3"}, seen)
}

func TestConcurrentMutationsPublishInCommitOrder(t *testing.T) {
	bus := events.NewBus(logger.Discard())
	m := NewManager(bus, logger.Discard())

	entered := make(chan struct{})
	hold := make(chan struct{})
	var once sync.Once
	var shown []string
	bus.Subscribe(func(ev events.Event) {
		u, ok := ev.(events.CallsUpdated)
		if !ok {
			return
		}
		once.Do(func() {
			close(entered)
			<-hold
		})
		shown = types.IDs(u.Calls)
	})

	doneA := make(chan struct{})
	go func() {
		m.UpdateCalls([]types.CallRecord{{ID: "A"}}, types.SourceAll)
		close(doneA)
	}()
	<-entered

	doneB := make(chan struct{})
	go func() {
		m.UpdateCalls([]types.CallRecord{{ID: "B"}}, types.SourceAll)
		close(doneB)
	}()
	select {
	case <-doneB:
		t.Fatal("second update finished while the first was still being delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(hold)
	<-doneA
	<-doneB
	assert.Equal(t, []string{"B"}, types.IDs(m.CurrentCalls()))
	assert.Equal(t, []string{"B"}, shown)
}

func TestReset(t *testing.T) {
	m, rec := newManager()
	m.UpdateCalls(threeCalls(), types.SourceLocal)
	m.UpdateSelection([]string{"1"})
	rec.events = nil

	m.Reset()
	st := m.State()
	assert.Empty(t, st.Calls)
	assert.Empty(t, st.SelectedIDs)
	assert.Equal(t, types.SourceAll, st.DataSource)
	_, ok := rec.only(t).(events.DataSourceChanged)
	assert.True(t, ok)
}
