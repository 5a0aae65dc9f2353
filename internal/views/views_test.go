package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-compass-go/internal/actionable"
	"call-compass-go/internal/events"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/state"
	"call-compass-go/internal/types"
)

func score(v float64) *float64 { return &v }

func setup(t *testing.T) (*events.Bus, *state.Manager) {
	t.Helper()
	bus := events.NewBus(logger.Discard())
	return bus, state.NewManager(bus, logger.Discard())
}

func sample() []types.CallRecord {
	return []types.CallRecord{
		{ID: "1", Agent: "Anna", Status: types.ResultSuccessful, Duration: "2:00", Tags: []string{"price"}},
		{ID: "2", Agent: "Boris", Status: types.ResultUnsuccessful, Duration: "4:00", Customer: "ООО Ромашка"},
		{ID: "3", Agent: "Anna", Status: types.ResultAttention},
	}
}

func TestDashboardFollowsState(t *testing.T) {
	bus, m := setup(t)
	d := NewDashboard(bus, m.CurrentCalls)
	defer d.Close()

	assert.Equal(t, 0, d.Stats().Total)
	m.UpdateCalls(sample(), types.SourceCloud)
	assert.Equal(t, 3, d.Stats().Total)
	assert.Equal(t, 1, d.Stats().Successful)
	assert.Equal(t, types.SourceCloud, d.Source())

	m.UpdateSelection([]string{"1"})
	assert.Equal(t, 3, d.Stats().Total)

	m.ChangeDataSource(types.SourceLocal, sample()[:1])
	assert.Equal(t, 1, d.Stats().Total)
	assert.Equal(t, types.SourceLocal, d.Source())
}

func TestDashboardRecomputesOnStoreUpdate(t *testing.T) {
	bus := events.NewBus(logger.Discard())
	calls := sample()[:2]
	d := NewDashboard(bus, func() []types.CallRecord { return calls })
	defer d.Close()

	bus.Publish(events.StoreUpdated{IDs: []string{"1"}, Total: 1})
	assert.Equal(t, 2, d.Stats().Total)
}

func TestDashboardClose(t *testing.T) {
	bus, m := setup(t)
	d := NewDashboard(bus, nil)
	d.Close()
	assert.Equal(t, 0, bus.Len())

	m.UpdateCalls(sample(), types.SourceAll)
	assert.Equal(t, 0, d.Stats().Total)
}

func TestAlertsEvaluateOnChange(t *testing.T) {
	bus, m := setup(t)
	a := NewAlerts(bus, actionable.NewEngine(nil))
	defer a.Close()

	m.UpdateCalls([]types.CallRecord{{ID: "1"}, {ID: "2"}}, types.SourceAll)
	assert.Empty(t, a.List())

	m.CompleteAnalysis([]types.CallRecord{{ID: "2", KeyInsight: "weak", Score: score(2)}})
	alerts := a.List()
	require.Len(t, alerts, 1)
	assert.Equal(t, "alert-rule1-2", alerts[0].ID)

	require.True(t, a.Engine().SetEnabled("rule1", false))
	assert.Empty(t, a.Refresh())
}

func TestTableFiltersAndSelection(t *testing.T) {
	bus, m := setup(t)
	tbl := NewTable(bus)
	defer tbl.Close()

	m.UpdateCalls(sample(), types.SourceAll)
	m.UpdateSelection([]string{"2", "9"})

	rows := tbl.Rows(Filter{})
	require.Len(t, rows, 3)
	assert.False(t, rows[0].Selected)
	assert.True(t, rows[1].Selected)

	assert.Len(t, tbl.Rows(Filter{Operator: "Anna"}), 2)
	assert.Len(t, tbl.Rows(Filter{Tag: "price"}), 1)
	assert.Len(t, tbl.Rows(Filter{Status: types.ResultAttention}), 1)

	rows = tbl.Rows(Filter{Search: "ромашка"})
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].ID)

	m.ChangeDataSource(types.SourceCloud, sample())
	for _, r := range tbl.Rows(Filter{}) {
		assert.False(t, r.Selected)
	}
}
