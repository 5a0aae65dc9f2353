package actionable

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-compass-go/internal/logger"
	"call-compass-go/internal/types"
)

func score(v float64) *float64 { return &v }

func TestDefaultRules(t *testing.T) {
	e := NewEngine(nil)
	calls := []types.CallRecord{
		{ID: "1", Score: score(3)},
		{ID: "2", Score: score(6), CallResult: types.ResultUnsuccessful, CustomerPotential: &types.Assessment{Score: score(8)}},
		{ID: "3", Score: score(9), CallResult: types.ResultSuccessful, CustomerPotential: &types.Assessment{Score: score(9)}},
		{ID: "4", Objections: []string{"Проблемы с доставкой"}},
	}

	alerts := e.Evaluate(calls)
	require.Len(t, alerts, 2)
	assert.Equal(t, "alert-rule1-1", alerts[0].ID)
	assert.Equal(t, "alert-rule2-2", alerts[1].ID)
	assert.Equal(t, "Потеря ценного клиента! Требуется повторный контакт.", alerts[1].Message)
	assert.Equal(t, StatusNew, alerts[0].Status)

	require.True(t, e.SetEnabled("rule3", true))
	alerts = e.Evaluate(calls)
	require.Len(t, alerts, 3)
	assert.Equal(t, "alert-rule3-4", alerts[2].ID)
	assert.Equal(t, PriorityMedium, alerts[2].Priority)
}

func TestStatusesSurviveReevaluation(t *testing.T) {
	e := NewEngine(nil)
	calls := []types.CallRecord{{ID: "1", Score: score(2)}}
	e.Evaluate(calls)
	require.True(t, e.Acknowledge("alert-rule1-1"))
	assert.False(t, e.Resolve("alert-nope"))

	alerts := e.Evaluate(calls)
	require.Len(t, alerts, 1)
	assert.Equal(t, StatusAcknowledged, alerts[0].Status)
}

func TestOperators(t *testing.T) {
	doc := document(types.CallRecord{ID: "1", Agent: "Anna", Tags: []string{"Price", "delay"}, Score: score(5)})
	cases := []struct {
		cond Condition
		want bool
	}{
		{Condition{"agent", OpEquals, "Anna"}, true},
		{Condition{"agent", OpNotEquals, "Anna"}, false},
		{Condition{"customer", OpNotEquals, "x"}, true},
		{Condition{"tags", OpContains, "price"}, true},
		{Condition{"agent", OpContains, "ANN"}, true},
		{Condition{"score", OpGreaterThan, 4}, true},
		{Condition{"score", OpLessThan, "5"}, false},
		{Condition{"score", OpEquals, 5}, true},
		{Condition{"customerPotential.score", OpGreaterThan, 1}, false},
		{Condition{"score", "between", 1}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, match(doc, c.cond), "%s %s %v", c.cond.Field, c.cond.Operator, c.cond.Value)
	}
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, "Rule triggered: quiet", Rule{Name: "quiet"}.Message())
}

const rulesYAML = `rules:
  - id: long
    name: Long call
    enabled: true
    priority: low
    conditions:
      - field: score
        operator: greater_than
        value: 8
`

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o644))
	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "long", rules[0].ID)
	assert.Equal(t, 8, rules[0].Conditions[0].Value)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules:\n  - id: x\n    priority: high\n    conditions:\n      - field: score\n        operator: like\n"), 0o644))
	_, err = LoadRules(bad)
	assert.ErrorContains(t, err, "unknown operator")
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0o644))

	e := NewEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan []Rule, 4)
	require.NoError(t, Watch(ctx, path, e, func(r []Rule) {
		select {
		case reloaded <- r:
		default:
		}
	}, logger.Discard()))

	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o644))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-reloaded:
			if len(r) == 1 {
				assert.Equal(t, "long", e.Rules()[0].ID)
				return
			}
		case <-deadline:
			t.Fatal("rules were not reloaded")
		}
	}
}
