package dataset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-compass-go/internal/types"
)

func score(v float64) *float64 { return &v }

func TestDetectColumns(t *testing.T) {
	cols := DetectColumns([]string{"ID", "Менеджер", "Длительность", "Длительность аудио", "Ссылка на запись", "Статус", "Дата"})
	assert.Equal(t, 0, cols[ColID])
	assert.Equal(t, 1, cols[ColAgent])
	assert.Equal(t, 2, cols[ColDuration])
	assert.Equal(t, 4, cols[ColRecordURL])
	assert.Equal(t, 5, cols[ColStatus])
	assert.Equal(t, 6, cols[ColDate])

	cols = DetectColumns([]string{"Operator", "Guide", "Audio URL"})
	_, hasID := cols[ColID]
	assert.False(t, hasID)
	assert.Equal(t, 2, cols[ColRecordURL])
}

func TestExportThenPreflight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.xlsx")
	calls := []types.CallRecord{
		{ID: "1", Agent: "Anna", Date: "01.04.2025", Status: types.ResultSuccessful, RecordURL: "https://x/1.mp3", Score: score(8)},
		{ID: "2", Agent: "Boris", Date: "02.04.2025", Status: types.ResultUnsuccessful},
		{ID: "3", Agent: "Anna", Status: types.ResultSuccessful, RecordURL: "https://x/3.mp3"},
	}
	require.NoError(t, Export(path, calls))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, []string{"1", "2", "3"}, types.IDs(loaded))
	assert.Equal(t, "Boris", loaded[1].Agent)
	assert.Equal(t, "https://x/1.mp3", loaded[0].RecordURL)

	s, err := Preflight(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, 2, s.WithRecord)
	assert.Equal(t, 2, s.ByStatus[types.ResultSuccessful])
	assert.Equal(t, []string{"Anna", "Boris"}, s.Agents)
	assert.True(t, s.Ready())
}

func TestPreflightRejectsLegacyFormat(t *testing.T) {
	_, err := Preflight("calls.xls")
	assert.Error(t, err)
}

func TestExportEmptyHasNoRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, Export(path, nil))
	_, err := Load(path)
	assert.Error(t, err)
}
