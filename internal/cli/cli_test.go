package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-compass-go/internal/store"
	"call-compass-go/internal/types"
)

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/api/calls", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"calls": []map[string]any{
			{"id": "1", "agent": "Anna", "status": "успешный", "duration": "2:00"},
			{"id": "2", "agent": "Boris", "status": "неуспешный", "duration": "3:30"},
		}})
	})
	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CallIDs []string `json:"callIds"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := []map[string]any{}
		for _, id := range req.CallIDs {
			out = append(out, map[string]any{"id": id, "score": 3, "keyInsight": "missed follow-up"})
		}
		write(w, map[string]any{"calls": out})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"reply": "Boris lost one call"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T) {
	t.Helper()
	srv := backend(t)
	t.Setenv("COMPASS_API_URL", srv.URL+"/api")
	t.Setenv("COMPASS_STORE_BACKEND", "sqlite")
	t.Setenv("COMPASS_SQLITE_PATH", filepath.Join(t.TempDir(), "compass.db"))
	t.Setenv("COMPASS_RETRY_MAX_ELAPSED", "50ms")
	t.Setenv("COMPASS_ALERT_RULES", "")
}

func runRootCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestVersion(t *testing.T) {
	out, err := runRootCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "compass "+version, out)
}

func TestCallsFilters(t *testing.T) {
	setEnv(t)
	out, err := runRootCommand(t, "calls", "--json", "--operator", "Boris")
	require.NoError(t, err)

	var rows []types.CallRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].ID)

	out, err = runRootCommand(t, "calls")
	require.NoError(t, err)
	assert.Contains(t, out, "2 calls")
}

func TestAnalyzePersistsAcrossRuns(t *testing.T) {
	setEnv(t)
	_, err := runRootCommand(t, "analyze", "2")
	require.NoError(t, err)

	out, err := runRootCommand(t, "cache", "show", "--json")
	require.NoError(t, err)
	var cached []types.CallRecord
	require.NoError(t, json.Unmarshal([]byte(out), &cached))
	require.Len(t, cached, 1)
	assert.Equal(t, "missed follow-up", cached[0].KeyInsight)
	assert.Equal(t, "Boris", cached[0].Agent, "cached record keeps the source fields")

	out, err = runRootCommand(t, "alerts", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "alert-rule1-2")

	_, err = runRootCommand(t, "cache", "clear")
	require.NoError(t, err)
	out, err = runRootCommand(t, "cache", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "0 cached")
}

func TestAnalyzeNeedsCalls(t *testing.T) {
	setEnv(t)
	_, err := runRootCommand(t, "analyze", "nope")
	assert.ErrorContains(t, err, "no calls selected")
}

func TestChatHistory(t *testing.T) {
	setEnv(t)
	out, err := runRootCommand(t, "chat", "who", "lost", "calls?", "--operator", "Boris")
	require.NoError(t, err)
	assert.Equal(t, "Boris lost one call", out)

	out, err = runRootCommand(t, "history", "--json")
	require.NoError(t, err)
	var msgs []store.Message
	require.NoError(t, json.Unmarshal([]byte(out), &msgs))
	require.Len(t, msgs, 3)
	assert.Equal(t, "welcome", msgs[0].ID)
	assert.Equal(t, "who lost calls?", msgs[1].Content)
	assert.Equal(t, "Boris lost one call", msgs[2].Content)
	assert.Equal(t, store.SenderAssistant, msgs[2].Sender)
}

func TestUploadRejectsCSV(t *testing.T) {
	setEnv(t)
	_, err := runRootCommand(t, "upload", "data.csv")
	assert.ErrorContains(t, err, "invalid file type")
}

func TestUnknownSource(t *testing.T) {
	setEnv(t)
	_, err := runRootCommand(t, "calls", "--source", "ftp")
	assert.ErrorContains(t, err, "unknown data source")
}

func TestExport(t *testing.T) {
	setEnv(t)
	path := filepath.Join(t.TempDir(), "calls.xlsx")
	out, err := runRootCommand(t, "export", path, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"rows": 2`)
}
