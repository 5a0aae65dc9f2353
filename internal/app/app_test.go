package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-compass-go/internal/config"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/types"
	"call-compass-go/internal/views"
)

func testConfig() config.Config {
	return config.Config{
		APIURL:          "http://127.0.0.1:1/api",
		StoreBackend:    "memory",
		RetryMaxElapsed: 10 * time.Millisecond,
		UploadTimeout:   time.Second,
	}
}

func TestBuildWiresViews(t *testing.T) {
	a, err := Build(context.Background(), testConfig(), logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	a.State.UpdateCalls([]types.CallRecord{{ID: "1", Status: types.ResultSuccessful}}, types.SourceLocal)
	assert.Equal(t, 1, a.Dashboard.Stats().Total)
	assert.Len(t, a.Table.Rows(views.Filter{}), 1)
	assert.Equal(t, 3, a.Bus.Len(), "dashboard, alerts and table subscribe")

	_, hub := a.Server()
	assert.Equal(t, 4, a.Bus.Len())
	hub.Close()
	assert.Equal(t, 3, a.Bus.Len())
}

func TestBuildRejectsBadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: [{id: x}]\n"), 0o644))
	cfg := testConfig()
	cfg.AlertRules = path
	_, err := Build(context.Background(), cfg, logger.Discard())
	assert.ErrorContains(t, err, "no conditions")
}
