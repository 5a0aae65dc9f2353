package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-compass-go/internal/config"
	"call-compass-go/internal/events"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/types"
)

func score(v float64) *float64 { return &v }

// flakyKV fails the next failGets reads.
type flakyKV struct {
	KV
	failGets atomic.Int32
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGets.Add(-1) >= 0 {
		return nil, false, errors.New("i/o timeout")
	}
	return f.KV.Get(ctx, key)
}

func backends(t *testing.T) map[string]KV {
	t.Helper()
	lite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "compass.db"))
	require.NoError(t, err)
	mem := NewMemory()
	rds, err := OpenRedis(context.Background(), startRESP(t).addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		lite.Close()
		mem.Close()
		rds.Close()
	})
	return map[string]KV{"sqlite": lite, "memory": mem, "redis": rds}
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set(ctx, "k", []byte("v1")))
			require.NoError(t, kv.Set(ctx, "k", []byte("v2")))
			v, ok, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v2", string(v))

			require.NoError(t, kv.Remove(ctx, "k"))
			_, ok, err = kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestUpsertAccumulatesFields(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewAnalysisStore(kv, nil, logger.Discard())
			require.NoError(t, s.Upsert(ctx, []types.CallRecord{{ID: "1", Score: score(5)}}))
			require.NoError(t, s.Upsert(ctx, []types.CallRecord{{ID: "1", KeyInsight: "x"}}))

			got := s.Get(ctx)
			require.Len(t, got, 1)
			assert.Equal(t, "1", got[0].ID)
			require.NotNil(t, got[0].Score)
			assert.Equal(t, 5.0, *got[0].Score)
			assert.Equal(t, "x", got[0].KeyInsight)
		})
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewAnalysisStore(NewMemory(), nil, logger.Discard())
	batch := []types.CallRecord{
		{ID: "1", Score: score(7), Tags: []string{"a"}},
		{ID: "2", KeyInsight: "k"},
		{Agent: "no id"},
	}
	require.NoError(t, s.Upsert(ctx, batch))
	once := s.Get(ctx)
	require.NoError(t, s.Upsert(ctx, batch))
	assert.Equal(t, once, s.Get(ctx))
	assert.Len(t, once, 2)
}

func TestCorruptCacheReadsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	require.NoError(t, kv.Set(ctx, KeyAnalyzedCalls, []byte("{not json")))
	s := NewAnalysisStore(kv, nil, logger.Discard())

	got := s.Get(ctx)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.NoError(t, s.Upsert(ctx, []types.CallRecord{{ID: "1"}}))
	assert.Len(t, s.Get(ctx), 1)
}

func TestUpsertKeepsCacheWhenReadFails(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{KV: NewMemory()}
	s := NewAnalysisStore(kv, nil, logger.Discard())
	require.NoError(t, s.Upsert(ctx, []types.CallRecord{{ID: "1"}, {ID: "2"}}))

	kv.failGets.Store(1)
	err := s.Upsert(ctx, []types.CallRecord{{ID: "3"}})
	assert.ErrorContains(t, err, "read analyzed calls")

	assert.Equal(t, []string{"1", "2"}, types.IDs(s.Get(ctx)))
	require.NoError(t, s.Upsert(ctx, []types.CallRecord{{ID: "3"}}))
	assert.Equal(t, []string{"1", "2", "3"}, types.IDs(s.Get(ctx)))
}

func TestClearPublishes(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus(logger.Discard())
	var got []events.StoreUpdated
	bus.Subscribe(func(ev events.Event) {
		if e, ok := ev.(events.StoreUpdated); ok {
			got = append(got, e)
		}
	})
	s := NewAnalysisStore(NewMemory(), bus, logger.Discard())

	require.NoError(t, s.Upsert(ctx, []types.CallRecord{{ID: "1"}, {ID: "2"}}))
	require.NoError(t, s.Clear(ctx))

	assert.Empty(t, s.Get(ctx))
	require.Len(t, got, 2)
	assert.Equal(t, []string{"1", "2"}, got[0].IDs)
	assert.Equal(t, 2, got[0].Total)
	assert.True(t, got[1].Cleared)
}

func TestEnrichPrefersCachedAnalysis(t *testing.T) {
	ctx := context.Background()
	s := NewAnalysisStore(NewMemory(), nil, logger.Discard())
	require.NoError(t, s.Upsert(ctx, []types.CallRecord{
		{ID: "1", KeyInsight: "cached", Score: score(8)},
		{ID: "stale", KeyInsight: "gone"},
	}))

	out := s.Enrich(ctx, []types.CallRecord{
		{ID: "1", Agent: "Anna", KeyInsight: "backend"},
		{ID: "2", Agent: "Boris"},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "cached", out[0].KeyInsight)
	assert.Equal(t, "Anna", out[0].Agent)
	assert.Equal(t, 8.0, *out[0].Score)
	assert.Equal(t, "Boris", out[1].Agent)
	assert.Nil(t, out[1].Score)
}

func TestEnrichKeepsFetchedSourceFields(t *testing.T) {
	ctx := context.Background()
	s := NewAnalysisStore(NewMemory(), nil, logger.Discard())
	require.NoError(t, s.Upsert(ctx, []types.CallRecord{{
		ID: "1", Transcription: "old text", Status: types.ResultUnsuccessful, Duration: "1:00",
		KeyInsight: "cached", Score: score(4),
	}}))

	out := s.Enrich(ctx, []types.CallRecord{{ID: "1", Transcription: "new text", Status: types.ResultSuccessful}})

	require.Len(t, out, 1)
	assert.Equal(t, "new text", out[0].Transcription)
	assert.Equal(t, types.ResultSuccessful, out[0].Status)
	assert.Empty(t, out[0].Duration, "source fields come only from the backend")
	assert.Equal(t, "cached", out[0].KeyInsight)
}

func TestChatStoreWelcomeAndAppend(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	cs := NewChatStore(kv, logger.Discard())

	msgs := cs.Messages(ctx)
	require.Len(t, msgs, 1)
	assert.Equal(t, "welcome", msgs[0].ID)

	require.NoError(t, cs.Append(ctx, NewMessage(SenderUser, "how many?"), NewMessage(SenderAssistant, "three")))
	msgs = cs.Messages(ctx)
	require.Len(t, msgs, 3)
	assert.Equal(t, "three", msgs[2].Content)
	assert.NotEmpty(t, msgs[1].ID)

	require.NoError(t, kv.Set(ctx, KeyChatMessages, []byte("garbage")))
	assert.Equal(t, "welcome", cs.Messages(ctx)[0].ID)

	require.NoError(t, cs.ClearMessages(ctx))
	assert.Len(t, cs.Messages(ctx), 1)
}

func TestChatAppendKeepsHistoryWhenReadFails(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{KV: NewMemory()}
	cs := NewChatStore(kv, logger.Discard())
	require.NoError(t, cs.Append(ctx, NewMessage(SenderUser, "first")))

	kv.failGets.Store(1)
	assert.Error(t, cs.Append(ctx, NewMessage(SenderUser, "second")))

	msgs := cs.Messages(ctx)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[1].Content)
}

func TestChatConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	cs := NewChatStore(NewMemory(), logger.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := NewMessage(SenderUser, fmt.Sprintf("q%d", i))
			a := NewMessage(SenderAssistant, fmt.Sprintf("a%d", i))
			assert.NoError(t, cs.Append(ctx, q, a))
		}(i)
	}
	wg.Wait()

	assert.Len(t, cs.Messages(ctx), 1+2*20)
}

func TestChatFilters(t *testing.T) {
	ctx := context.Background()
	cs := NewChatStore(NewMemory(), logger.Discard())
	assert.Equal(t, types.ChatFilters{}, cs.Filters(ctx))

	f := types.ChatFilters{Status: types.ResultSuccessful, Duration: types.DurationLong, Tag: "price"}
	require.NoError(t, cs.SaveFilters(ctx, f))
	assert.Equal(t, f, cs.Filters(ctx))
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	kv, err := Open(ctx, config.Config{StoreBackend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, kv)

	kv, err = Open(ctx, config.Config{StoreBackend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	defer kv.Close()
	assert.IsType(t, &SQLite{}, kv)

	_, err = Open(ctx, config.Config{StoreBackend: "etcd"})
	assert.Error(t, err)
}
