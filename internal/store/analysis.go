package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"call-compass-go/internal/events"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/metrics"
	"call-compass-go/internal/types"
)

// AnalysisStore caches analysis-augmented call records by id across restarts. All records
// live under one key and every write rewrites the whole set.
type AnalysisStore struct {
	mu  sync.Mutex
	kv  KV
	bus events.Publisher
	log *logger.Logger
}

// NewAnalysisStore wraps kv. bus may be nil.
func NewAnalysisStore(kv KV, bus events.Publisher, log *logger.Logger) *AnalysisStore {
	if log == nil {
		log = logger.New()
	}
	return &AnalysisStore{kv: kv, bus: bus, log: log.WithComponent("store")}
}

// Get returns every cached record. Missing or corrupt data yields an empty set, and so
// does a failed read (the error is logged).
func (s *AnalysisStore) Get(ctx context.Context) []types.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls, err := s.load(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to read analyzed calls")
		return []types.CallRecord{}
	}
	return calls
}

// load reads the cached set. Only a read error is returned: corrupt data is logged and
// reads as empty.
func (s *AnalysisStore) load(ctx context.Context) ([]types.CallRecord, error) {
	raw, ok, err := s.kv.Get(ctx, KeyAnalyzedCalls)
	if err != nil {
		return nil, fmt.Errorf("read analyzed calls: %w", err)
	}
	if !ok || len(raw) == 0 {
		return []types.CallRecord{}, nil
	}
	var calls []types.CallRecord
	if err := json.Unmarshal(raw, &calls); err != nil {
		s.log.WithError(err).Warn("analyzed calls cache is corrupt, ignoring it")
		return []types.CallRecord{}, nil
	}
	if calls == nil {
		calls = []types.CallRecord{}
	}
	return calls, nil
}

// Upsert merges records into the cache by id with the additive rule and persists the full
// set. Records without an id are skipped. Applying the same batch twice is a no-op the
// second time. When the current set cannot be read nothing is written.
func (s *AnalysisStore) Upsert(ctx context.Context, records []types.CallRecord) error {
	s.mu.Lock()
	current, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	merged := types.MergeByID(current, records)
	data, err := json.Marshal(merged)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encode analyzed calls: %w", err)
	}
	if err := s.kv.Set(ctx, KeyAnalyzedCalls, data); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save analyzed calls: %w", err)
	}
	s.mu.Unlock()

	metrics.CachedCalls.Set(float64(len(merged)))
	s.log.WithField("saved", len(records)).WithField("total", len(merged)).Info("analyzed calls saved")
	s.publish(events.StoreUpdated{IDs: nonEmptyIDs(records), Total: len(merged), At: time.Now()})
	return nil
}

// Clear removes every cached record.
func (s *AnalysisStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.kv.Remove(ctx, KeyAnalyzedCalls)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clear analyzed calls: %w", err)
	}
	metrics.CachedCalls.Set(0)
	s.log.Info("analyzed calls cleared")
	s.publish(events.StoreUpdated{IDs: []string{}, Cleared: true, At: time.Now()})
	return nil
}

// Enrich overlays cached analysis onto freshly fetched calls. Cached non-empty analysis
// fields win; source fields always come from fetched. Order and membership follow fetched.
func (s *AnalysisStore) Enrich(ctx context.Context, fetched []types.CallRecord) []types.CallRecord {
	cached := s.Get(ctx)
	if len(cached) == 0 {
		return types.CloneAll(fetched)
	}
	byID := make(map[string]types.CallRecord, len(cached))
	for _, c := range cached {
		byID[c.ID] = c
	}
	out := make([]types.CallRecord, 0, len(fetched))
	for _, f := range fetched {
		if c, ok := byID[f.ID]; ok {
			out = append(out, types.MergeAnalysis(f, c))
			continue
		}
		out = append(out, f.Clone())
	}
	return out
}

func (s *AnalysisStore) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func nonEmptyIDs(records []types.CallRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
