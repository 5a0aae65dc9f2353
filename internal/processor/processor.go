package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"call-compass-go/internal/dataset"
	"call-compass-go/internal/gateway"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/state"
	"call-compass-go/internal/store"
	"call-compass-go/internal/types"
)

// Gateway is the subset of the backend client the processor drives.
type Gateway interface {
	FetchCalls(ctx context.Context, source types.DataSource) ([]types.CallRecord, error)
	AnalyzeCalls(ctx context.Context, ids, keyQuestions []string) ([]types.CallRecord, error)
	CustomAnalyzeCalls(ctx context.Context, ids []string, prompt string) (types.CustomAnalysis, error)
	TranscribeCalls(ctx context.Context, ids []string, force bool) (types.TranscribeResponse, error)
	PreviewAnalyzeCalls(ctx context.Context, calls []types.CallRecord) (types.PreviewResult, error)
	SendChatMessage(ctx context.Context, message string, filters types.ChatFilters, source types.DataSource) (types.ChatReply, error)
	UploadFile(ctx context.Context, name string, content io.Reader) (types.UploadResult, error)
	ProcessAll(ctx context.Context) (types.ProcessResult, error)
	ImportFolder(ctx context.Context, opts types.ImportOptions) (types.ImportResult, error)
	RefreshTags(ctx context.Context) (types.TagsResult, error)
}

var (
	// ErrNoCalls is returned when an operation needs call ids and none are selected.
	ErrNoCalls = errors.New("no calls selected")
	// ErrEmptyInput is returned for a blank prompt or chat message.
	ErrEmptyInput = errors.New("empty input")
)

// Processor runs the fetch, merge and broadcast loop: it calls the backend, folds results
// into the analysis cache and the state manager, and the manager notifies subscribers.
type Processor struct {
	gw    Gateway
	state *state.Manager
	cache *store.AnalysisStore
	chat  *store.ChatStore
	log   *logger.Logger

	// loads counts call-set fetches so that only the latest one is applied.
	loads atomic.Uint64
}

func New(gw Gateway, st *state.Manager, cache *store.AnalysisStore, chat *store.ChatStore, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.New()
	}
	return &Processor{gw: gw, state: st, cache: cache, chat: chat, log: log.WithComponent("processor")}
}

// LoadCalls fetches the calls of source, overlays cached analysis and replaces the working
// set. The selection is kept. A failed fetch leaves the working set untouched.
func (p *Processor) LoadCalls(ctx context.Context, source types.DataSource) ([]types.CallRecord, error) {
	seq := p.loads.Add(1)
	calls, err := p.gw.FetchCalls(ctx, source)
	if err != nil {
		return calls, err
	}
	calls = p.cache.Enrich(ctx, calls)
	if p.loads.Load() != seq {
		p.log.WithField("source", source).Warn("newer load in flight, dropping this one")
		return calls, state.ErrStale
	}
	p.state.UpdateCalls(calls, source)
	p.log.WithField("source", source).WithField("count", len(calls)).Info("calls loaded")
	return calls, nil
}

// SwitchSource changes the data source, clearing the selection. The switch happens even
// when the fetch fails, with an empty call set, and the error is returned.
func (p *Processor) SwitchSource(ctx context.Context, source types.DataSource) ([]types.CallRecord, error) {
	seq := p.loads.Add(1)
	calls, err := p.gw.FetchCalls(ctx, source)
	if err == nil {
		calls = p.cache.Enrich(ctx, calls)
	}
	if p.loads.Load() != seq {
		return calls, state.ErrStale
	}
	p.state.ChangeDataSource(source, calls)
	p.log.WithField("source", source).WithField("count", len(calls)).Info("data source switched")
	return calls, err
}

// Reload fetches the current data source again.
func (p *Processor) Reload(ctx context.Context) error {
	_, err := p.LoadCalls(ctx, p.state.DataSource())
	return err
}

// Select replaces the selection.
func (p *Processor) Select(ids []string) {
	p.state.UpdateSelection(ids)
}

func (p *Processor) targetIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		ids = types.IDs(p.state.SelectedCalls())
	}
	if len(ids) == 0 {
		return nil, ErrNoCalls
	}
	return ids, nil
}

// Analyze runs the standard analysis for ids (the selection when ids is empty). Results are
// cached on top of the full current record and merged into the working set. If the working
// set was replaced while the request was running, the results are still cached but the
// state is left alone and state.ErrStale is returned.
func (p *Processor) Analyze(ctx context.Context, ids, keyQuestions []string) ([]types.CallRecord, error) {
	ids, err := p.targetIDs(ids)
	if err != nil {
		return nil, err
	}
	ticket := p.state.Ticket()
	results, err := p.gw.AnalyzeCalls(ctx, ids, keyQuestions)
	if err != nil {
		return results, err
	}
	return results, p.apply(ctx, ticket, results)
}

// CustomAnalyze runs a prompt-driven analysis and applies it like Analyze.
func (p *Processor) CustomAnalyze(ctx context.Context, ids []string, prompt string) (types.CustomAnalysis, error) {
	if strings.TrimSpace(prompt) == "" {
		return types.CustomAnalysis{Calls: []types.CallRecord{}}, fmt.Errorf("prompt: %w", ErrEmptyInput)
	}
	ids, err := p.targetIDs(ids)
	if err != nil {
		return types.CustomAnalysis{Calls: []types.CallRecord{}}, err
	}
	ticket := p.state.Ticket()
	res, err := p.gw.CustomAnalyzeCalls(ctx, ids, prompt)
	if err != nil {
		return res, err
	}
	return res, p.apply(ctx, ticket, res.Calls)
}

func (p *Processor) apply(ctx context.Context, ticket state.Ticket, results []types.CallRecord) error {
	current := p.state.CurrentCalls()
	byID := make(map[string]types.CallRecord, len(current))
	for _, c := range current {
		byID[c.ID] = c
	}
	full := make([]types.CallRecord, 0, len(results))
	for _, r := range results {
		full = append(full, types.Merge(byID[r.ID], r))
	}
	if err := p.cache.Upsert(ctx, full); err != nil {
		p.log.WithError(err).Error("failed to cache analysis results")
	}
	if err := p.state.CompleteAnalysisIf(ticket, results); err != nil {
		return err
	}
	p.log.WithField("count", len(results)).Info("analysis applied")
	return nil
}

// Transcribe requests transcription of ids (the selection when empty) and reloads the
// working set when at least one call was transcribed.
func (p *Processor) Transcribe(ctx context.Context, ids []string, force bool) (types.TranscribeResponse, error) {
	ids, err := p.targetIDs(ids)
	if err != nil {
		return types.TranscribeResponse{Calls: []types.TranscriptionResult{}}, err
	}
	res, err := p.gw.TranscribeCalls(ctx, ids, force)
	if err != nil {
		return res, err
	}
	done := 0
	for _, r := range res.Calls {
		if r.Status == types.TranscriptionSuccess {
			done++
		}
	}
	p.log.WithField("requested", len(ids)).WithField("transcribed", done).Info("transcription finished")
	if done > 0 {
		if err := p.Reload(ctx); err != nil {
			p.log.WithError(err).Warn("reload after transcription failed")
		}
	}
	return res, nil
}

// Preview asks for advice and suggested key questions about the selection, or about the
// whole working set when nothing is selected.
func (p *Processor) Preview(ctx context.Context) (types.PreviewResult, error) {
	calls := p.state.SelectedCalls()
	if len(calls) == 0 {
		calls = p.state.CurrentCalls()
	}
	if len(calls) == 0 {
		calls = nil
	}
	return p.gw.PreviewAnalyzeCalls(ctx, calls)
}

// Chat sends message with filters, saving both the filters and the exchange. A failed
// request is recorded in the history as an assistant message.
func (p *Processor) Chat(ctx context.Context, message string, filters types.ChatFilters) (types.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return types.ChatReply{}, fmt.Errorf("message: %w", ErrEmptyInput)
	}
	if err := p.chat.SaveFilters(ctx, filters); err != nil {
		p.log.WithError(err).Warn("failed to save chat filters")
	}
	reply, err := p.gw.SendChatMessage(ctx, message, filters, p.state.DataSource())
	answer := reply.Reply
	if err != nil {
		answer = fmt.Sprintf("Sorry, the request failed: %v", err)
	}
	if serr := p.chat.Append(ctx,
		store.NewMessage(store.SenderUser, message),
		store.NewMessage(store.SenderAssistant, answer),
	); serr != nil {
		p.log.WithError(serr).Warn("failed to save chat history")
	}
	return reply, err
}

// History returns the saved chat messages.
func (p *Processor) History(ctx context.Context) []store.Message {
	return p.chat.Messages(ctx)
}

// RefreshTags rebuilds the tag list. When the saved chat tag filter names a tag that no
// longer exists, the filter is reset.
func (p *Processor) RefreshTags(ctx context.Context) ([]string, error) {
	res, err := p.gw.RefreshTags(ctx)
	if err != nil {
		return nil, err
	}
	f := p.chat.Filters(ctx)
	if f.Tag != "" && !contains(res.Tags, f.Tag) {
		f.Tag = ""
		if err := p.chat.SaveFilters(ctx, f); err != nil {
			p.log.WithError(err).Warn("failed to reset chat tag filter")
		} else {
			p.log.Info("chat tag filter reset, tag no longer exists")
		}
	}
	return res.Tags, nil
}

// UploadReport is the outcome of Upload.
type UploadReport struct {
	Result    types.UploadResult `json:"result"`
	Preflight *dataset.Summary   `json:"preflight,omitempty"`
}

// Upload checks the workbook locally, sends it to the backend and reloads the working set.
// Files that are not .xlsx or .xls are refused before they are opened.
func (p *Processor) Upload(ctx context.Context, path string) (UploadReport, error) {
	if err := gateway.CheckUploadName(path); err != nil {
		return UploadReport{Result: types.UploadResult{Error: err.Error()}}, err
	}
	var report UploadReport
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		s, err := dataset.Preflight(path)
		if err != nil {
			p.log.WithError(err).WithField("path", path).Warn("preflight failed, uploading anyway")
		} else {
			report.Preflight = &s
		}
	}

	f, err := os.Open(path)
	if err != nil {
		report.Result.Error = err.Error()
		return report, err
	}
	defer f.Close()

	res, err := p.gw.UploadFile(ctx, filepath.Base(path), f)
	report.Result = res
	if err != nil {
		return report, err
	}
	if err := p.Reload(ctx); err != nil {
		p.log.WithError(err).Warn("reload after upload failed")
	}
	return report, nil
}

// ProcessAll asks the backend to process everything uploaded and reloads the working set.
func (p *Processor) ProcessAll(ctx context.Context) (types.ProcessResult, error) {
	res, err := p.gw.ProcessAll(ctx)
	if err != nil {
		return res, err
	}
	if err := p.Reload(ctx); err != nil {
		p.log.WithError(err).Warn("reload after processing failed")
	}
	return res, nil
}

// ImportFolder imports audio files on the backend and reloads when anything was imported.
func (p *Processor) ImportFolder(ctx context.Context, opts types.ImportOptions) (types.ImportResult, error) {
	res, err := p.gw.ImportFolder(ctx, opts)
	if err != nil {
		return res, err
	}
	if res.Imported > 0 {
		if err := p.Reload(ctx); err != nil {
			p.log.WithError(err).Warn("reload after import failed")
		}
	}
	return res, nil
}

// ClearCache drops every cached analysis.
func (p *Processor) ClearCache(ctx context.Context) error {
	return p.cache.Clear(ctx)
}

// Export writes the working set to an .xlsx workbook.
func (p *Processor) Export(path string) (int, error) {
	calls := p.state.CurrentCalls()
	if err := dataset.Export(path, calls); err != nil {
		return 0, err
	}
	return len(calls), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
