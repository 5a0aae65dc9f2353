package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"call-compass-go/internal/types"
)

// MaxKeyQuestions is how many key questions the backend answers per call.
const MaxKeyQuestions = 3

// FetchCalls lists calls for a data source. On failure it returns an empty slice and the error.
func (c *Client) FetchCalls(ctx context.Context, source types.DataSource) ([]types.CallRecord, error) {
	path := "/calls"
	if source != "" && source != types.SourceAll {
		path += "?source=" + url.QueryEscape(string(source))
	}
	var resp struct {
		Calls []wireCall `json:"calls"`
	}
	if err := c.doJSON(ctx, "fetch_calls", http.MethodGet, path, nil, &resp); err != nil {
		c.log.WithError(err).WithField("source", source).Warn("fetch calls failed, returning empty set")
		return []types.CallRecord{}, err
	}
	calls := normalizeAll(resp.Calls)
	c.log.WithField("source", source).WithField("count", len(calls)).Debug("calls fetched")
	return calls, nil
}

// AnalyzeCalls asks the backend to analyze ids, answering up to three key questions.
// The result covers only the requested ids and carries analysis fields only.
func (c *Client) AnalyzeCalls(ctx context.Context, ids []string, keyQuestions []string) ([]types.CallRecord, error) {
	req := struct {
		CallIDs      []string `json:"callIds"`
		KeyQuestions []string `json:"keyQuestions"`
	}{CallIDs: nonNil(ids), KeyQuestions: clampQuestions(keyQuestions)}

	var resp struct {
		Calls []wireCall `json:"calls"`
	}
	if err := c.doJSON(ctx, "analyze", http.MethodPost, "/analyze", req, &resp); err != nil {
		c.log.WithError(err).WithField("ids", len(ids)).Warn("analyze failed, returning no results")
		return []types.CallRecord{}, err
	}
	return normalizeAll(resp.Calls), nil
}

// CustomAnalyzeCalls runs a prompt-driven analysis. Every returned call has a non-empty
// CustomResponse and is marked with the prompt it answers.
func (c *Client) CustomAnalyzeCalls(ctx context.Context, ids []string, prompt string) (types.CustomAnalysis, error) {
	req := struct {
		CallIDs []string `json:"callIds"`
		Prompt  string   `json:"prompt"`
	}{CallIDs: nonNil(ids), Prompt: prompt}

	var resp struct {
		Result        string     `json:"result"`
		Calls         []wireCall `json:"calls"`
		AvailableTags []string   `json:"availableTags"`
	}
	if err := c.doJSON(ctx, "custom_analyze", http.MethodPost, "/custom-analyze", req, &resp); err != nil {
		c.log.WithError(err).WithField("ids", len(ids)).Warn("custom analyze failed, returning no results")
		return types.CustomAnalysis{Calls: []types.CallRecord{}}, err
	}

	calls := normalizeAll(resp.Calls)
	for i := range calls {
		if calls[i].CustomResponse == "" {
			calls[i].CustomResponse = synthesizeResponse(prompt, calls[i])
		}
		calls[i].CustomAnalyzed = true
		calls[i].CustomPrompt = prompt
	}
	return types.CustomAnalysis{
		Result:        resp.Result,
		Calls:         calls,
		AvailableTags: types.NormalizeTags(resp.AvailableTags),
	}, nil
}

func synthesizeResponse(prompt string, call types.CallRecord) string {
	answer := call.KeyInsight
	if answer == "" {
		answer = call.KeyPoints
	}
	if answer == "" {
		answer = "no information received"
	}
	return fmt.Sprintf("Answer to '%s': %s", prompt, answer)
}

// TranscribeCalls requests transcription; force discards any cached transcription first.
func (c *Client) TranscribeCalls(ctx context.Context, ids []string, force bool) (types.TranscribeResponse, error) {
	req := struct {
		CallIDs           []string `json:"callIds"`
		ForceRetranscribe bool     `json:"forceRetranscribe"`
	}{CallIDs: nonNil(ids), ForceRetranscribe: force}

	var resp types.TranscribeResponse
	if err := c.doJSON(ctx, "transcribe", http.MethodPost, "/transcribe", req, &resp); err != nil {
		c.log.WithError(err).WithField("ids", len(ids)).Warn("transcribe failed, returning no results")
		return types.TranscribeResponse{Calls: []types.TranscriptionResult{}}, err
	}
	if resp.Calls == nil {
		resp.Calls = []types.TranscriptionResult{}
	}
	return resp, nil
}

// ProcessAll asks the backend to process the whole uploaded workbook.
func (c *Client) ProcessAll(ctx context.Context) (types.ProcessResult, error) {
	var resp types.ProcessResult
	if err := c.doJSON(ctx, "process", http.MethodPost, "/process", struct{}{}, &resp); err != nil {
		c.log.WithError(err).Warn("process all failed")
		return types.ProcessResult{Message: "error: " + err.Error()}, err
	}
	if resp.Message == "" {
		resp.Message = "processing finished"
	}
	return resp, nil
}

// Fallback advice used when the preview cannot be produced.
var (
	previewFallbackReport = "Preview analysis could not be performed."
	previewFallbackAdvice = "Check that the calls have transcriptions and try again later."
	previewFallbackQs     = []string{
		"What makes a call successful?",
		"Which objections come up most often?",
		"How can the call script be improved?",
	}
)

// PreviewAnalyzeCalls produces advisory text and up to three suggested key questions.
// Nothing it returns is merged into call records.
func (c *Client) PreviewAnalyzeCalls(ctx context.Context, calls []types.CallRecord) (types.PreviewResult, error) {
	var req any = struct{}{}
	if calls != nil {
		req = struct {
			Calls []types.CallRecord `json:"calls"`
		}{Calls: calls}
	}
	var resp types.PreviewResult
	err := c.doJSON(ctx, "preview_analyze", http.MethodPost, "/preview-analyze", req, &resp)
	if err == nil && resp.Error != "" {
		err = newError("preview_analyze", KindBackend, 0, fmt.Errorf("%s", resp.Error))
	}
	if err != nil {
		c.log.WithError(err).Warn("preview analyze failed, using fallback questions")
		return types.PreviewResult{
			PreviewReport: previewFallbackReport,
			LLMAdvice:     previewFallbackAdvice,
			KeyQuestions:  append([]string(nil), previewFallbackQs...),
			Error:         err.Error(),
		}, err
	}
	resp.KeyQuestions = clampQuestions(resp.KeyQuestions)
	return resp, nil
}

// SendChatMessage asks a free-text question about the calls matching filters.
func (c *Client) SendChatMessage(ctx context.Context, message string, filters types.ChatFilters, source types.DataSource) (types.ChatReply, error) {
	if source == "" {
		source = types.SourceAll
	}
	req := struct {
		Message    string            `json:"message"`
		Filters    types.ChatFilters `json:"filters"`
		DataSource types.DataSource  `json:"dataSource"`
	}{Message: message, Filters: filters, DataSource: source}

	var resp types.ChatReply
	if err := c.doJSON(ctx, "chat", http.MethodPost, "/chat", req, &resp); err != nil {
		c.log.WithError(err).Warn("chat request failed")
		return types.ChatReply{}, err
	}
	resp.AvailableTags = types.NormalizeTags(resp.AvailableTags)
	return resp, nil
}

// ImportFolder asks the backend to import audio files from its local folder.
func (c *Client) ImportFolder(ctx context.Context, opts types.ImportOptions) (types.ImportResult, error) {
	var resp types.ImportResult
	if err := c.doJSON(ctx, "import_folder", http.MethodPost, "/import-folder", opts, &resp); err != nil {
		c.log.WithError(err).Warn("import folder failed")
		return types.ImportResult{Error: err.Error()}, err
	}
	if !resp.Success && resp.Error != "" {
		err := newError("import_folder", KindBackend, 0, fmt.Errorf("%s", resp.Error))
		return resp, err
	}
	return resp, nil
}

// RefreshTags asks the backend to rebuild and return the set of known tags.
func (c *Client) RefreshTags(ctx context.Context) (types.TagsResult, error) {
	var resp types.TagsResult
	if err := c.doJSON(ctx, "refresh_tags", http.MethodGet, "/refresh-tags", nil, &resp); err != nil {
		c.log.WithError(err).Warn("refresh tags failed")
		return types.TagsResult{Error: err.Error()}, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "backend reported failure"
		}
		return resp, newError("refresh_tags", KindBackend, 0, fmt.Errorf("%s", msg))
	}
	resp.Tags = types.NormalizeTags(resp.Tags)
	return resp, nil
}

func clampQuestions(qs []string) []string {
	out := make([]string, 0, MaxKeyQuestions)
	for _, q := range qs {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == MaxKeyQuestions {
			break
		}
	}
	return out
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
