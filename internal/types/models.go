package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DataSource selects the partition of calls the backend returns.
type DataSource string

const (
	SourceAll   DataSource = "all"
	SourceCloud DataSource = "cloud"
	SourceLocal DataSource = "local"
)

// ParseDataSource accepts all|cloud|local (case-insensitive). Empty means all.
func ParseDataSource(s string) (DataSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return SourceAll, nil
	case "cloud":
		return SourceCloud, nil
	case "local":
		return SourceLocal, nil
	}
	return "", fmt.Errorf("unknown data source %q (want all, cloud or local)", s)
}

// Call outcome labels used by the backend.
const (
	ResultSuccessful   = "успешный"
	ResultUnsuccessful = "неуспешный"
	ResultAttention    = "требует внимания"
)

// CallRecord is one recorded call plus whatever analysis has been attached to it.
type CallRecord struct {
	// source fields
	ID               string `json:"id"`
	Agent            string `json:"agent,omitempty"`
	Customer         string `json:"customer,omitempty"`
	Date             string `json:"date,omitempty"`
	Time             string `json:"time,omitempty"`
	Duration         string `json:"duration,omitempty"`
	Status           string `json:"status,omitempty"`
	Purpose          string `json:"purpose,omitempty"`
	Transcription    string `json:"transcription,omitempty"`
	RecordURL        string `json:"recordUrl,omitempty"`
	Tag              string `json:"tag,omitempty"`
	SourceFile       string `json:"sourceFile,omitempty"`
	AudioDuration    string `json:"audioDuration,omitempty"`
	TranscriptLength *int   `json:"transcriptLength,omitempty"`

	// analysis fields
	AISummary             string             `json:"aiSummary,omitempty"`
	KeyInsight            string             `json:"keyInsight,omitempty"`
	Recommendation        string             `json:"recommendation,omitempty"`
	Score                 *float64           `json:"score,omitempty"`
	CallType              string             `json:"callType,omitempty"`
	CallResult            string             `json:"callResult,omitempty"`
	Tags                  []string           `json:"tags,omitempty"`
	SupportingQuote       string             `json:"supportingQuote,omitempty"`
	QualityMetrics        map[string]float64 `json:"qualityMetrics,omitempty"`
	Objections            []string           `json:"objections,omitempty"`
	RejectionReasons      []string           `json:"rejectionReasons,omitempty"`
	PainPoints            []string           `json:"painPoints,omitempty"`
	CustomerRequests      []string           `json:"customerRequests,omitempty"`
	ClientInterests       []string           `json:"clientInterests,omitempty"`
	DecisionFactors       *DecisionFactors   `json:"decisionFactors,omitempty"`
	ManagerPerformance    *Assessment        `json:"managerPerformance,omitempty"`
	CustomerPotential     *Assessment        `json:"customerPotential,omitempty"`
	SalesReadiness        *float64           `json:"salesReadiness,omitempty"`
	ConversionProbability *float64           `json:"conversionProbability,omitempty"`
	NextSteps             string             `json:"nextSteps,omitempty"`
	KeyQuestion1Answer    string             `json:"keyQuestion1Answer,omitempty"`
	KeyQuestion2Answer    string             `json:"keyQuestion2Answer,omitempty"`
	KeyQuestion3Answer    string             `json:"keyQuestion3Answer,omitempty"`
	Evaluation            string             `json:"evaluation,omitempty"`
	KeyPoints             string             `json:"keyPoints,omitempty"`
	Issues                string             `json:"issues,omitempty"`
	CustomResponse        string             `json:"customResponse,omitempty"`
	CustomPrompt          string             `json:"customPrompt,omitempty"`
	CustomAnalyzed        bool               `json:"customAnalyzed,omitempty"`
}

// Outcome returns callResult when set, otherwise status.
func (c CallRecord) Outcome() string {
	if c.CallResult != "" {
		return c.CallResult
	}
	return c.Status
}

// Analyzed reports whether the record carries a usable analysis (key insight and a positive score).
func (c CallRecord) Analyzed() bool {
	return c.KeyInsight != "" && c.Score != nil && *c.Score > 0
}

// DecisionFactors lists what attracted or put off the customer.
type DecisionFactors struct {
	Positive []string `json:"positive,omitempty"`
	Negative []string `json:"negative,omitempty"`
}

// Assessment is a numeric score with a free-text rationale, optionally broken down into sub-scores.
type Assessment struct {
	Score     *float64           `json:"score,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// UnmarshalJSON accepts the canonical {score, reason, breakdown} shape as well as the
// backend's manager shape {"общая_оценка": n, "details": "...", "<metric>": n}. When both
// shapes are present the canonical keys win.
func (a *Assessment) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Assessment{}
	for _, k := range []string{"score", "overall", "общая_оценка"} {
		var f float64
		if v, ok := raw[k]; ok && json.Unmarshal(v, &f) == nil {
			out.Score = &f
			break
		}
	}
	for _, k := range []string{"reason", "details"} {
		var s string
		if v, ok := raw[k]; ok && json.Unmarshal(v, &s) == nil && s != "" {
			out.Reason = s
			break
		}
	}
	for k, v := range raw {
		switch k {
		case "score", "overall", "общая_оценка", "reason", "details", "breakdown":
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err == nil {
			out.setBreakdown(k, f)
		}
	}
	if v, ok := raw["breakdown"]; ok {
		var m map[string]float64
		if err := json.Unmarshal(v, &m); err == nil {
			for mk, mv := range m {
				out.setBreakdown(mk, mv)
			}
		}
	}
	*a = out
	return nil
}

func (a *Assessment) setBreakdown(k string, v float64) {
	if a.Breakdown == nil {
		a.Breakdown = map[string]float64{}
	}
	a.Breakdown[k] = v
}

// TranscriptionResult is the per-call outcome of /transcribe.
type TranscriptionResult struct {
	ID            string `json:"id"`
	Transcription string `json:"transcription"`
	Status        string `json:"status"`
}

// Transcription statuses.
const (
	TranscriptionSuccess  = "success"
	TranscriptionExisting = "existing"
	TranscriptionError    = "error"
)

// TranscribeResponse wraps the transcription results with the backend's summary message.
type TranscribeResponse struct {
	Calls   []TranscriptionResult `json:"calls"`
	Message string                `json:"message,omitempty"`
}

// CustomAnalysis is the result of an analysis driven by a user prompt.
type CustomAnalysis struct {
	Result        string       `json:"result,omitempty"`
	Calls         []CallRecord `json:"calls"`
	AvailableTags []string     `json:"availableTags,omitempty"`
}

// PreviewResult is advisory text produced before a full analysis.
type PreviewResult struct {
	PreviewReport string   `json:"previewReport"`
	LLMAdvice     string   `json:"llmAdvice"`
	KeyQuestions  []string `json:"keyQuestions"`
	Error         string   `json:"error,omitempty"`
}

// Duration buckets understood by the chat filter.
const (
	DurationShort  = "short"
	DurationMedium = "medium"
	DurationLong   = "long"
)

// ChatFilters narrows the call set the chat answers about.
type ChatFilters struct {
	Status   string   `json:"status,omitempty"`
	Operator string   `json:"operator,omitempty"`
	Date     string   `json:"date,omitempty"`
	Duration string   `json:"duration,omitempty"`
	Tag      string   `json:"tag,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ChatReply is the backend answer to a chat message.
type ChatReply struct {
	Reply         string   `json:"reply"`
	AvailableTags []string `json:"availableTags,omitempty"`
}

// UploadResult is the backend answer to an Excel upload.
type UploadResult struct {
	Message         string `json:"message,omitempty"`
	Warning         string `json:"warning,omitempty"`
	Rows            int    `json:"rows,omitempty"`
	TranscribeCount int    `json:"transcribe_count,omitempty"`
	Filename        string `json:"filename,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ProcessResult is the answer to /process.
type ProcessResult struct {
	Message string `json:"message"`
	Success *int   `json:"success,omitempty"`
	Failed  *int   `json:"failed,omitempty"`
}

// ImportOptions controls a server-side folder import.
type ImportOptions struct {
	Extensions []string `json:"extensions,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Transcribe bool     `json:"transcribe,omitempty"`
	Analyze    bool     `json:"analyze,omitempty"`
}

// ImportResult is the answer to /import-folder.
type ImportResult struct {
	Success     bool   `json:"success"`
	Imported    int    `json:"imported"`
	Transcribed int    `json:"transcribed"`
	Analyzed    int    `json:"analyzed"`
	TotalFound  int    `json:"total_found"`
	Error       string `json:"error,omitempty"`
}

// TagsResult is the answer to /refresh-tags.
type TagsResult struct {
	Success bool     `json:"success"`
	Tags    []string `json:"tags,omitempty"`
	Error   string   `json:"error,omitempty"`
}
