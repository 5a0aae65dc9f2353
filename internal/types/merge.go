package types

import "strings"

// Merge overlays update onto base using the additive rule: a field from update wins only
// when it is non-empty, otherwise the value already on base is kept. The id is never changed
// (an empty base id takes the update id).
//
// Empty means: "" for strings, nil for pointers, zero length for slices and maps, false for bools.
func Merge(base, update CallRecord) CallRecord {
	out := base
	if out.ID == "" {
		out.ID = update.ID
	}
	mergeSource(&out, update)
	mergeAnalysis(&out, update)
	return out
}

// MergeAnalysis is Merge restricted to the analysis fields: the source fields of base
// (agent, status, transcription and the rest) are left as they are.
func MergeAnalysis(base, update CallRecord) CallRecord {
	out := base
	if out.ID == "" {
		out.ID = update.ID
	}
	mergeAnalysis(&out, update)
	return out
}

func mergeSource(out *CallRecord, update CallRecord) {
	str(&out.Agent, update.Agent)
	str(&out.Customer, update.Customer)
	str(&out.Date, update.Date)
	str(&out.Time, update.Time)
	str(&out.Duration, update.Duration)
	str(&out.Status, update.Status)
	str(&out.Purpose, update.Purpose)
	str(&out.Transcription, update.Transcription)
	str(&out.RecordURL, update.RecordURL)
	str(&out.Tag, update.Tag)
	str(&out.SourceFile, update.SourceFile)
	str(&out.AudioDuration, update.AudioDuration)
	if update.TranscriptLength != nil {
		n := *update.TranscriptLength
		out.TranscriptLength = &n
	}
}

func mergeAnalysis(out *CallRecord, update CallRecord) {
	str(&out.AISummary, update.AISummary)
	str(&out.KeyInsight, update.KeyInsight)
	str(&out.Recommendation, update.Recommendation)
	num(&out.Score, update.Score)
	str(&out.CallType, update.CallType)
	str(&out.CallResult, update.CallResult)
	list(&out.Tags, update.Tags)
	str(&out.SupportingQuote, update.SupportingQuote)
	if len(update.QualityMetrics) > 0 {
		out.QualityMetrics = cloneMetrics(update.QualityMetrics)
	}
	list(&out.Objections, update.Objections)
	list(&out.RejectionReasons, update.RejectionReasons)
	list(&out.PainPoints, update.PainPoints)
	list(&out.CustomerRequests, update.CustomerRequests)
	list(&out.ClientInterests, update.ClientInterests)
	if update.DecisionFactors != nil {
		df := DecisionFactors{
			Positive: cloneStrings(update.DecisionFactors.Positive),
			Negative: cloneStrings(update.DecisionFactors.Negative),
		}
		out.DecisionFactors = &df
	}
	out.ManagerPerformance = mergeAssessment(out.ManagerPerformance, update.ManagerPerformance)
	out.CustomerPotential = mergeAssessment(out.CustomerPotential, update.CustomerPotential)
	num(&out.SalesReadiness, update.SalesReadiness)
	num(&out.ConversionProbability, update.ConversionProbability)
	str(&out.NextSteps, update.NextSteps)
	str(&out.KeyQuestion1Answer, update.KeyQuestion1Answer)
	str(&out.KeyQuestion2Answer, update.KeyQuestion2Answer)
	str(&out.KeyQuestion3Answer, update.KeyQuestion3Answer)
	str(&out.Evaluation, update.Evaluation)
	str(&out.KeyPoints, update.KeyPoints)
	str(&out.Issues, update.Issues)
	str(&out.CustomResponse, update.CustomResponse)
	str(&out.CustomPrompt, update.CustomPrompt)
	if update.CustomAnalyzed {
		out.CustomAnalyzed = true
	}
}

// MergeByID merges updates into base by id, preserving base order. Updates for ids not in
// base are appended in the order they first appear.
func MergeByID(base, updates []CallRecord) []CallRecord {
	out := CloneAll(base)
	index := make(map[string]int, len(out))
	for i, c := range out {
		index[c.ID] = i
	}
	for _, u := range updates {
		if u.ID == "" {
			continue
		}
		if i, ok := index[u.ID]; ok {
			out[i] = Merge(out[i], u)
			continue
		}
		index[u.ID] = len(out)
		out = append(out, Merge(CallRecord{}, u))
	}
	return out
}

// NormalizeTags trims, drops empties and removes duplicates while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Clone returns a deep copy of the record.
func (c CallRecord) Clone() CallRecord {
	return Merge(CallRecord{ID: c.ID}, c)
}

// CloneAll deep-copies a slice of records. A nil input yields an empty, non-nil slice.
func CloneAll(calls []CallRecord) []CallRecord {
	out := make([]CallRecord, len(calls))
	for i, c := range calls {
		out[i] = c.Clone()
	}
	return out
}

// IDs returns the ids of calls in order.
func IDs(calls []CallRecord) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.ID)
	}
	return out
}

// mergeAssessment applies the additive rule to each part of an assessment. Breakdown
// entries are merged key by key.
func mergeAssessment(base, update *Assessment) *Assessment {
	if update == nil {
		return base
	}
	if base == nil {
		return update.clone()
	}
	out := base.clone()
	num(&out.Score, update.Score)
	str(&out.Reason, update.Reason)
	for k, v := range update.Breakdown {
		if out.Breakdown == nil {
			out.Breakdown = map[string]float64{}
		}
		out.Breakdown[k] = v
	}
	return out
}

func (a *Assessment) clone() *Assessment {
	out := Assessment{Reason: a.Reason}
	if a.Score != nil {
		s := *a.Score
		out.Score = &s
	}
	if len(a.Breakdown) > 0 {
		out.Breakdown = cloneMetrics(a.Breakdown)
	}
	return &out
}

func str(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func num(dst **float64, v *float64) {
	if v != nil {
		f := *v
		*dst = &f
	}
}

func list(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = cloneStrings(v)
	}
}

func cloneStrings(v []string) []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

func cloneMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
