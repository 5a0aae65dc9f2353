package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"call-compass-go/internal/types"
)

// wireCall is a call as the backend sends it. Spreadsheet-backed calls carry raw cell
// values: tags arrive either as an array or as a JSON-encoded string, numbers may arrive
// as strings and ids as numbers.
type wireCall struct {
	types.CallRecord
	ID                    json.RawMessage `json:"id"`
	Tags                  json.RawMessage `json:"tags,omitempty"`
	Score                 json.RawMessage `json:"score,omitempty"`
	SalesReadiness        json.RawMessage `json:"salesReadiness,omitempty"`
	ConversionProbability json.RawMessage `json:"conversionProbability,omitempty"`
	TranscriptLength      json.RawMessage `json:"transcriptLength,omitempty"`
}

func (w wireCall) normalize() types.CallRecord {
	c := w.CallRecord
	c.ID = looseString(w.ID)
	c.Score = looseNumber(w.Score)
	c.SalesReadiness = looseNumber(w.SalesReadiness)
	c.ConversionProbability = looseNumber(w.ConversionProbability)
	if n := looseNumber(w.TranscriptLength); n != nil {
		v := int(*n)
		c.TranscriptLength = &v
	}
	c.Tags = types.NormalizeTags(decodeTags(w.Tags))
	if len(c.Tags) == 0 && c.Tag != "" {
		c.Tags = []string{c.Tag}
	}
	return c
}

func normalizeAll(in []wireCall) []types.CallRecord {
	out := make([]types.CallRecord, 0, len(in))
	for _, w := range in {
		out = append(out, w.normalize())
	}
	return out
}

// looseNumber reads a JSON number or a string holding one (a decimal comma is accepted).
// Anything else, including an empty cell, is nil.
func looseNumber(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// looseString reads a JSON string, or the literal text of a number.
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// decodeTags turns the raw tags value into a list. A string holding a JSON array is
// unpacked; any other string becomes a single tag.
func decodeTags(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '[':
		var items []any
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		return stringify(items)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return []string{s}
		}
		if items, ok := parsed.([]any); ok {
			return stringify(items)
		}
		return []string{s}
	}
	return []string{string(raw)}
}

func stringify(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case nil:
		case string:
			out = append(out, v)
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}
