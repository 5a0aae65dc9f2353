package dataset

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"call-compass-go/internal/logger"
)

// Summary describes a workbook before it is uploaded.
type Summary struct {
	Path       string         `json:"path"`
	Rows       int            `json:"rows"`
	Columns    map[string]int `json:"columns"`
	Missing    []string       `json:"missing,omitempty"`
	ByStatus   map[string]int `json:"by_status"`
	WithRecord int            `json:"with_record"`
	Agents     []string       `json:"agents"`
}

// Ready reports whether the backend can do anything with the workbook.
func (s Summary) Ready() bool {
	_, rec := s.Columns[ColRecordURL]
	_, tr := s.Columns[ColTranscription]
	return s.Rows > 0 && (rec || tr)
}

// Preflight inspects an .xlsx workbook locally: which columns were recognized, how many
// call rows it holds and how they split by status. Legacy .xls files cannot be read
// locally and return an error.
func Preflight(path string) (Summary, error) {
	log := logger.New().WithComponent("dataset").WithField("path", path)
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return Summary{}, fmt.Errorf("preflight supports .xlsx only, got %q", filepath.Ext(path))
	}
	rows, err := readRows(path)
	if err != nil {
		log.WithError(err).Error("open failed")
		return Summary{}, err
	}
	calls, err := fromRows(rows)
	if err != nil {
		log.WithError(err).Warn("workbook has no call rows")
		return Summary{}, err
	}

	s := Summary{
		Path:     path,
		Rows:     len(calls),
		Columns:  DetectColumns(rows[0]),
		ByStatus: map[string]int{},
		Agents:   []string{},
	}
	for _, role := range []string{ColID, ColAgent, ColDate, ColDuration, ColStatus, ColRecordURL} {
		if _, ok := s.Columns[role]; !ok {
			s.Missing = append(s.Missing, role)
		}
	}
	agents := map[string]struct{}{}
	for _, c := range calls {
		if c.Status != "" {
			s.ByStatus[c.Status]++
		}
		if c.RecordURL != "" {
			s.WithRecord++
		}
		if c.Agent != "" {
			agents[c.Agent] = struct{}{}
		}
	}
	for a := range agents {
		s.Agents = append(s.Agents, a)
	}
	sort.Strings(s.Agents)

	log.WithField("rows", s.Rows).
		WithField("columns", len(s.Columns)).
		WithField("missing", s.Missing).
		Info("workbook preflight complete")
	return s, nil
}
