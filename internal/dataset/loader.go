package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"call-compass-go/internal/types"
)

// Column roles recognized in the first row of a call workbook.
const (
	ColID            = "id"
	ColAgent         = "agent"
	ColCustomer      = "customer"
	ColDate          = "date"
	ColTime          = "time"
	ColDuration      = "duration"
	ColStatus        = "status"
	ColRecordURL     = "recordUrl"
	ColTranscription = "transcription"
	ColTag           = "tag"
)

// headerHints maps a column role to lowercase substrings that identify it, in Russian and
// English. A header takes the first role it matches; the first such column wins.
var headerHints = []struct {
	role  string
	hints []string
}{
	{ColDuration, []string{"длительность", "duration"}},
	{ColTranscription, []string{"транскрип", "transcript", "расшифров"}},
	{ColRecordURL, []string{"ссылка на запись", "запись", "record", "audio", "url"}},
	{ColAgent, []string{"менеджер", "оператор", "agent", "manager", "operator"}},
	{ColCustomer, []string{"клиент", "customer", "client"}},
	{ColStatus, []string{"статус", "результат", "status", "result"}},
	{ColTag, []string{"тег", "tag"}},
	{ColDate, []string{"дата", "date"}},
	{ColTime, []string{"время", "time"}},
	{ColID, []string{"call id", "call_id", "id звонка", "номер", "№"}},
}

// DetectColumns returns the column index for every role found in header.
func DetectColumns(header []string) map[string]int {
	cols := map[string]int{}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		if l == "" {
			continue
		}
		for _, hh := range headerHints {
			if !matchesAny(l, hh.hints) && !(hh.role == ColID && l == "id") {
				continue
			}
			if _, taken := cols[hh.role]; !taken {
				cols[hh.role] = i
			}
			break
		}
	}
	return cols
}

func matchesAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// readRows returns the rows of the first sheet.
func readRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

// Load reads call rows from the first sheet of an .xlsx workbook. Rows without an id get
// their 1-based row number as id. Blank rows are skipped.
func Load(path string) ([]types.CallRecord, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]types.CallRecord, error) {
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}
	cols := DetectColumns(rows[0])
	out := make([]types.CallRecord, 0, len(rows)-1)
	for i, r := range rows[1:] {
		if blank(r) {
			continue
		}
		cell := func(role string) string {
			idx, ok := cols[role]
			if !ok || idx >= len(r) {
				return ""
			}
			return strings.TrimSpace(r[idx])
		}
		rec := types.CallRecord{
			ID:            cell(ColID),
			Agent:         cell(ColAgent),
			Customer:      cell(ColCustomer),
			Date:          cell(ColDate),
			Time:          cell(ColTime),
			Duration:      cell(ColDuration),
			Status:        cell(ColStatus),
			RecordURL:     cell(ColRecordURL),
			Transcription: cell(ColTranscription),
			Tag:           cell(ColTag),
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprint(i + 2)
		}
		if rec.Tag != "" {
			rec.Tags = []string{rec.Tag}
		}
		out = append(out, rec)
	}
	return out, nil
}

func blank(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
