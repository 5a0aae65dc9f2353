package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"call-compass-go/internal/types"
)

const exportSheet = "Calls"

var exportHeader = []string{
	"ID", "Менеджер", "Клиент", "Дата", "Время", "Длительность", "Статус",
	"Результат", "Оценка", "Тип звонка", "Теги", "Ключевой инсайт", "Рекомендация",
	"Ответ 1", "Ответ 2", "Ответ 3", "Ссылка на запись",
}

func exportRow(c types.CallRecord) []any {
	var score any
	if c.Score != nil {
		score = *c.Score
	}
	return []any{
		c.ID, c.Agent, c.Customer, c.Date, c.Time, c.Duration, c.Status,
		c.CallResult, score, c.CallType, strings.Join(c.Tags, ", "), c.KeyInsight, c.Recommendation,
		c.KeyQuestion1Answer, c.KeyQuestion2Answer, c.KeyQuestion3Answer, c.RecordURL,
	}
}

// Export writes calls to a new workbook at path, one row per call after a header row.
func Export(path string, calls []types.CallRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, c := range calls {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(c)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
