// Package export writes intake history as spreadsheets.
package export

import (
	"fmt"
	"io"

	"aqualog/internal/models"
	"aqualog/internal/streak"

	"github.com/xuri/excelize/v2"
)

const (
	SheetDaily   = "Daily totals"
	SheetSummary = "Summary"
)

// DailyTotalsXLSX writes one row per logged day plus a summary sheet.
func DailyTotalsXLSX(w io.Writer, totals []models.DailyTotal, goalMl int) error {
	sw := newSheetWriter()
	defer func() { _ = sw.Close() }()

	if err := sw.AddSheet(SheetDaily); err != nil {
		return err
	}
	if err := sw.WriteHeader([]string{"Day", "Total (ml)", "Goal (ml)", "Goal met"}); err != nil {
		return err
	}

	met := make([]string, 0, len(totals))
	sum := 0
	for _, t := range totals {
		reached := t.TotalMl >= goalMl
		if reached {
			met = append(met, t.Day)
		}
		sum += t.TotalMl
		if err := sw.WriteRow([]any{t.Day, t.TotalMl, goalMl, yesNo(reached)}); err != nil {
			return err
		}
	}

	if err := sw.AddSheet(SheetSummary); err != nil {
		return err
	}
	average := 0
	if len(totals) > 0 {
		average = sum / len(totals)
	}
	from, to := "", ""
	if len(totals) > 0 {
		from, to = totals[0].Day, totals[len(totals)-1].Day
	}
	rows := [][]any{
		{"From", from},
		{"To", to},
		{"Days logged", len(totals)},
		{"Days goal met", len(met)},
		{"Average (ml)", average},
		{"Longest streak", streak.Longest(streak.NewDaySet(met...))},
	}
	for _, r := range rows {
		if err := sw.WriteRow(r); err != nil {
			return err
		}
	}

	sw.file.SetActiveSheet(0)
	return sw.Save(w)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// sheetWriter appends rows to sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

// AddSheet starts a new sheet; the first call renames the default one.
func (w *sheetWriter) AddSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

func (w *sheetWriter) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *sheetWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *sheetWriter) Close() error {
	return w.file.Close()
}
