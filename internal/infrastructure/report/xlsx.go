// Package report renders analytics reports as spreadsheets.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

const (
	sheetName       = "Report"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// built-in excelize number format "#,##0.00"
	moneyNumFmt = 4
	// built-in excelize number format "0.00%"
	percentNumFmt = 10
)

type XLSXExporter struct{}

func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (XLSXExporter) ContentType() string {
	return ContentTypeXLSX
}

func (XLSXExporter) FileName(rep *domain.Report) string {
	return fmt.Sprintf("findoc-%s-report-%s.xlsx", rep.Type, rep.GeneratedAt.UTC().Format("20060102"))
}

// Export writes rep as a two-column label/value sheet.
func (XLSXExporter) Export(w io.Writer, rep *domain.Report) error {
	if rep == nil {
		return domain.WrapError(domain.ErrInvalidInput, "export report", fmt.Errorf("report is nil"))
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sheet := &sheetWriter{file: f}
	if err := sheet.prepareStyles(); err != nil {
		return err
	}

	sheet.heading("FinDoc " + string(rep.Type) + " report")
	sheet.text("Generated at", rep.GeneratedAt.UTC().Format(time.RFC3339))
	sheet.text("From", formatBound(rep.Range.From))
	sheet.text("To", formatBound(rep.Range.To))
	sheet.number("Total documents", float64(rep.TotalDocuments), 0)

	switch rep.Type {
	case domain.ReportFinancial:
		sheet.blank()
		sheet.heading("Financial")
		sheet.optionalInt("Invoices", rep.TotalInvoices)
		sheet.optionalInt("Receipts", rep.TotalReceipts)
		sheet.money("Total value", rep.TotalValue)
		sheet.money("Average value", rep.AverageValue)
	case domain.ReportProcessing:
		sheet.blank()
		sheet.heading("Processing")
		sheet.optionalInt("Successful", rep.Successful)
		sheet.optionalInt("Failed", rep.Failed)
		if rep.SuccessRate != nil {
			sheet.number("Success rate", *rep.SuccessRate, sheet.percentStyle)
		}
		if rep.AverageProcessingTimeSeconds != nil {
			sheet.number("Average processing seconds", *rep.AverageProcessingTimeSeconds, 0)
		}
	default:
		sheet.money("Total value", rep.TotalValue)
		sheet.counts("By status", rep.ByStatus)
		sheet.counts("By type", rep.ByType)
	}

	if sheet.err != nil {
		return fmt.Errorf("fill report sheet: %w", sheet.err)
	}
	if err := f.SetColWidth(sheetName, "A", "A", 30); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "B", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// sheetWriter appends label/value rows and keeps the first error.
type sheetWriter struct {
	file         *excelize.File
	row          int
	err          error
	headingStyle int
	moneyStyle   int
	percentStyle int
}

func (s *sheetWriter) prepareStyles() error {
	var err error
	if s.headingStyle, err = s.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}}); err != nil {
		return fmt.Errorf("create heading style: %w", err)
	}
	if s.moneyStyle, err = s.file.NewStyle(&excelize.Style{NumFmt: moneyNumFmt}); err != nil {
		return fmt.Errorf("create money style: %w", err)
	}
	if s.percentStyle, err = s.file.NewStyle(&excelize.Style{NumFmt: percentNumFmt}); err != nil {
		return fmt.Errorf("create percent style: %w", err)
	}
	return nil
}

func (s *sheetWriter) next() (string, string) {
	s.row++
	return fmt.Sprintf("A%d", s.row), fmt.Sprintf("B%d", s.row)
}

func (s *sheetWriter) set(cell string, value any) {
	if s.err != nil {
		return
	}
	s.err = s.file.SetCellValue(sheetName, cell, value)
}

func (s *sheetWriter) style(cell string, style int) {
	if s.err != nil || style == 0 {
		return
	}
	s.err = s.file.SetCellStyle(sheetName, cell, cell, style)
}

func (s *sheetWriter) blank() {
	s.row++
}

func (s *sheetWriter) heading(title string) {
	a, _ := s.next()
	s.set(a, title)
	s.style(a, s.headingStyle)
}

func (s *sheetWriter) text(label, value string) {
	a, b := s.next()
	s.set(a, label)
	s.set(b, value)
}

func (s *sheetWriter) number(label string, value float64, style int) {
	a, b := s.next()
	s.set(a, label)
	s.set(b, value)
	s.style(b, style)
}

func (s *sheetWriter) optionalInt(label string, value *int) {
	if value == nil {
		return
	}
	s.number(label, float64(*value), 0)
}

// money renders cents as currency units.
func (s *sheetWriter) money(label string, cents *int64) {
	if cents == nil {
		return
	}
	s.number(label, float64(*cents)/100, s.moneyStyle)
}

func (s *sheetWriter) counts(title string, values map[string]int) {
	if len(values) == 0 {
		return
	}
	s.blank()
	s.heading(title)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.number(k, float64(values[k]), 0)
	}
}
