// Package export renders the aggregate result set into downloadable formats.
// Column order always follows schema field declaration order.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/maiphh/ocr/internal/results"
)

// utf8BOM makes the CSV open correctly in Excel with non-ASCII field names.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Service turns documents into export bytes.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// CSV renders documents as UTF-8 CSV with a BOM prefix.
func (s *Service) CSV(documents []results.ExtractionResult, schemaFields []string) ([]byte, error) {
	header, rows := results.BuildCSVRows(documents, schemaFields)

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// JSON renders the full payload (documents + meta) as indented JSON.
func (s *Service) JSON(payload results.Payload) ([]byte, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode results payload: %w", err)
	}
	return data, nil
}

// XLSX returns a workbook with one "OCR Results" sheet mirroring the CSV
// layout.
func (s *Service) XLSX(documents []results.ExtractionResult, schemaFields []string) ([]byte, error) {
	start := time.Now()
	header, rows := results.BuildCSVRows(documents, schemaFields)

	f := excelize.NewFile()
	const sheet = "OCR Results"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defIndex, _ := f.GetSheetIndex("Sheet1"); defIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close xlsx: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"columns", len(header),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
