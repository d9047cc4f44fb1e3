// Package results holds the extraction result model and the downstream
// renderings (table rows, CSV rows, summary) built from it.
package results

import (
	"fmt"
	"path/filepath"
)

// ExtractionResult is the outcome of processing one page/document. Created
// once by the pipeline; only the explicit edit pathway replaces its extracted
// data and warnings wholesale, keyed by FileToken.
type ExtractionResult struct {
	FileToken        string         `json:"file_token"`
	FilePath         string         `json:"file_path"`
	FileName         string         `json:"file_name"`
	OriginalFileName string         `json:"original_file_name,omitempty"`
	PageNumber       int            `json:"page_number"`
	TotalPages       int            `json:"total_pages"`
	PageCount        int            `json:"page_count,omitempty"`
	Extracted        map[string]any `json:"extracted"`
	Confidence       float64        `json:"confidence"`
	Warnings         []string       `json:"warnings"`
}

// PageLabel renders the "Page N/M" label shown next to a result row.
func (r ExtractionResult) PageLabel() string {
	return fmt.Sprintf("Page %d/%d", r.PageNumber, r.TotalPages)
}

// Meta describes how a result set was produced.
type Meta struct {
	TotalFiles      int      `json:"total_files"`
	Language        string   `json:"language"`
	SchemaVersion   string   `json:"schema_version"`
	ParsingStrategy string   `json:"parsing_strategy"`
	SplitNotes      []string `json:"split_notes"`
	OCREngine       string   `json:"ocr_engine"`
	OCRLanguages    []string `json:"ocr_languages"`
}

// Payload is the exported result set: the document list plus its meta block.
type Payload struct {
	Documents []ExtractionResult `json:"documents"`
	Meta      Meta               `json:"meta"`
}

// TableRow is the UI-facing rendering of one result.
type TableRow struct {
	FileKey           string         `json:"fileKey"`
	FileName          string         `json:"fileName"`
	FilePath          string         `json:"filePath"`
	Confidence        float64        `json:"confidence"`
	ConfidenceDisplay string         `json:"confidenceDisplay"`
	Warnings          []string       `json:"warnings"`
	Fields            map[string]any `json:"fields"`
	PageCount         int            `json:"pageCount"`
	OriginalName      string         `json:"originalName"`
	PageNumber        int            `json:"pageNumber"`
	TotalPages        int            `json:"totalPages"`
	PageLabel         string         `json:"pageLabel"`
}

// Summary aggregates a document list for the UI header.
type Summary struct {
	TotalFiles        int     `json:"totalFiles"`
	AverageConfidence float64 `json:"averageConfidence"`
	WarningsCount     int     `json:"warningsCount"`
}

// BuildTableRows renders documents into UI table rows.
func BuildTableRows(documents []ExtractionResult) []TableRow {
	rows := make([]TableRow, 0, len(documents))
	for _, doc := range documents {
		pageCount := doc.PageCount
		if pageCount == 0 {
			pageCount = 1
		}
		pageNumber := doc.PageNumber
		if pageNumber == 0 {
			pageNumber = 1
		}
		totalPages := doc.TotalPages
		if totalPages == 0 {
			totalPages = pageCount
		}
		originalName := doc.OriginalFileName
		if originalName == "" {
			originalName = filepath.Base(doc.FilePath)
		}
		fileName := doc.FileName
		if fileName == "" {
			fileName = originalName
		}
		rows = append(rows, TableRow{
			FileKey:           doc.FileToken,
			FileName:          fileName,
			FilePath:          doc.FilePath,
			Confidence:        doc.Confidence,
			ConfidenceDisplay: fmt.Sprintf("%.1f%%", doc.Confidence*100),
			Warnings:          doc.Warnings,
			Fields:            doc.Extracted,
			PageCount:         pageCount,
			OriginalName:      originalName,
			PageNumber:        pageNumber,
			TotalPages:        totalPages,
			PageLabel:         fmt.Sprintf("Page %d/%d", pageNumber, totalPages),
		})
	}
	return rows
}

// BuildCSVRows flattens documents into export rows: file_path, confidence,
// joined warnings, then one column per schema field in schema order.
func BuildCSVRows(documents []ExtractionResult, schemaFields []string) ([]string, [][]string) {
	header := append([]string{"file_path", "confidence", "warnings"}, schemaFields...)
	rows := make([][]string, 0, len(documents))
	for _, doc := range documents {
		row := make([]string, 0, len(header))
		row = append(row,
			doc.FilePath,
			fmt.Sprintf("%g", doc.Confidence),
			joinWarnings(doc.Warnings),
		)
		for _, field := range schemaFields {
			row = append(row, cellString(doc.Extracted[field]))
		}
		rows = append(rows, row)
	}
	return header, rows
}

// CalculateSummary computes the header summary for a document list.
func CalculateSummary(documents []ExtractionResult) Summary {
	total := len(documents)
	sum := 0.0
	warned := 0
	for _, doc := range documents {
		sum += doc.Confidence
		if len(doc.Warnings) > 0 {
			warned++
		}
	}
	avg := 0.0
	if total > 0 {
		avg = sum / float64(total)
	}
	return Summary{TotalFiles: total, AverageConfidence: avg, WarningsCount: warned}
}

func joinWarnings(warnings []string) string {
	out := ""
	for i, w := range warnings {
		if i > 0 {
			out += "; "
		}
		out += w
	}
	return out
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
