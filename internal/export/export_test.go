package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/maiphh/ocr/internal/results"
)

func sampleDocuments() []results.ExtractionResult {
	return []results.ExtractionResult{
		{
			FileToken:  "tok-1",
			FilePath:   "/tmp/a.pdf",
			Extracted:  map[string]any{"Họ và tên": "NGUYỄN VĂN A", "Tổng số ngày": 5.0},
			Confidence: 1.0,
		},
	}
}

var sampleFields = []string{"Họ và tên", "Tổng số ngày"}

func TestCSVHasBOMAndHeader(t *testing.T) {
	s := NewService(nil)
	data, err := s.CSV(sampleDocuments(), sampleFields)
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(data, utf8BOM))
	lines := strings.Split(string(data[len(utf8BOM):]), "\n")
	assert.Equal(t, "file_path,confidence,warnings,Họ và tên,Tổng số ngày", lines[0])
	assert.Contains(t, lines[1], "NGUYỄN VĂN A")
}

func TestJSONRoundTrips(t *testing.T) {
	s := NewService(nil)
	payload := results.Payload{
		Documents: sampleDocuments(),
		Meta:      results.Meta{TotalFiles: 1, SchemaVersion: "v1"},
	}

	data, err := s.JSON(payload)
	require.NoError(t, err)

	var decoded results.Payload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.Meta.TotalFiles)
	require.Len(t, decoded.Documents, 1)
	assert.Equal(t, "tok-1", decoded.Documents[0].FileToken)
}

func TestXLSXWorkbook(t *testing.T) {
	s := NewService(nil)
	data, err := s.XLSX(sampleDocuments(), sampleFields)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()

	v, err := f.GetCellValue("OCR Results", "A1")
	require.NoError(t, err)
	assert.Equal(t, "file_path", v)

	v, err = f.GetCellValue("OCR Results", "D2")
	require.NoError(t, err)
	assert.Equal(t, "NGUYỄN VĂN A", v)
}
