package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMissingRequired(t *testing.T) {
	spec := FieldSpec{Type: TypeString, Required: true}

	for _, value := range []any{nil, "", NotAvailable} {
		normalized, warnings := Validate("Name", value, spec)
		assert.Equal(t, NotAvailable, normalized)
		require.Len(t, warnings, 1)
		assert.True(t, warnings[0].MissingRequired)
		assert.Equal(t, "Name", warnings[0].Field)
	}
}

func TestValidateMissingNullable(t *testing.T) {
	normalized, warnings := Validate("Notes", "", FieldSpec{Type: TypeString, Nullable: true})
	assert.Nil(t, normalized)
	assert.Empty(t, warnings)

	// Required but nullable: null is acceptable, no penalty.
	normalized, warnings = Validate("Notes", NotAvailable, FieldSpec{Type: TypeString, Required: true, Nullable: true})
	assert.Nil(t, normalized)
	assert.Empty(t, warnings)
}

func TestNormalizeNumberSeparators(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  float64
	}{
		{"european", "1.234,56", 1234.56},
		{"english", "1,234.56", 1234.56},
		{"comma decimal", "12,34", 12.34},
		{"comma thousands", "1,234", 1234},
		{"currency noise", "$ 1,234.56 USD", 1234.56},
		{"plain", "42", 42},
		{"negative", "-17.5", -17.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, warnings := Validate("Amount", tt.raw, FieldSpec{Type: TypeNumber})
			assert.Empty(t, warnings)
			assert.Equal(t, tt.want, normalized)
		})
	}
}

func TestNormalizeNumberUnparseable(t *testing.T) {
	normalized, warnings := Validate("Amount", "abc", FieldSpec{Type: TypeNumber})
	// Raw value kept so nothing is silently lost.
	assert.Equal(t, "abc", normalized)
	require.Len(t, warnings, 1)
	assert.False(t, warnings[0].MissingRequired)
}

func TestNormalizeNumberNonString(t *testing.T) {
	normalized, warnings := Validate("Amount", 12.5, FieldSpec{Type: TypeNumber})
	assert.Empty(t, warnings)
	assert.Equal(t, 12.5, normalized)
}

func TestNormalizeDatePatterns(t *testing.T) {
	spec := FieldSpec{Type: TypeDate, Format: FormatISODate}

	tests := []struct {
		raw  string
		want string
	}{
		{"2023-01-05", "2023-01-05"},
		{"05/01/2023", "2023-01-05"},
		{"05-01-2023", "2023-01-05"},
		{"2023/01/05", "2023-01-05"},
	}
	for _, tt := range tests {
		normalized, warnings := Validate("Date", tt.raw, spec)
		assert.Empty(t, warnings, "raw=%s", tt.raw)
		assert.Equal(t, tt.want, normalized)
	}
}

func TestNormalizeDateIdempotent(t *testing.T) {
	spec := FieldSpec{Type: TypeDate, Format: FormatISODate}
	first, _ := Validate("Date", "05/01/2023", spec)
	second, warnings := Validate("Date", first, spec)
	assert.Empty(t, warnings)
	assert.Equal(t, first, second)
}

func TestNormalizeDateUnrecognized(t *testing.T) {
	normalized, warnings := Validate("Date", "next tuesday", FieldSpec{Type: TypeDate, Format: FormatISODate})
	assert.Equal(t, "next tuesday", normalized)
	require.Len(t, warnings, 1)
}

func TestValidateRegexAnchoredAtStart(t *testing.T) {
	spec, err := compileSpec("Code", FieldSpec{Type: TypeString, Regex: `[A-Z]\d+`})
	require.NoError(t, err)

	_, warnings := Validate("Code", "A123", spec)
	assert.Empty(t, warnings)

	// Match not at position 0 still warns.
	_, warnings = Validate("Code", "xA123", spec)
	require.Len(t, warnings, 1)
}

func TestValidateEnum(t *testing.T) {
	spec := FieldSpec{Type: TypeString, Enum: []string{"red", "green"}}

	_, warnings := Validate("Color", "green", spec)
	assert.Empty(t, warnings)

	_, warnings = Validate("Color", "blue", spec)
	require.Len(t, warnings, 1)
	assert.False(t, warnings[0].MissingRequired)
}

func TestSchemaNormalizeConfidence(t *testing.T) {
	s, err := New(map[string]FieldSpec{
		"Name":   {Type: TypeString, Required: true},
		"Amount": {Type: TypeNumber},
		"Notes":  {Type: TypeString, Nullable: true},
	}, []string{"Name", "Amount", "Notes"})
	require.NoError(t, err)

	normalized, warnings, confidence := s.Normalize(map[string]any{
		"Amount": "abc",
	})

	// Missing required -0.1, bad number -0.05.
	assert.InDelta(t, 0.85, confidence, 1e-9)
	assert.Equal(t, NotAvailable, normalized["Name"])
	assert.Equal(t, "abc", normalized["Amount"])
	assert.Nil(t, normalized["Notes"])
	assert.Len(t, warnings, 2)
}

func TestSchemaNormalizeClampsToZero(t *testing.T) {
	fields := make(map[string]FieldSpec)
	order := make([]string, 0, 12)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		fields[name] = FieldSpec{Type: TypeString, Required: true}
		order = append(order, name)
	}
	s, err := New(fields, order)
	require.NoError(t, err)

	_, _, confidence := s.Normalize(map[string]any{})
	assert.Equal(t, 0.0, confidence)
}

func TestRequiredNA(t *testing.T) {
	s, err := New(map[string]FieldSpec{
		"Name":  {Type: TypeString, Required: true},
		"Notes": {Type: TypeString},
	}, []string{"Name", "Notes"})
	require.NoError(t, err)

	doc := s.RequiredNA()
	assert.Equal(t, map[string]any{"Name": NotAvailable}, doc)
}
