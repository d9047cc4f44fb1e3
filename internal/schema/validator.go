package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NotAvailable is the sentinel the extraction contract uses for unknown values.
const NotAvailable = "N/A"

// Warning is a non-fatal per-field validation issue. MissingRequired
// distinguishes the heavier confidence penalty from ordinary issues.
type Warning struct {
	Field           string
	Message         string
	MissingRequired bool
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// WarningStrings renders warnings in order.
func WarningStrings(warnings []Warning) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.String())
	}
	return out
}

var (
	reNumberNoise = regexp.MustCompile(`[^\d.,\-]`)

	// Tried in order; first match wins.
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`), // ISO format
		regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`), // DD/MM/YYYY
		regexp.MustCompile(`(\d{2})-(\d{2})-(\d{4})`), // DD-MM-YYYY
		regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})`), // YYYY/MM/DD
	}
)

// Validate normalizes a single extracted value against its field spec.
// All failure is communicated via warnings; it never returns an error, and the
// caller decides the confidence impact.
func Validate(fieldName string, value any, spec FieldSpec) (any, []Warning) {
	var warnings []Warning

	if isMissing(value) {
		if spec.Required && !spec.Nullable {
			warnings = append(warnings, Warning{
				Field:           fieldName,
				Message:         "required field is missing or N/A",
				MissingRequired: true,
			})
		}
		if spec.Nullable {
			return nil, warnings
		}
		return NotAvailable, warnings
	}

	normalized := value

	switch spec.Type {
	case TypeNumber:
		normalized, warnings = normalizeNumber(fieldName, value, warnings)
	case TypeDate:
		if spec.Format == FormatISODate {
			if s, ok := value.(string); ok {
				normalized, warnings = normalizeDate(fieldName, s, warnings)
			}
		}
	}

	if spec.re != nil {
		if s, ok := normalized.(string); ok && s != NotAvailable {
			if loc := spec.re.FindStringIndex(s); loc == nil || loc[0] != 0 {
				warnings = append(warnings, Warning{
					Field:   fieldName,
					Message: fmt.Sprintf("value %q does not match regex pattern %q", s, spec.Regex),
				})
			}
		}
	}

	if len(spec.Enum) > 0 {
		if s, ok := normalized.(string); ok && s != NotAvailable && !contains(spec.Enum, s) {
			warnings = append(warnings, Warning{
				Field:   fieldName,
				Message: fmt.Sprintf("value %q not in allowed enum %v", s, spec.Enum),
			})
		}
	}

	return normalized, warnings
}

// Normalize validates an extracted document field by field, in schema order,
// and computes the confidence score: 1.0 minus 0.1 per missing required field
// and 0.05 per other warning, clamped to [0,1].
func (s *Schema) Normalize(extracted map[string]any) (map[string]any, []Warning, float64) {
	normalized := make(map[string]any, s.Len())
	var all []Warning
	confidence := 1.0

	for _, name := range s.order {
		spec := s.fields[name]
		value, present := extracted[name]

		if !present || value == nil {
			switch {
			case spec.Required && !spec.Nullable:
				all = append(all, Warning{
					Field:           name,
					Message:         "required field missing in extracted data",
					MissingRequired: true,
				})
				normalized[name] = NotAvailable
				confidence -= 0.1
			case spec.Nullable:
				normalized[name] = nil
			default:
				normalized[name] = NotAvailable
			}
			continue
		}

		value, warnings := Validate(name, value, spec)
		normalized[name] = value
		for _, w := range warnings {
			if w.MissingRequired {
				confidence -= 0.1
			} else {
				confidence -= 0.05
			}
		}
		all = append(all, warnings...)
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return normalized, all, confidence
}

// RequiredNA returns a document with every required field set to "N/A"; used
// for degraded results when OCR or the LLM fails outright.
func (s *Schema) RequiredNA() map[string]any {
	out := make(map[string]any)
	for _, name := range s.order {
		if s.fields[name].Required {
			out[name] = NotAvailable
		}
	}
	return out
}

func isMissing(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && (s == "" || s == NotAvailable)
}

// normalizeNumber strips currency noise and disambiguates decimal vs thousands
// separators: with both present the later one is the decimal point; a lone
// comma is decimal only when exactly two digits follow it.
func normalizeNumber(fieldName string, value any, warnings []Warning) (any, []Warning) {
	switch v := value.(type) {
	case float64:
		return v, warnings
	case int:
		return float64(v), warnings
	case string:
		cleaned := reNumberNoise.ReplaceAllString(v, "")
		lastComma := strings.LastIndex(cleaned, ",")
		lastDot := strings.LastIndex(cleaned, ".")
		switch {
		case lastComma >= 0 && lastDot >= 0:
			if lastComma > lastDot {
				cleaned = strings.ReplaceAll(cleaned, ".", "")
				cleaned = strings.ReplaceAll(cleaned, ",", ".")
			} else {
				cleaned = strings.ReplaceAll(cleaned, ",", "")
			}
		case lastComma >= 0:
			if len(cleaned)-lastComma-1 == 2 {
				cleaned = strings.ReplaceAll(cleaned, ",", ".")
			} else {
				cleaned = strings.ReplaceAll(cleaned, ",", "")
			}
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return value, append(warnings, Warning{
				Field:   fieldName,
				Message: fmt.Sprintf("invalid number format %q", v),
			})
		}
		return f, warnings
	default:
		return value, append(warnings, Warning{
			Field:   fieldName,
			Message: fmt.Sprintf("invalid number format %q", fmt.Sprint(value)),
		})
	}
}

// normalizeDate re-emits the first recognized date pattern as YYYY-MM-DD.
// Already-ISO input passes through unchanged, so normalization is idempotent.
func normalizeDate(fieldName, value string, warnings []Warning) (any, []Warning) {
	for _, pattern := range datePatterns {
		m := pattern.FindStringSubmatch(value)
		if m == nil {
			continue
		}
		if len(m[1]) == 4 { // year first
			return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]), warnings
		}
		// day first
		return fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1]), warnings
	}
	return value, append(warnings, Warning{
		Field:   fieldName,
		Message: fmt.Sprintf("could not normalize date %q to ISO format", value),
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
