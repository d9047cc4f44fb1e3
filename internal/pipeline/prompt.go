package pipeline

import "strings"

const truncationMarker = "\n\n[... content truncated ...]"

// retryInstruction is appended to the prompt after a malformed LLM response.
const retryInstruction = "\n\nIMPORTANT: Your previous response was invalid. Return ONLY valid JSON, no other text."

// truncateText cuts OCR text down to maxChars while preferring to keep lines
// that look like structural anchors (headings and page markers), and appends a
// truncation marker when anything was dropped.
func truncateText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	lines := strings.Split(text, "\n")
	var kept []string
	charCount := 0

	for _, line := range lines {
		if charCount+len(line) > maxChars {
			break
		}
		switch {
		case isAnchorLine(line):
			kept = append(kept, line)
			charCount += len(line) + 1
		case float64(charCount) < float64(maxChars)*0.9:
			kept = append(kept, line)
			charCount += len(line) + 1
		}
	}

	return strings.Join(kept, "\n") + truncationMarker
}

// isAnchorLine reports whether a line looks like a heading or page marker.
func isAnchorLine(line string) bool {
	if strings.HasPrefix(line, "#") {
		return true
	}
	head := line
	if len(head) > 20 {
		head = head[:20]
	}
	return strings.Contains(head, "Page")
}

// buildPrompt composes the extraction prompt: schema, rules, and the OCR text.
func buildPrompt(ocrText, schemaJSON string, maxChars int) string {
	truncated := truncateText(ocrText, maxChars)

	var b strings.Builder
	b.WriteString("SYSTEM:\n")
	b.WriteString("You are a strict information extraction model. Use ONLY the provided document text.\n")
	b.WriteString("Return VALID JSON that matches the given schema. No explanations, no markdown formatting.\n\n")
	b.WriteString("USER:\n")
	b.WriteString("SCHEMA (JSON):\n")
	b.WriteString(schemaJSON)
	b.WriteString("\n\nRULES:\n")
	b.WriteString("- Fill required fields; if a value is missing/unreadable, use \"N/A\".\n")
	b.WriteString("- Obey \"type\", \"regex\", \"enum\", and \"format\" constraints.\n")
	b.WriteString("- For dates with format \"iso-date\", return in ISO 8601 format (YYYY-MM-DD).\n")
	b.WriteString("- For numbers, remove currency symbols and return numeric values only.\n")
	b.WriteString("- Return ONLY JSON, no extra text, no markdown code blocks, no comments.\n")
	b.WriteString("- Extract ONLY what's present in the text. Do NOT invent values.\n")
	b.WriteString("- The text comes from OCR, so expect noise. Apply only clear, easy fixes; otherwise keep the original text.\n\n")
	b.WriteString("DOCUMENT:\n")
	b.WriteString(truncated)
	b.WriteString("\n\nOUTPUT:\nReturn a JSON object with EXACT keys from SCHEMA. Must be valid JSON.\n")
	return b.String()
}
