package pipeline

import (
	"encoding/json"
	"strings"
)

// parseResponse extracts a JSON object from a raw LLM response. It strips
// markdown code fences if present, tries a direct parse, then falls back to
// the greedy first-'{' .. last-'}' span. Returns nil when no object can be
// recovered; the caller counts that as a failed attempt.
func parseResponse(response string) map[string]any {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") {
		lines := strings.Split(response, "\n")
		if len(lines) > 2 {
			response = strings.Join(lines[1:len(lines)-1], "\n")
		}
		response = strings.ReplaceAll(response, "```json", "")
		response = strings.ReplaceAll(response, "```", "")
		response = strings.TrimSpace(response)
	}

	var direct map[string]any
	if err := json.Unmarshal([]byte(response), &direct); err == nil {
		return direct
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil
	}
	var embedded map[string]any
	if err := json.Unmarshal([]byte(response[start:end+1]), &embedded); err == nil {
		return embedded
	}
	return nil
}
