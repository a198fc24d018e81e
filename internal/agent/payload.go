package agent

import "strings"

// extractJSON pulls the JSON object out of a model response that may wrap it
// in markdown fences or surrounding prose. Returns the cleaned text as-is
// when no braces are present so the caller's unmarshal reports the error.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.Contains(text, "```") {
		if block := fencedBlock(text); block != "" {
			text = block
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

// fencedBlock returns the content of the first fenced code block, preferring
// blocks labelled json.
func fencedBlock(text string) string {
	var blocks []struct {
		lang    string
		content string
	}

	lines := strings.Split(text, "\n")
	var current []string
	var lang string
	fenced := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !fenced {
				fenced = true
				lang = strings.ToLower(strings.Trim(trimmed, "`"))
				current = nil
			} else {
				blocks = append(blocks, struct {
					lang    string
					content string
				}{lang, strings.TrimSpace(strings.Join(current, "\n"))})
				fenced = false
			}
			continue
		}
		if fenced {
			current = append(current, line)
		}
	}

	for _, b := range blocks {
		if strings.Contains(b.lang, "json") && b.content != "" {
			return b.content
		}
	}
	for _, b := range blocks {
		if b.content != "" {
			return b.content
		}
	}
	return ""
}
