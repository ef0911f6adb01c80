package anthropic

import (
	"regexp"
	"strings"
)

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// cleanJSONBlock removes markdown code fences from model responses. Models
// often wrap JSON in ```json ... ``` blocks even when told not to.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	return text
}

// repairJSON applies cheap regex fixes for near-valid model JSON: code
// fences, leading prose before the first brace/bracket, and trailing commas
// before a closing brace or bracket.
func repairJSON(text string) string {
	text = cleanJSONBlock(text)

	// Trim prose around the outermost JSON value.
	start := strings.IndexAny(text, "{[")
	if start > 0 {
		text = text[start:]
	}
	end := strings.LastIndexAny(text, "}]")
	if end >= 0 && end < len(text)-1 {
		text = text[:end+1]
	}

	return trailingCommaRe.ReplaceAllString(text, "$1")
}
