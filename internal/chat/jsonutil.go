package chat

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSONObject pulls a JSON object out of a model reply. Models asked
// for "JSON only" still wrap the payload in prose or fences often enough
// that the first brace-to-brace span is tried as a fallback.
func ExtractJSONObject(text string) (gjson.Result, bool) {
	candidates := []string{strings.TrimSpace(text)}
	if match := jsonObjectPattern.FindString(candidates[0]); match != "" {
		candidates = append(candidates, match)
	}

	for _, candidate := range candidates {
		if !gjson.Valid(candidate) {
			continue
		}
		parsed := gjson.Parse(candidate)
		if parsed.IsObject() {
			return parsed, true
		}
	}
	return gjson.Result{}, false
}

// ParseConfidence clamps a model-reported confidence to [0, 1], tolerating
// string-typed numbers.
func ParseConfidence(value gjson.Result) float64 {
	switch value.Type {
	case gjson.Number:
		return clampConfidence(value.Float())
	case gjson.String:
		trimmed := strings.TrimSpace(value.String())
		if trimmed == "" {
			return 0
		}
		parsed := gjson.Parse(trimmed)
		if parsed.Type == gjson.Number {
			return clampConfidence(parsed.Float())
		}
	}
	return 0
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
