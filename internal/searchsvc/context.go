package searchsvc

import "strings"

// HistoryItem is one sanitized chat turn passed to the model as context.
type HistoryItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SourceItem is one sanitized remembered search result passed as context.
type SourceItem struct {
	Mode    string `json:"mode"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

const (
	maxHistoryItems     = 4
	maxSourceItems      = 6
	historyContentChars = 220
	sourceTitleChars    = 120
	sourceSnippetChars  = 180
)

// SanitizeContextFragment collapses whitespace and bounds the length of text
// before it is embedded in a model prompt.
func SanitizeContextFragment(text string, maxChars int) string {
	compact := strings.Join(strings.Fields(text), " ")
	if len(compact) <= maxChars {
		return compact
	}
	return strings.TrimRight(compact[:maxChars], " ")
}

// SanitizeHistoryContext keeps only well-formed user/assistant turns,
// bounded in length and count.
func SanitizeHistoryContext(items []HistoryItem) []HistoryItem {
	cleaned := make([]HistoryItem, 0, len(items))
	for _, item := range items {
		role := strings.ToLower(strings.TrimSpace(item.Role))
		content := SanitizeContextFragment(item.Content, historyContentChars)
		if (role != "user" && role != "assistant") || content == "" {
			continue
		}
		cleaned = append(cleaned, HistoryItem{Role: role, Content: content})
		if len(cleaned) == maxHistoryItems {
			break
		}
	}
	return cleaned
}

// SanitizeSourceContext bounds remembered search results for prompt use.
func SanitizeSourceContext(items []SourceItem) []SourceItem {
	cleaned := make([]SourceItem, 0, len(items))
	for _, item := range items {
		mode := strings.ToLower(strings.TrimSpace(item.Mode))
		if mode == "" {
			mode = "search"
		}
		title := SanitizeContextFragment(item.Title, sourceTitleChars)
		snippet := SanitizeContextFragment(item.Snippet, sourceSnippetChars)
		if title == "" && snippet == "" {
			continue
		}
		cleaned = append(cleaned, SourceItem{Mode: mode, Title: title, Snippet: snippet})
		if len(cleaned) == maxSourceItems {
			break
		}
	}
	return cleaned
}
