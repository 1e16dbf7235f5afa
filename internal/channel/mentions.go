package channel

import (
	"sort"
	"strings"
)

// StripMentionSpans removes mention ranges from text so a prompt aimed at
// the bot does not carry its own handle. Offsets are rune positions;
// out-of-bounds spans are skipped rather than failing the whole message.
func StripMentionSpans(text string, mentions []Mention) string {
	if text == "" || len(mentions) == 0 {
		return text
	}

	spans := make([]Mention, len(mentions))
	copy(spans, mentions)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })

	runes := []rune(text)
	for _, m := range spans {
		end := m.Start + m.Length
		if m.Start < 0 || m.Length <= 0 || m.Start >= len(runes) || end > len(runes) {
			continue
		}
		spliced := make([]rune, 0, len(runes)-m.Length+1)
		spliced = append(spliced, runes[:m.Start]...)
		spliced = append(spliced, ' ')
		spliced = append(spliced, runes[end:]...)
		runes = spliced
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}
