package search

import (
	"bytes"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// normalizeText strips markup and normalizes unicode so scraped snippets read
// as plain prose: tags removed, entities unescaped, NFC form, control and
// other category-C runes dropped, whitespace collapsed.
func normalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.In(r, unicode.C) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// normalizeURL unquotes percent escapes and re-encodes spaces as '+'.
func normalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	unquoted, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return strings.ReplaceAll(unquoted, " ", "+")
}

// normalizeDate renders a unix timestamp string as an ISO date, passing
// through anything that is not an integer.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

var vqdDelimiters = [][2][]byte{
	{[]byte(`vqd="`), []byte(`"`)},
	{[]byte(`vqd=`), []byte(`&`)},
	{[]byte(`vqd='`), []byte(`'`)},
}

// extractVQD pulls the DuckDuckGo request token out of a homepage response.
func extractVQD(body []byte, query string) (string, error) {
	for _, pair := range vqdDelimiters {
		start := bytes.Index(body, pair[0])
		if start < 0 {
			continue
		}
		start += len(pair[0])
		end := bytes.Index(body[start:], pair[1])
		if end < 0 {
			continue
		}
		return string(body[start : start+end]), nil
	}
	return "", &vqdError{query: query}
}

type vqdError struct {
	query string
}

func (e *vqdError) Error() string {
	return "vqd token not found for query: " + e.query
}

var relativeDatePattern = regexp.MustCompile(`(?i)^(\d+)\s*(second|minute|min|hour|day|week|month|year)s?\s+ago$`)

var relativeUnitSeconds = map[string]int64{
	"second": 1,
	"minute": 60,
	"min":    60,
	"hour":   3600,
	"day":    86400,
	"week":   604800,
	"month":  2592000,
	"year":   31536000,
}

// normalizeRelativeDate converts strings like "3 hours ago" to an ISO date
// anchored at now. Returns the input unchanged when it does not match.
func normalizeRelativeDate(raw string, now time.Time) string {
	m := relativeDatePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return raw
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return raw
	}
	secs, ok := relativeUnitSeconds[strings.ToLower(m[2])]
	if !ok {
		return raw
	}
	return now.Add(-time.Duration(n*secs) * time.Second).UTC().Format("2006-01-02")
}
