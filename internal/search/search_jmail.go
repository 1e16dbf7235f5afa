package search

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// jmailProvider searches jmail.world, a Next.js archive of the released
// Epstein emails. The search page is fetched as an RSC payload, thread IDs
// are scanned out of it, then each thread page is mined for a clean snippet.
type jmailProvider struct {
	client *httpClient
}

func init() {
	Register("jmail", func(opts Options) (Provider, error) {
		return &jmailProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{
					"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				},
				proxy: opts.Proxy,
			}),
		}, nil
	})
}

func (p *jmailProvider) Name() string { return "jmail" }

const jmailSiteMarker = "Interactive archive of Jeffrey Epstein"

var (
	jmailThreadIDPattern = regexp.MustCompile(`EFTA[0-9]{8}`)
	jmailTitlePattern    = regexp.MustCompile(`<title>([^<]+)</title>`)
	jmailOGDescPattern   = regexp.MustCompile(`property="og:description"\s+content="(.*?)"`)
	jmailDatePattern     = regexp.MustCompile(`"datePublished":"(.*?)"`)
	jmailArticlePattern  = regexp.MustCompile(`(?s)"@type":"Article".*?"description":"(.*?)"`)
	jmailBlobPattern     = regexp.MustCompile(`"(.*?)"`)
)

func (p *jmailProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)

	headers := map[string]string{
		"Accept":                 "text/x-component",
		"Next-Router-State-Tree": "%5B%22%22%2C%7B%22children%22%3A%5B%22(joogle)%22%2C%7B%22children%22%3A%5B%22search%22%2C%7B%22children%22%3A%5B%22__PAGE__%22%2C%7B%7D%5D%7D%5D%7D%5D%7D%5D",
	}

	body, err := p.client.get(ctx, "https://jmail.world/search", params, headers)
	if err != nil {
		return nil, err
	}

	ids := jmailThreadIDPattern.FindAllString(string(body), -1)
	seen := make(map[string]bool, len(ids))
	var unique []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Strings(unique)

	if limit <= 0 {
		limit = defaultLimit
	}
	if len(unique) > limit {
		unique = unique[:limit]
	}

	var results []Result
	for _, id := range unique {
		r, err := p.fetchThread(ctx, id)
		if err != nil || r == nil {
			continue
		}
		results = append(results, *r)
	}
	return results, nil
}

func (p *jmailProvider) fetchThread(ctx context.Context, id string) (*Result, error) {
	threadURL := "https://jmail.world/thread/" + id
	body, err := p.client.get(ctx, threadURL+"?view=inbox", nil, nil)
	if err != nil {
		return nil, err
	}
	text := string(body)
	if text == "" {
		return nil, nil
	}

	title := "JMail Email " + id
	if m := jmailTitlePattern.FindStringSubmatch(text); m != nil {
		title = m[1]
	}
	title = normalizeText(strings.TrimSpace(strings.ReplaceAll(title, "— Epstein Emails", "")))

	date := ""
	if m := jmailDatePattern.FindStringSubmatch(text); m != nil {
		date = strings.SplitN(m[1], "T", 2)[0]
	}

	// Prefer og:description, then the Article JSON-LD description, then the
	// first long clean string blob that is not the site-wide description.
	snippet := ""
	if m := jmailOGDescPattern.FindStringSubmatch(text); m != nil {
		if candidate := jmailDecode(m[1]); !strings.Contains(candidate, jmailSiteMarker) {
			snippet = normalizeText(candidate)
		}
	}
	if snippet == "" {
		if m := jmailArticlePattern.FindStringSubmatch(text); m != nil {
			if candidate := jmailDecode(m[1]); !strings.Contains(candidate, jmailSiteMarker) {
				snippet = normalizeText(candidate)
			}
		}
	}
	if snippet == "" {
		for _, m := range jmailBlobPattern.FindAllStringSubmatch(text, -1) {
			candidate := normalizeText(jmailDecode(m[1]))
			if len(candidate) > 50 &&
				!strings.Contains(candidate, jmailSiteMarker) &&
				!strings.Contains(candidate, "{") &&
				!strings.Contains(candidate, "[") &&
				!strings.HasPrefix(candidate, "$") &&
				!strings.HasPrefix(candidate, "animation:") {
				snippet = candidate
				break
			}
		}
	}

	return &Result{
		Title:   title,
		URL:     threadURL,
		Snippet: snippet,
		Source:  "JMail",
		Date:    date,
	}, nil
}

var jmailEscapePattern = regexp.MustCompile(`\\u([0-9a-fA-F]{4})|\\(.)`)

// jmailDecode undoes the JSON-style escaping found in embedded script blobs.
func jmailDecode(s string) string {
	return jmailEscapePattern.ReplaceAllStringFunc(s, func(m string) string {
		if strings.HasPrefix(m, `\u`) {
			var r rune
			for _, c := range m[2:] {
				r = r<<4 | rune(hexVal(byte(c)))
			}
			return string(r)
		}
		switch m[1] {
		case 'n':
			return "\n"
		case 't':
			return "\t"
		case 'r':
			return "\r"
		default:
			return string(m[1])
		}
	})
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}
