package search

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type yahooNewsProvider struct {
	client *httpClient
}

func init() {
	Register("yahoo_news", func(opts Options) (Provider, error) {
		return &yahooNewsProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": randomUserAgent()},
				proxy:   opts.Proxy,
			}),
		}, nil
	})
}

func (p *yahooNewsProvider) Name() string { return "yahoo_news" }

var yahooAgoPattern = regexp.MustCompile(`(?i)\b(\d+)\s*(year|month|week|day|hour|minute)s?\b`)

var yahooUnitSeconds = map[string]int64{
	"minute": 60,
	"hour":   3600,
	"day":    86400,
	"week":   604800,
	"month":  2592000,
	"year":   31536000,
}

// yahooNewsDate converts Yahoo's relative age labels to an ISO timestamp.
func yahooNewsDate(raw string, now time.Time) string {
	m := yahooAgoPattern.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return raw
	}
	secs, ok := yahooUnitSeconds[strings.ToLower(m[2])]
	if !ok {
		secs = 86400
	}
	return now.Add(-time.Duration(n*secs) * time.Second).UTC().Truncate(time.Second).Format(time.RFC3339)
}

// yahooNewsUnwrap extracts the destination URL from the news redirect wrapper.
func yahooNewsUnwrap(wrapped string) string {
	parts := strings.SplitN(wrapped, "/RU=", 2)
	if len(parts) < 2 {
		return wrapped
	}
	target := strings.SplitN(parts[1], "/RK=", 2)[0]
	target = strings.SplitN(target, "?", 2)[0]
	if unquoted, err := url.QueryUnescape(strings.ReplaceAll(target, "+", " ")); err == nil {
		return unquoted
	}
	return target
}

func (p *yahooNewsProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("p", query)

	body, err := p.client.get(ctx, "https://news.search.yahoo.com/search", params, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	var results []Result
	doc.Find("div#web li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Find("a").Length() == 0 {
			return true
		}

		title := normalizeText(s.Find("h4").Text())
		link := strings.TrimSpace(s.Find("h4 a").First().AttrOr("href", ""))
		snippet := normalizeText(s.Find("p").Text())
		date := strings.TrimSpace(s.Find("span[class*='time']").Text())
		source := strings.TrimSpace(s.Find("span[class*='source']").Text())

		if date != "" {
			date = yahooNewsDate(date, time.Now())
		}
		if strings.Contains(link, "/RU=") {
			link = yahooNewsUnwrap(link)
		}
		if source != "" {
			source = strings.SplitN(source, " ·  via Yahoo", 2)[0]
		}

		link = normalizeURL(link)
		if link == "" {
			return true
		}

		var parts []string
		if source != "" {
			parts = append(parts, "["+source+"]")
		}
		if date != "" {
			parts = append(parts, "("+date+")")
		}
		if snippet != "" {
			parts = append(parts, snippet)
		}

		results = append(results, Result{
			Title:   title,
			URL:     link,
			Snippet: strings.Join(parts, " "),
			Source:  "Yahoo News",
			Date:    date,
		})
		return len(results) < limit
	})

	return results, nil
}
