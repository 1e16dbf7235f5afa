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

type bingNewsProvider struct {
	client *httpClient
}

func init() {
	Register("bing_news", func(opts Options) (Provider, error) {
		return &bingNewsProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": randomUserAgent()},
				proxy:   opts.Proxy,
			}),
		}, nil
	})
}

func (p *bingNewsProvider) Name() string { return "bing_news" }

func (p *bingNewsProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("InfiniteScroll", "1")
	params.Set("first", "1")
	params.Set("SFX", "1")

	body, err := p.client.get(ctx, "https://www.bing.com/news/infinitescrollajax", params, nil)
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
	doc.Find("div[class*='newsitem']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := normalizeText(s.AttrOr("data-title", ""))
		link := s.AttrOr("url", "")
		snippet := normalizeText(s.Find("div.snippet").Text())
		date := strings.TrimSpace(s.Find("span[aria-label]").First().AttrOr("aria-label", ""))
		source := s.AttrOr("data-author", "")

		if date != "" {
			date = bingDate(date, time.Now())
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
			Source:  "Bing News",
			Date:    date,
		})
		return len(results) < limit
	})

	return results, nil
}

var bingDaysAgoPattern = regexp.MustCompile(`(?i)\b(\d+)\s*(days|tagen|jours|giorni|dias|días|дн\.|день)?\b`)

// bingDate normalizes Bing's mixed date formats (absolute per-locale dates or
// "N days ago" strings) to an ISO date, passing unknown shapes through.
func bingDate(raw string, now time.Time) string {
	for _, layout := range []string{"02.01.2006", "01/02/2006", "02/01/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format("2006-01-02")
		}
	}
	if m := bingDaysAgoPattern.FindStringSubmatch(raw); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil {
			return now.AddDate(0, 0, -days).UTC().Format("2006-01-02")
		}
	}
	return raw
}
