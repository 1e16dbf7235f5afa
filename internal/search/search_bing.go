package search

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type bingProvider struct {
	client     *httpClient
	safeSearch string
}

func init() {
	Register("bing", func(opts Options) (Provider, error) {
		return &bingProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": randomUserAgent()},
				proxy:   opts.Proxy,
			}),
			safeSearch: opts.SafeSearch,
		}, nil
	})
}

func (p *bingProvider) Name() string { return "bing" }

func (p *bingProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("setlang", "en-US")
	params.Set("adlt", bingAdltLevel(p.safeSearch))

	body, err := p.client.get(ctx, "https://www.bing.com/search", params, nil)
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
	doc.Find("li.b_algo").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		anchor := s.Find("h2 a").First()
		title := normalizeText(anchor.Text())
		href := normalizeURL(strings.TrimSpace(anchor.AttrOr("href", "")))
		if title == "" || href == "" {
			return true
		}
		snippet := normalizeText(s.Find(".b_caption p").First().Text())

		results = append(results, Result{
			Title:   title,
			URL:     href,
			Snippet: snippet,
			Source:  "Bing",
		})
		return len(results) < limit
	})

	return results, nil
}

func bingAdltLevel(safeSearch string) string {
	switch safeSearch {
	case "on":
		return "strict"
	case "off":
		return "off"
	default:
		return "moderate"
	}
}
