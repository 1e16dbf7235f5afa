package search

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type googleProvider struct {
	client *httpClient
}

func init() {
	Register("google", func(opts Options) (Provider, error) {
		return &googleProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": operaMiniUserAgent()},
				proxy:   opts.Proxy,
				// Google rejects randomized h2 SETTINGS with HPACK table size
				// errors, so this provider talks HTTP/1.1 from the start.
				noHTTP2: true,
			}),
		}, nil
	})
}

func (p *googleProvider) Name() string { return "google" }

func (p *googleProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("hl", "en-US")
	params.Set("lr", "lang_en")
	params.Set("cr", "countryUS")

	body, err := p.client.get(ctx, "https://www.google.com/search", params, nil)
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
	doc.Find("div[data-hveid]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		h3 := s.Find("h3").First()
		if h3.Length() == 0 {
			return true
		}
		title := normalizeText(h3.Text())
		href := strings.TrimSpace(s.Find("a[href]").First().AttrOr("href", ""))

		// Unwrap the lightweight-client redirect.
		if strings.HasPrefix(href, "/url?q=") {
			href = strings.SplitN(strings.SplitN(href, "?q=", 2)[1], "&", 2)[0]
		}
		href = normalizeURL(href)
		if href == "" || strings.HasPrefix(href, "/") {
			return true
		}

		// Snippet is whatever text remains once the title and link rows go.
		clone := s.Clone()
		clone.Find("h3").Remove()
		clone.Find("a").Remove()
		snippet := normalizeText(clone.Text())

		for _, r := range results {
			if r.URL == href {
				return true
			}
		}

		results = append(results, Result{
			Title:   title,
			URL:     href,
			Snippet: snippet,
			Source:  "Google",
		})
		return len(results) < limit
	})

	return results, nil
}
