package search

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	ddgHTMLEndpoint = "https://html.duckduckgo.com/html/"
	ddgHomeEndpoint = "https://duckduckgo.com"
)

// ddgVQD fetches the request token DuckDuckGo's JSON endpoints require.
func ddgVQD(ctx context.Context, c *httpClient, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	body, err := c.get(ctx, ddgHomeEndpoint, params, nil)
	if err != nil {
		return "", err
	}
	return extractVQD(body, query)
}

type duckduckgoProvider struct {
	client     *httpClient
	safeSearch string
}

func init() {
	Register("duckduckgo", func(opts Options) (Provider, error) {
		return &duckduckgoProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": randomUserAgent()},
				proxy:   opts.Proxy,
			}),
			safeSearch: opts.SafeSearch,
		}, nil
	})
}

func (p *duckduckgoProvider) Name() string { return "duckduckgo" }

func (p *duckduckgoProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	form := url.Values{}
	form.Set("q", query)
	form.Set("b", "")
	form.Set("l", "us-en")
	form.Set("kl", "us-en")
	form.Set("kp", ddgSafeSearchLevel(p.safeSearch))

	body, err := p.client.postForm(ctx, ddgHTMLEndpoint, form, nil)
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
	doc.Find("div[class*='body']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := normalizeText(s.Find("h2").Text())
		anchor := s.ChildrenFiltered("a").First()
		href := strings.TrimSpace(anchor.AttrOr("href", ""))
		snippet := normalizeText(anchor.Text())

		// y.js links are ads.
		if href == "" || strings.HasPrefix(href, "https://duckduckgo.com/y.js?") {
			return true
		}

		results = append(results, Result{
			Title:   title,
			URL:     href,
			Snippet: snippet,
			Source:  "DuckDuckGo",
		})
		return len(results) < limit
	})

	return results, nil
}

// ddgSafeSearchLevel maps the shared safesearch setting onto DuckDuckGo's
// kp parameter.
func ddgSafeSearchLevel(safeSearch string) string {
	switch safeSearch {
	case "on":
		return "1"
	case "off":
		return "-1"
	default:
		return "-2"
	}
}
