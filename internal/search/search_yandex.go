package search

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/utils"
)

type yandexProvider struct {
	client *httpClient
}

func init() {
	Register("yandex", func(opts Options) (Provider, error) {
		return &yandexProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": randomUserAgent()},
				proxy:   opts.Proxy,
			}),
		}, nil
	})
}

func (p *yandexProvider) Name() string { return "yandex" }

func (p *yandexProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("text", query)
	params.Set("web", "1")
	params.Set("searchid", "1"+utils.RandDigits(6))

	body, err := p.client.get(ctx, "https://yandex.com/search/site/", params, nil)
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
	doc.Find("li[class*='serp-item']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := normalizeText(s.Find("h3").Text())
		href := strings.TrimSpace(s.Find("h3 a").First().AttrOr("href", ""))
		snippet := normalizeText(s.Find("div[class*='text']").Text())

		href = normalizeURL(href)
		if href == "" {
			return true
		}

		results = append(results, Result{
			Title:   title,
			URL:     href,
			Snippet: snippet,
			Source:  "Yandex",
		})
		return len(results) < limit
	})

	return results, nil
}
