package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

type duckduckgoNewsProvider struct {
	client *httpClient
}

func init() {
	Register("duckduckgo_news", func(opts Options) (Provider, error) {
		return &duckduckgoNewsProvider{
			client: newHTTPClient(clientOptions{proxy: opts.Proxy}),
		}, nil
	})
}

func (p *duckduckgoNewsProvider) Name() string { return "duckduckgo_news" }

func (p *duckduckgoNewsProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	vqd, err := ddgVQD(ctx, p.client, query)
	if err != nil {
		return nil, fmt.Errorf("vqd token: %w", err)
	}

	params := url.Values{}
	params.Set("l", "us-en")
	params.Set("o", "json")
	params.Set("noamp", "1")
	params.Set("q", query)
	params.Set("vqd", vqd)
	params.Set("p", "-1")

	body, err := p.client.get(ctx, "https://duckduckgo.com/news.js", params, nil)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	var results []Result
	gjson.GetBytes(body, "results").ForEach(func(_, item gjson.Result) bool {
		title := normalizeText(item.Get("title").String())
		link := normalizeURL(item.Get("url").String())
		excerpt := normalizeText(item.Get("excerpt").String())
		date := ""
		if ts := item.Get("date"); ts.Exists() {
			date = normalizeDate(strconv.FormatInt(ts.Int(), 10))
		}
		source := item.Get("source").String()

		var parts []string
		if source != "" {
			parts = append(parts, "["+source+"]")
		}
		if date != "" {
			parts = append(parts, "("+date+")")
		}
		if excerpt != "" {
			parts = append(parts, excerpt)
		}

		results = append(results, Result{
			Title:   title,
			URL:     link,
			Snippet: strings.Join(parts, " "),
			Source:  "DuckDuckGo News",
			Date:    date,
		})
		return len(results) < limit
	})

	return results, nil
}
