package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

type grokipediaProvider struct {
	client *httpClient
}

func init() {
	Register("grokipedia", func(opts Options) (Provider, error) {
		return &grokipediaProvider{
			client: newHTTPClient(clientOptions{proxy: opts.Proxy}),
		}, nil
	})
}

func (p *grokipediaProvider) Name() string { return "grokipedia" }

func (p *grokipediaProvider) Search(ctx context.Context, query string, _ int) ([]Result, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", "1")

	body, err := p.client.get(ctx, "https://grokipedia.com/api/typeahead", params, nil)
	if err != nil {
		return nil, err
	}

	items := gjson.GetBytes(body, "results").Array()
	if len(items) == 0 {
		return nil, nil
	}

	item := items[0]
	title := strings.Trim(item.Get("title").String(), "_")
	snippet := item.Get("snippet").String()
	// Typeahead snippets lead with a heading block; keep only the prose.
	if idx := strings.Index(snippet, "\n\n"); idx >= 0 {
		snippet = snippet[idx+2:]
	}
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}

	articleURL := ""
	if slug := item.Get("slug").String(); slug != "" {
		articleURL = "https://grokipedia.com/page/" + slug
	}

	return []Result{{
		Title:   title,
		URL:     articleURL,
		Snippet: snippet,
		Source:  "Grokipedia",
	}}, nil
}
