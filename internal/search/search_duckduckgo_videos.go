package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

type duckduckgoVideosProvider struct {
	client *httpClient
}

func init() {
	Register("duckduckgo_videos", func(opts Options) (Provider, error) {
		return &duckduckgoVideosProvider{
			client: newHTTPClient(clientOptions{proxy: opts.Proxy}),
		}, nil
	})
}

func (p *duckduckgoVideosProvider) Name() string { return "duckduckgo_videos" }

func (p *duckduckgoVideosProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	vqd, err := ddgVQD(ctx, p.client, query)
	if err != nil {
		return nil, fmt.Errorf("vqd token: %w", err)
	}

	params := url.Values{}
	params.Set("l", "us-en")
	params.Set("o", "json")
	params.Set("q", query)
	params.Set("vqd", vqd)
	params.Set("f", ",,,")
	params.Set("p", "-1")

	body, err := p.client.get(ctx, "https://duckduckgo.com/v.js", params, nil)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	var results []Result
	gjson.GetBytes(body, "results").ForEach(func(_, item gjson.Result) bool {
		title := normalizeText(item.Get("title").String())
		content := item.Get("content").String()
		description := normalizeText(item.Get("description").String())
		duration := item.Get("duration").String()
		publisher := item.Get("publisher").String()
		uploader := item.Get("uploader").String()
		published := item.Get("published").String()
		thumbnail := item.Get("images.medium").String()
		if thumbnail == "" {
			thumbnail = item.Get("images.small").String()
		}

		var parts []string
		if uploader != "" || publisher != "" {
			by := uploader
			if by == "" {
				by = publisher
			}
			parts = append(parts, "by "+by)
		}
		if duration != "" {
			parts = append(parts, "["+duration+"]")
		}
		if published != "" {
			parts = append(parts, "("+published+")")
		}
		if description != "" {
			parts = append(parts, description)
		}

		results = append(results, Result{
			Title:        title,
			URL:          content,
			Snippet:      strings.Join(parts, " "),
			Source:       "DuckDuckGo Videos",
			ThumbnailURL: thumbnail,
		})
		return len(results) < limit
	})

	return results, nil
}
