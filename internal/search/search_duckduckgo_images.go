package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

type duckduckgoImagesProvider struct {
	client *httpClient
}

func init() {
	Register("duckduckgo_images", func(opts Options) (Provider, error) {
		return &duckduckgoImagesProvider{
			client: newHTTPClient(clientOptions{proxy: opts.Proxy}),
		}, nil
	})
}

func (p *duckduckgoImagesProvider) Name() string { return "duckduckgo_images" }

func (p *duckduckgoImagesProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	vqd, err := ddgVQD(ctx, p.client, query)
	if err != nil {
		return nil, fmt.Errorf("vqd token: %w", err)
	}

	params := url.Values{}
	params.Set("o", "json")
	params.Set("q", query)
	params.Set("l", "us-en")
	params.Set("vqd", vqd)
	params.Set("p", "1")

	headers := map[string]string{
		"Referer":        "https://duckduckgo.com/",
		"Sec-Fetch-Mode": "cors",
	}

	body, err := p.client.get(ctx, "https://duckduckgo.com/i.js", params, headers)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	var results []Result
	gjson.GetBytes(body, "results").ForEach(func(_, item gjson.Result) bool {
		title := normalizeText(item.Get("title").String())
		imageURL := normalizeURL(item.Get("image").String())
		thumbnail := normalizeURL(item.Get("thumbnail").String())
		sourceURL := normalizeURL(item.Get("url").String())
		width := item.Get("width").String()
		height := item.Get("height").String()
		source := item.Get("source").String()

		var parts []string
		if width != "" && height != "" {
			parts = append(parts, width+"x"+height)
		}
		if source != "" {
			parts = append(parts, "Source: "+source)
		}
		if thumbnail != "" {
			parts = append(parts, "Thumbnail: "+thumbnail)
		}

		link := imageURL
		if link == "" {
			link = sourceURL
		}

		results = append(results, Result{
			Title:        title,
			URL:          link,
			Snippet:      strings.Join(parts, " | "),
			Source:       "DuckDuckGo Images",
			ImageURL:     imageURL,
			ThumbnailURL: thumbnail,
		})
		return len(results) < limit
	})

	return results, nil
}
