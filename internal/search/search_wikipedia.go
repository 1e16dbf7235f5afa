package search

import (
	"context"
)

type wikipediaProvider struct {
	client *httpClient
	apiURL string
}

func init() {
	Register("wikipedia", func(opts Options) (Provider, error) {
		return &wikipediaProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": mediaWikiUserAgent},
				proxy:   opts.Proxy,
			}),
			apiURL: "https://en.wikipedia.org/w/api.php",
		}, nil
	})
}

func (p *wikipediaProvider) Name() string { return "wikipedia" }

func (p *wikipediaProvider) Search(ctx context.Context, query string, _ int) ([]Result, error) {
	return mediaWikiLookup(ctx, p.client, p.apiURL, query, "Wikipedia")
}
