package search

import (
	"context"
)

// lolcowProvider covers the wiki.lolcow.city MediaWiki farms; each registered
// name points at a different wiki under the same API shape.
type lolcowProvider struct {
	client  *httpClient
	name    string
	source  string
	baseURL string
}

func init() {
	newLolcow := func(name, source, baseURL string) Factory {
		return func(opts Options) (Provider, error) {
			return &lolcowProvider{
				client: newHTTPClient(clientOptions{
					headers: map[string]string{"User-Agent": mediaWikiUserAgent},
					proxy:   opts.Proxy,
				}),
				name:    name,
				source:  source,
				baseURL: baseURL,
			}, nil
		}
	}

	Register("lolcow_cyraxx", newLolcow("lolcow_cyraxx", "Cyraxx Wiki", "https://wiki.lolcow.city/cyraxx/api.php"))
	Register("lolcow_larson", newLolcow("lolcow_larson", "Daniel Larson Wiki", "https://wiki.lolcow.city/daniel-larson/api.php"))
}

func (p *lolcowProvider) Name() string { return p.name }

func (p *lolcowProvider) Search(ctx context.Context, query string, _ int) ([]Result, error) {
	return mediaWikiLookup(ctx, p.client, p.baseURL, query, p.source)
}
