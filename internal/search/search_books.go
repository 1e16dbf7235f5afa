package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

type booksProvider struct {
	client *httpClient
}

func init() {
	Register("books", func(opts Options) (Provider, error) {
		return &booksProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": mediaWikiUserAgent},
				proxy:   opts.Proxy,
			}),
		}, nil
	})
}

func (p *booksProvider) Name() string { return "books" }

func (p *booksProvider) Search(ctx context.Context, query string, _ int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", "5")

	body, err := p.client.get(ctx, "https://openlibrary.org/search.json", params, nil)
	if err != nil {
		return nil, err
	}

	var results []Result
	gjson.GetBytes(body, "docs").ForEach(func(_, doc gjson.Result) bool {
		title := doc.Get("title").String()
		if title == "" {
			title = "Untitled"
		}

		var authors []string
		doc.Get("author_name").ForEach(func(_, a gjson.Result) bool {
			authors = append(authors, a.String())
			return true
		})
		if len(authors) == 0 {
			authors = []string{"Unknown"}
		}

		snippet := "by " + strings.Join(authors, ", ")
		if year := doc.Get("first_publish_year"); year.Exists() {
			snippet += " (" + year.String() + ")"
		}

		bookURL := ""
		if key := doc.Get("key").String(); key != "" {
			bookURL = "https://openlibrary.org" + key
		}

		results = append(results, Result{
			Title:   title,
			URL:     bookURL,
			Snippet: snippet,
			Source:  "Open Library",
		})
		return true
	})

	return results, nil
}
