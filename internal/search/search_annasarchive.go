package search

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const annasArchiveBase = "https://annas-archive.li"

type annasArchiveProvider struct {
	client *httpClient
}

func init() {
	Register("annasarchive", func(opts Options) (Provider, error) {
		return &annasArchiveProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": randomUserAgent()},
				proxy:   opts.Proxy,
			}),
		}, nil
	})
}

func (p *annasArchiveProvider) Name() string { return "annasarchive" }

func (p *annasArchiveProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)

	body, err := p.client.get(ctx, annasArchiveBase+"/search", params, nil)
	if err != nil {
		return nil, err
	}

	// The result list is partly wrapped in HTML comments; strip the markers
	// so the hidden records parse like the visible ones.
	cleaned := bytes.ReplaceAll(body, []byte("<!--"), nil)
	cleaned = bytes.ReplaceAll(cleaned, []byte("-->"), nil)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(cleaned))
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	var results []Result
	doc.Find("div[class*='record-list-outer'] > div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := normalizeText(s.Find("a[class*='text-lg']").Text())
		author := normalizeText(s.Find("a:has(span[class*='user'])").Text())
		publisher := normalizeText(s.Find("a:has(span[class*='company'])").Text())
		info := normalizeText(s.Find("div[class*='text-gray-800']").Text())
		href := strings.TrimSpace(s.ChildrenFiltered("a").First().AttrOr("href", ""))

		if href != "" && !strings.HasPrefix(href, "http") {
			href = annasArchiveBase + href
		}
		href = normalizeURL(href)

		if title == "" {
			return true
		}

		var parts []string
		if author != "" {
			parts = append(parts, "by "+author)
		}
		if publisher != "" {
			parts = append(parts, "Publisher: "+publisher)
		}
		if info != "" {
			parts = append(parts, info)
		}

		results = append(results, Result{
			Title:   title,
			URL:     href,
			Snippet: strings.Join(parts, " | "),
			Source:  "Anna's Archive",
		})
		return len(results) < limit
	})

	return results, nil
}
