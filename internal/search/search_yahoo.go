package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/utils"
)

type yahooProvider struct {
	client *httpClient
}

func init() {
	Register("yahoo", func(opts Options) (Provider, error) {
		return &yahooProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{"User-Agent": randomUserAgent()},
				proxy:   opts.Proxy,
			}),
		}, nil
	})
}

func (p *yahooProvider) Name() string { return "yahoo" }

// yahooUnwrap extracts the destination URL from Yahoo's /RU= redirect wrapper.
func yahooUnwrap(wrapped string) string {
	parts := strings.SplitN(wrapped, "/RU=", 2)
	if len(parts) < 2 {
		return wrapped
	}
	target := parts[1]
	target = strings.SplitN(target, "/RK=", 2)[0]
	target = strings.SplitN(target, "/RS=", 2)[0]
	if unquoted, err := url.QueryUnescape(strings.ReplaceAll(target, "+", " ")); err == nil {
		return unquoted
	}
	return target
}

func (p *yahooProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	// Yahoo result pages carry randomized opaque path tokens.
	endpoint := fmt.Sprintf("https://search.yahoo.com/search;_ylt=%s;_ylu=%s",
		utils.RandURLSafe(24), utils.RandURLSafe(47))
	params := url.Values{}
	params.Set("p", query)

	body, err := p.client.get(ctx, endpoint, params, nil)
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
	doc.Find("div[class*='relsrch']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := normalizeText(s.Find("div[class*='Title'] h3").Text())
		href := strings.TrimSpace(s.Find("div[class*='Title'] a").First().AttrOr("href", ""))
		snippet := normalizeText(s.Find("div[class*='Text']").Text())

		// bing aclick links are ads.
		if strings.HasPrefix(href, "https://www.bing.com/aclick?") {
			return true
		}
		if strings.Contains(href, "/RU=") {
			href = yahooUnwrap(href)
		}
		href = normalizeURL(href)
		if href == "" {
			return true
		}

		results = append(results, Result{
			Title:   title,
			URL:     href,
			Snippet: snippet,
			Source:  "Yahoo",
		})
		return len(results) < limit
	})

	return results, nil
}
