package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// MediaWiki sites require a descriptive User-Agent.
const mediaWikiUserAgent = "orx-search/0.1.0 (https://github.com/htmlgxn/signal-bot-orx; bot)"

// mediaWikiLookup runs the two-phase MediaWiki flow shared by the wikipedia
// and lolcow providers: a fuzzy opensearch for the best title, then an
// extracts query for the article intro. Disambiguation pages yield no result.
func mediaWikiLookup(ctx context.Context, c *httpClient, apiURL, query, source string) ([]Result, error) {
	params := url.Values{}
	params.Set("action", "opensearch")
	params.Set("profile", "fuzzy")
	params.Set("limit", "1")
	params.Set("search", query)

	body, err := c.get(ctx, apiURL, params, nil)
	if err != nil {
		return nil, err
	}

	// Opensearch format: [query, [titles], [descriptions], [urls]]
	parsed := gjson.ParseBytes(body)
	titles := parsed.Get("1").Array()
	urls := parsed.Get("3").Array()
	if len(titles) == 0 || len(urls) == 0 {
		return nil, nil
	}

	title := titles[0].String()
	articleURL := urls[0].String()

	snippet := mediaWikiExtract(ctx, c, apiURL, title)
	if strings.Contains(snippet, "may refer to:") {
		return nil, nil
	}
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}

	return []Result{{
		Title:   title,
		URL:     articleURL,
		Snippet: snippet,
		Source:  source,
	}}, nil
}

func mediaWikiExtract(ctx context.Context, c *httpClient, apiURL, title string) string {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("prop", "extracts")
	params.Set("titles", title)
	params.Set("explaintext", "0")
	params.Set("exintro", "0")
	params.Set("redirects", "1")

	body, err := c.get(ctx, apiURL, params, nil)
	if err != nil {
		return ""
	}

	extract := ""
	gjson.GetBytes(body, "query.pages").ForEach(func(_, page gjson.Result) bool {
		extract = page.Get("extract").String()
		return false
	})
	return extract
}
