package search

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/prometheus"
)

// Mode selects which provider chain handles a query.
type Mode string

const (
	ModeSearch       Mode = "search"
	ModeNews         Mode = "news"
	ModeWiki         Mode = "wiki"
	ModeImages       Mode = "images"
	ModeVideos       Mode = "videos"
	ModeJMail        Mode = "jmail"
	ModeBooks        Mode = "books"
	ModeLolcowCyraxx Mode = "lolcow_cyraxx"
	ModeLolcowLarson Mode = "lolcow_larson"
)

// MergePolicy controls how results from a provider chain are combined.
type MergePolicy string

const (
	// MergeFirstNonEmpty returns the first provider's results and stops.
	MergeFirstNonEmpty MergePolicy = "first_non_empty"
	// MergeAggregate queries every provider and concatenates their results
	// in chain order, deduplicating by URL.
	MergeAggregate MergePolicy = "aggregate"
)

// DefaultChains is the provider order per mode when config does not override.
var DefaultChains = map[Mode][]string{
	ModeSearch:       {"duckduckgo", "bing", "google", "yandex", "grokipedia"},
	ModeNews:         {"duckduckgo_news", "bing_news", "yahoo_news"},
	ModeWiki:         {"wikipedia"},
	ModeImages:       {"duckduckgo_images"},
	ModeVideos:       {"duckduckgo_videos", "youtube_videos"},
	ModeJMail:        {"jmail"},
	ModeBooks:        {"books", "annasarchive"},
	ModeLolcowCyraxx: {"lolcow_cyraxx"},
	ModeLolcowLarson: {"lolcow_larson"},
}

// DefaultLimits caps results per mode.
var DefaultLimits = map[Mode]int{
	ModeSearch:       5,
	ModeNews:         5,
	ModeWiki:         3,
	ModeImages:       8,
	ModeVideos:       5,
	ModeJMail:        6,
	ModeBooks:        3,
	ModeLolcowCyraxx: 3,
	ModeLolcowLarson: 3,
}

type ClientConfig struct {
	Chains map[Mode][]string
	Limits map[Mode]int
	Merge  MergePolicy
	Opts   Options
}

// Client routes a (mode, query) pair through an ordered provider chain.
// Providers are constructed lazily and cached; a failing provider is logged
// and skipped so one flaky backend does not take a whole mode down.
type Client struct {
	chains map[Mode][]string
	limits map[Mode]int
	merge  MergePolicy
	opts   Options

	mu        sync.Mutex
	providers map[string]Provider
}

func NewClient(cfg ClientConfig) *Client {
	chains := cfg.Chains
	if len(chains) == 0 {
		chains = DefaultChains
	}
	limits := cfg.Limits
	if len(limits) == 0 {
		limits = DefaultLimits
	}
	merge := cfg.Merge
	if merge == "" {
		merge = MergeFirstNonEmpty
	}

	return &Client{
		chains:    chains,
		limits:    limits,
		merge:     merge,
		opts:      cfg.Opts,
		providers: make(map[string]Provider, 8),
	}
}

func (c *Client) provider(name string) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.providers[name]; ok {
		return p, nil
	}
	p, err := New(name, c.opts)
	if err != nil {
		return nil, err
	}
	c.providers[name] = p
	return p, nil
}

// Search runs the chain for mode and returns merged results.
func (c *Client) Search(ctx context.Context, mode Mode, query string) ([]Result, error) {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return nil, NewError("Search query is empty.")
	}

	chain, ok := c.chains[mode]
	if !ok || len(chain) == 0 {
		return nil, NewError("No search results found.")
	}
	limit := c.limits[mode]
	if limit <= 0 {
		limit = defaultLimit
	}

	var (
		buckets [][]Result
		lastErr error
	)
	if c.merge == MergeAggregate {
		buckets, lastErr = c.fanOut(ctx, chain, normalized, limit)
	} else {
		for _, name := range chain {
			results, err := c.searchOne(ctx, name, normalized, limit)
			if err != nil {
				lastErr = err
				continue
			}
			if len(results) == 0 {
				continue
			}
			if len(results) > limit {
				results = results[:limit]
			}
			logs.CtxInfo(ctx, "[search] %s/%s %q -> %d results", mode, name, normalized, len(results))
			return results, nil
		}
	}

	if merged := concatDedupe(buckets, limit); len(merged) > 0 {
		logs.CtxInfo(ctx, "[search] %s %q -> %d aggregated results", mode, normalized, len(merged))
		return merged, nil
	}

	if lastErr != nil {
		if errors.Is(lastErr, context.DeadlineExceeded) {
			return nil, WrapError("Search service timed out. Try again.", lastErr)
		}
		var st *statusError
		if errors.As(lastErr, &st) && st.code == http.StatusTooManyRequests {
			return nil, WrapError("Search service is rate-limited. Try again soon.", lastErr)
		}
	}
	return nil, &Error{UserMessage: "No search results found.", cause: lastErr}
}

func (c *Client) searchOne(ctx context.Context, name, query string, limit int) ([]Result, error) {
	p, err := c.provider(name)
	if err != nil {
		logs.CtxWarn(ctx, "[search] provider %s unavailable: %v", name, err)
		return nil, nil
	}
	results, err := p.Search(ctx, query, limit)
	if err != nil {
		prometheus.SearchRequests.WithLabelValues(name, "error").Inc()
		logs.CtxWarn(ctx, "[search] provider %s failed for %q: %v", name, query, err)
		return nil, err
	}
	prometheus.SearchRequests.WithLabelValues(name, "ok").Inc()
	return results, nil
}

// fanOut queries every provider in the chain on its own goroutine. Buckets
// come back indexed by chain position so the merge stays in chain order no
// matter which provider answers first.
func (c *Client) fanOut(ctx context.Context, chain []string, query string, limit int) ([][]Result, error) {
	buckets := make([][]Result, len(chain))
	errs := make([]error, len(chain))

	var wg sync.WaitGroup
	for i, name := range chain {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			buckets[i], errs[i] = c.searchOne(ctx, name, query, limit)
		}(i, name)
	}
	wg.Wait()

	var lastErr error
	for _, err := range errs {
		if err != nil {
			lastErr = err
		}
	}
	return buckets, lastErr
}

// concatDedupe concatenates provider buckets in chain order, keeping the
// first occurrence of each URL and dropping results without one.
func concatDedupe(buckets [][]Result, limit int) []Result {
	var merged []Result
	seen := make(map[string]bool)
	for _, bucket := range buckets {
		for _, r := range bucket {
			url := strings.TrimSpace(r.URL)
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			merged = append(merged, r)
			if len(merged) >= limit {
				return merged
			}
		}
	}
	return merged
}
