package search

import (
	"context"
	"errors"
	"testing"
)

type staticProvider struct {
	name    string
	results []Result
	err     error
	calls   int
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Search(context.Context, string, int) ([]Result, error) {
	p.calls++
	return p.results, p.err
}

func registerStatic(t *testing.T, name string, p *staticProvider) {
	t.Helper()
	p.name = name
	Register(name, func(Options) (Provider, error) { return p, nil })
}

func TestClientFirstNonEmptyStopsAtFirstHit(t *testing.T) {
	failing := &staticProvider{err: errors.New("blocked")}
	winning := &staticProvider{results: []Result{{Title: "a", URL: "https://a"}}}
	spare := &staticProvider{results: []Result{{Title: "b", URL: "https://b"}}}
	registerStatic(t, "t_fail", failing)
	registerStatic(t, "t_win", winning)
	registerStatic(t, "t_spare", spare)

	c := NewClient(ClientConfig{
		Chains: map[Mode][]string{ModeSearch: {"t_fail", "t_win", "t_spare"}},
		Limits: map[Mode]int{ModeSearch: 5},
	})

	results, err := c.Search(context.Background(), ModeSearch, "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "a" {
		t.Fatalf("unexpected results %+v", results)
	}
	if spare.calls != 0 {
		t.Fatal("expected chain to stop at first non-empty provider")
	}
}

func TestClientAggregateConcatenatesAndDedupes(t *testing.T) {
	first := &staticProvider{results: []Result{
		{Title: "a1", URL: "https://a/1"},
		{Title: "a2", URL: "https://a/2"},
	}}
	second := &staticProvider{results: []Result{
		{Title: "b1", URL: "https://a/1"}, // duplicate URL
		{Title: "b2", URL: "https://b/2"},
	}}
	registerStatic(t, "t_agg_a", first)
	registerStatic(t, "t_agg_b", second)

	c := NewClient(ClientConfig{
		Chains: map[Mode][]string{ModeSearch: {"t_agg_a", "t_agg_b"}},
		Limits: map[Mode]int{ModeSearch: 10},
		Merge:  MergeAggregate,
	})

	results, err := c.Search(context.Background(), ModeSearch, "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"a1", "a2", "b2"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), results)
	}
	for i, title := range want {
		if results[i].Title != title {
			t.Fatalf("position %d: expected %s, got %s", i, title, results[i].Title)
		}
	}
}

func TestClientAllProvidersFail(t *testing.T) {
	registerStatic(t, "t_allfail", &staticProvider{err: errors.New("nope")})

	c := NewClient(ClientConfig{
		Chains: map[Mode][]string{ModeNews: {"t_allfail"}},
	})

	_, err := c.Search(context.Background(), ModeNews, "query")
	var searchErr *Error
	if !errors.As(err, &searchErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if searchErr.UserMessage != "No search results found." {
		t.Fatalf("unexpected user message %q", searchErr.UserMessage)
	}
}

func TestClientEmptyQuery(t *testing.T) {
	c := NewClient(ClientConfig{})
	if _, err := c.Search(context.Background(), ModeSearch, "   "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestClientProviderCached(t *testing.T) {
	p := &staticProvider{results: []Result{{Title: "x", URL: "https://x"}}}
	built := 0
	Register("t_cached", func(Options) (Provider, error) {
		built++
		return p, nil
	})

	c := NewClient(ClientConfig{
		Chains: map[Mode][]string{ModeSearch: {"t_cached"}},
	})
	for i := 0; i < 3; i++ {
		if _, err := c.Search(context.Background(), ModeSearch, "q"); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}
	if built != 1 {
		t.Fatalf("expected provider built once, got %d", built)
	}
}

func TestConcatDedupeKeepsChainOrder(t *testing.T) {
	buckets := [][]Result{
		{{URL: "http://a/1"}, {URL: "http://a/2"}},
		{{URL: "http://b/1"}},
	}
	merged := concatDedupe(buckets, 5)
	want := []string{"http://a/1", "http://a/2", "http://b/1"}
	if len(merged) != len(want) {
		t.Fatalf("expected %d merged results, got %+v", len(want), merged)
	}
	for i, url := range want {
		if merged[i].URL != url {
			t.Fatalf("position %d: want %s, got %s", i, url, merged[i].URL)
		}
	}
}

func TestConcatDedupeLimitAndEmptyURLs(t *testing.T) {
	buckets := [][]Result{
		{{URL: "1"}, {URL: ""}, {URL: "2"}, {URL: "3"}},
		{{URL: "1"}, {URL: "4"}},
	}
	merged := concatDedupe(buckets, 3)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged results, got %d", len(merged))
	}
	if merged[0].URL != "1" || merged[1].URL != "2" || merged[2].URL != "3" {
		t.Fatalf("unexpected order %+v", merged)
	}
}

func TestClientAggregateRunsWholeChain(t *testing.T) {
	first := &staticProvider{results: []Result{{Title: "a", URL: "https://fan/a"}}}
	second := &staticProvider{results: []Result{{Title: "b", URL: "https://fan/b"}}}
	registerStatic(t, "t_fan_a", first)
	registerStatic(t, "t_fan_b", second)

	c := NewClient(ClientConfig{
		Chains: map[Mode][]string{ModeSearch: {"t_fan_a", "t_fan_b"}},
		Limits: map[Mode]int{ModeSearch: 10},
		Merge:  MergeAggregate,
	})

	results, err := c.Search(context.Background(), ModeSearch, "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Title != "a" || results[1].Title != "b" {
		t.Fatalf("unexpected results %+v", results)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected both providers queried, got %d and %d", first.calls, second.calls)
	}
}

func TestClientRateLimitedMessage(t *testing.T) {
	registerStatic(t, "t_limited", &staticProvider{err: &statusError{code: 429, host: "x"}})

	c := NewClient(ClientConfig{
		Chains: map[Mode][]string{ModeSearch: {"t_limited"}},
	})

	_, err := c.Search(context.Background(), ModeSearch, "query")
	var searchErr *Error
	if !errors.As(err, &searchErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if searchErr.UserMessage != "Search service is rate-limited. Try again soon." {
		t.Fatalf("unexpected user message %q", searchErr.UserMessage)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	if _, err := New("definitely_missing", Options{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestRegistryAvailableIncludesBuiltins(t *testing.T) {
	names := Available()
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for _, want := range []string{"duckduckgo", "bing", "wikipedia", "brave", "jmail", "books", "lolcow_cyraxx", "lolcow_larson"} {
		if !set[want] {
			t.Errorf("expected provider %q to be registered", want)
		}
	}
}
