package autosearch

import (
	"context"
	"errors"
	"testing"

	"github.com/htmlgxn/signal-bot-orx/internal/openrouter"
	"github.com/htmlgxn/signal-bot-orx/internal/search"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) GenerateReply(_ context.Context, _ []openrouter.Message) (string, error) {
	return f.reply, f.err
}

func TestDecideSearch(t *testing.T) {
	r := NewRouter(&fakeLLM{reply: `{"should_search": true, "mode": "news", "query": "openrouter outage", "reason": "recent_events"}`})

	d := r.Decide(context.Background(), "what happened with openrouter this week?")
	if !d.ShouldSearch || d.Mode != search.ModeNews || d.Query != "openrouter outage" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestDecideNoSearch(t *testing.T) {
	r := NewRouter(&fakeLLM{reply: `{"should_search": false, "mode": "search", "query": "", "reason": "casual_chat"}`})

	d := r.Decide(context.Background(), "lol nice one")
	if d.ShouldSearch {
		t.Fatalf("unexpected decision %+v", d)
	}
	if d.Reason != "casual_chat" {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

func TestDecideFallbacks(t *testing.T) {
	cases := []struct {
		name string
		llm  *fakeLLM
	}{
		{"model error", &fakeLLM{err: errors.New("boom")}},
		{"not json", &fakeLLM{reply: "I think you should search for it."}},
		{"empty query", &fakeLLM{reply: `{"should_search": true, "mode": "search", "query": ""}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewRouter(tc.llm).Decide(context.Background(), "who is jayleno89?")
			if d.ShouldSearch {
				t.Fatalf("expected no-search fallback, got %+v", d)
			}
		})
	}
}

func TestDecideJSONEmbeddedInProse(t *testing.T) {
	r := NewRouter(&fakeLLM{reply: "Sure! {\"should_search\": true, \"mode\": \"search\", \"query\": \"nick land\"} hope that helps"})

	d := r.Decide(context.Background(), "who is nick land")
	if !d.ShouldSearch || d.Query != "nick land" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestDecideWikiOverride(t *testing.T) {
	r := NewRouter(&fakeLLM{reply: `{"should_search": true, "mode": "wiki", "query": "jayleno89"}`})

	d := r.Decide(context.Background(), "who is jayleno89 on tiktok?")
	if d.Mode != search.ModeSearch {
		t.Fatalf("expected wiki overridden to search, got %s", d.Mode)
	}
}

func TestDecideWikiKeptForExplicitIntent(t *testing.T) {
	r := NewRouter(&fakeLLM{reply: `{"should_search": true, "mode": "wiki", "query": "Ada Lovelace"}`})

	d := r.Decide(context.Background(), "use wikipedia to summarize Ada Lovelace")
	if d.Mode != search.ModeWiki {
		t.Fatalf("expected wiki kept, got %s", d.Mode)
	}
}

func TestShouldForceSearchOverWiki(t *testing.T) {
	cases := []struct {
		prompt string
		query  string
		want   bool
	}{
		{"who is jayleno89 on tiktok", "jayleno89", true},
		{"tell me about some streamer", "some streamer", true},
		{"who is @handle", "handle", true},
		{"use wikipedia for Ada Lovelace", "Ada Lovelace", false},
		{"summarize the French Revolution", "french revolution", false},
	}
	for _, tc := range cases {
		if got := shouldForceSearchOverWiki(tc.prompt, tc.query); got != tc.want {
			t.Fatalf("shouldForceSearchOverWiki(%q, %q) = %v, want %v", tc.prompt, tc.query, got, tc.want)
		}
	}
}
