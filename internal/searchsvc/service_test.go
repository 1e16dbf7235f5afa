package searchsvc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/htmlgxn/signal-bot-orx/internal/openrouter"
	"github.com/htmlgxn/signal-bot-orx/internal/search"
	"github.com/htmlgxn/signal-bot-orx/internal/store"
)

type fakeSearcher struct {
	results []search.Result
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, _ search.Mode, query string) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakeLLM struct {
	reply    string
	err      error
	lastSent []openrouter.Message
}

func (f *fakeLLM) GenerateReply(_ context.Context, messages []openrouter.Message) (string, error) {
	f.lastSent = messages
	return f.reply, f.err
}

func newTestService(searcher *fakeSearcher, llm *fakeLLM, cfg Config) *Service {
	return New(searcher, store.NewSearchContext(30*time.Minute, 40), llm, cfg)
}

func TestSummarizeRemembersResults(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{
		{Title: "Nick Land", URL: "https://example.com/land", Snippet: "philosopher"},
	}}
	llm := &fakeLLM{reply: "He is a philosopher."}
	svc := newTestService(searcher, llm, Config{})

	summary, err := svc.Summarize(context.Background(), "group:1", search.ModeSearch, "nick land", "", nil)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "He is a philosopher." {
		t.Fatalf("unexpected summary %q", summary)
	}

	reply := svc.SourceReply("group:1", "philosopher")
	if !strings.Contains(reply, "https://example.com/land") {
		t.Fatalf("source should be remembered, got %q", reply)
	}
}

func TestSummarizeEmptySummaryFails(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{{Title: "x", URL: "https://example.com"}}}
	llm := &fakeLLM{reply: "   "}
	svc := newTestService(searcher, llm, Config{})

	_, err := svc.Summarize(context.Background(), "group:1", search.ModeSearch, "query", "", nil)
	if err == nil || err.Error() != "Search returned results but I couldn't summarize them." {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSummarizePersonaOverlay(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{{Title: "x", URL: "https://example.com"}}}
	llm := &fakeLLM{reply: "ok"}
	svc := newTestService(searcher, llm, Config{PersonaEnabled: true, PersonaPrompt: "You are the bot."})

	if _, err := svc.Summarize(context.Background(), "group:1", search.ModeSearch, "query", "", nil); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	system := llm.lastSent[0].Content
	if !strings.HasPrefix(system, "You are the bot.") {
		t.Fatalf("persona missing from system prompt: %q", system)
	}
	if !strings.Contains(system, "Search-response constraints:") {
		t.Fatalf("overlay missing from system prompt: %q", system)
	}
}

func TestSummarizeStyleInstruction(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{{Title: "x", URL: "https://example.com"}}}
	llm := &fakeLLM{reply: "ok"}
	svc := newTestService(searcher, llm, Config{})

	if _, err := svc.Summarize(context.Background(), "group:1", search.ModeSearch, "query",
		"answer in one short sentence please", nil); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	user := llm.lastSent[1].Content
	if !strings.Contains(user, "response_style_instruction: Reply in one short sentence.") {
		t.Fatalf("style instruction missing: %q", user)
	}
}

func TestVideoListAndSelection(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{
		{Title: "First video", URL: "https://youtube.com/watch?v=abc"},
		{Title: "Second video", URL: "https://youtube.com/watch?v=def"},
	}}
	svc := newTestService(searcher, &fakeLLM{reply: "ok"}, Config{})

	reply, err := svc.VideoListReply(context.Background(), "group:1", "nick land interview")
	if err != nil {
		t.Fatalf("VideoListReply: %v", err)
	}
	want := "Videos:\n1. First video\n2. Second video\nReply with a number to send the thumbnail and URL."
	if reply != want {
		t.Fatalf("unexpected reply %q", reply)
	}

	// Out-of-range picks leave the list parked.
	if _, _, _, _, err = svc.VideoSelection(context.Background(), "group:1", 5); err == nil ||
		err.Error() != "Please choose a number between 1 and 2." {
		t.Fatalf("unexpected range error %v", err)
	}

	_, _, url, title, err := svc.VideoSelection(context.Background(), "group:1", 2)
	if err != nil {
		t.Fatalf("VideoSelection: %v", err)
	}
	if url != "https://youtube.com/watch?v=def" || title != "Second video" {
		t.Fatalf("unexpected selection %q %q", url, title)
	}

	// A successful pick consumes the list.
	if _, _, _, _, err = svc.VideoSelection(context.Background(), "group:1", 1); err == nil ||
		err.Error() != "No pending video results. Run /videos <query> first." {
		t.Fatalf("unexpected error after consumption %v", err)
	}
}

func TestVideoSelectionWithoutPending(t *testing.T) {
	svc := newTestService(&fakeSearcher{}, &fakeLLM{}, Config{})

	_, _, _, _, err := svc.VideoSelection(context.Background(), "group:1", 1)
	if err == nil || err.Error() != "No pending video results. Run /videos <query> first." {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestJMailListAndSelection(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{
		{Title: "Re: travel", URL: "https://jmail.world/thread/EFTA00000001", Snippet: "flight details"},
	}}
	llm := &fakeLLM{reply: "Summary of the email."}
	svc := newTestService(searcher, llm, Config{})

	reply, err := svc.JMailListReply(context.Background(), "group:1", "travel")
	if err != nil {
		t.Fatalf("JMailListReply: %v", err)
	}
	if !strings.HasPrefix(reply, "JMail Epstein Email Archive:") {
		t.Fatalf("unexpected header in %q", reply)
	}
	if !strings.HasSuffix(reply, "Reply with a number to summarize an email.") {
		t.Fatalf("unexpected footer in %q", reply)
	}

	summary, err := svc.JMailSelection(context.Background(), "group:1", 1, nil)
	if err != nil {
		t.Fatalf("JMailSelection: %v", err)
	}
	if summary != "Summary of the email." {
		t.Fatalf("unexpected summary %q", summary)
	}
	if !strings.Contains(llm.lastSent[1].Content, "user_request: Summarize this email: Re: travel") {
		t.Fatalf("selection request missing: %q", llm.lastSent[1].Content)
	}

	// The selected email becomes citable.
	sources := svc.SourceReply("group:1", "flight details")
	if !strings.Contains(sources, "https://jmail.world/thread/EFTA00000001") {
		t.Fatalf("selected email not remembered: %q", sources)
	}
}

func TestSourceReplyWithoutMatches(t *testing.T) {
	svc := newTestService(&fakeSearcher{}, &fakeLLM{}, Config{})

	reply := svc.SourceReply("group:1", "anything")
	if reply != "I don't have a saved source for that yet; ask me to search it." {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestResponseStyleInstruction(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"answer in one short sentence", "Reply in one short sentence."},
		{"give me a single sentence on this", "Reply in one short sentence."},
		{"summarize in two sentences", "Reply in exactly two short sentences."},
		{"tell me everything", ""},
	}
	for _, tc := range cases {
		if got := responseStyleInstruction(tc.in); got != tc.want {
			t.Fatalf("responseStyleInstruction(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeHistoryContext(t *testing.T) {
	items := []HistoryItem{
		{Role: "USER", Content: "  hello   world  "},
		{Role: "system", Content: "drop me"},
		{Role: "assistant", Content: ""},
		{Role: "assistant", Content: "fine"},
		{Role: "user", Content: "a"},
		{Role: "user", Content: "b"},
		{Role: "user", Content: "c"},
	}
	cleaned := SanitizeHistoryContext(items)
	if len(cleaned) != 4 {
		t.Fatalf("expected cap at 4 items, got %d", len(cleaned))
	}
	if cleaned[0].Role != "user" || cleaned[0].Content != "hello world" {
		t.Fatalf("unexpected first item %+v", cleaned[0])
	}
}
