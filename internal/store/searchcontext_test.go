package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/htmlgxn/signal-bot-orx/internal/search"
)

func TestSearchContextFindSourcesByClaim(t *testing.T) {
	s := NewSearchContext(30*time.Minute, 40)

	s.Remember("group:1", search.ModeSearch, []search.Result{
		{Title: "Nick Land biography", URL: "https://example.com/land", Snippet: "British philosopher known for accelerationism"},
		{Title: "Weather in Oslo", URL: "https://example.com/oslo", Snippet: "Cold and rainy this week"},
	})

	sources := s.FindSources("group:1", "accelerationism philosopher", 3)
	if len(sources) != 1 {
		t.Fatalf("expected 1 matching source, got %d", len(sources))
	}
	if sources[0].URL != "https://example.com/land" {
		t.Fatalf("unexpected source: %s", sources[0].URL)
	}
}

func TestSearchContextFindSourcesEmptyClaimReturnsNewest(t *testing.T) {
	s := NewSearchContext(30*time.Minute, 40)

	s.Remember("group:1", search.ModeSearch, []search.Result{
		{Title: "Older", URL: "https://example.com/a", Snippet: "first"},
	})
	s.Remember("group:1", search.ModeSearch, []search.Result{
		{Title: "Newer", URL: "https://example.com/b", Snippet: "second"},
		{Title: "Duplicate", URL: "https://example.com/b", Snippet: "same url"},
	})

	sources := s.FindSources("group:1", "", 3)
	if len(sources) != 2 {
		t.Fatalf("expected 2 deduplicated sources, got %d", len(sources))
	}
	if sources[0].URL != "https://example.com/b" {
		t.Fatalf("expected newest source first, got %s", sources[0].URL)
	}
}

func TestSearchContextRecordCap(t *testing.T) {
	s := NewSearchContext(30*time.Minute, 5)

	for i := 0; i < 8; i++ {
		s.Remember("group:1", search.ModeSearch, []search.Result{
			{Title: "result", URL: fmt.Sprintf("https://example.com/%d", i), Snippet: "text"},
		})
	}

	recent := s.RecentRecords("group:1", 10)
	if len(recent) != 5 {
		t.Fatalf("expected cap at 5 records, got %d", len(recent))
	}
	if recent[0].URL != "https://example.com/7" {
		t.Fatalf("expected newest record first, got %s", recent[0].URL)
	}
}

func TestSearchContextExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewSearchContext(5*time.Second, 40)
	s.now = func() time.Time { return now }

	s.Remember("group:1", search.ModeSearch, []search.Result{
		{Title: "result", URL: "https://example.com/a", Snippet: "text"},
	})
	s.SetPendingFollowup("group:1", "who is he", "who is {subject}", "ambiguous")

	now = now.Add(6 * time.Second)
	if got := s.RecentRecords("group:1", 6); got != nil {
		t.Fatalf("expected expired records, got %d", len(got))
	}
	if s.PendingFollowup("group:1") != nil {
		t.Fatal("expected expired pending followup")
	}
}

func TestSearchContextPendingFollowupAttempts(t *testing.T) {
	s := NewSearchContext(30*time.Minute, 40)

	if got := s.BumpPendingAttempt("group:1"); got != 0 {
		t.Fatalf("expected 0 attempts without pending state, got %d", got)
	}

	s.SetPendingFollowup("group:1", "who is he", "who is {subject}", "ambiguous")
	if got := s.BumpPendingAttempt("group:1"); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	if got := s.BumpPendingAttempt("group:1"); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}

	s.ClearPendingFollowup("group:1")
	if s.PendingFollowup("group:1") != nil {
		t.Fatal("expected cleared pending followup")
	}
}

func TestSearchContextPendingVideoSelection(t *testing.T) {
	s := NewSearchContext(30*time.Minute, 40)

	s.SetPendingVideoSelection("group:1", "nick land interview", []search.Result{
		{Title: "First video", URL: "https://youtube.com/watch?v=abc123", ThumbnailURL: "https://img.example/thumb.jpg"},
	})

	pending := s.PendingVideoSelection("group:1")
	if pending == nil {
		t.Fatal("expected pending video selection")
	}
	if pending.Query != "nick land interview" {
		t.Fatalf("unexpected query: %s", pending.Query)
	}
	if len(pending.Results) != 1 || pending.Results[0].Title != "First video" {
		t.Fatalf("unexpected results: %+v", pending.Results)
	}

	s.ClearPendingVideoSelection("group:1")
	if s.PendingVideoSelection("group:1") != nil {
		t.Fatal("expected cleared video selection")
	}
}

func TestSearchContextPendingJMailSelection(t *testing.T) {
	s := NewSearchContext(30*time.Minute, 40)

	s.SetPendingJMailSelection("group:1", "flight logs", []search.Result{
		{Title: "Re: travel", URL: "https://jmail.world/thread/EFTA00000001"},
	})

	pending := s.PendingJMailSelection("group:1")
	if pending == nil || len(pending.Results) != 1 {
		t.Fatalf("unexpected pending jmail selection: %+v", pending)
	}

	s.ClearPendingJMailSelection("group:1")
	if s.PendingJMailSelection("group:1") != nil {
		t.Fatal("expected cleared jmail selection")
	}
}

func TestNormalizeClaim(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello world"},
		{"  multiple   spaces ", "multiple spaces"},
		{"Mixed-CASE_text123", "mixed case text123"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := normalizeClaim(tc.in); got != tc.want {
			t.Fatalf("normalizeClaim(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
