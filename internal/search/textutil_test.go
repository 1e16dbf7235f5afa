package search

import (
	"testing"
	"time"
)

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<b>Hello</b> &amp; goodbye", "Hello & goodbye"},
		{"line\x00with\u200bcontrol", "line with control"},
		{"  spaced \n\t out  ", "spaced out"},
		{"", ""},
		{"<span class=\"x\">nested <i>tags</i></span>", "nested tags"},
	}
	for _, tc := range cases {
		if got := normalizeText(tc.in); got != tc.want {
			t.Errorf("normalizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	if got := normalizeURL("https%3A%2F%2Fexample.com%2Fa%20b"); got != "https://example.com/a+b" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := normalizeURL(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestNormalizeDate(t *testing.T) {
	if got := normalizeDate("1700000000"); got != "2023-11-14" {
		t.Fatalf("unexpected date %q", got)
	}
	if got := normalizeDate("2024-05-01"); got != "2024-05-01" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := normalizeDate("  "); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestNormalizeRelativeDate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want string
	}{
		{"3 hours ago", "2025-06-15"},
		{"2 days ago", "2025-06-13"},
		{"1 week ago", "2025-06-08"},
		{"yesterday", "yesterday"},
		{"2024-01-01", "2024-01-01"},
	}
	for _, tc := range cases {
		if got := normalizeRelativeDate(tc.in, now); got != tc.want {
			t.Errorf("normalizeRelativeDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractVQD(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`...vqd="4-1234567890"...`, "4-1234567890"},
		{`href="/d.js?q=x&vqd=4-987&o=json"`, "4-987"},
		{`vqd='4-555'`, "4-555"},
	}
	for _, tc := range cases {
		got, err := extractVQD([]byte(tc.body), "q")
		if err != nil || got != tc.want {
			t.Errorf("extractVQD(%q) = %q, %v, want %q", tc.body, got, err, tc.want)
		}
	}

	if _, err := extractVQD([]byte("no token here"), "rust"); err == nil {
		t.Fatal("expected error for missing token")
	}
}
