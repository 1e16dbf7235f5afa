package signal

import (
	"testing"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
)

func TestParseWebhookEnvelopeShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"jsonrpc", `{"jsonrpc":"2.0","params":{"envelope":{"sourceNumber":"+15550001111","dataMessage":{"message":"hello","timestamp":1700000000000}}}}`},
		{"nested", `{"envelope":{"sourceNumber":"+15550001111","dataMessage":{"message":"hello","timestamp":1700000000000}}}`},
		{"flat", `{"sourceNumber":"+15550001111","dataMessage":{"message":"hello","timestamp":1700000000000}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := parseWebhook([]byte(tc.body))
			if msg == nil {
				t.Fatal("expected a message")
			}
			if msg.Sender != "+15550001111" || msg.Text != "hello" || msg.Timestamp != 1700000000000 {
				t.Fatalf("unexpected message %+v", msg)
			}
			if msg.IsGroup || msg.ChatID != "dm:+15550001111" {
				t.Fatalf("expected direct message, got %+v", msg)
			}
		})
	}
}

func TestParseWebhookGroup(t *testing.T) {
	body := `{"envelope":{"source":"+15550001111","dataMessage":{"message":"hi","groupInfo":{"groupId":"group.abc"},"timestamp":5}}}`

	msg := parseWebhook([]byte(body))
	if msg == nil {
		t.Fatal("expected a message")
	}
	if !msg.IsGroup || msg.GroupID != "group.abc" || msg.ChatID != "group:group.abc" {
		t.Fatalf("unexpected group fields %+v", msg)
	}
	if msg.SessionKey() != "group:group.abc" {
		t.Fatalf("unexpected session key %q", msg.SessionKey())
	}
}

func TestParseWebhookRejectsIncomplete(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no sender", `{"envelope":{"dataMessage":{"message":"hi"}}}`},
		{"no text", `{"envelope":{"sourceNumber":"+15550001111","dataMessage":{}}}`},
		{"not json", `hello`},
		{"array", `[1,2,3]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if msg := parseWebhook([]byte(tc.body)); msg != nil {
				t.Fatalf("expected nil, got %+v", msg)
			}
		})
	}
}

func TestParseWebhookMentions(t *testing.T) {
	body := `{"envelope":{"sourceNumber":"+15550001111","dataMessage":{
		"message":"@bot hello",
		"mentions":[{"start":0,"length":4,"number":"+15559998888"}],
		"bodyRanges":[{"start":5,"length":2,"recipientUuid":"ABC-123"},{"start":-1,"length":3,"uuid":"bad"},{"start":1,"length":2}]
	}}}`

	msg := parseWebhook([]byte(body))
	if msg == nil {
		t.Fatal("expected a message")
	}
	if len(msg.Mentions) != 2 {
		t.Fatalf("expected 2 mentions, got %d: %+v", len(msg.Mentions), msg.Mentions)
	}
	if msg.Mentions[0].Number != "+15559998888" || msg.Mentions[1].UUID != "ABC-123" {
		t.Fatalf("unexpected mentions %+v", msg.Mentions)
	}
}

func TestMentionsBot(t *testing.T) {
	mentions := []channel.Mention{
		{Start: 0, Length: 4, Number: "+1 (555) 999-8888"},
		{Start: 5, Length: 2, UUID: " ABC-DEF "},
	}

	if !mentionsBot(mentions, "+15559998888", "") {
		t.Fatal("expected number match after normalization")
	}
	if !mentionsBot(mentions, "", "abc-def") {
		t.Fatal("expected case-insensitive uuid match")
	}
	if mentionsBot(mentions, "+15550000000", "other") {
		t.Fatal("expected no match")
	}
}

func TestStripMentionSpans(t *testing.T) {
	mentions := []channel.Mention{{Start: 0, Length: 4, Number: "+1"}}
	got := channel.StripMentionSpans("@bot what is rust", mentions)
	if got != "what is rust" {
		t.Fatalf("got %q", got)
	}

	// out-of-bounds span is skipped
	got = channel.StripMentionSpans("short", []channel.Mention{{Start: 2, Length: 50, Number: "+1"}})
	if got != "short" {
		t.Fatalf("got %q", got)
	}
}
