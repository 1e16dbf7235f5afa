package whatsapp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
)

func TestParseWebhookEnvelopeShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"flat", `{"from":"15550001111@c.us","text":"hello","timestamp":1700000000000}`},
		{"event", `{"event":{"sender":"15550001111@c.us","body":"hello","timestamp":1700000000000}}`},
		{"payload", `{"payload":{"fromNumber":"15550001111@c.us","message":"hello","timestamp":1700000000000}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := parseWebhook([]byte(tc.body), "")
			if msg == nil {
				t.Fatal("expected a message")
			}
			if msg.Sender != "15550001111@c.us" || msg.Text != "hello" {
				t.Fatalf("unexpected message %+v", msg)
			}
			if msg.IsGroup || msg.ChatID != "15550001111@c.us" {
				t.Fatalf("expected direct chat, got %+v", msg)
			}
		})
	}
}

func TestParseWebhookGroupByJIDSuffix(t *testing.T) {
	body := `{"from":"15550001111@c.us","chatId":"12036302@g.us","text":"hi"}`

	msg := parseWebhook([]byte(body), "")
	if msg == nil || !msg.IsGroup || msg.GroupID != "12036302@g.us" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestParseWebhookMentions(t *testing.T) {
	body := `{"from":"a@c.us","chatId":"g@g.us","text":"@bot hi","mentionedIds":["15559998888@c.us"]}`

	msg := parseWebhook([]byte(body), "15559998888@c.us")
	if msg == nil || msg.Metadata[channel.MetadataBotMentioned] != "true" {
		t.Fatalf("expected mention metadata, got %+v", msg)
	}

	// bare number in the list still matches the JID user part
	body = `{"from":"a@c.us","chatId":"g@g.us","text":"@bot hi","mentions":["15559998888"]}`
	msg = parseWebhook([]byte(body), "15559998888@c.us")
	if msg == nil || msg.Metadata[channel.MetadataBotMentioned] != "true" {
		t.Fatalf("expected mention metadata, got %+v", msg)
	}
}

func TestParseWebhookRejectsIncomplete(t *testing.T) {
	for _, body := range []string{`{"text":"hi"}`, `{"from":"a@c.us"}`, `[]`, `junk`} {
		if msg := parseWebhook([]byte(body), ""); msg != nil {
			t.Fatalf("expected nil for %q, got %+v", body, msg)
		}
	}
}

func TestClientSendText(t *testing.T) {
	var got gjson.Result
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send/text" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		got = gjson.ParseBytes(body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", srv.Client())
	if err := c.SendText(context.Background(), "g@g.us", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got.Get("chatId").String() != "g@g.us" || got.Get("text").String() != "hello" {
		t.Fatalf("unexpected payload %s", got.Raw)
	}
}

func TestClientSendImage(t *testing.T) {
	var got gjson.Result
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send/image" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		got = gjson.ParseBytes(body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client())
	err := c.SendImage(context.Background(), "g@g.us", []byte("img"), "image/png", "a caption")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Get("mimeType").String() != "image/png" || got.Get("caption").String() != "a caption" {
		t.Fatalf("unexpected payload %s", got.Raw)
	}
	if got.Get("imageBase64").String() == "" {
		t.Fatal("expected base64 image data")
	}
}

func TestClientSendErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"session  not   started"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client())
	err := c.SendText(context.Background(), "g@g.us", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "WhatsApp bridge send failed (502): session not started"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestClientNetworkError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", nil)
	err := c.SendText(context.Background(), "g@g.us", "hello")
	if err == nil || !strings.Contains(err.Error(), "WhatsApp bridge network error") {
		t.Fatalf("unexpected error %v", err)
	}
}
