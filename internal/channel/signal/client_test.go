package signal

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestSendDirectMessage(t *testing.T) {
	var got gjson.Result
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/send" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		got = gjson.ParseBytes(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "+15550001111", srv.Client())
	err := c.Send(context.Background(), Target{Recipient: "+15552223333"}, "hello", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Get("number").String() != "+15550001111" {
		t.Fatalf("unexpected sender %s", got.Get("number").String())
	}
	if got.Get("recipients.0").String() != "+15552223333" || got.Get("message").String() != "hello" {
		t.Fatalf("unexpected payload %s", got.Raw)
	}
}

func TestSendMissingTarget(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "+15550001111", nil)
	err := c.Send(context.Background(), Target{}, "hello", nil, "")
	if err == nil || err.Error() != "Missing target recipient" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSendStatusErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"  invalid   recipient  "}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "+15550001111", srv.Client())
	err := c.Send(context.Background(), Target{Recipient: "+15552223333"}, "hello", nil, "")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "Signal send failed with status 422 (recipient=+15552223333): invalid recipient"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}

	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected typed error %#v", err)
	}
}

func TestSendRetriesServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "+15550001111", srv.Client())
	if err := c.Send(context.Background(), Target{Recipient: "+1"}, "hi", nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected retry, got %d calls", calls)
	}
}

func TestGroupSendWalksCandidatesOn400(t *testing.T) {
	var accepted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/send" {
			w.Write([]byte(`[]`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		recipient := gjson.GetBytes(body, "recipients.0").String()
		if recipient == "unknown" {
			accepted = recipient
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Invalid group id"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "+15550001111", srv.Client())
	err := c.Send(context.Background(), Target{GroupID: "group.unknown"}, "hi", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted == "" {
		t.Fatal("expected a candidate to be accepted")
	}
}

func TestGroupSendFallsBackToDirectMessage(t *testing.T) {
	var dmRecipient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/send" {
			w.Write([]byte(`[]`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		recipient := gjson.GetBytes(body, "recipients.0").String()
		if recipient == "+15559990000" {
			dmRecipient = recipient
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "+15550001111", srv.Client())
	err := c.Send(context.Background(), Target{GroupID: "group.dead"}, "hi", nil, "+15559990000")
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if dmRecipient != "+15559990000" {
		t.Fatal("expected direct message fallback")
	}
}

func TestGroupSendExhaustedIncludesDiagnostics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/send" {
			w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "+15550001111", srv.Client())
	err := c.Send(context.Background(), Target{GroupID: "group.dead"}, "hi", nil, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "resolver_cache_refreshed=true") ||
		!strings.Contains(err.Error(), "candidate_count=") {
		t.Fatalf("expected resolver diagnostics in %q", err.Error())
	}
}

func TestEncodeAttachment(t *testing.T) {
	got := encodeAttachment(Attachment{Data: []byte("img"), ContentType: "image/webp"})
	want := "data:image/webp;filename=image.webp;base64," + base64.StdEncoding.EncodeToString([]byte("img"))
	if got != want {
		t.Fatalf("got %q", got)
	}

	if ext := attachmentExt("application/octet-stream"); ext != "bin" {
		t.Fatalf("got %q", ext)
	}
}

func TestParseChatID(t *testing.T) {
	target, fallback := parseChatID("group:group.abc|fallback:+15551112222")
	if target.GroupID != "group.abc" || fallback != "+15551112222" {
		t.Fatalf("got %+v fallback=%q", target, fallback)
	}

	target, fallback = parseChatID("dm:+15551112222")
	if target.Recipient != "+15551112222" || fallback != "" {
		t.Fatalf("got %+v fallback=%q", target, fallback)
	}

	target, _ = parseChatID("+15551112222")
	if target.Recipient != "+15551112222" {
		t.Fatalf("got %+v", target)
	}
}
