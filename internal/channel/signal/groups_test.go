package signal

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"
)

func parseJSON(t *testing.T, s string) gjson.Result {
	t.Helper()
	if !gjson.Valid(s) {
		t.Fatalf("invalid test JSON: %s", s)
	}
	return gjson.Parse(s)
}

func TestAliasVariantsRawID(t *testing.T) {
	variants := aliasVariants("abc+def/gh==")
	want := []string{
		"abc+def/gh==",
		"abc-def_gh",
		"group.abc+def/gh==",
		"group." + base64.StdEncoding.EncodeToString([]byte("abc+def/gh==")),
	}
	set := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		set[v] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			t.Fatalf("missing variant %q in %v", w, variants)
		}
	}
}

func TestAliasVariantsPrefixedDecodes(t *testing.T) {
	internal := "internal-id-1"
	canonical := "group." + base64.StdEncoding.EncodeToString([]byte(internal))

	variants := aliasVariants(canonical)
	found := false
	for _, v := range variants {
		if v == internal {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected decoded internal id %q among %v", internal, variants)
	}
}

func TestCompatRecipientsRawID(t *testing.T) {
	got := compatRecipients("abc+/=")
	if len(got) == 0 || got[0] != "group."+base64.StdEncoding.EncodeToString([]byte("abc+/=")) {
		t.Fatalf("expected canonical-style first candidate, got %v", got)
	}
	last := got[len(got)-1]
	if last != "group.abc-_" {
		t.Fatalf("expected legacy url-safe candidate last, got %v", got)
	}
}

func TestDecodeGroupSuffix(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("hello group"))
	urlSafe := "aGVsbG8gZ3JvdXA" // unpadded

	if got := decodeGroupSuffix(encoded); got != "hello group" {
		t.Fatalf("got %q", got)
	}
	if got := decodeGroupSuffix(urlSafe); got != "hello group" {
		t.Fatalf("unpadded: got %q", got)
	}
	if got := decodeGroupSuffix("!!!not-base64!!!"); got != "" {
		t.Fatalf("expected empty for junk, got %q", got)
	}
}

func TestResolverResolvesAliasAfterRefresh(t *testing.T) {
	internal := "team-chat-internal"
	canonical := "group." + base64.StdEncoding.EncodeToString([]byte(internal))
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"id":"` + canonical + `","internal_id":"` + internal + `"}]`))
	}))
	defer srv.Close()

	r := NewGroupResolver(srv.URL, "+15550001111", srv.Client())

	resolved := r.Resolve(context.Background(), internal)
	if !resolved.CacheRefreshed {
		t.Fatal("expected a cache refresh on first miss")
	}
	if len(resolved.Recipients) == 0 || resolved.Recipients[0] != canonical {
		t.Fatalf("expected canonical first, got %v", resolved.Recipients)
	}

	// second resolve hits the cache, no refresh
	resolved = r.Resolve(context.Background(), internal)
	if resolved.CacheRefreshed {
		t.Fatal("expected cached lookup")
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls)
	}
}

func TestResolverUnresolvedFallsBackToCompat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r := NewGroupResolver(srv.URL, "+15550001111", srv.Client())

	resolved := r.Resolve(context.Background(), "group.unknown")
	if len(resolved.Recipients) == 0 {
		t.Fatal("expected compat candidates even when unresolved")
	}
	if resolved.Recipients[0] != "group.unknown" {
		t.Fatalf("expected input first, got %v", resolved.Recipients)
	}
}

func TestGroupRecordsShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"list", `[{"id":"group.a"},{"id":"group.b"}]`, 2},
		{"wrapped groups", `{"groups":[{"id":"group.a"}]}`, 1},
		{"wrapped data", `{"data":[{"groupId":"group.a"}]}`, 1},
		{"single record", `{"internal_id":"x"}`, 1},
		{"no records", `{"ok":true}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records := groupRecords(parseJSON(t, tc.body))
			if len(records) != tc.want {
				t.Fatalf("got %d records, want %d", len(records), tc.want)
			}
		})
	}
}
