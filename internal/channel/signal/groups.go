package signal

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
)

const groupCacheTTL = 5 * time.Minute

const groupIDPrefix = "group."

var groupRecordIDKeys = []string{"id", "groupId", "groupIdHex", "internal_id", "internalId"}

// ResolvedRecipients is the ordered candidate list for one group send
// attempt plus whether the resolver had to refresh its cache to build it.
type ResolvedRecipients struct {
	Recipients     []string
	CacheRefreshed bool
}

// GroupResolver maps the many shapes signal-cli uses for group identifiers
// (canonical "group.<b64>", raw internal ids, hex ids, url-safe and
// unpadded base64 spellings) onto the canonical recipient the send API
// accepts. Known aliases come from GET /v1/groups and are cached.
type GroupResolver struct {
	baseURL    string
	sender     string
	httpClient *http.Client

	mu               sync.Mutex
	aliasToCanonical map[string]string
	lastRefresh      time.Time
}

func NewGroupResolver(baseURL, senderNumber string, httpClient *http.Client) *GroupResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GroupResolver{
		baseURL:          strings.TrimRight(baseURL, "/"),
		sender:           senderNumber,
		httpClient:       httpClient,
		aliasToCanonical: make(map[string]string),
	}
}

// Resolve returns the recipient candidates for groupID, refreshing the
// alias cache at most once per TTL window. Compatibility spellings are
// always appended so a stale cache still has a chance of delivering.
func (r *GroupResolver) Resolve(ctx context.Context, groupID string) ResolvedRecipients {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return ResolvedRecipients{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	canonical := r.lookupLocked(groupID)
	refreshed := false
	if canonical == "" && time.Since(r.lastRefresh) >= groupCacheTTL {
		r.refreshLocked(ctx)
		refreshed = true
		canonical = r.lookupLocked(groupID)
	}

	compat := compatRecipients(groupID)
	if canonical == "" {
		return ResolvedRecipients{Recipients: compat, CacheRefreshed: refreshed}
	}
	return ResolvedRecipients{
		Recipients:     orderedUnique(append([]string{canonical}, compat...)),
		CacheRefreshed: refreshed,
	}
}

func (r *GroupResolver) lookupLocked(groupID string) string {
	for _, alias := range aliasVariants(groupID) {
		if canonical, ok := r.aliasToCanonical[alias]; ok {
			return canonical
		}
	}
	return ""
}

func (r *GroupResolver) refreshLocked(ctx context.Context) {
	r.lastRefresh = time.Now()

	records, err := r.fetchGroups(ctx)
	if err != nil {
		logs.CtxWarn(ctx, "[signal] group cache refresh failed: %v", err)
		return
	}

	cache := make(map[string]string, len(records)*4)
	for _, record := range records {
		canonical := canonicalRecipient(record)
		if canonical == "" {
			continue
		}
		for _, key := range groupRecordIDKeys {
			value := strings.TrimSpace(record.Get(key).String())
			if value == "" {
				continue
			}
			for _, alias := range aliasVariants(value) {
				cache[alias] = canonical
			}
		}
	}
	r.aliasToCanonical = cache
	logs.CtxInfo(ctx, "[signal] group cache refreshed, aliases=%d", len(cache))
}

func (r *GroupResolver) fetchGroups(ctx context.Context) ([]gjson.Result, error) {
	urls := []string{
		fmt.Sprintf("%s/v1/groups/%s", r.baseURL, url.PathEscape(r.sender)),
		fmt.Sprintf("%s/v1/groups", r.baseURL),
	}

	var lastErr error
	for _, endpoint := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= http.StatusBadRequest {
			lastErr = fmt.Errorf("group list request to %s failed with status %d", endpoint, resp.StatusCode)
			continue
		}
		parsed := gjson.ParseBytes(body)
		if records := groupRecords(parsed); records != nil {
			return records, nil
		}
		lastErr = fmt.Errorf("group list response from %s had no usable records", endpoint)
	}
	return nil, lastErr
}

func groupRecords(parsed gjson.Result) []gjson.Result {
	if parsed.IsArray() {
		var records []gjson.Result
		for _, item := range parsed.Array() {
			if item.IsObject() {
				records = append(records, item)
			}
		}
		return records
	}
	if !parsed.IsObject() {
		return nil
	}
	for _, key := range []string{"groups", "data", "results"} {
		if nested := parsed.Get(key); nested.IsArray() {
			return groupRecords(nested)
		}
	}
	for _, key := range groupRecordIDKeys {
		if parsed.Get(key).Exists() {
			return []gjson.Result{parsed}
		}
	}
	return nil
}

func canonicalRecipient(record gjson.Result) string {
	for _, key := range []string{"id", "groupId", "groupIdHex"} {
		value := strings.TrimSpace(record.Get(key).String())
		if value == "" {
			continue
		}
		if strings.HasPrefix(value, groupIDPrefix) {
			return value
		}
		return groupIDPrefix + encodeB64(value)
	}
	for _, key := range []string{"internal_id", "internalId"} {
		value := strings.TrimSpace(record.Get(key).String())
		if value != "" {
			return groupIDPrefix + encodeB64(value)
		}
	}
	return ""
}

// aliasVariants expands one group identifier into every spelling that
// should match it during lookup.
func aliasVariants(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	var seeds []string
	if strings.HasPrefix(value, groupIDPrefix) {
		suffix := strings.TrimPrefix(value, groupIDPrefix)
		seeds = append(seeds, value, suffix)
		if decoded := decodeGroupSuffix(suffix); decoded != "" {
			seeds = append(seeds, decoded, groupIDPrefix+decoded)
		}
	} else {
		encoded := encodeB64(value)
		seeds = append(seeds, value, groupIDPrefix+value, encoded, groupIDPrefix+encoded)
	}

	var variants []string
	for _, seed := range seeds {
		variants = append(variants, tolerantForms(seed)...)
	}
	return orderedUnique(variants)
}

// tolerantForms covers url-safe and unpadded base64 spellings, each with
// and without the "group." prefix.
func tolerantForms(value string) []string {
	core := strings.TrimPrefix(value, groupIDPrefix)
	urlSafe := strings.NewReplacer("+", "-", "/", "_").Replace(core)
	forms := []string{
		core,
		urlSafe,
		strings.TrimRight(core, "="),
		strings.TrimRight(urlSafe, "="),
	}

	var out []string
	for _, form := range forms {
		if form == "" {
			continue
		}
		out = append(out, form, groupIDPrefix+form)
	}
	return out
}

// compatRecipients lists the spellings worth trying directly against the
// send API when resolution fails or the canonical form bounces.
func compatRecipients(groupID string) []string {
	if strings.HasPrefix(groupID, groupIDPrefix) {
		suffix := strings.TrimPrefix(groupID, groupIDPrefix)
		candidates := []string{groupID, suffix}
		if decoded := decodeGroupSuffix(suffix); decoded != "" {
			candidates = append(candidates, groupIDPrefix+decoded, decoded)
		}
		return orderedUnique(candidates)
	}

	legacy := strings.TrimRight(strings.NewReplacer("+", "-", "/", "_").Replace(groupID), "=")
	return orderedUnique([]string{
		groupIDPrefix + encodeB64(groupID),
		groupIDPrefix + groupID,
		groupID,
		groupIDPrefix + legacy,
	})
}

func decodeGroupSuffix(suffix string) string {
	normalized := strings.NewReplacer("-", "+", "_", "/").Replace(strings.TrimSpace(suffix))
	if normalized == "" {
		return ""
	}
	if pad := len(normalized) % 4; pad != 0 {
		normalized += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil || !utf8.Valid(raw) {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func encodeB64(value string) string {
	return base64.StdEncoding.EncodeToString([]byte(value))
}

func orderedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
