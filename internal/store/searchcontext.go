package store

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/htmlgxn/signal-bot-orx/internal/search"
)

const (
	defaultMaxRecordsPerChat = 40
	claimKeyLimit            = 160
)

// SourceRecord is one remembered search result, tagged with a claim key so
// later "source?" questions can be matched back to it.
type SourceRecord struct {
	ClaimKey  string
	Title     string
	URL       string
	Snippet   string
	Mode      search.Mode
	CreatedAt time.Time
}

// PendingFollowup is an unresolved follow-up question waiting for the user
// to name a subject.
type PendingFollowup struct {
	OriginalPrompt string
	TemplatePrompt string
	Reason         string
	CreatedAt      time.Time
	Attempts       int
}

// PendingSelection is a numbered result list (videos or jmail) waiting for
// the user to reply with a pick.
type PendingSelection struct {
	Query     string
	Results   []search.Result
	CreatedAt time.Time
}

// SearchContext remembers recent search results per chat so replies can cite
// sources, plus the pending follow-up and selection state for each chat.
// Everything expires after the configured TTL.
type SearchContext struct {
	ttl        time.Duration
	maxRecords int
	now        func() time.Time

	mu              sync.Mutex
	records         map[string][]SourceRecord
	followups       map[string]*PendingFollowup
	videoSelections map[string]*PendingSelection
	jmailSelections map[string]*PendingSelection
}

func NewSearchContext(ttl time.Duration, maxRecords int) *SearchContext {
	if ttl <= 0 {
		ttl = time.Second
	}
	if maxRecords < 1 {
		maxRecords = defaultMaxRecordsPerChat
	}
	return &SearchContext{
		ttl:             ttl,
		maxRecords:      maxRecords,
		now:             time.Now,
		records:         make(map[string][]SourceRecord),
		followups:       make(map[string]*PendingFollowup),
		videoSelections: make(map[string]*PendingSelection),
		jmailSelections: make(map[string]*PendingSelection),
	}
}

// Remember stores search results for a chat, keeping the newest maxRecords.
func (s *SearchContext) Remember(chatID string, mode search.Mode, results []search.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.purgeLocked(now)

	if len(results) == 0 {
		return
	}

	bucket := s.records[chatID]
	for _, r := range results {
		bucket = append(bucket, SourceRecord{
			ClaimKey:  claimKey(r),
			Title:     r.Title,
			URL:       r.URL,
			Snippet:   r.Snippet,
			Mode:      mode,
			CreatedAt: now,
		})
	}
	if len(bucket) > s.maxRecords {
		bucket = bucket[len(bucket)-s.maxRecords:]
	}
	s.records[chatID] = bucket
}

// FindSources returns up to limit records matching a claim, best first.
// An empty claim returns the most recent unique URLs.
func (s *SearchContext) FindSources(chatID, claim string, limit int) []SourceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())

	records := s.records[chatID]
	if len(records) == 0 {
		return nil
	}

	normalizedClaim := normalizeClaim(claim)
	if normalizedClaim == "" {
		newest := make([]SourceRecord, len(records))
		for i, r := range records {
			newest[len(records)-1-i] = r
		}
		return dedupeURLs(newest, limit)
	}

	type scored struct {
		score  int
		record SourceRecord
	}
	claimTokens := tokenSet(normalizedClaim)
	var matches []scored
	for _, record := range records {
		text := normalizeClaim(record.Title + " " + record.Snippet + " " + record.ClaimKey)
		score := 0
		if strings.Contains(text, normalizedClaim) {
			score += 100
		}
		for token := range tokenSet(text) {
			if claimTokens[token] {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{score: score, record: record})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].record.CreatedAt.After(matches[j].record.CreatedAt)
	})

	ordered := make([]SourceRecord, len(matches))
	for i, m := range matches {
		ordered[i] = m.record
	}
	return dedupeURLs(ordered, limit)
}

// RecentRecords returns the newest records first, up to limit.
func (s *SearchContext) RecentRecords(chatID string, limit int) []SourceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())

	records := s.records[chatID]
	if len(records) == 0 {
		return nil
	}
	if limit < 1 {
		limit = 1
	}
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	out := make([]SourceRecord, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out
}

func (s *SearchContext) SetPendingFollowup(chatID, originalPrompt, templatePrompt, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.purgeLocked(now)
	s.followups[chatID] = &PendingFollowup{
		OriginalPrompt: originalPrompt,
		TemplatePrompt: templatePrompt,
		Reason:         reason,
		CreatedAt:      now,
	}
}

func (s *SearchContext) PendingFollowup(chatID string) *PendingFollowup {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())
	if p, ok := s.followups[chatID]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (s *SearchContext) ClearPendingFollowup(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.followups, chatID)
}

// BumpPendingAttempt increments the follow-up attempt counter and returns
// the new count, or 0 when no follow-up is pending.
func (s *SearchContext) BumpPendingAttempt(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())
	p, ok := s.followups[chatID]
	if !ok {
		return 0
	}
	p.Attempts++
	return p.Attempts
}

func (s *SearchContext) SetPendingVideoSelection(chatID, query string, results []search.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.purgeLocked(now)
	s.videoSelections[chatID] = &PendingSelection{Query: query, Results: results, CreatedAt: now}
}

func (s *SearchContext) PendingVideoSelection(chatID string) *PendingSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())
	return copySelection(s.videoSelections[chatID])
}

func (s *SearchContext) ClearPendingVideoSelection(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.videoSelections, chatID)
}

func (s *SearchContext) SetPendingJMailSelection(chatID, query string, results []search.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.purgeLocked(now)
	s.jmailSelections[chatID] = &PendingSelection{Query: query, Results: results, CreatedAt: now}
}

func (s *SearchContext) PendingJMailSelection(chatID string) *PendingSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())
	return copySelection(s.jmailSelections[chatID])
}

func (s *SearchContext) ClearPendingJMailSelection(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jmailSelections, chatID)
}

// Sweep removes expired state; called by the maintenance cron.
func (s *SearchContext) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now())
}

func (s *SearchContext) purgeLocked(now time.Time) {
	for chatID, records := range s.records {
		kept := records[:0]
		for _, r := range records {
			if r.CreatedAt.Add(s.ttl).After(now) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.records, chatID)
		} else {
			s.records[chatID] = kept
		}
	}
	for chatID, p := range s.followups {
		if !p.CreatedAt.Add(s.ttl).After(now) {
			delete(s.followups, chatID)
		}
	}
	for chatID, p := range s.videoSelections {
		if !p.CreatedAt.Add(s.ttl).After(now) {
			delete(s.videoSelections, chatID)
		}
	}
	for chatID, p := range s.jmailSelections {
		if !p.CreatedAt.Add(s.ttl).After(now) {
			delete(s.jmailSelections, chatID)
		}
	}
}

func copySelection(p *PendingSelection) *PendingSelection {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Results = make([]search.Result, len(p.Results))
	copy(cp.Results, p.Results)
	return &cp
}

func claimKey(r search.Result) string {
	snippet := strings.TrimSpace(r.Snippet)
	if snippet != "" {
		return truncateRunes(snippet, claimKeyLimit)
	}
	return truncateRunes(r.Title, claimKeyLimit)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// normalizeClaim lowercases and keeps only alphanumeric runs.
func normalizeClaim(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenSet(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(text) {
		tokens[t] = true
	}
	return tokens
}

func dedupeURLs(records []SourceRecord, limit int) []SourceRecord {
	if limit < 1 {
		limit = 1
	}
	seen := make(map[string]bool)
	var out []SourceRecord
	for _, r := range records {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out
}
