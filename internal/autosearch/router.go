package autosearch

import (
	"context"
	"regexp"
	"strings"

	"github.com/htmlgxn/signal-bot-orx/internal/chat"
	"github.com/htmlgxn/signal-bot-orx/internal/openrouter"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
	"github.com/htmlgxn/signal-bot-orx/internal/search"
)

const routerSystemPrompt = `You route user prompts to search modes.

Return JSON only. No prose.
Schema:
{
  "should_search": boolean,
  "mode": "search" | "news" | "wiki" | "images",
  "query": string,
  "reason": string
}

Rules:
- should_search=true for factual/current-events lookups, verification requests, or image requests.
- mode:
  - "news" for recent/current events
  - "wiki" only for explicit Wikipedia/encyclopedic intent and well-covered topics
  - "images" for requests to see/find images
  - "search" for general web lookup
- Person/entity identification prompts should usually search:
  - "who is ...", "who's ...", "tell me about ...", "what do you know about ..."
  - default to mode="search" unless explicit news/image/wiki intent is present
- Civic role and officeholder lookups should usually search:
  - "who are the councillors of ...", "who is the mayor of ...",
    "who is the MP/MLA for ..."
  - default to mode="search" unless the user explicitly asks for recent updates, then use "news"
- Prefer "search" over "wiki" for creators, influencers, streamers, and ambiguous modern names.
- query must be concise and searchable.
- If should_search=false, mode="search" and query="".

Examples:
User: Who is jayleno89 on TikTok?
JSON: {"should_search": true, "mode": "search", "query": "jayleno89 tiktok", "reason": "person_lookup"}

User: What happened this week with OpenRouter?
JSON: {"should_search": true, "mode": "news", "query": "OpenRouter this week", "reason": "recent_events"}

User: Use Wikipedia to summarize Ada Lovelace.
JSON: {"should_search": true, "mode": "wiki", "query": "Ada Lovelace", "reason": "explicit_wikipedia_intent"}

User: Who are all the town councillors of Truro, NS?
JSON: {"should_search": true, "mode": "search", "query": "town councillors Truro NS", "reason": "civic_lookup"}
`

var (
	explicitWikiTerms = []string{"wiki", "wikipedia", "encyclopedia", "encyclopedic"}
	creatorTerms      = []string{
		"tiktok", "instagram", "youtube", "youtuber", "streamer", "influencer",
		"creator", "twitch", "x.com", "twitter", "discord", "onlyfans",
		"microcelebrity", "micro-celebrity", "social media",
	}
	personLookupPrefixes = []string{
		"who is ", "who's ", "tell me about ", "what do you know about ",
		"give me background on ", "give me info on ",
	}
	mentionPattern = regexp.MustCompile(`@\w+`)

	validModes = map[string]search.Mode{
		"search": search.ModeSearch,
		"news":   search.ModeNews,
		"wiki":   search.ModeWiki,
		"images": search.ModeImages,
		"videos": search.ModeVideos,
		"jmail":  search.ModeJMail,
	}
)

// Decision is the router's verdict for one prompt.
type Decision struct {
	ShouldSearch bool
	Mode         search.Mode
	Query        string
	Reason       string
}

type replyGenerator interface {
	GenerateReply(ctx context.Context, messages []openrouter.Message) (string, error)
}

// Router asks the model whether a chat prompt warrants a web search before
// answering. Any failure falls back to "no search" so chat keeps working.
type Router struct {
	llm replyGenerator
}

func NewRouter(llm replyGenerator) *Router {
	return &Router{llm: llm}
}

func (r *Router) Decide(ctx context.Context, prompt string) Decision {
	noSearch := Decision{ShouldSearch: false, Mode: search.ModeSearch}

	raw, err := r.llm.GenerateReply(ctx, []openrouter.Message{
		{Role: "system", Content: routerSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		logs.CtxWarn(ctx, "[autosearch] router fallback: %v", err)
		return noSearch
	}

	payload, ok := chat.ExtractJSONObject(raw)
	if !ok {
		logs.CtxWarn(ctx, "[autosearch] router fallback: unparseable reply of %d bytes", len(raw))
		return noSearch
	}

	shouldSearch := payload.Get("should_search").Bool()
	mode := coerceMode(payload.Get("mode").String())
	query := strings.TrimSpace(payload.Get("query").String())
	reason := strings.TrimSpace(payload.Get("reason").String())

	if !shouldSearch {
		logs.CtxInfo(ctx, "[autosearch] no search (%s)", reason)
		return Decision{ShouldSearch: false, Mode: search.ModeSearch, Reason: reason}
	}
	if query == "" {
		logs.CtxWarn(ctx, "[autosearch] router fallback: empty query for mode %s", mode)
		return Decision{ShouldSearch: false, Mode: search.ModeSearch, Reason: reason}
	}

	if mode == search.ModeWiki && shouldForceSearchOverWiki(prompt, query) {
		logs.CtxInfo(ctx, "[autosearch] wiki overridden to search for %q", query)
		mode = search.ModeSearch
	}

	logs.CtxInfo(ctx, "[autosearch] %s %q (%s)", mode, query, reason)
	return Decision{ShouldSearch: true, Mode: mode, Query: query, Reason: reason}
}

func coerceMode(value string) search.Mode {
	if mode, ok := validModes[strings.ToLower(strings.TrimSpace(value))]; ok {
		return mode
	}
	return search.ModeSearch
}

// shouldForceSearchOverWiki rejects wiki mode for modern creators and
// person lookups, which encyclopedias cover poorly, unless the user asked
// for an encyclopedia by name.
func shouldForceSearchOverWiki(prompt, query string) bool {
	combined := strings.ToLower(prompt + " " + query)
	for _, term := range explicitWikiTerms {
		if strings.Contains(combined, term) {
			return false
		}
	}
	for _, term := range creatorTerms {
		if strings.Contains(combined, term) {
			return true
		}
	}
	normalizedPrompt := strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
	for _, prefix := range personLookupPrefixes {
		if strings.HasPrefix(normalizedPrompt, prefix) {
			return true
		}
	}
	return mentionPattern.MatchString(combined)
}
