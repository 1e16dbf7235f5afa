package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
	"github.com/htmlgxn/signal-bot-orx/internal/chat"
	"github.com/htmlgxn/signal-bot-orx/internal/config"
	"github.com/htmlgxn/signal-bot-orx/internal/followup"
	"github.com/htmlgxn/signal-bot-orx/internal/openrouter"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/prometheus"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/utils"
	"github.com/htmlgxn/signal-bot-orx/internal/search"
	"github.com/htmlgxn/signal-bot-orx/internal/searchsvc"
	"github.com/htmlgxn/signal-bot-orx/internal/store"
)

const (
	maxReplyChars       = 2000
	typingInterval      = 3 * time.Second
	imagineCaptionChars = 200
	promptTrimCutset    = " ,:;-\n\t"

	// Pending-reply candidates are short subject answers, not new questions.
	pendingReplyMaxChars = 80
	pendingReplyMaxWords = 6

	chatUsageText        = "Tag me with a prompt, for example: @bot summarize today's discussion."
	emptyReplyText       = "I could not generate a usable plain-text reply. Try again."
	chatErrorText        = "Unexpected error while generating chat reply."
	imagineUsageText     = "Usage: /imagine <prompt>"
	imagineWaitText      = "Generating image, please wait..."
	imagineErrorText     = "Unexpected error while generating image."
	imageUnavailableText = "Image mode is not configured on this bot."
	weatherMissingText   = "Weather is not configured on this bot."
	searchErrorText      = "Search failed unexpectedly."
	searchDisabledText   = "Search is disabled on this bot."
	restateQuestionText  = "Please restate your full question, for example: who is god in islam?"
)

// handleInbound is the synchronous webhook path: classification happens
// before the acknowledgement goes out, slow work lands in the session lane.
func (gw *Gateway) handleInbound(ctx context.Context, msg *channel.Message) (channel.Ack, error) {
	if msg == nil {
		return channel.Ack{}, fmt.Errorf("message cannot be nil")
	}
	ack, task := gw.classifyMessage(ctx, msg)
	if task == nil {
		return ack, nil
	}
	return ack, gw.msgQueue.Enqueue(ctx, msg.SessionKey(), task)
}

// classifyMessage runs every gate that must answer before the HTTP ack:
// dedupe, command parse, numeric selection, the group mention gate, prompt
// normalization, and the length limit. It returns the ack plus the
// background task that does the actual work, nil when nothing should run.
func (gw *Gateway) classifyMessage(ctx context.Context, msg *channel.Message) (channel.Ack, func(context.Context) error) {
	session := msg.SessionKey()
	searchCtx := gw.searchSvc.Context()

	dedupeKey := fmt.Sprintf("%s|%d|%s", msg.Sender, msg.Timestamp, strings.TrimSpace(msg.Text))
	if !gw.dedupe.MarkOnce(dedupeKey) {
		logs.CtxInfo(ctx, "[router] dropping duplicate message %q from %s", utils.Truncate80(msg.Text), msg.Sender)
		return channel.Ignored("duplicate"), nil
	}

	if cmd, args, ok := gw.commands.Match(msg.Text); ok {
		// Any explicit command displaces whatever the conversation was
		// waiting on, except the command that consumes its own parked list.
		searchCtx.ClearPendingFollowup(session)
		if cmd.Name != "/video" {
			searchCtx.ClearPendingVideoSelection(session)
		}
		if cmd.Name != "/jmail" {
			searchCtx.ClearPendingJMailSelection(session)
		}

		reason := cmd.AckReason
		if reason == "" {
			reason = "command_queued"
		}
		if cmd.Name == "/imagine" {
			reason = gw.classifyImagine(args)
		}
		return channel.Accepted(reason), func(ctx context.Context) error {
			return gw.runCommand(ctx, msg, cmd, args)
		}
	}

	// Numbered replies consume a parked /videos or /jmail list even without
	// a fresh mention; jmail wins when both lists are parked.
	if n, ok := parseSelectionNumber(msg.Text); ok {
		if searchCtx.PendingJMailSelection(session) != nil {
			return channel.Accepted("jmail_selection_queued"), func(ctx context.Context) error {
				return gw.runJMailSelection(ctx, msg, n)
			}
		}
		if searchCtx.PendingVideoSelection(session) != nil {
			return channel.Accepted("video_selection_queued"), func(ctx context.Context) error {
				return gw.runVideoSelection(ctx, msg, n)
			}
		}
		// No pending list: the number is just chat.
	}

	if !gw.isDirectedChat(msg) {
		return channel.Ignored("non_mention"), nil
	}

	prompt := gw.normalizeChatPrompt(msg)
	if prompt == "" {
		return channel.Accepted("chat_usage_sent"), func(ctx context.Context) error {
			return gw.replyText(ctx, msg, chatUsageText)
		}
	}
	if len([]rune(prompt)) > gw.cfg.Bot.MaxPromptChars {
		tooLong := fmt.Sprintf("Prompt too long. Maximum is %d characters.", gw.cfg.Bot.MaxPromptChars)
		return channel.Accepted("chat_prompt_too_long"), func(ctx context.Context) error {
			return gw.replyText(ctx, msg, tooLong)
		}
	}

	// A clarification we asked earlier turns the next short directed reply
	// into the follow-up answer; a full new question displaces it.
	if pending := searchCtx.PendingFollowup(session); pending != nil {
		if isPendingReplyCandidate(prompt) {
			return channel.Accepted("chat_queued"), func(ctx context.Context) error {
				return gw.runPendingFollowup(ctx, msg, prompt, pending)
			}
		}
		searchCtx.ClearPendingFollowup(session)
	}

	return channel.Accepted("chat_queued"), func(ctx context.Context) error {
		return gw.runChat(ctx, msg, prompt)
	}
}

// classifyImagine mirrors the /imagine gates so the ack reason reflects what
// the background task will send.
func (gw *Gateway) classifyImagine(args string) string {
	switch {
	case args == "":
		return "usage_sent"
	case len([]rune(args)) > gw.cfg.Bot.MaxPromptChars:
		return "prompt_too_long"
	case gw.imageClient == nil:
		return "image_unavailable"
	default:
		return "queued"
	}
}

// runChat resolves ambiguous follow-ups, then routes the prompt through
// auto-search or the chat model.
func (gw *Gateway) runChat(ctx context.Context, msg *channel.Message, prompt string) error {
	transport := string(msg.ChannelType)
	session := msg.SessionKey()

	stopTyping := gw.keepTyping(ctx, msg)
	defer stopTyping()

	if followup.IsAmbiguousPrompt(prompt) {
		history := gw.historyItems(session)
		sources := gw.searchSvc.RecentSourceContext(session)
		decision := gw.followup.ResolvePrompt(ctx, prompt, history, sources)
		if decision.NeedsClarification {
			gw.searchSvc.Context().SetPendingFollowup(session, prompt, followup.BuildTemplatePrompt(prompt), decision.Reason)
			prometheus.WebhookEvents.WithLabelValues(transport, "clarification_sent").Inc()
			return gw.replyText(ctx, msg, decision.ClarificationText)
		}
		if decision.ResolvedPrompt != "" {
			logs.CtxInfo(ctx, "[router] follow-up resolved (%s): %q -> %q", decision.Reason, prompt, decision.ResolvedPrompt)
			prompt = decision.ResolvedPrompt
		}
	}

	return gw.answerPrompt(ctx, msg, prompt)
}

// answerPrompt routes a clean prompt either through search or straight to
// the chat model. Auto-search only runs in context mode and only into modes
// the operator left enabled.
func (gw *Gateway) answerPrompt(ctx context.Context, msg *channel.Message, prompt string) error {
	transport := string(msg.ChannelType)
	session := msg.SessionKey()

	if gw.cfg.AutoSearchEnabled() {
		decision := gw.autoRouter.Decide(ctx, prompt)
		if decision.ShouldSearch && gw.cfg.SearchModeEnabled(string(decision.Mode)) {
			logs.CtxInfo(ctx, "[router] auto search mode=%s query=%q reason=%s", decision.Mode, decision.Query, decision.Reason)
			reply, err := gw.searchSvc.Summarize(ctx, session, decision.Mode, decision.Query, prompt, gw.historyItems(session))
			if err != nil {
				prometheus.WebhookEvents.WithLabelValues(transport, "search_error").Inc()
				return gw.replyText(ctx, msg, userFacingSearchError(err))
			}
			reply = truncateReply(reply)
			if err := gw.replyText(ctx, msg, reply); err != nil {
				return err
			}
			gw.chatCtx.AppendTurn(session, prompt, reply)
			prometheus.WebhookEvents.WithLabelValues(transport, "auto_search").Inc()
			return nil
		}
	}

	return gw.chatReply(ctx, msg, prompt)
}

func (gw *Gateway) chatReply(ctx context.Context, msg *channel.Message, prompt string) error {
	transport := string(msg.ChannelType)
	session := msg.SessionKey()

	messages := chat.BuildMessages(gw.systemPrompt(), gw.chatCtx.History(session), prompt)
	reply, err := gw.chatClient.GenerateReply(ctx, messages)
	if err != nil {
		prometheus.ChatRequests.WithLabelValues("error").Inc()
		var chatErr *openrouter.ChatError
		if errors.As(err, &chatErr) {
			return gw.replyText(ctx, msg, chatErr.UserMessage)
		}
		logs.CtxError(ctx, "[router] chat reply failed: %v", err)
		return gw.replyText(ctx, msg, chatErrorText)
	}
	prometheus.ChatRequests.WithLabelValues("ok").Inc()

	if gw.cfg.ForcePlainText() {
		reply = chat.CoercePlainText(reply)
	}
	if strings.TrimSpace(reply) == "" {
		return gw.replyText(ctx, msg, emptyReplyText)
	}
	reply = truncateReply(reply)

	if err := gw.replyText(ctx, msg, reply); err != nil {
		return err
	}
	// History only reflects replies that actually reached the chat.
	gw.chatCtx.AppendTurn(session, prompt, reply)
	prometheus.WebhookEvents.WithLabelValues(transport, "chat_reply").Inc()
	return nil
}

func (gw *Gateway) runCommand(ctx context.Context, msg *channel.Message, cmd *Command, args string) error {
	stopTyping := gw.keepTyping(ctx, msg)
	defer stopTyping()

	reply, err := cmd.Handler(ctx, gw, msg, args)
	if err != nil {
		logs.CtxError(ctx, "[router] command %s failed: %v", cmd.Name, err)
		prometheus.WebhookEvents.WithLabelValues(string(msg.ChannelType), "command_error").Inc()
		return gw.replyText(ctx, msg, "Command failed unexpectedly.")
	}
	prometheus.WebhookEvents.WithLabelValues(string(msg.ChannelType), "command").Inc()
	if reply == "" {
		return nil
	}
	return gw.replyText(ctx, msg, reply)
}

func (gw *Gateway) runPendingFollowup(ctx context.Context, msg *channel.Message, prompt string, pending *store.PendingFollowup) error {
	session := msg.SessionKey()
	searchCtx := gw.searchSvc.Context()

	stopTyping := gw.keepTyping(ctx, msg)
	defer stopTyping()

	history := gw.historyItems(session)
	sources := gw.searchSvc.RecentSourceContext(session)
	decision := gw.followup.ResolvePendingReply(ctx, prompt, pending, history, sources)
	if decision.NeedsClarification {
		// The clarification was strike one; a reply we still cannot resolve
		// ends the exchange.
		if searchCtx.BumpPendingAttempt(session) >= 1 {
			searchCtx.ClearPendingFollowup(session)
			prometheus.WebhookEvents.WithLabelValues(string(msg.ChannelType), "followup_abandoned").Inc()
			return gw.replyText(ctx, msg, restateQuestionText)
		}
		return gw.replyText(ctx, msg, decision.ClarificationText)
	}

	searchCtx.ClearPendingFollowup(session)
	logs.CtxInfo(ctx, "[router] pending follow-up resolved (%s): %q", decision.Reason, decision.ResolvedPrompt)
	return gw.answerPrompt(ctx, msg, decision.ResolvedPrompt)
}

func (gw *Gateway) runVideoSelection(ctx context.Context, msg *channel.Message, number int) error {
	stopTyping := gw.keepTyping(ctx, msg)
	defer stopTyping()

	thumb, contentType, url, title, err := gw.searchSvc.VideoSelection(ctx, msg.SessionKey(), number)
	if err != nil {
		return gw.replyText(ctx, msg, userFacingSearchError(err))
	}
	caption := strings.TrimSpace(title + "\n" + url)
	if len(thumb) > 0 {
		return gw.replyImage(ctx, msg, thumb, contentType, caption)
	}
	return gw.replyText(ctx, msg, caption)
}

func (gw *Gateway) runJMailSelection(ctx context.Context, msg *channel.Message, number int) error {
	stopTyping := gw.keepTyping(ctx, msg)
	defer stopTyping()

	summary, err := gw.searchSvc.JMailSelection(ctx, msg.SessionKey(), number, gw.historyItems(msg.SessionKey()))
	if err != nil {
		return gw.replyText(ctx, msg, userFacingSearchError(err))
	}
	return gw.replyText(ctx, msg, truncateReply(summary))
}

func (gw *Gateway) runSearchSummary(ctx context.Context, msg *channel.Message, mode search.Mode, query string) (string, error) {
	session := msg.SessionKey()
	reply, err := gw.searchSvc.Summarize(ctx, session, mode, query, "", gw.historyItems(session))
	if err != nil {
		return userFacingSearchError(err), nil
	}
	return truncateReply(reply), nil
}

func (gw *Gateway) runImageSearch(ctx context.Context, msg *channel.Message, query string) (string, error) {
	data, contentType, err := gw.searchSvc.SearchImage(ctx, msg.SessionKey(), query)
	if err != nil {
		return userFacingSearchError(err), nil
	}
	if err := gw.replyImage(ctx, msg, data, contentType, query); err != nil {
		return "", err
	}
	return "", nil
}

func (gw *Gateway) runWeather(ctx context.Context, location string, forecast bool) (string, error) {
	if gw.weather == nil {
		return weatherMissingText, nil
	}

	var (
		results []search.Result
		err     error
	)
	if forecast {
		results, err = gw.weather.Forecast(ctx, location)
	} else {
		results, err = gw.weather.Current(ctx, location)
	}
	if err != nil {
		logs.CtxWarn(ctx, "[router] weather lookup for %q failed: %v", location, err)
		return "Weather lookup failed. Try again.", nil
	}
	if len(results) == 0 {
		return fmt.Sprintf("No weather data for %q.", location), nil
	}

	r := results[0]
	if r.Snippet == "" {
		return r.Title, nil
	}
	return r.Title + "\n" + r.Snippet, nil
}

func (gw *Gateway) runImagine(ctx context.Context, msg *channel.Message, prompt string) (string, error) {
	transport := string(msg.ChannelType)
	if prompt == "" {
		return imagineUsageText, nil
	}
	if len([]rune(prompt)) > gw.cfg.Bot.MaxPromptChars {
		return fmt.Sprintf("Prompt too long. Maximum is %d characters.", gw.cfg.Bot.MaxPromptChars), nil
	}
	if gw.imageClient == nil {
		return imageUnavailableText, nil
	}

	if err := gw.replyText(ctx, msg, imagineWaitText); err != nil {
		return "", err
	}

	images, err := gw.imageClient.GenerateImages(ctx, prompt)
	if err != nil {
		prometheus.WebhookEvents.WithLabelValues(transport, "image_error").Inc()
		var imgErr *openrouter.ImageError
		if errors.As(err, &imgErr) {
			return imgErr.UserMessage, nil
		}
		logs.CtxError(ctx, "[router] image generation failed: %v", err)
		return imagineErrorText, nil
	}

	for i, img := range images {
		caption := ""
		if i == 0 {
			caption = utils.Truncate("/imagine "+prompt, imagineCaptionChars)
		}
		if err := gw.replyImage(ctx, msg, img.Data, img.ContentType, caption); err != nil {
			return "", err
		}
	}
	prometheus.WebhookEvents.WithLabelValues(transport, "image_sent").Inc()
	return "", nil
}

// isDirectedChat implements the mention gate: direct messages are always
// addressed to the bot, group text only when the platform flagged a mention
// or the text carries a configured alias.
func (gw *Gateway) isDirectedChat(msg *channel.Message) bool {
	if !msg.IsGroup {
		return true
	}
	if msg.Metadata[channel.MetadataBotMentioned] == "true" {
		return true
	}
	for _, alias := range gw.cfg.Bot.MentionAliases {
		if containsAlias(msg.Text, alias) {
			return true
		}
	}
	return false
}

func (gw *Gateway) normalizeChatPrompt(msg *channel.Message) string {
	text := msg.Text
	if msg.Metadata[channel.MetadataBotMentioned] == "true" {
		text = channel.StripMentionSpans(text, msg.Mentions)
	}
	for _, alias := range gw.cfg.Bot.MentionAliases {
		text = stripAlias(text, alias)
	}
	text = utils.CollapseWhitespace(text)
	return strings.TrimSpace(strings.TrimLeft(text, promptTrimCutset))
}

// isPendingReplyCandidate reports whether a directed prompt looks like a
// short answer to a clarification rather than a fresh question.
func isPendingReplyCandidate(prompt string) bool {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" || strings.HasPrefix(prompt, "/") {
		return false
	}
	if len([]rune(prompt)) > pendingReplyMaxChars {
		return false
	}
	return len(strings.Fields(prompt)) <= pendingReplyMaxWords
}

// containsAlias matches alias as a word: preceded by start-of-text or
// whitespace and followed by end, whitespace, or light punctuation.
func containsAlias(text, alias string) bool {
	return len(aliasSpans(text, alias)) > 0
}

func stripAlias(text, alias string) string {
	spans := aliasSpans(text, alias)
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, span := range spans {
		b.WriteString(text[last:span[0]])
		b.WriteByte(' ')
		last = span[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func aliasSpans(text, alias string) [][2]int {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil
	}
	lower := strings.ToLower(text)
	needle := strings.ToLower(alias)

	var spans [][2]int
	offset := 0
	for {
		idx := strings.Index(lower[offset:], needle)
		if idx < 0 {
			return spans
		}
		start := offset + idx
		end := start + len(needle)
		offset = start + 1

		if start > 0 && !isSpaceByte(lower[start-1]) {
			continue
		}
		if end < len(lower) && !isAliasBoundary(lower[end]) {
			continue
		}
		spans = append(spans, [2]int{start, end})
		offset = end
	}
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isAliasBoundary(b byte) bool {
	if isSpaceByte(b) {
		return true
	}
	switch b {
	case ',', ':', ';', '.', '!', '?':
		return true
	}
	return false
}

func parseSelectionNumber(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > 3 {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func truncateReply(reply string) string {
	runes := []rune(reply)
	if len(runes) <= maxReplyChars {
		return reply
	}
	return strings.TrimRight(string(runes[:maxReplyChars]), " \n\t") + "..."
}

func userFacingSearchError(err error) string {
	var searchErr *search.Error
	if errors.As(err, &searchErr) {
		return searchErr.UserMessage
	}
	return searchErrorText
}

func (gw *Gateway) historyItems(session string) []searchsvc.HistoryItem {
	turns := gw.chatCtx.History(session)
	items := make([]searchsvc.HistoryItem, 0, len(turns))
	for _, turn := range turns {
		items = append(items, searchsvc.HistoryItem{Role: turn.Role, Content: turn.Content})
	}
	return searchsvc.SanitizeHistoryContext(items)
}

func (gw *Gateway) systemPrompt() string {
	if strings.TrimSpace(gw.cfg.Bot.SystemPrompt) != "" {
		return gw.cfg.Bot.SystemPrompt
	}
	return chat.DefaultSystemPrompt
}

// replyChatID picks where the answer goes. dm_fallback sends group answers
// to the author's direct chat instead; Signal group targets carry the
// author as a delivery fallback.
func (gw *Gateway) replyChatID(msg *channel.Message) string {
	if msg.IsGroup && gw.cfg.Bot.GroupReplyMode == config.GroupReplyModeDMFallback {
		if msg.ChannelType == channel.Signal {
			return "dm:" + msg.Sender
		}
		return msg.Sender
	}
	if msg.IsGroup && msg.ChannelType == channel.Signal && msg.Sender != "" {
		return msg.ChatID + "|fallback:" + msg.Sender
	}
	return msg.ChatID
}

func (gw *Gateway) replyText(ctx context.Context, msg *channel.Message, text string) error {
	ch, err := channel.Get(msg.ChannelID)
	if err != nil {
		return fmt.Errorf("reply channel %s: %w", msg.ChannelID, err)
	}
	if err := ch.SendMessage(ctx, gw.replyChatID(msg), text); err != nil {
		prometheus.SendFailures.WithLabelValues(string(msg.ChannelType)).Inc()
		logs.CtxError(ctx, "[router] send to %s failed: %v", msg.ChatID, err)
		return err
	}
	return nil
}

func (gw *Gateway) replyImage(ctx context.Context, msg *channel.Message, data []byte, contentType, caption string) error {
	ch, err := channel.Get(msg.ChannelID)
	if err != nil {
		return fmt.Errorf("reply channel %s: %w", msg.ChannelID, err)
	}
	if err := ch.SendImage(ctx, gw.replyChatID(msg), data, contentType, caption); err != nil {
		prometheus.SendFailures.WithLabelValues(string(msg.ChannelType)).Inc()
		logs.CtxError(ctx, "[router] image send to %s failed: %v", msg.ChatID, err)
		return err
	}
	return nil
}

// keepTyping refreshes the typing indicator until the returned stop func
// runs. Channels without the capability are a no-op.
func (gw *Gateway) keepTyping(ctx context.Context, msg *channel.Message) func() {
	ch, err := channel.Get(msg.ChannelID)
	if err != nil {
		return func() {}
	}
	if err := ch.SendChatAction(ctx, msg.ChatID, channel.ChatActionTyping); errors.Is(err, channel.ErrUnsupportedOperation) {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = ch.SendChatAction(ctx, msg.ChatID, channel.ChatActionTyping)
			}
		}
	}()
	return func() { close(done) }
}
