package whatsapp

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
)

const groupJIDSuffix = "@g.us"

// parseWebhook normalizes one bridge event. Bridges differ on envelope
// nesting and field names, so every lookup walks a list of aliases.
func parseWebhook(body []byte, botJID string) *channel.Message {
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil
	}

	event := root
	for _, key := range []string{"event", "data", "payload"} {
		if v := root.Get(key); v.IsObject() {
			event = v
			break
		}
	}

	sender := firstString(event, "from", "sender", "fromNumber", "author")
	if sender == "" {
		return nil
	}

	text := firstString(event, "text", "body", "message")
	if text == "" {
		return nil
	}

	chatID := firstString(event, "chatId", "chat_id", "conversation", "thread")
	if chatID == "" {
		chatID = sender
	}

	isGroup := event.Get("isGroup").Bool() || strings.HasSuffix(chatID, groupJIDSuffix)

	msg := &channel.Message{
		ID:          firstString(event, "id", "messageId"),
		ChannelType: channel.WhatsApp,
		Sender:      sender,
		ChatID:      chatID,
		Text:        text,
		Timestamp:   event.Get("timestamp").Int(),
		IsGroup:     isGroup,
	}
	if isGroup {
		msg.GroupID = chatID
	}

	if botJID != "" && mentionsJID(event, botJID) {
		msg.Metadata = map[string]string{channel.MetadataBotMentioned: "true"}
	}
	return msg
}

// mentionsJID checks the bridge's mentionedIds list against the bot's JID.
// Bare numbers are compared against the JID's user part.
func mentionsJID(event gjson.Result, botJID string) bool {
	want := strings.ToLower(strings.TrimSpace(botJID))
	wantUser := want
	if idx := strings.IndexByte(wantUser, '@'); idx >= 0 {
		wantUser = wantUser[:idx]
	}
	for _, field := range []string{"mentionedIds", "mentioned_ids", "mentions"} {
		for _, raw := range event.Get(field).Array() {
			got := strings.ToLower(strings.TrimSpace(raw.String()))
			if got == "" {
				continue
			}
			if got == want {
				return true
			}
			if idx := strings.IndexByte(got, '@'); idx >= 0 {
				got = got[:idx]
			}
			if got == wantUser {
				return true
			}
		}
	}
	return false
}

func firstString(v gjson.Result, paths ...string) string {
	for _, path := range paths {
		if s := strings.TrimSpace(v.Get(path).String()); s != "" {
			return s
		}
	}
	return ""
}
