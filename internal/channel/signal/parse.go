package signal

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
)

var mentionNumberKeys = []string{
	"number", "recipientNumber", "recipient", "phoneNumber", "sourceNumber", "mentionNumber",
}

var mentionUUIDKeys = []string{
	"uuid", "recipientUuid", "mentionUuid", "aci", "mentionAci",
}

// parseWebhook normalizes one signal-cli webhook payload. The envelope can
// arrive at the top level, under "envelope", or under JSON-RPC style
// "params.envelope" depending on how signal-cli is wired up.
func parseWebhook(body []byte) *channel.Message {
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil
	}

	envelope := root
	if v := root.Get("params.envelope"); v.IsObject() {
		envelope = v
	} else if v := root.Get("envelope"); v.IsObject() {
		envelope = v
	}

	sender := firstString(envelope, "sourceNumber", "source")
	if sender == "" {
		return nil
	}

	data := envelope.Get("dataMessage")
	text := strings.TrimSpace(data.Get("message").String())
	if text == "" {
		text = strings.TrimSpace(envelope.Get("message").String())
	}
	if text == "" {
		return nil
	}

	groupID := firstString(data, "groupInfo.groupId", "groupInfo.groupIdHex")

	timestamp := data.Get("timestamp").Int()
	if timestamp == 0 {
		timestamp = envelope.Get("timestamp").Int()
	}

	var mentions []channel.Mention
	for _, field := range []string{"mentions", "bodyRanges"} {
		for _, raw := range data.Get(field).Array() {
			if m, ok := parseMention(raw); ok {
				mentions = append(mentions, m)
			}
		}
	}

	msg := &channel.Message{
		ChannelType: channel.Signal,
		Sender:      sender,
		SenderUUID:  envelope.Get("sourceUuid").String(),
		ChatID:      "dm:" + sender,
		Text:        text,
		Timestamp:   timestamp,
		Mentions:    mentions,
	}
	if groupID != "" {
		msg.GroupID = groupID
		msg.IsGroup = true
		msg.ChatID = "group:" + groupID
	}
	return msg
}

func parseMention(raw gjson.Result) (channel.Mention, bool) {
	if !raw.IsObject() {
		return channel.Mention{}, false
	}
	start := raw.Get("start")
	length := raw.Get("length")
	if !start.Exists() || !length.Exists() {
		return channel.Mention{}, false
	}
	m := channel.Mention{
		Start:  int(start.Int()),
		Length: int(length.Int()),
		Number: firstString(raw, mentionNumberKeys...),
		UUID:   firstString(raw, mentionUUIDKeys...),
	}
	if m.Start < 0 || m.Length <= 0 {
		return channel.Mention{}, false
	}
	if m.Number == "" && m.UUID == "" {
		return channel.Mention{}, false
	}
	return m, true
}

func firstString(v gjson.Result, paths ...string) string {
	for _, path := range paths {
		if s := strings.TrimSpace(v.Get(path).String()); s != "" {
			return s
		}
	}
	return ""
}

// mentionsBot reports whether any mention span targets the bot's own
// number or account UUID.
func mentionsBot(mentions []channel.Mention, botNumber, botUUID string) bool {
	wantNumber := normalizeNumber(botNumber)
	wantUUID := strings.ToLower(strings.TrimSpace(botUUID))
	for _, m := range mentions {
		if wantNumber != "" && normalizeNumber(m.Number) == wantNumber {
			return true
		}
		if wantUUID != "" && strings.ToLower(strings.TrimSpace(m.UUID)) == wantUUID {
			return true
		}
	}
	return false
}

// normalizeNumber keeps digits and a leading '+' so formatting differences
// between signal-cli payload variants do not break comparisons.
func normalizeNumber(number string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(number) {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
