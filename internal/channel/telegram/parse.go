package telegram

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
)

// parseUpdate normalizes one Telegram update into a channel.Message.
// Only new and edited text/caption messages are handled.
func parseUpdate(update *models.Update, botUsername string, botUserID int64) *channel.Message {
	if update == nil {
		return nil
	}
	tgMsg := update.Message
	if tgMsg == nil {
		tgMsg = update.EditedMessage
	}
	if tgMsg == nil || tgMsg.From == nil {
		return nil
	}

	text := tgMsg.Text
	entities := tgMsg.Entities
	if text == "" {
		text = tgMsg.Caption
		entities = tgMsg.CaptionEntities
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	chatID := strconv.FormatInt(tgMsg.Chat.ID, 10)
	msg := &channel.Message{
		ID:          strconv.Itoa(tgMsg.ID),
		ChannelType: channel.Telegram,
		Sender:      strconv.FormatInt(tgMsg.From.ID, 10),
		ChatID:      chatID,
		Text:        text,
		Timestamp:   int64(tgMsg.Date) * 1000,
	}
	if isGroupChat(tgMsg.Chat.Type) {
		msg.IsGroup = true
		msg.GroupID = chatID
	}

	mentioned := false
	for _, entity := range entities {
		switch entity.Type {
		case models.MessageEntityTypeMention:
			span, ok := entitySpan(text, entity)
			if !ok {
				continue
			}
			handle := strings.TrimPrefix(strings.ToLower(entityText(text, entity)), "@")
			if botUsername != "" && handle == botUsername {
				mentioned = true
				msg.Mentions = append(msg.Mentions, span)
			}
		case models.MessageEntityTypeTextMention:
			if entity.User != nil && botUserID != 0 && entity.User.ID == botUserID {
				if span, ok := entitySpan(text, entity); ok {
					mentioned = true
					msg.Mentions = append(msg.Mentions, span)
				}
			}
		}
	}

	// A reply to one of the bot's own messages counts as addressing it.
	if !mentioned && tgMsg.ReplyToMessage != nil && tgMsg.ReplyToMessage.From != nil &&
		botUserID != 0 && tgMsg.ReplyToMessage.From.ID == botUserID {
		mentioned = true
	}

	if mentioned {
		msg.Metadata = map[string]string{channel.MetadataBotMentioned: "true"}
	}
	return msg
}

func isGroupChat(chatType models.ChatType) bool {
	return chatType == models.ChatTypeGroup || chatType == models.ChatTypeSupergroup
}

// entitySpan converts a Telegram entity, whose offsets count UTF-16 code
// units, into a rune-indexed mention span.
func entitySpan(text string, entity models.MessageEntity) (channel.Mention, bool) {
	runeStart, runeLen, ok := utf16ToRuneSpan(text, entity.Offset, entity.Length)
	if !ok {
		return channel.Mention{}, false
	}
	return channel.Mention{Start: runeStart, Length: runeLen}, true
}

func entityText(text string, entity models.MessageEntity) string {
	runeStart, runeLen, ok := utf16ToRuneSpan(text, entity.Offset, entity.Length)
	if !ok {
		return ""
	}
	runes := []rune(text)
	return string(runes[runeStart : runeStart+runeLen])
}

func utf16ToRuneSpan(text string, offset, length int) (runeStart, runeLen int, ok bool) {
	if offset < 0 || length <= 0 {
		return 0, 0, false
	}
	units := 0
	runeStart = -1
	end := -1
	idx := 0
	for _, r := range text {
		if units == offset {
			runeStart = idx
		}
		units += utf16.RuneLen(r)
		idx++
		if units == offset+length {
			end = idx
			break
		}
	}
	if runeStart < 0 || end < 0 {
		return 0, 0, false
	}
	return runeStart, end - runeStart, true
}
