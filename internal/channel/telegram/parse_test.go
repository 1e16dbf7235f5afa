package telegram

import (
	"testing"

	"github.com/go-telegram/bot/models"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
)

func textUpdate(chatType models.ChatType, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			ID:   42,
			From: &models.User{ID: 1001},
			Chat: models.Chat{ID: -500, Type: chatType},
			Text: text,
			Date: 1700000000,
		},
	}
}

func TestParseUpdateDirectMessage(t *testing.T) {
	update := textUpdate(models.ChatTypePrivate, "hello")

	msg := parseUpdate(update, "orxbot", 99)
	if msg == nil {
		t.Fatal("expected a message")
	}
	if msg.Sender != "1001" || msg.ChatID != "-500" || msg.Text != "hello" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.IsGroup || msg.Timestamp != 1700000000000 {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestParseUpdateGroupMention(t *testing.T) {
	update := textUpdate(models.ChatTypeSupergroup, "@orxbot what is rust")
	update.Message.Entities = []models.MessageEntity{
		{Type: models.MessageEntityTypeMention, Offset: 0, Length: 7},
	}

	msg := parseUpdate(update, "orxbot", 99)
	if msg == nil {
		t.Fatal("expected a message")
	}
	if !msg.IsGroup || msg.GroupID != "-500" {
		t.Fatalf("unexpected group fields %+v", msg)
	}
	if msg.Metadata[channel.MetadataBotMentioned] != "true" {
		t.Fatal("expected bot_mentioned metadata")
	}
	if len(msg.Mentions) != 1 {
		t.Fatalf("expected a mention span, got %+v", msg.Mentions)
	}
	stripped := channel.StripMentionSpans(msg.Text, msg.Mentions)
	if stripped != "what is rust" {
		t.Fatalf("got %q", stripped)
	}
}

func TestParseUpdateOtherMentionIgnored(t *testing.T) {
	update := textUpdate(models.ChatTypeGroup, "@someoneelse hi")
	update.Message.Entities = []models.MessageEntity{
		{Type: models.MessageEntityTypeMention, Offset: 0, Length: 12},
	}

	msg := parseUpdate(update, "orxbot", 99)
	if msg == nil {
		t.Fatal("expected a message")
	}
	if msg.Metadata[channel.MetadataBotMentioned] == "true" {
		t.Fatal("expected no bot mention")
	}
}

func TestParseUpdateReplyToBot(t *testing.T) {
	update := textUpdate(models.ChatTypeGroup, "and what about go?")
	update.Message.ReplyToMessage = &models.Message{From: &models.User{ID: 99}}

	msg := parseUpdate(update, "orxbot", 99)
	if msg == nil || msg.Metadata[channel.MetadataBotMentioned] != "true" {
		t.Fatalf("expected reply to count as mention, got %+v", msg)
	}
}

func TestParseUpdateEditedCaption(t *testing.T) {
	update := &models.Update{
		EditedMessage: &models.Message{
			ID:      7,
			From:    &models.User{ID: 1001},
			Chat:    models.Chat{ID: 12, Type: models.ChatTypePrivate},
			Caption: "caption text",
		},
	}

	msg := parseUpdate(update, "orxbot", 99)
	if msg == nil || msg.Text != "caption text" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestParseUpdateRejectsEmpty(t *testing.T) {
	if msg := parseUpdate(nil, "orxbot", 99); msg != nil {
		t.Fatalf("expected nil, got %+v", msg)
	}
	if msg := parseUpdate(&models.Update{}, "orxbot", 99); msg != nil {
		t.Fatalf("expected nil, got %+v", msg)
	}
	if msg := parseUpdate(textUpdate(models.ChatTypePrivate, "   "), "orxbot", 99); msg != nil {
		t.Fatalf("expected nil, got %+v", msg)
	}
}

func TestUTF16ToRuneSpan(t *testing.T) {
	// emoji occupies two UTF-16 units but one rune
	text := "\U0001F600 @orxbot hi"
	start, length, ok := utf16ToRuneSpan(text, 3, 7)
	if !ok {
		t.Fatal("expected a span")
	}
	runes := []rune(text)
	if string(runes[start:start+length]) != "@orxbot" {
		t.Fatalf("got %q", string(runes[start:start+length]))
	}

	if _, _, ok := utf16ToRuneSpan("short", 10, 4); ok {
		t.Fatal("expected out-of-range to fail")
	}
}
