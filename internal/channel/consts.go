package channel

import (
	"errors"
)

var ErrUnsupportedOperation = errors.New("channel operation is not supported")

type Type string

const (
	Signal Type = "signal"

	Telegram Type = "telegram"

	WhatsApp Type = "whatsapp"
)

var SupportedChannels = []Type{
	Signal,
	Telegram,
	WhatsApp,
}

// Mention is one @-mention span inside a message body. Offsets are rune
// positions into the text as delivered by the platform.
type Mention struct {
	Start  int
	Length int
	Number string
	UUID   string
}

// Message is a normalized inbound chat message from any transport.
type Message struct {
	ID          string
	ChannelID   string
	ChannelType Type
	Sender      string // platform user id or phone number
	SenderUUID  string // Signal ACI when known
	ChatID      string // where replies go, provider-specific
	GroupID     string
	IsGroup     bool
	Text        string
	Timestamp   int64 // platform timestamp, milliseconds
	Mentions    []Mention
	Metadata    map[string]string
}

// SessionKey identifies the conversation for history, dedupe, and queue
// lane purposes.
func (m *Message) SessionKey() string {
	if m.IsGroup && m.GroupID != "" {
		return "group:" + m.GroupID
	}
	return "dm:" + m.Sender
}

// MetadataBotMentioned is set to "true" on messages whose platform-level
// mention data targets the bot account.
const MetadataBotMentioned = "bot_mentioned"

type ChatAction string

const (
	ChatActionTyping      ChatAction = "typing"
	ChatActionUploadPhoto ChatAction = "upload_photo"
)
