package signal

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/prometheus"
)

// fallbackSeparator splits an optional direct-message fallback recipient
// off a group chat id, e.g. "group:abc|fallback:+15550001111".
const fallbackSeparator = "|fallback:"

type Signal struct {
	id      string
	conf    *Config
	client  *Client
	handler func(ctx context.Context, msg *channel.Message) (channel.Ack, error)
}

var _ channel.Channel = (*Signal)(nil)

func New(id string, conf *Config) *Signal {
	return &Signal{
		id:     id,
		conf:   conf,
		client: NewClient(conf.APIBaseURL, conf.SenderNumber, nil),
	}
}

func (s *Signal) ID() string {
	return s.id
}

func (s *Signal) Type() channel.Type {
	return channel.Signal
}

func (s *Signal) Routes() []channel.Route {
	return []channel.Route{
		{Method: consts.MethodPost, Path: "/webhook/signal", Handler: s.handleWebhook},
	}
}

func (s *Signal) RegisterMessageHandler(handler func(ctx context.Context, msg *channel.Message) (channel.Ack, error)) error {
	s.handler = handler
	return nil
}

func (s *Signal) handleWebhook(ctx context.Context, c *app.RequestContext) {
	msg := parseWebhook(c.GetRequest().Body())
	if msg == nil {
		prometheus.WebhookEvents.WithLabelValues(string(channel.Signal), "unsupported_event").Inc()
		c.JSON(consts.StatusOK, channel.Ignored("unsupported_event"))
		return
	}
	msg.ChannelID = s.id
	if mentionsBot(msg.Mentions, s.conf.SenderNumber, s.conf.SenderUUID) {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]string, 1)
		}
		msg.Metadata[channel.MetadataBotMentioned] = "true"
	}

	if !s.authorized(msg) {
		logs.CtxWarn(ctx, "[signal] dropping unauthorized message from %s (group=%s)", msg.Sender, msg.GroupID)
		prometheus.WebhookEvents.WithLabelValues(string(channel.Signal), "unauthorized").Inc()
		c.JSON(consts.StatusOK, channel.Ignored("unauthorized"))
		return
	}

	if s.handler == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"status": "error", "reason": "handler not ready"})
		return
	}
	ack, err := s.handler(ctx, msg)
	if err != nil {
		logs.CtxError(ctx, "[signal] message handler failed: %v", err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}

	prometheus.WebhookEvents.WithLabelValues(string(channel.Signal), ack.Reason).Inc()
	c.JSON(consts.StatusOK, ack)
}

func (s *Signal) authorized(msg *channel.Message) bool {
	if s.conf.DisableAuth {
		return true
	}
	sender := normalizeNumber(msg.Sender)
	for _, allowed := range s.conf.AllowedNumbers {
		if normalizeNumber(allowed) == sender {
			return true
		}
	}
	if msg.GroupID != "" {
		for _, allowed := range s.conf.AllowedGroupIDs {
			if allowed == msg.GroupID {
				return true
			}
		}
	}
	return false
}

func (s *Signal) SendMessage(ctx context.Context, chatID string, content string) error {
	target, fallback := parseChatID(chatID)
	return s.client.Send(ctx, target, content, nil, fallback)
}

func (s *Signal) SendImage(ctx context.Context, chatID string, data []byte, contentType string, caption string) error {
	target, fallback := parseChatID(chatID)
	attachments := []Attachment{{Data: data, ContentType: contentType}}
	return s.client.Send(ctx, target, caption, attachments, fallback)
}

// SendChatAction is not supported by the signal-cli REST API.
func (s *Signal) SendChatAction(ctx context.Context, chatID string, action channel.ChatAction) error {
	return channel.ErrUnsupportedOperation
}

func parseChatID(chatID string) (Target, string) {
	fallback := ""
	if idx := strings.Index(chatID, fallbackSeparator); idx >= 0 {
		fallback = chatID[idx+len(fallbackSeparator):]
		chatID = chatID[:idx]
	}
	switch {
	case strings.HasPrefix(chatID, "group:"):
		return Target{GroupID: strings.TrimPrefix(chatID, "group:")}, fallback
	case strings.HasPrefix(chatID, "dm:"):
		return Target{Recipient: strings.TrimPrefix(chatID, "dm:")}, fallback
	default:
		return Target{Recipient: chatID}, fallback
	}
}
