package whatsapp

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/prometheus"
)

var _ channel.Channel = (*WhatsApp)(nil)

type WhatsApp struct {
	id      string
	conf    *Config
	client  *Client
	handler func(ctx context.Context, msg *channel.Message) (channel.Ack, error)
}

func New(id string, conf *Config) *WhatsApp {
	return &WhatsApp{
		id:     id,
		conf:   conf,
		client: NewClient(conf.BridgeURL, conf.BridgeToken, nil),
	}
}

func (w *WhatsApp) ID() string {
	return w.id
}

func (w *WhatsApp) Type() channel.Type {
	return channel.WhatsApp
}

func (w *WhatsApp) Routes() []channel.Route {
	return []channel.Route{
		{Method: consts.MethodPost, Path: "/webhook/whatsapp", Handler: w.handleWebhook},
	}
}

func (w *WhatsApp) RegisterMessageHandler(handler func(ctx context.Context, msg *channel.Message) (channel.Ack, error)) error {
	w.handler = handler
	return nil
}

func (w *WhatsApp) handleWebhook(ctx context.Context, c *app.RequestContext) {
	msg := parseWebhook(c.GetRequest().Body(), w.conf.BotJID)
	if msg == nil {
		prometheus.WebhookEvents.WithLabelValues(string(channel.WhatsApp), "unsupported_event").Inc()
		c.JSON(consts.StatusOK, channel.Ignored("unsupported_event"))
		return
	}
	msg.ChannelID = w.id

	if !w.authorized(msg) {
		logs.CtxWarn(ctx, "[whatsapp] dropping unauthorized message from %s (chat=%s)", msg.Sender, msg.ChatID)
		prometheus.WebhookEvents.WithLabelValues(string(channel.WhatsApp), "unauthorized").Inc()
		c.JSON(consts.StatusOK, channel.Ignored("unauthorized"))
		return
	}

	if w.handler == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"status": "error", "reason": "handler not ready"})
		return
	}
	ack, err := w.handler(ctx, msg)
	if err != nil {
		logs.CtxError(ctx, "[whatsapp] message handler failed: %v", err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}

	prometheus.WebhookEvents.WithLabelValues(string(channel.WhatsApp), ack.Reason).Inc()
	c.JSON(consts.StatusOK, ack)
}

func (w *WhatsApp) authorized(msg *channel.Message) bool {
	if w.conf.DisableAuth {
		return true
	}
	for _, allowed := range w.conf.AllowedChats {
		if allowed == msg.ChatID || allowed == msg.Sender {
			return true
		}
	}
	return false
}

func (w *WhatsApp) SendMessage(ctx context.Context, chatID string, content string) error {
	return w.client.SendText(ctx, chatID, content)
}

func (w *WhatsApp) SendImage(ctx context.Context, chatID string, data []byte, contentType string, caption string) error {
	return w.client.SendImage(ctx, chatID, data, contentType, caption)
}

// SendChatAction is not supported by the bridge.
func (w *WhatsApp) SendChatAction(ctx context.Context, chatID string, action channel.ChatAction) error {
	return channel.ErrUnsupportedOperation
}
