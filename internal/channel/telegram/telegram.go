package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/prometheus"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

var _ channel.Channel = (*Telegram)(nil)

type Telegram struct {
	id          string
	conf        *Config
	bot         *bot.Bot
	botUsername string // lowercase, for mention matching
	botUserID   int64
	handler     func(ctx context.Context, msg *channel.Message) (channel.Ack, error)
}

func New(ctx context.Context, id string, conf *Config) (*Telegram, error) {
	tgBot, err := bot.New(conf.Token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	tg := &Telegram{
		id:          id,
		conf:        conf,
		bot:         tgBot,
		botUsername: strings.ToLower(strings.TrimPrefix(conf.BotUsername, "@")),
	}

	// Fetch bot identity for mention matching in group chats.
	me, err := tgBot.GetMe(ctx)
	if err != nil {
		logs.CtxWarn(ctx, "[telegram] GetMe failed, using configured username %q: %v", conf.BotUsername, err)
	} else {
		tg.botUsername = strings.ToLower(me.Username)
		tg.botUserID = me.ID
		logs.CtxInfo(ctx, "[telegram] bot identity: @%s (id=%d)", me.Username, me.ID)
	}

	return tg, nil
}

func (c *Telegram) ID() string {
	return c.id
}

func (c *Telegram) Type() channel.Type {
	return channel.Telegram
}

func (c *Telegram) Routes() []channel.Route {
	return []channel.Route{
		{Method: consts.MethodPost, Path: "/webhook/telegram", Handler: c.handleWebhook},
	}
}

func (c *Telegram) RegisterMessageHandler(handler func(ctx context.Context, msg *channel.Message) (channel.Ack, error)) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	c.handler = handler
	return nil
}

func (c *Telegram) handleWebhook(ctx context.Context, hc *app.RequestContext) {
	if c.conf.WebhookSecret != "" {
		if string(hc.GetHeader(secretTokenHeader)) != c.conf.WebhookSecret {
			prometheus.WebhookEvents.WithLabelValues(string(channel.Telegram), "invalid_telegram_secret").Inc()
			hc.JSON(consts.StatusOK, channel.Ignored("invalid_telegram_secret"))
			return
		}
	}

	var update models.Update
	if err := sonic.Unmarshal(hc.GetRequest().Body(), &update); err != nil {
		prometheus.WebhookEvents.WithLabelValues(string(channel.Telegram), "unsupported_event").Inc()
		hc.JSON(consts.StatusOK, channel.Ignored("unsupported_event"))
		return
	}

	msg := parseUpdate(&update, c.botUsername, c.botUserID)
	if msg == nil {
		prometheus.WebhookEvents.WithLabelValues(string(channel.Telegram), "unsupported_event").Inc()
		hc.JSON(consts.StatusOK, channel.Ignored("unsupported_event"))
		return
	}
	msg.ChannelID = c.id

	if !c.authorized(msg) {
		logs.CtxWarn(ctx, "[telegram] dropping unauthorized message from %s (chat=%s)", msg.Sender, msg.ChatID)
		prometheus.WebhookEvents.WithLabelValues(string(channel.Telegram), "unauthorized").Inc()
		hc.JSON(consts.StatusOK, channel.Ignored("unauthorized"))
		return
	}

	if c.handler == nil {
		hc.JSON(consts.StatusServiceUnavailable, map[string]string{"status": "error", "reason": "handler not ready"})
		return
	}
	ack, err := c.handler(ctx, msg)
	if err != nil {
		logs.CtxError(ctx, "[telegram] message handler failed: %v", err)
		hc.JSON(consts.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}

	prometheus.WebhookEvents.WithLabelValues(string(channel.Telegram), ack.Reason).Inc()
	hc.JSON(consts.StatusOK, ack)
}

func (c *Telegram) authorized(msg *channel.Message) bool {
	if c.conf.DisableAuth {
		return true
	}
	for _, allowed := range c.conf.AllowedChats {
		if allowed == msg.ChatID || allowed == msg.Sender {
			return true
		}
	}
	return false
}

func (c *Telegram) SendMessage(ctx context.Context, chatID string, content string) error {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	_, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatIDInt,
		Text:   content,
	})
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}

func (c *Telegram) SendImage(ctx context.Context, chatID string, data []byte, contentType string, caption string) error {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	_, err = c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: chatIDInt,
		Photo: &models.InputFileUpload{
			Filename: "image." + imageExt(contentType),
			Data:     bytes.NewReader(data),
		},
		Caption: caption,
	})
	if err != nil {
		return fmt.Errorf("telegram photo send failed: %w", err)
	}
	return nil
}

func (c *Telegram) SendChatAction(ctx context.Context, chatID string, action channel.ChatAction) error {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	tgAction, err := toTelegramChatAction(action)
	if err != nil {
		return err
	}

	ok, err := c.bot.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatIDInt,
		Action: tgAction,
	})
	if err != nil {
		return fmt.Errorf("telegram chat action failed: %w", err)
	}
	if !ok {
		return errors.New("telegram chat action rejected")
	}
	return nil
}

func toTelegramChatAction(action channel.ChatAction) (models.ChatAction, error) {
	switch action {
	case channel.ChatActionTyping:
		return models.ChatActionTyping, nil
	case channel.ChatActionUploadPhoto:
		return models.ChatActionUploadPhoto, nil
	default:
		return "", channel.ErrUnsupportedOperation
	}
}

func imageExt(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "bin"
	}
}
