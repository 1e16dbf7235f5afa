package telegram

import (
	"errors"
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
)

type Config struct {
	Token         string // bot API token from BotFather
	BotUsername   string // optional override when GetMe is unavailable
	WebhookSecret string // checked against X-Telegram-Bot-Api-Secret-Token
	AllowedChats  []string
	DisableAuth   bool
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("telegram token cannot be empty")
	}
	if !c.DisableAuth && len(c.AllowedChats) == 0 {
		return errors.New("telegram allowlist is empty: set allowed_chats or disable_auth")
	}
	return nil
}

func (c *Config) GetType() channel.Type {
	return channel.Telegram
}

func ParseConfig(configMap map[string]interface{}) (*Config, error) {
	config := &Config{}

	config.Token = gconv.To[string](configMap["token"])
	config.BotUsername = gconv.To[string](configMap["bot_username"])
	config.WebhookSecret = gconv.To[string](configMap["webhook_secret"])
	config.DisableAuth = gconv.To[bool](configMap["disable_auth"])

	if raw, ok := configMap["allowed_chats"].([]interface{}); ok {
		for _, item := range raw {
			if id := gconv.To[string](item); id != "" {
				config.AllowedChats = append(config.AllowedChats, id)
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telegram config: %w", err)
	}
	return config, nil
}
