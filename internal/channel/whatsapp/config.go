package whatsapp

import (
	"errors"
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
)

// Config points at a self-hosted WhatsApp HTTP bridge (wppconnect-style)
// rather than the Business Cloud API.
type Config struct {
	BridgeURL    string
	BridgeToken  string // optional bearer token for the bridge
	BotJID       string // bot account id, used for mention matching
	AllowedChats []string
	DisableAuth  bool
}

func (c *Config) Validate() error {
	if c.BridgeURL == "" {
		return errors.New("whatsapp bridge_url cannot be empty")
	}
	if !c.DisableAuth && len(c.AllowedChats) == 0 {
		return errors.New("whatsapp allowlist is empty: set allowed_chats or disable_auth")
	}
	return nil
}

func (c *Config) GetType() channel.Type {
	return channel.WhatsApp
}

func ParseConfig(configMap map[string]interface{}) (*Config, error) {
	config := &Config{}

	config.BridgeURL = gconv.To[string](configMap["bridge_url"])
	config.BridgeToken = gconv.To[string](configMap["bridge_token"])
	config.BotJID = gconv.To[string](configMap["bot_jid"])
	config.DisableAuth = gconv.To[bool](configMap["disable_auth"])

	if raw, ok := configMap["allowed_chats"].([]interface{}); ok {
		for _, item := range raw {
			if id := gconv.To[string](item); id != "" {
				config.AllowedChats = append(config.AllowedChats, id)
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid whatsapp config: %w", err)
	}
	return config, nil
}
