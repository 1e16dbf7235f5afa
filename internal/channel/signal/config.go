package signal

import (
	"errors"
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
)

type Config struct {
	APIBaseURL      string // signal-cli REST API base, e.g. http://127.0.0.1:8080
	SenderNumber    string // bot account number in E.164 form
	SenderUUID      string // bot account ACI, used for mention matching
	AllowedNumbers  []string
	AllowedGroupIDs []string
	DisableAuth     bool
}

func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("signal api_base_url cannot be empty")
	}
	if c.SenderNumber == "" {
		return errors.New("signal sender_number cannot be empty")
	}
	if !c.DisableAuth && len(c.AllowedNumbers) == 0 && len(c.AllowedGroupIDs) == 0 {
		return errors.New("signal allowlist is empty: set allowed_numbers or allowed_group_ids, or disable_auth")
	}
	return nil
}

func (c *Config) GetType() channel.Type {
	return channel.Signal
}

func ParseConfig(configMap map[string]interface{}) (*Config, error) {
	config := &Config{}

	config.APIBaseURL = gconv.To[string](configMap["api_base_url"])
	config.SenderNumber = gconv.To[string](configMap["sender_number"])
	config.SenderUUID = gconv.To[string](configMap["sender_uuid"])
	config.DisableAuth = gconv.To[bool](configMap["disable_auth"])

	if raw, ok := configMap["allowed_numbers"].([]interface{}); ok {
		for _, item := range raw {
			if number := gconv.To[string](item); number != "" {
				config.AllowedNumbers = append(config.AllowedNumbers, number)
			}
		}
	}
	if raw, ok := configMap["allowed_group_ids"].([]interface{}); ok {
		for _, item := range raw {
			if id := gconv.To[string](item); id != "" {
				config.AllowedGroupIDs = append(config.AllowedGroupIDs, id)
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signal config: %w", err)
	}
	return config, nil
}
