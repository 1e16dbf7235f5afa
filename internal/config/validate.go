package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/htmlgxn/signal-bot-orx/internal/search"
)

const (
	DefaultChatModel       = "openai/gpt-4o-mini"
	DefaultBaseURL         = "https://openrouter.ai/api/v1"
	defaultTimeoutSec      = 45
	defaultImageTimeoutSec = 90
	defaultMaxOutputTokens = 300
	defaultTemperature     = 0.6
	defaultMaxPromptChars  = 700
	defaultContextTurns    = 6
	defaultContextTTLSec   = 1800

	GroupReplyModeGroup      = "group"
	GroupReplyModeDMFallback = "dm_fallback"

	SearchContextModeNone    = "no_context"
	SearchContextModeContext = "context"

	SearchStrategyFirstNonEmpty = "first_non_empty"
	SearchStrategyAggregate     = "aggregate"

	SafeSearchOn       = "on"
	SafeSearchModerate = "moderate"
	SafeSearchOff      = "off"
)

var defaultMentionAliases = []string{"@signalbot", "@bot"}

// knownSearchModes lists every mode that accepts per-mode overrides.
var knownSearchModes = []string{
	"search", "news", "wiki", "images", "videos", "jmail", "books",
	"lolcow_cyraxx", "lolcow_larson",
}

// encyclopedicBackends never belong in the news chain; stale encyclopedia
// articles are not news.
var encyclopedicBackends = []string{"wikipedia", "grokipedia"}

// Validate fills defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	if c.Gateway.Bind == "" {
		c.Gateway.Bind = "127.0.0.1:8001"
	}

	if c.OpenRouter.BaseURL == "" {
		c.OpenRouter.BaseURL = DefaultBaseURL
	}
	if c.OpenRouter.ChatModel == "" {
		c.OpenRouter.ChatModel = DefaultChatModel
	}
	if c.OpenRouter.ChatAPIKey == "" {
		return errors.New("openrouter.chat_api_key is required")
	}
	if c.OpenRouter.TimeoutSeconds <= 0 {
		c.OpenRouter.TimeoutSeconds = defaultTimeoutSec
	}
	if c.OpenRouter.ImageTimeoutSeconds <= 0 {
		c.OpenRouter.ImageTimeoutSeconds = defaultImageTimeoutSec
	}
	if c.OpenRouter.MaxOutputTokens <= 0 {
		c.OpenRouter.MaxOutputTokens = defaultMaxOutputTokens
	}
	if c.OpenRouter.Temperature <= 0 {
		c.OpenRouter.Temperature = defaultTemperature
	}

	if len(c.Bot.MentionAliases) == 0 {
		c.Bot.MentionAliases = append([]string(nil), defaultMentionAliases...)
	}
	if c.Bot.MaxPromptChars <= 0 {
		c.Bot.MaxPromptChars = defaultMaxPromptChars
	}
	if c.Bot.ContextTurns <= 0 {
		c.Bot.ContextTurns = defaultContextTurns
	}
	if c.Bot.ContextTTLSeconds <= 0 {
		c.Bot.ContextTTLSeconds = defaultContextTTLSec
	}
	c.Bot.GroupReplyMode = strings.TrimSpace(c.Bot.GroupReplyMode)
	if c.Bot.GroupReplyMode == "" {
		c.Bot.GroupReplyMode = GroupReplyModeGroup
	}
	switch c.Bot.GroupReplyMode {
	case GroupReplyModeGroup, GroupReplyModeDMFallback:
	default:
		return errors.New("Invalid bot.group_reply_mode. Expected 'group' or 'dm_fallback'.")
	}

	if c.Search.TimeoutSeconds <= 0 {
		c.Search.TimeoutSeconds = 12
	}
	c.Search.WeatherUnits = strings.TrimSpace(strings.ToLower(c.Search.WeatherUnits))
	if c.Search.WeatherUnits == "" {
		c.Search.WeatherUnits = "metric"
	}
	switch c.Search.WeatherUnits {
	case "metric", "imperial":
	default:
		return fmt.Errorf("invalid search.weather_units: %s", c.Search.WeatherUnits)
	}
	if err := c.validateSearchSettings(); err != nil {
		return err
	}

	normalized := make(map[string]ChannelConfig, len(c.Channels))
	for key, one := range c.Channels {
		channelID := strings.TrimSpace(key)
		if channelID == "" {
			return errors.New("channel id cannot be empty")
		}
		one.ID = channelID
		if strings.TrimSpace(one.Type) == "" {
			return fmt.Errorf("channels[%s] type is required", channelID)
		}
		normalized[channelID] = one
	}
	c.Channels = normalized

	enabled := 0
	for _, one := range c.Channels {
		if one.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return errors.New("at least one channel must be enabled")
	}
	return nil
}

func (c *Config) validateSearchSettings() error {
	c.Search.ContextMode = strings.TrimSpace(strings.ToLower(c.Search.ContextMode))
	if c.Search.ContextMode == "" {
		c.Search.ContextMode = SearchContextModeNone
	}
	switch c.Search.ContextMode {
	case SearchContextModeNone, SearchContextModeContext:
	default:
		return errors.New("Invalid search.context_mode. Expected 'no_context' or 'context'.")
	}

	c.Search.BackendStrategy = strings.TrimSpace(strings.ToLower(c.Search.BackendStrategy))
	if c.Search.BackendStrategy == "" {
		c.Search.BackendStrategy = SearchStrategyFirstNonEmpty
	}
	switch c.Search.BackendStrategy {
	case SearchStrategyFirstNonEmpty, SearchStrategyAggregate:
	default:
		return errors.New("Invalid search.backend_strategy. Expected 'first_non_empty' or 'aggregate'.")
	}

	c.Search.SafeSearch = strings.TrimSpace(strings.ToLower(c.Search.SafeSearch))
	if c.Search.SafeSearch == "" {
		c.Search.SafeSearch = SafeSearchModerate
	}
	switch c.Search.SafeSearch {
	case SafeSearchOn, SafeSearchModerate, SafeSearchOff:
	default:
		return errors.New("Invalid search.safesearch. Expected 'on', 'moderate', or 'off'.")
	}

	registered := make(map[string]bool)
	for _, name := range search.Available() {
		registered[name] = true
	}
	for name, mc := range c.Search.Modes {
		if !containsString(knownSearchModes, name) {
			return fmt.Errorf("unknown search mode in search.modes: %s", name)
		}
		if mc.MaxResults < 0 {
			return fmt.Errorf("search.modes.%s.max_results cannot be negative", name)
		}
		for _, backend := range mc.Backends {
			if !registered[backend] {
				return fmt.Errorf("search.modes.%s references unknown backend %q", name, backend)
			}
			if name == "news" && containsString(encyclopedicBackends, backend) {
				return fmt.Errorf("search.modes.news cannot use encyclopedic backend %q", backend)
			}
		}
	}
	return nil
}
