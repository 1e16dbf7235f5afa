package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ApplyEnvOverrides layers environment variables over the loaded file.
// Environment wins, matching how single-binary deployments are configured.
func (c *Config) ApplyEnvOverrides() {
	if host, ok := lookupEnv("BOT_WEBHOOK_HOST"); ok {
		port := "8001"
		if p, ok := lookupEnv("BOT_WEBHOOK_PORT"); ok {
			port = p
		}
		c.Gateway.Bind = fmt.Sprintf("%s:%s", host, port)
	} else if port, ok := lookupEnv("BOT_WEBHOOK_PORT"); ok {
		c.Gateway.Bind = "127.0.0.1:" + port
	}

	setString(&c.OpenRouter.BaseURL, "OPENROUTER_BASE_URL")
	setString(&c.OpenRouter.ChatAPIKey, "OPENROUTER_CHAT_API_KEY")
	setString(&c.OpenRouter.ChatModel, "OPENROUTER_MODEL")
	setString(&c.OpenRouter.ImageAPIKey, "OPENROUTER_IMAGE_API_KEY")
	setString(&c.OpenRouter.ImageModel, "OPENROUTER_IMAGE_MODEL")
	setInt(&c.OpenRouter.TimeoutSeconds, "OPENROUTER_TIMEOUT_SECONDS")
	setInt(&c.OpenRouter.ImageTimeoutSeconds, "OPENROUTER_IMAGE_TIMEOUT_SECONDS")
	setInt(&c.OpenRouter.MaxOutputTokens, "OPENROUTER_MAX_OUTPUT_TOKENS")
	setFloat(&c.OpenRouter.Temperature, "BOT_CHAT_TEMPERATURE")
	setString(&c.OpenRouter.HTTPReferer, "OPENROUTER_HTTP_REFERER")
	setString(&c.OpenRouter.AppTitle, "OPENROUTER_APP_TITLE")

	setString(&c.Bot.SystemPrompt, "BOT_CHAT_SYSTEM_PROMPT")
	setInt(&c.Bot.ContextTurns, "BOT_CHAT_CONTEXT_TURNS")
	setInt(&c.Bot.ContextTTLSeconds, "BOT_CHAT_CONTEXT_TTL_SECONDS")
	setInt(&c.Bot.MaxPromptChars, "BOT_MAX_PROMPT_CHARS")
	setString(&c.Bot.GroupReplyMode, "BOT_GROUP_REPLY_MODE")
	if v, ok := lookupEnv("BOT_CHAT_FORCE_PLAIN_TEXT"); ok {
		b := parseBool(v)
		c.Bot.ForcePlainText = &b
	}
	if aliases, ok := lookupCSV("BOT_MENTION_ALIASES"); ok {
		c.Bot.MentionAliases = aliases
	}

	if v, ok := lookupEnv("BOT_SEARCH_PERSONA_ENABLED"); ok {
		b := parseBool(v)
		c.Search.PersonaEnabled = &b
	}
	if v, ok := lookupEnv("BOT_SEARCH_DEBUG_LOGGING"); ok {
		c.Search.DebugLogging = parseBool(v)
	}
	setInt(&c.Search.TimeoutSeconds, "BOT_SEARCH_TIMEOUT_SECONDS")
	setString(&c.Search.Proxy, "SEARCH_PROXY")
	setString(&c.Search.BraveAPIKey, "BRAVE_API_KEY")
	setString(&c.Search.WeatherAPIKey, "OPENWEATHER_API_KEY")
	setString(&c.Search.WeatherUnits, "WEATHER_UNITS")
	setString(&c.Search.ContextMode, "BOT_SEARCH_CONTEXT_MODE")
	setString(&c.Search.BackendStrategy, "BOT_SEARCH_BACKEND_STRATEGY")
	setString(&c.Search.SafeSearch, "BOT_SEARCH_SAFESEARCH")
	c.applySearchModeEnv()

	c.applySignalEnv()
	c.applyTelegramEnv()
	c.applyWhatsAppEnv()
}

// applySearchModeEnv layers BOT_<MODE>_ENABLED, BOT_<MODE>_BACKEND_ORDER,
// and BOT_<MODE>_MAX_RESULTS over the per-mode settings, e.g.
// BOT_NEWS_BACKEND_ORDER=bing_news,yahoo_news.
func (c *Config) applySearchModeEnv() {
	for _, mode := range knownSearchModes {
		prefix := "BOT_" + strings.ToUpper(mode)
		mc := c.Search.Modes[mode]
		changed := false

		if v, ok := lookupEnv(prefix + "_ENABLED"); ok {
			b := parseBool(v)
			mc.Enabled = &b
			changed = true
		}
		if backends, ok := lookupCSV(prefix + "_BACKEND_ORDER"); ok {
			mc.Backends = backends
			changed = true
		}
		if v, ok := lookupEnv(prefix + "_MAX_RESULTS"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				mc.MaxResults = n
				changed = true
			}
		}

		if changed {
			if c.Search.Modes == nil {
				c.Search.Modes = make(map[string]SearchModeConfig, 4)
			}
			c.Search.Modes[mode] = mc
		}
	}
}

func (c *Config) applySignalEnv() {
	overrides := map[string]interface{}{}
	if v, ok := lookupEnv("SIGNAL_API_BASE_URL"); ok {
		overrides["api_base_url"] = v
	}
	if v, ok := lookupEnv("SIGNAL_SENDER_NUMBER"); ok {
		overrides["sender_number"] = v
	}
	if v, ok := lookupEnv("SIGNAL_SENDER_UUID"); ok {
		overrides["sender_uuid"] = v
	}
	numbers, hasNumbers := lookupCSV("SIGNAL_ALLOWED_NUMBERS")
	// legacy single-number form
	if v, ok := lookupEnv("SIGNAL_ALLOWED_NUMBER"); ok && !containsString(numbers, v) {
		numbers = append(numbers, v)
		hasNumbers = true
	}
	if hasNumbers {
		overrides["allowed_numbers"] = toInterfaceSlice(numbers)
	}
	if groups, ok := lookupCSV("SIGNAL_ALLOWED_GROUP_IDS"); ok {
		overrides["allowed_group_ids"] = toInterfaceSlice(groups)
	}
	if v, ok := lookupEnv("SIGNAL_DISABLE_AUTH"); ok {
		overrides["disable_auth"] = parseBool(v)
	}
	c.mergeChannelEnv("signal", overrides)
}

func (c *Config) applyTelegramEnv() {
	overrides := map[string]interface{}{}
	if v, ok := lookupEnv("TELEGRAM_BOT_TOKEN"); ok {
		overrides["token"] = v
	}
	if v, ok := lookupEnv("TELEGRAM_BOT_USERNAME"); ok {
		overrides["bot_username"] = v
	}
	if v, ok := lookupEnv("TELEGRAM_WEBHOOK_SECRET"); ok {
		overrides["webhook_secret"] = v
	}
	if chats, ok := lookupCSV("TELEGRAM_ALLOWED_CHATS"); ok {
		overrides["allowed_chats"] = toInterfaceSlice(chats)
	}
	c.mergeChannelEnv("telegram", overrides)
}

func (c *Config) applyWhatsAppEnv() {
	overrides := map[string]interface{}{}
	if v, ok := lookupEnv("WHATSAPP_BRIDGE_URL"); ok {
		overrides["bridge_url"] = v
	}
	if v, ok := lookupEnv("WHATSAPP_BRIDGE_TOKEN"); ok {
		overrides["bridge_token"] = v
	}
	if v, ok := lookupEnv("WHATSAPP_BOT_JID"); ok {
		overrides["bot_jid"] = v
	}
	if chats, ok := lookupCSV("WHATSAPP_ALLOWED_CHATS"); ok {
		overrides["allowed_chats"] = toInterfaceSlice(chats)
	}
	c.mergeChannelEnv("whatsapp", overrides)
}

// mergeChannelEnv enables and updates the channel when any env override is
// present, creating the entry for env-only deployments.
func (c *Config) mergeChannelEnv(channelType string, overrides map[string]interface{}) {
	if len(overrides) == 0 {
		return
	}
	if c.Channels == nil {
		c.Channels = make(map[string]ChannelConfig, 1)
	}

	id := channelType
	for key, one := range c.Channels {
		if strings.EqualFold(one.Type, channelType) {
			id = key
			break
		}
	}

	entry, ok := c.Channels[id]
	if !ok {
		entry = ChannelConfig{ID: id, Type: channelType, Enabled: true}
	}
	if entry.Config == nil {
		entry.Config = make(map[string]interface{}, len(overrides))
	}
	for k, v := range overrides {
		entry.Config[k] = v
	}
	entry.Enabled = true
	c.Channels[id] = entry
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func lookupCSV(key string) ([]string, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return nil, false
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, len(out) > 0
}

func setString(dst *string, key string) {
	if v, ok := lookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := lookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func containsString(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

func toInterfaceSlice(values []string) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
