package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/htmlgxn/signal-bot-orx/internal/search"
)

type (
	Config struct {
		Gateway    GatewayConfig            `yaml:"gateway"`
		Logging    LoggingConfig            `yaml:"logging"`
		OpenRouter OpenRouterConfig         `yaml:"openrouter"`
		Bot        BotConfig                `yaml:"bot"`
		Search     SearchConfig             `yaml:"search"`
		Channels   map[string]ChannelConfig `yaml:"channels"`
	}

	GatewayConfig struct {
		Bind                  string `yaml:"bind"`
		MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"`
		RequestTimeout        int    `yaml:"request_timeout"`
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	OpenRouterConfig struct {
		BaseURL             string  `yaml:"base_url"`
		ChatAPIKey          string  `yaml:"chat_api_key"`
		ChatModel           string  `yaml:"chat_model"`
		ImageAPIKey         string  `yaml:"image_api_key"`
		ImageModel          string  `yaml:"image_model"`
		TimeoutSeconds      int     `yaml:"timeout_seconds"`
		ImageTimeoutSeconds int     `yaml:"image_timeout_seconds"`
		MaxOutputTokens     int     `yaml:"max_output_tokens"`
		Temperature         float64 `yaml:"temperature"`
		HTTPReferer         string  `yaml:"http_referer"`
		AppTitle            string  `yaml:"app_title"`
	}

	BotConfig struct {
		SystemPrompt      string   `yaml:"system_prompt"`
		ForcePlainText    *bool    `yaml:"force_plain_text"`
		MentionAliases    []string `yaml:"mention_aliases"`
		MaxPromptChars    int      `yaml:"max_prompt_chars"`
		ContextTurns      int      `yaml:"context_turns"`
		ContextTTLSeconds int      `yaml:"context_ttl_seconds"`
		GroupReplyMode    string   `yaml:"group_reply_mode"` // group or dm_fallback
	}

	SearchConfig struct {
		PersonaEnabled  *bool                       `yaml:"persona_enabled"`
		DebugLogging    bool                        `yaml:"debug_logging"`
		TimeoutSeconds  int                         `yaml:"timeout_seconds"`
		Proxy           string                      `yaml:"proxy"`
		BraveAPIKey     string                      `yaml:"brave_api_key"`
		WeatherAPIKey   string                      `yaml:"weather_api_key"`
		WeatherUnits    string                      `yaml:"weather_units"`    // metric or imperial
		ContextMode     string                      `yaml:"context_mode"`     // no_context or context
		BackendStrategy string                      `yaml:"backend_strategy"` // first_non_empty or aggregate
		SafeSearch      string                      `yaml:"safesearch"`       // on, moderate, off
		Modes           map[string]SearchModeConfig `yaml:"modes"`
	}

	// SearchModeConfig tunes one search mode: whether it answers at all,
	// which backends run and in what order, and how many results come back.
	SearchModeConfig struct {
		Enabled    *bool    `yaml:"enabled"`
		Backends   []string `yaml:"backends"`
		MaxResults int      `yaml:"max_results"`
	}

	ChannelConfig struct {
		ID      string                 `yaml:"-"`
		Type    string                 `yaml:"type"` // signal, telegram, whatsapp
		Enabled bool                   `yaml:"enabled"`
		Config  map[string]interface{} `yaml:"config"`
	}
)

func (c *Config) ForcePlainText() bool {
	return c.Bot.ForcePlainText == nil || *c.Bot.ForcePlainText
}

func (c *Config) SearchPersonaEnabled() bool {
	return c.Search.PersonaEnabled == nil || *c.Search.PersonaEnabled
}

// AutoSearchEnabled reports whether plain chat prompts may be routed into
// search. In no_context mode only explicit commands reach the backends.
func (c *Config) AutoSearchEnabled() bool {
	return c.Search.ContextMode == SearchContextModeContext
}

// SearchModeEnabled reports whether a mode answers at all. Modes default on.
func (c *Config) SearchModeEnabled(mode string) bool {
	mc, ok := c.Search.Modes[mode]
	if !ok {
		return true
	}
	return mc.Enabled == nil || *mc.Enabled
}

// SearchChains returns the per-mode backend order with config overrides
// layered over the built-in defaults.
func (c *Config) SearchChains() map[search.Mode][]string {
	chains := make(map[search.Mode][]string, len(search.DefaultChains))
	for mode, chain := range search.DefaultChains {
		chains[mode] = append([]string(nil), chain...)
	}
	for name, mc := range c.Search.Modes {
		if len(mc.Backends) > 0 {
			chains[search.Mode(name)] = append([]string(nil), mc.Backends...)
		}
	}
	return chains
}

// SearchLimits returns the per-mode result caps with config overrides.
func (c *Config) SearchLimits() map[search.Mode]int {
	limits := make(map[search.Mode]int, len(search.DefaultLimits))
	for mode, n := range search.DefaultLimits {
		limits[mode] = n
	}
	for name, mc := range c.Search.Modes {
		if mc.MaxResults > 0 {
			limits[search.Mode(name)] = mc.MaxResults
		}
	}
	return limits
}

// UpdateByName replaces one named section of the config.
func (c *Config) UpdateByName(name string, value any) error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "config":
		typed, ok := value.(*Config)
		if !ok || typed == nil {
			return fmt.Errorf("name 'config' requires *Config")
		}
		*c = *typed
	case "gateway":
		typed, ok := value.(*GatewayConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'gateway' requires *GatewayConfig")
		}
		c.Gateway = *typed
	case "logging":
		typed, ok := value.(*LoggingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'logging' requires *LoggingConfig")
		}
		c.Logging = *typed
	case "openrouter":
		typed, ok := value.(*OpenRouterConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'openrouter' requires *OpenRouterConfig")
		}
		c.OpenRouter = *typed
	case "bot":
		typed, ok := value.(*BotConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'bot' requires *BotConfig")
		}
		c.Bot = *typed
	case "search":
		typed, ok := value.(*SearchConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'search' requires *SearchConfig")
		}
		c.Search = *typed
	case "channels":
		typed, ok := value.(*map[string]ChannelConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'channels' requires *map[string]ChannelConfig")
		}
		next := make(map[string]ChannelConfig, len(*typed))
		for k, v := range *typed {
			next[k] = v
		}
		c.Channels = next
	default:
		return fmt.Errorf("unsupported config name: %s", name)
	}
	return nil
}

// Clone .
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}
	return &cloned, nil
}

// Hash .
func (c *Config) Hash() string {
	json := sonic.Config{SortMapKeys: true, UseNumber: true}.Froze()
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
