package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func minimalConfig() *Config {
	return &Config{
		OpenRouter: OpenRouterConfig{ChatAPIKey: "sk-test"},
		Channels: map[string]ChannelConfig{
			"signal": {
				Type:    "signal",
				Enabled: true,
				Config: map[string]interface{}{
					"api_base_url":  "http://127.0.0.1:8080",
					"sender_number": "+15550001111",
					"disable_auth":  true,
				},
			},
		},
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := minimalConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Gateway.Bind != "127.0.0.1:8001" {
		t.Fatalf("unexpected bind %q", cfg.Gateway.Bind)
	}
	if cfg.OpenRouter.ChatModel != DefaultChatModel || cfg.OpenRouter.BaseURL != DefaultBaseURL {
		t.Fatalf("unexpected openrouter defaults %+v", cfg.OpenRouter)
	}
	if cfg.OpenRouter.TimeoutSeconds != 45 || cfg.OpenRouter.ImageTimeoutSeconds != 90 {
		t.Fatalf("unexpected timeouts %+v", cfg.OpenRouter)
	}
	if cfg.Bot.MaxPromptChars != 700 || cfg.Bot.ContextTurns != 6 || cfg.Bot.ContextTTLSeconds != 1800 {
		t.Fatalf("unexpected bot defaults %+v", cfg.Bot)
	}
	if cfg.Bot.GroupReplyMode != GroupReplyModeGroup {
		t.Fatalf("unexpected reply mode %q", cfg.Bot.GroupReplyMode)
	}
	if len(cfg.Bot.MentionAliases) != 2 || cfg.Bot.MentionAliases[0] != "@signalbot" {
		t.Fatalf("unexpected aliases %v", cfg.Bot.MentionAliases)
	}
	if !cfg.ForcePlainText() || !cfg.SearchPersonaEnabled() {
		t.Fatal("expected plain text and persona defaults to be on")
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg := minimalConfig()
	cfg.OpenRouter.ChatAPIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing chat api key to fail")
	}

	cfg = minimalConfig()
	cfg.Bot.GroupReplyMode = "broadcast"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "group_reply_mode") {
		t.Fatalf("unexpected error %v", err)
	}

	cfg = minimalConfig()
	cfg.Channels["signal"] = ChannelConfig{Type: "signal", Enabled: false}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected no enabled channels to fail")
	}
}

func TestValidateSearchSettingDefaults(t *testing.T) {
	cfg := minimalConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.ContextMode != SearchContextModeNone {
		t.Fatalf("unexpected context mode %q", cfg.Search.ContextMode)
	}
	if cfg.Search.BackendStrategy != SearchStrategyFirstNonEmpty {
		t.Fatalf("unexpected strategy %q", cfg.Search.BackendStrategy)
	}
	if cfg.Search.SafeSearch != SafeSearchModerate {
		t.Fatalf("unexpected safesearch %q", cfg.Search.SafeSearch)
	}
	if cfg.AutoSearchEnabled() {
		t.Fatal("expected auto search off in no_context mode")
	}
	if !cfg.SearchModeEnabled("news") {
		t.Fatal("expected modes enabled by default")
	}
}

func TestValidateSearchSettingErrors(t *testing.T) {
	cfg := minimalConfig()
	cfg.Search.ContextMode = "always"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "context_mode") {
		t.Fatalf("unexpected error %v", err)
	}

	cfg = minimalConfig()
	cfg.Search.BackendStrategy = "round_robin"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "backend_strategy") {
		t.Fatalf("unexpected error %v", err)
	}

	cfg = minimalConfig()
	cfg.Search.SafeSearch = "strict"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "safesearch") {
		t.Fatalf("unexpected error %v", err)
	}

	cfg = minimalConfig()
	cfg.Search.Modes = map[string]SearchModeConfig{"mail": {}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown search mode") {
		t.Fatalf("unexpected error %v", err)
	}

	cfg = minimalConfig()
	cfg.Search.Modes = map[string]SearchModeConfig{"search": {Backends: []string{"askjeeves"}}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Fatalf("unexpected error %v", err)
	}

	cfg = minimalConfig()
	cfg.Search.Modes = map[string]SearchModeConfig{"news": {Backends: []string{"wikipedia"}}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "encyclopedic") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSearchChainsAndLimitsOverrides(t *testing.T) {
	off := false
	cfg := minimalConfig()
	cfg.Search.Modes = map[string]SearchModeConfig{
		"search": {Backends: []string{"duckduckgo", "bing"}, MaxResults: 7},
		"wiki":   {Enabled: &off},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chains := cfg.SearchChains()
	if got := chains["search"]; len(got) != 2 || got[0] != "duckduckgo" || got[1] != "bing" {
		t.Fatalf("unexpected search chain %v", got)
	}
	if got := chains["news"]; len(got) == 0 {
		t.Fatal("expected default news chain preserved")
	}
	limits := cfg.SearchLimits()
	if limits["search"] != 7 {
		t.Fatalf("unexpected search limit %d", limits["search"])
	}
	if cfg.SearchModeEnabled("wiki") {
		t.Fatal("expected wiki disabled")
	}
	if !cfg.SearchModeEnabled("videos") {
		t.Fatal("expected untouched mode to stay enabled")
	}
}

func TestApplySearchModeEnv(t *testing.T) {
	t.Setenv("BOT_SEARCH_CONTEXT_MODE", "context")
	t.Setenv("BOT_SEARCH_BACKEND_STRATEGY", "aggregate")
	t.Setenv("BOT_SEARCH_SAFESEARCH", "off")
	t.Setenv("BOT_NEWS_ENABLED", "false")
	t.Setenv("BOT_NEWS_BACKEND_ORDER", "bing_news,yahoo_news")
	t.Setenv("BOT_WIKI_MAX_RESULTS", "2")

	cfg := minimalConfig()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cfg.AutoSearchEnabled() {
		t.Fatal("expected context mode from env")
	}
	if cfg.Search.BackendStrategy != SearchStrategyAggregate || cfg.Search.SafeSearch != SafeSearchOff {
		t.Fatalf("unexpected search settings %+v", cfg.Search)
	}
	if cfg.SearchModeEnabled("news") {
		t.Fatal("expected news disabled from env")
	}
	news := cfg.Search.Modes["news"]
	if len(news.Backends) != 2 || news.Backends[0] != "bing_news" {
		t.Fatalf("unexpected news backends %v", news.Backends)
	}
	if cfg.SearchLimits()["wiki"] != 2 {
		t.Fatalf("unexpected wiki limit %d", cfg.SearchLimits()["wiki"])
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("BOT_WEBHOOK_HOST", "0.0.0.0")
	t.Setenv("BOT_WEBHOOK_PORT", "9000")
	t.Setenv("OPENROUTER_MODEL", "openai/gpt-4o")
	t.Setenv("BOT_CHAT_FORCE_PLAIN_TEXT", "no")
	t.Setenv("BOT_MENTION_ALIASES", "@orx, @orxbot")
	t.Setenv("SIGNAL_ALLOWED_NUMBERS", "+15551112222,+15553334444")
	t.Setenv("SIGNAL_ALLOWED_NUMBER", "+15555556666")

	cfg := minimalConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Gateway.Bind != "0.0.0.0:9000" {
		t.Fatalf("unexpected bind %q", cfg.Gateway.Bind)
	}
	if cfg.OpenRouter.ChatModel != "openai/gpt-4o" {
		t.Fatalf("unexpected model %q", cfg.OpenRouter.ChatModel)
	}
	if cfg.ForcePlainText() {
		t.Fatal("expected plain text forced off")
	}
	if len(cfg.Bot.MentionAliases) != 2 || cfg.Bot.MentionAliases[1] != "@orxbot" {
		t.Fatalf("unexpected aliases %v", cfg.Bot.MentionAliases)
	}

	signalCfg := cfg.Channels["signal"].Config
	numbers, _ := signalCfg["allowed_numbers"].([]interface{})
	if len(numbers) != 3 {
		t.Fatalf("expected legacy number merged, got %v", numbers)
	}
}

func TestApplyEnvCreatesChannelEntry(t *testing.T) {
	t.Setenv("WHATSAPP_BRIDGE_URL", "http://127.0.0.1:3000")

	cfg := minimalConfig()
	cfg.ApplyEnvOverrides()

	entry, ok := cfg.Channels["whatsapp"]
	if !ok || !entry.Enabled || entry.Config["bridge_url"] != "http://127.0.0.1:3000" {
		t.Fatalf("unexpected whatsapp entry %+v", entry)
	}
}

func TestInstanceManagerLoadAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
openrouter:
  chat_api_key: sk-test
channels:
  signal:
    type: signal
    enabled: true
    config:
      api_base_url: http://127.0.0.1:8080
      sender_number: "+15550001111"
      disable_auth: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	ins := &InstanceManager{}
	cfg, err := ins.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenRouter.ChatAPIKey != "sk-test" {
		t.Fatalf("unexpected config %+v", cfg.OpenRouter)
	}

	// clones are isolated from the snapshot
	cfg.OpenRouter.ChatModel = "mutated"
	again, err := ins.Get()
	if err != nil {
		t.Fatal(err)
	}
	if again.OpenRouter.ChatModel == "mutated" {
		t.Fatal("expected Get to return a clone")
	}

	if err := ins.Apply("bot", &BotConfig{GroupReplyMode: "bogus"}); err == nil {
		t.Fatal("expected invalid apply to be rejected")
	}
	if err := ins.Apply("bot", &BotConfig{GroupReplyMode: GroupReplyModeDMFallback}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, _ := ins.Get()
	if updated.Bot.GroupReplyMode != GroupReplyModeDMFallback {
		t.Fatalf("unexpected mode %q", updated.Bot.GroupReplyMode)
	}

	if err := ins.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	reloaded, err := (&InstanceManager{}).Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Bot.GroupReplyMode != GroupReplyModeDMFallback {
		t.Fatal("expected saved config to round-trip")
	}
}

func TestLoadMissingFileEnvOnly(t *testing.T) {
	t.Setenv("OPENROUTER_CHAT_API_KEY", "sk-env")
	t.Setenv("SIGNAL_API_BASE_URL", "http://127.0.0.1:8080")
	t.Setenv("SIGNAL_SENDER_NUMBER", "+15550001111")
	t.Setenv("SIGNAL_DISABLE_AUTH", "true")

	ins := &InstanceManager{}
	cfg, err := ins.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenRouter.ChatAPIKey != "sk-env" {
		t.Fatalf("unexpected config %+v", cfg.OpenRouter)
	}
	if _, ok := cfg.Channels["signal"]; !ok {
		t.Fatal("expected signal channel from env")
	}
}
