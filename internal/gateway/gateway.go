package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hzUtils "github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/htmlgxn/signal-bot-orx/internal/autosearch"
	"github.com/htmlgxn/signal-bot-orx/internal/channel"
	"github.com/htmlgxn/signal-bot-orx/internal/channel/signal"
	"github.com/htmlgxn/signal-bot-orx/internal/channel/telegram"
	"github.com/htmlgxn/signal-bot-orx/internal/channel/whatsapp"
	"github.com/htmlgxn/signal-bot-orx/internal/config"
	"github.com/htmlgxn/signal-bot-orx/internal/followup"
	"github.com/htmlgxn/signal-bot-orx/internal/openrouter"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/prometheus"
	"github.com/htmlgxn/signal-bot-orx/internal/search"
	"github.com/htmlgxn/signal-bot-orx/internal/searchsvc"
	"github.com/htmlgxn/signal-bot-orx/internal/store"
)

const (
	dedupeTTL         = 10 * time.Minute
	searchMemoryItems = 40
	sweepSchedule     = "@every 1m"
)

// Gateway owns the HTTP server the transports hang their webhooks on, the
// per-conversation message queue, and all the clients the router needs.
type Gateway struct {
	cfg        *config.Config
	msgQueue   *MessageQueue
	httpServer *hzServer.Hertz
	commands   *CommandRouter

	chatClient  *openrouter.ChatClient
	imageClient *openrouter.ImageClient // nil when image mode is not configured
	searchSvc   *searchsvc.Service
	chatCtx     *store.ChatContext
	dedupe      *store.Dedupe
	followup    *followup.Resolver
	autoRouter  *autosearch.Router
	weather     *search.WeatherProvider // nil without an API key

	sweeper *cron.Cron

	runCtx    context.Context
	runCancel context.CancelFunc

	stopOnce sync.Once
	stopErr  error
}

func NewGateway(cfg *config.Config) *Gateway {
	bind := cfg.Gateway.Bind
	if bind == "" {
		bind = "127.0.0.1:8001"
	}

	timeout := time.Duration(cfg.Gateway.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))

	hzSvr := hzServer.Default(
		hzServer.WithHostPorts(bind),
		hzServer.WithReadTimeout(timeout),
		hzServer.WithWriteTimeout(timeout),
		hzServer.WithExitWaitTime(5*time.Second),
	)

	return &Gateway{
		cfg:        cfg,
		httpServer: hzSvr,
		commands:   newCommandRouter(),
		msgQueue: newMessageQueue(QueueOptions{
			LaneBuffer:    10,
			MaxConcurrent: cfg.Gateway.MaxConcurrentSessions,
			LaneIdleTTL:   dedupeTTL,
		}),
	}
}

func (gw *Gateway) Start(ctx context.Context) error {
	gw.runCtx, gw.runCancel = context.WithCancel(ctx)

	if err := gw.msgQueue.Init(gw.runCtx); err != nil {
		return fmt.Errorf("init msg queue: %w", err)
	}
	gw.initClients()
	registerBuiltinCommands(gw.commands)
	if err := gw.initHTTPServer(gw.runCtx); err != nil {
		return fmt.Errorf("init http server: %w", err)
	}
	if err := gw.initChannels(gw.runCtx, gw.cfg.Channels); err != nil {
		return fmt.Errorf("init channels: %w", err)
	}
	gw.initSweeper(gw.runCtx)

	go gw.httpServer.Spin()

	return nil
}

func (gw *Gateway) Stop(ctx context.Context) error {
	gw.stopOnce.Do(func() {
		if gw.runCancel != nil {
			gw.runCancel()
		}

		if gw.sweeper != nil {
			gw.sweeper.Stop()
		}

		for _, ch := range channel.List() {
			channel.Unregister(ch.ID())
		}

		if err := gw.httpServer.Shutdown(ctx); err != nil {
			logs.CtxWarn(ctx, "[gateway] shutdown http server error: %v", err)
		}

		logs.CtxInfo(ctx, "[gateway] all resources stopped")
	})
	return gw.stopErr
}

func (gw *Gateway) initClients() {
	cfg := gw.cfg

	gw.chatClient = openrouter.NewChatClient(openrouter.ChatConfig{
		APIKey:          cfg.OpenRouter.ChatAPIKey,
		Model:           cfg.OpenRouter.ChatModel,
		BaseURL:         cfg.OpenRouter.BaseURL,
		Timeout:         time.Duration(cfg.OpenRouter.TimeoutSeconds) * time.Second,
		MaxOutputTokens: cfg.OpenRouter.MaxOutputTokens,
		Temperature:     float32(cfg.OpenRouter.Temperature),
		HTTPReferer:     cfg.OpenRouter.HTTPReferer,
		AppTitle:        cfg.OpenRouter.AppTitle,
	})

	if cfg.OpenRouter.ImageAPIKey != "" && cfg.OpenRouter.ImageModel != "" {
		gw.imageClient = openrouter.NewImageClient(openrouter.ImageConfig{
			APIKey:      cfg.OpenRouter.ImageAPIKey,
			Model:       cfg.OpenRouter.ImageModel,
			BaseURL:     cfg.OpenRouter.BaseURL,
			Timeout:     time.Duration(cfg.OpenRouter.ImageTimeoutSeconds) * time.Second,
			HTTPReferer: cfg.OpenRouter.HTTPReferer,
			AppTitle:    cfg.OpenRouter.AppTitle,
		})
	}

	contextTTL := time.Duration(cfg.Bot.ContextTTLSeconds) * time.Second
	gw.chatCtx = store.NewChatContext(cfg.Bot.ContextTurns, contextTTL)
	gw.dedupe = store.NewDedupe(dedupeTTL)

	searchClient := search.NewClient(search.ClientConfig{
		Opts: search.Options{
			Proxy:      cfg.Search.Proxy,
			APIKey:     cfg.Search.BraveAPIKey,
			Units:      cfg.Search.WeatherUnits,
			SafeSearch: cfg.Search.SafeSearch,
		},
		Chains: cfg.SearchChains(),
		Limits: cfg.SearchLimits(),
		Merge:  search.MergePolicy(cfg.Search.BackendStrategy),
	})
	gw.searchSvc = searchsvc.New(
		searchClient,
		store.NewSearchContext(contextTTL, searchMemoryItems),
		gw.chatClient,
		searchsvc.Config{
			PersonaEnabled: cfg.SearchPersonaEnabled(),
			PersonaPrompt:  gw.systemPrompt(),
			FetchTimeout:   time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
		},
	)

	gw.followup = followup.NewResolver(gw.chatClient)
	gw.autoRouter = autosearch.NewRouter(gw.chatClient)

	if cfg.Search.WeatherAPIKey != "" {
		gw.weather = search.NewWeather(cfg.Search.WeatherAPIKey, cfg.Search.WeatherUnits)
	}
}

func (gw *Gateway) initHTTPServer(ctx context.Context) error {
	gw.httpServer.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, hzUtils.H{"status": "ok"})
	})

	promHandler := promhttp.HandlerFor(prometheus.GetRegistry(), promhttp.HandlerOpts{})
	gw.httpServer.GET("/metrics", func(ctx context.Context, c *app.RequestContext) {
		req, err := adaptor.GetCompatRequest(&c.Request)
		if err != nil {
			c.JSON(consts.StatusInternalServerError, hzUtils.H{"error": "metrics unavailable"})
			return
		}
		promHandler.ServeHTTP(adaptor.GetCompatResponseWriter(&c.Response), req)
	})

	return nil
}

func (gw *Gateway) initChannels(ctx context.Context, channels map[string]config.ChannelConfig) error {
	for id, cfg := range channels {
		cfg.ID = id
		if !cfg.Enabled {
			logs.CtxInfo(ctx, "[gateway] channel #%s is disabled, skipping", id)
			continue
		}

		ch, err := gw.newChannel(ctx, id, cfg)
		if err != nil {
			logs.CtxError(ctx, "[gateway] create channel #%s error: %v", id, err)
			return fmt.Errorf("create channel %s: %w", id, err)
		}

		if err = ch.RegisterMessageHandler(gw.handleInbound); err != nil {
			return fmt.Errorf("register handler for channel %s: %w", id, err)
		}

		if err = channel.Register(ch); err != nil {
			return fmt.Errorf("register channel %s: %w", id, err)
		}

		for _, rt := range ch.Routes() {
			gw.httpServer.Handle(rt.Method, rt.Path, rt.Handler)
			logs.CtxInfo(ctx, "[gateway] channel #%s mounted %s %s", id, rt.Method, rt.Path)
		}
	}

	if channel.Len() == 0 {
		return fmt.Errorf("no channels enabled")
	}
	return nil
}

func (gw *Gateway) newChannel(ctx context.Context, id string, cfg config.ChannelConfig) (channel.Channel, error) {
	switch channel.Type(strings.ToLower(strings.TrimSpace(cfg.Type))) {
	case channel.Signal:
		conf, err := signal.ParseConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		return signal.New(id, conf), nil
	case channel.Telegram:
		conf, err := telegram.ParseConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		return telegram.New(ctx, id, conf)
	case channel.WhatsApp:
		conf, err := whatsapp.ParseConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		return whatsapp.New(id, conf), nil
	default:
		return nil, fmt.Errorf("unsupported channel type: %s", cfg.Type)
	}
}

// initSweeper expires idle conversation state on a fixed schedule so memory
// stays bounded on long-running deployments.
func (gw *Gateway) initSweeper(ctx context.Context) {
	gw.sweeper = cron.New()
	_, err := gw.sweeper.AddFunc(sweepSchedule, func() {
		gw.chatCtx.Sweep()
		gw.dedupe.Sweep()
		gw.searchSvc.Context().Sweep()
	})
	if err != nil {
		logs.CtxWarn(ctx, "[gateway] register sweeper error: %v", err)
		return
	}
	gw.sweeper.Start()
}
