package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/htmlgxn/signal-bot-orx/internal/channel"
	"github.com/htmlgxn/signal-bot-orx/internal/search"
)

// CommandHandlerFunc processes a matched command and returns a text reply.
// An empty reply means the handler already sent whatever was needed.
type CommandHandlerFunc func(ctx context.Context, gw *Gateway, msg *channel.Message, args string) (string, error)

// Command describes a single channel-agnostic command.
type Command struct {
	Name        string // e.g. "/search"
	Description string
	AckReason   string // webhook ack reason when the command is queued
	Handler     CommandHandlerFunc
}

// CommandRouter matches incoming message text against registered command
// prefixes and dispatches the first match.
type CommandRouter struct {
	commands map[string]*Command // key: lowercase command name
	mu       sync.RWMutex
}

func newCommandRouter() *CommandRouter {
	return &CommandRouter{commands: make(map[string]*Command, 16)}
}

func (r *CommandRouter) Register(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(cmd.Name)] = cmd
}

// Match checks whether content starts with a known command. Commands are
// matched case-insensitively and may carry a trailing @botname suffix
// (e.g. "/search@orxbot").
func (r *CommandRouter) Match(content string) (*Command, string, bool) {
	content = strings.TrimSpace(content)
	if content == "" || content[0] != '/' {
		return nil, "", false
	}

	fields := strings.SplitN(content, " ", 2)
	raw := strings.ToLower(fields[0])
	if idx := strings.Index(raw, "@"); idx > 0 {
		raw = raw[:idx]
	}

	r.mu.RLock()
	cmd, ok := r.commands[raw]
	r.mu.RUnlock()
	if !ok {
		return nil, "", false
	}

	args := ""
	if len(fields) > 1 {
		args = strings.TrimSpace(fields[1])
	}
	return cmd, args, true
}

func (r *CommandRouter) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	return out
}

func registerBuiltinCommands(r *CommandRouter) {
	r.Register(&Command{Name: "/help", Description: "Show available commands", AckReason: "command_queued", Handler: cmdHelp})
	r.Register(&Command{Name: "/imagine", Description: "Generate an image from a prompt", Handler: cmdImagine})
	r.Register(&Command{Name: "/search", Description: "Web search and summarize", AckReason: "search_queued", Handler: searchCommand(search.ModeSearch, "/search")})
	r.Register(&Command{Name: "/news", Description: "News search and summarize", AckReason: "search_queued", Handler: searchCommand(search.ModeNews, "/news")})
	r.Register(&Command{Name: "/wiki", Description: "Encyclopedia lookup", AckReason: "search_queued", Handler: searchCommand(search.ModeWiki, "/wiki")})
	r.Register(&Command{Name: "/books", Description: "Book search", AckReason: "search_queued", Handler: searchCommand(search.ModeBooks, "/books")})
	r.Register(&Command{Name: "/lc_cyraxx", Description: "Cyraxx wiki lookup", AckReason: "search_queued", Handler: searchCommand(search.ModeLolcowCyraxx, "/lc_cyraxx")})
	r.Register(&Command{Name: "/lc_larson", Description: "Daniel Larson wiki lookup", AckReason: "search_queued", Handler: searchCommand(search.ModeLolcowLarson, "/lc_larson")})
	r.Register(&Command{Name: "/images", Description: "Find and send an image", AckReason: "search_queued", Handler: cmdImages})
	r.Register(&Command{Name: "/image", Description: "Alias for /images", AckReason: "search_queued", Handler: cmdImages})
	r.Register(&Command{Name: "/videos", Description: "List videos, reply with a number to pick one", AckReason: "search_queued", Handler: cmdVideos})
	r.Register(&Command{Name: "/video", Description: "Send a numbered video from the last list", AckReason: "search_queued", Handler: cmdVideo})
	r.Register(&Command{Name: "/jmail", Description: "Search the JMail archive, reply with a number to summarize", AckReason: "search_queued", Handler: cmdJMail})
	r.Register(&Command{Name: "/source", Description: "Show sources for the last answers", AckReason: "source_queued", Handler: cmdSource})
	r.Register(&Command{Name: "/weather", Description: "Current weather for a location", AckReason: "weather_queued", Handler: cmdWeather})
	r.Register(&Command{Name: "/forecast", Description: "5-day forecast for a location", AckReason: "weather_queued", Handler: cmdForecast})
}

func cmdHelp(_ context.Context, gw *Gateway, _ *channel.Message, _ string) (string, error) {
	cmds := gw.commands.List()
	names := make(map[string]string, len(cmds))
	ordered := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		names[cmd.Name] = cmd.Description
		ordered = append(ordered, cmd.Name)
	}
	sort.Strings(ordered)

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range ordered {
		fmt.Fprintf(&b, "  %s - %s\n", name, names[name])
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func searchCommand(mode search.Mode, name string) CommandHandlerFunc {
	return func(ctx context.Context, gw *Gateway, msg *channel.Message, args string) (string, error) {
		if !gw.cfg.SearchModeEnabled(string(mode)) {
			return searchDisabledText, nil
		}
		if args == "" {
			return fmt.Sprintf("Usage: %s <query>", name), nil
		}
		return gw.runSearchSummary(ctx, msg, mode, args)
	}
}

func cmdImages(ctx context.Context, gw *Gateway, msg *channel.Message, args string) (string, error) {
	if !gw.cfg.SearchModeEnabled(string(search.ModeImages)) {
		return searchDisabledText, nil
	}
	if args == "" {
		return "Usage: /images <query>", nil
	}
	return gw.runImageSearch(ctx, msg, args)
}

func cmdVideos(ctx context.Context, gw *Gateway, msg *channel.Message, args string) (string, error) {
	if !gw.cfg.SearchModeEnabled(string(search.ModeVideos)) {
		return searchDisabledText, nil
	}
	if args == "" {
		return "Usage: /videos <query>", nil
	}
	reply, err := gw.searchSvc.VideoListReply(ctx, msg.SessionKey(), args)
	if err != nil {
		return userFacingSearchError(err), nil
	}
	return reply, nil
}

func cmdVideo(ctx context.Context, gw *Gateway, msg *channel.Message, args string) (string, error) {
	n, ok := parseSelectionNumber(args)
	if !ok {
		return "Usage: /video <number>", nil
	}
	thumb, contentType, url, title, err := gw.searchSvc.VideoSelection(ctx, msg.SessionKey(), n)
	if err != nil {
		return userFacingSearchError(err), nil
	}
	caption := strings.TrimSpace(title + "\n" + url)
	if len(thumb) > 0 {
		return "", gw.replyImage(ctx, msg, thumb, contentType, caption)
	}
	return caption, nil
}

func cmdJMail(ctx context.Context, gw *Gateway, msg *channel.Message, args string) (string, error) {
	if !gw.cfg.SearchModeEnabled(string(search.ModeJMail)) {
		return searchDisabledText, nil
	}
	if args == "" {
		return "Usage: /jmail <query>", nil
	}
	// A bare number picks from the last /jmail list.
	if n, ok := parseSelectionNumber(args); ok {
		reply, err := gw.searchSvc.JMailSelection(ctx, msg.SessionKey(), n, gw.historyItems(msg.SessionKey()))
		if err != nil {
			return userFacingSearchError(err), nil
		}
		return truncateReply(reply), nil
	}
	reply, err := gw.searchSvc.JMailListReply(ctx, msg.SessionKey(), args)
	if err != nil {
		return userFacingSearchError(err), nil
	}
	return reply, nil
}

func cmdSource(_ context.Context, gw *Gateway, msg *channel.Message, args string) (string, error) {
	return gw.searchSvc.SourceReply(msg.SessionKey(), args), nil
}

func cmdWeather(ctx context.Context, gw *Gateway, msg *channel.Message, args string) (string, error) {
	if args == "" {
		return "Usage: /weather <location>", nil
	}
	return gw.runWeather(ctx, args, false)
}

func cmdForecast(ctx context.Context, gw *Gateway, msg *channel.Message, args string) (string, error) {
	if args == "" {
		return "Usage: /forecast <location>", nil
	}
	return gw.runWeather(ctx, args, true)
}

func cmdImagine(ctx context.Context, gw *Gateway, msg *channel.Message, args string) (string, error) {
	return gw.runImagine(ctx, msg, args)
}
