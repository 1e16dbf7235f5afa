package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	chatMaxAttempts = 3
	maxErrorDetail  = 240
)

var retryableStatuses = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

type ChatConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	Timeout         time.Duration
	MaxOutputTokens int
	Temperature     float32
	HTTPReferer     string
	AppTitle        string
}

// ChatClient talks to OpenRouter's OpenAI-compatible chat completions API.
// Transient failures are retried with linear backoff.
type ChatClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewChatClient(cfg ChatConfig) *ChatClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	conf.BaseURL = base
	conf.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: newAttributionTransport(cfg.HTTPReferer, cfg.AppTitle),
	}

	return &ChatClient{
		client:      openai.NewClientWithConfig(conf),
		model:       cfg.Model,
		maxTokens:   cfg.MaxOutputTokens,
		temperature: cfg.Temperature,
	}
}

// GenerateReply sends the conversation and returns the model's reply text
// with whitespace collapsed.
func (c *ChatClient) GenerateReply(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	for attempt := 0; attempt < chatMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return "", &ChatError{UserMessage: "Chat service timed out. Try again.", cause: err}
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			status, retryable := classifyError(err)
			switch {
			case isTimeout(err):
				if attempt == chatMaxAttempts-1 {
					return "", &ChatError{UserMessage: "Chat service timed out. Try again.", cause: err}
				}
			case retryable && attempt < chatMaxAttempts-1:
				logs.CtxWarn(ctx, "[openrouter] chat attempt %d failed with HTTP %d, retrying", attempt+1, status)
			case status == http.StatusUnauthorized || status == http.StatusForbidden:
				return "", &ChatError{UserMessage: "Chat service authorization failed.", StatusCode: status, cause: err}
			default:
				return "", &ChatError{
					UserMessage: fmt.Sprintf("Chat reply failed: %s", errorDetail(err)),
					StatusCode:  status,
					cause:       err,
				}
			}
			continue
		}

		if len(resp.Choices) == 0 {
			return "", &ChatError{UserMessage: "Chat service returned an empty reply."}
		}
		content := strings.Join(strings.Fields(resp.Choices[0].Message.Content), " ")
		if content == "" {
			return "", &ChatError{UserMessage: "Chat service returned an empty reply."}
		}
		return content, nil
	}

	return "", &ChatError{UserMessage: "Chat service failed unexpectedly."}
}

func backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(attempt) * 0.5 * float64(time.Second))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyError extracts the HTTP status from go-openai errors and reports
// whether the failure is retryable.
func classifyError(err error) (status int, retryable bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, retryableStatuses[apiErr.HTTPStatusCode]
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, retryableStatuses[reqErr.HTTPStatusCode]
	}
	// Network errors are retryable until the attempt budget runs out.
	return 0, true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorDetail collapses an error message into a single bounded line.
func errorDetail(err error) string {
	var apiErr *openai.APIError
	detail := ""
	if errors.As(err, &apiErr) {
		detail = apiErr.Message
	}
	if detail == "" {
		detail = err.Error()
	}
	detail = strings.Join(strings.Fields(detail), " ")
	if detail == "" {
		return "No error detail"
	}
	if len(detail) > maxErrorDetail {
		return detail[:maxErrorDetail] + "..."
	}
	return detail
}

// attributionTransport adds the optional OpenRouter ranking headers.
type attributionTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func newAttributionTransport(referer, title string) http.RoundTripper {
	return &attributionTransport{base: http.DefaultTransport, referer: referer, title: title}
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(req)
}
