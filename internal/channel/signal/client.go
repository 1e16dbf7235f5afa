package signal

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
	"github.com/htmlgxn/signal-bot-orx/internal/pkg/utils"
)

const (
	sendAttempts       = 2
	sendRetryDelay     = 500 * time.Millisecond
	maxSendErrorDetail = 240
)

// SendError describes a failed delivery through the signal-cli REST API.
// StatusCode is 0 for network failures.
type SendError struct {
	StatusCode int
	msg        string
	cause      error
}

func (e *SendError) Error() string { return e.msg }

func (e *SendError) Unwrap() error { return e.cause }

// Attachment is one outbound image payload.
type Attachment struct {
	Data        []byte
	ContentType string
}

// Target identifies where a message goes. GroupID takes precedence over
// Recipient when both are set.
type Target struct {
	Recipient string
	GroupID   string
}

// Client talks to the signal-cli REST API send endpoint.
type Client struct {
	baseURL    string
	sender     string
	httpClient *http.Client
	resolver   *GroupResolver
}

func NewClient(baseURL, senderNumber string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	base := strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL:    base,
		sender:     senderNumber,
		httpClient: httpClient,
		resolver:   NewGroupResolver(base, senderNumber, httpClient),
	}
}

// Send delivers message and attachments to target. Group sends walk the
// resolver's candidate list: a 400 means "this spelling is not the group"
// and moves on to the next candidate, anything else aborts. When every
// candidate bounces with 400 and fallbackRecipient is set, one direct
// message attempt is made before giving up.
func (c *Client) Send(ctx context.Context, target Target, message string, attachments []Attachment, fallbackRecipient string) error {
	if target.GroupID != "" {
		return c.sendToGroup(ctx, target.GroupID, message, attachments, fallbackRecipient)
	}
	if target.Recipient == "" {
		return &SendError{msg: "Missing target recipient"}
	}
	return c.sendToRecipient(ctx, target.Recipient, message, attachments)
}

func (c *Client) sendToGroup(ctx context.Context, groupID, message string, attachments []Attachment, fallbackRecipient string) error {
	resolved := c.resolver.Resolve(ctx, groupID)
	if len(resolved.Recipients) == 0 {
		return &SendError{msg: "Missing target recipient"}
	}

	var lastErr *SendError
	finalCandidate := ""
	for _, candidate := range resolved.Recipients {
		finalCandidate = candidate
		err := c.sendToRecipient(ctx, candidate, message, attachments)
		if err == nil {
			return nil
		}
		var sendErr *SendError
		if !errors.As(err, &sendErr) {
			return err
		}
		if sendErr.StatusCode != http.StatusBadRequest {
			return sendErr
		}
		lastErr = sendErr
	}

	if fallbackRecipient != "" && lastErr != nil {
		logs.CtxWarn(ctx, "[signal] group send exhausted %d candidates for %s, falling back to direct message to %s",
			len(resolved.Recipients), groupID, fallbackRecipient)
		if err := c.sendToRecipient(ctx, fallbackRecipient, message, attachments); err == nil {
			return nil
		}
	}

	return &SendError{
		StatusCode: lastErr.StatusCode,
		msg: fmt.Sprintf("%s (resolver_cache_refreshed=%v, candidate_count=%d, final_candidate=%s)",
			lastErr.msg, resolved.CacheRefreshed, len(resolved.Recipients), finalCandidate),
		cause: lastErr,
	}
}

func (c *Client) sendToRecipient(ctx context.Context, recipient, message string, attachments []Attachment) error {
	payload := map[string]interface{}{
		"number":     c.sender,
		"recipients": []string{recipient},
	}
	if message != "" {
		payload["message"] = message
	}
	if len(attachments) > 0 {
		encoded := make([]string, 0, len(attachments))
		for _, att := range attachments {
			encoded = append(encoded, encodeAttachment(att))
		}
		payload["base64_attachments"] = encoded
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return &SendError{msg: "Signal send failed to encode request", cause: err}
	}

	for attempt := 1; attempt <= sendAttempts; attempt++ {
		status, respBody, err := c.post(ctx, body)
		if err != nil {
			if attempt < sendAttempts {
				sleepCtx(ctx, sendRetryDelay)
				continue
			}
			return &SendError{
				msg:   fmt.Sprintf("Signal send failed due to network error (recipient=%s)", recipient),
				cause: err,
			}
		}
		if status < http.StatusBadRequest {
			return nil
		}
		if status >= http.StatusInternalServerError && attempt < sendAttempts {
			sleepCtx(ctx, sendRetryDelay)
			continue
		}
		return &SendError{
			StatusCode: status,
			msg: fmt.Sprintf("Signal send failed with status %d (recipient=%s): %s",
				status, recipient, sendErrorDetail(respBody)),
		}
	}
	return &SendError{msg: fmt.Sprintf("Signal send failed due to network error (recipient=%s)", recipient)}
}

func (c *Client) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/send", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func sendErrorDetail(body []byte) string {
	parsed := gjson.ParseBytes(body)
	detail := ""
	for _, key := range []string{"error", "message", "msg"} {
		if v := parsed.Get(key); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			detail = v.String()
			break
		}
	}
	if detail == "" {
		detail = string(body)
	}
	detail = utils.CollapseWhitespace(detail)
	if detail == "" {
		return "No error detail"
	}
	return utils.Truncate(detail, maxSendErrorDetail)
}

// encodeAttachment builds the data-URI form the signal-cli REST API
// expects for inline attachments.
func encodeAttachment(att Attachment) string {
	contentType := att.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	return fmt.Sprintf("data:%s;filename=image.%s;base64,%s",
		contentType, attachmentExt(contentType), base64.StdEncoding.EncodeToString(att.Data))
}

func attachmentExt(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "bin"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
