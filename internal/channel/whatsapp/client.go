package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/utils"
)

const maxBridgeErrorDetail = 240

// Client talks to the WhatsApp HTTP bridge's send endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	return c.post(ctx, "/send/text", map[string]interface{}{
		"chatId": chatID,
		"text":   text,
	})
}

func (c *Client) SendImage(ctx context.Context, chatID string, data []byte, contentType, caption string) error {
	payload := map[string]interface{}{
		"chatId":      chatID,
		"imageBase64": base64.StdEncoding.EncodeToString(data),
		"mimeType":    contentType,
	}
	if caption != "" {
		payload["caption"] = caption
	}
	return c.post(ctx, "/send/image", payload)
}

func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode bridge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("WhatsApp bridge network error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("WhatsApp bridge network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("WhatsApp bridge send failed (%d): %s", resp.StatusCode, bridgeErrorDetail(respBody))
	}
	return nil
}

func bridgeErrorDetail(body []byte) string {
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
	return utils.Truncate(detail, maxBridgeErrorDetail)
}
