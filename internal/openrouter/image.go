package openrouter

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

	"github.com/htmlgxn/signal-bot-orx/internal/pkg/logs"
)

// GeneratedImage is one decoded image returned by the model.
type GeneratedImage struct {
	Data        []byte
	ContentType string
}

type ImageConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	HTTPReferer string
	AppTitle    string
}

// ImageClient drives OpenRouter's image-modality chat completions. The
// response shape varies by model, so it is parsed leniently with gjson.
type ImageClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewImageClient(cfg ImageConfig) *ImageClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &ImageClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: base,
		client: &http.Client{
			Timeout:   timeout,
			Transport: newAttributionTransport(cfg.HTTPReferer, cfg.AppTitle),
		},
	}
}

// GenerateImages asks the model for images and resolves every reference it
// returns, either inline base64 data or a fetchable URL.
func (c *ImageClient) GenerateImages(ctx context.Context, prompt string) ([]GeneratedImage, error) {
	payload, err := sonic.Marshal(map[string]interface{}{
		"model":      c.model,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
		"modalities": []string{"image"},
	})
	if err != nil {
		return nil, &ImageError{UserMessage: "Image generation failed unexpectedly.", cause: err}
	}

	for attempt := 0; attempt < chatMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return nil, &ImageError{UserMessage: "Image generation timed out. Try again.", cause: err}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, &ImageError{UserMessage: "Image generation failed unexpectedly.", cause: err}
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if attempt == chatMaxAttempts-1 {
				return nil, &ImageError{UserMessage: "Image generation timed out. Try again.", cause: err}
			}
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if attempt == chatMaxAttempts-1 {
				return nil, &ImageError{UserMessage: "Image generation timed out. Try again.", cause: readErr}
			}
			continue
		}

		switch {
		case resp.StatusCode < 400:
			return c.extractImages(ctx, body)
		case retryableStatuses[resp.StatusCode] && attempt < chatMaxAttempts-1:
			logs.CtxWarn(ctx, "[openrouter] image attempt %d failed with HTTP %d, retrying", attempt+1, resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &ImageError{UserMessage: "Image service authorization failed.", StatusCode: resp.StatusCode}
		default:
			return nil, &ImageError{
				UserMessage: fmt.Sprintf("Image generation failed: %s", responseDetail(body)),
				StatusCode:  resp.StatusCode,
			}
		}
	}

	return nil, &ImageError{UserMessage: "Image generation failed unexpectedly."}
}

func (c *ImageClient) extractImages(ctx context.Context, body []byte) ([]GeneratedImage, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ImageError{UserMessage: "Image service returned invalid JSON."}
	}

	images := gjson.GetBytes(body, "choices.0.message.images")
	if !images.IsArray() || len(images.Array()) == 0 {
		return nil, &ImageError{UserMessage: "Image service returned an empty image payload."}
	}

	var (
		results []GeneratedImage
		lastErr *ImageError
	)
	for _, item := range images.Array() {
		ref := imageReference(item)
		if ref == "" {
			continue
		}
		img, err := c.resolveImage(ctx, ref)
		if err != nil {
			if imgErr, ok := err.(*ImageError); ok {
				lastErr = imgErr
			}
			continue
		}
		results = append(results, img)
	}

	if len(results) > 0 {
		return results, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &ImageError{UserMessage: "Image service returned an invalid image payload."}
}

// imageReference digs the image URL or data URI out of one images[] entry.
// Providers disagree on the exact key layout.
func imageReference(item gjson.Result) string {
	for _, path := range []string{"image_url.url", "image_url.image_url", "image_url", "url", "image"} {
		if v := strings.TrimSpace(item.Get(path).String()); v != "" && item.Get(path).Type == gjson.String {
			return v
		}
	}
	return ""
}

func (c *ImageClient) resolveImage(ctx context.Context, ref string) (GeneratedImage, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURL(ref)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return c.fetchImage(ctx, ref)
	}
	return GeneratedImage{}, &ImageError{UserMessage: "Image service returned an invalid image payload."}
}

func (c *ImageClient) fetchImage(ctx context.Context, url string) (GeneratedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return GeneratedImage{}, &ImageError{UserMessage: "Image generation failed unexpectedly.", cause: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return GeneratedImage{}, &ImageError{UserMessage: "Image generation timed out. Try again.", cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GeneratedImage{}, &ImageError{UserMessage: "Image generation timed out. Try again.", cause: err}
	}
	if resp.StatusCode >= 400 {
		return GeneratedImage{}, &ImageError{
			UserMessage: fmt.Sprintf("Image generation failed: %s", responseDetail(body)),
			StatusCode:  resp.StatusCode,
		}
	}
	if len(body) == 0 {
		return GeneratedImage{}, &ImageError{UserMessage: "Image service returned an empty image."}
	}

	contentType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if contentType == "" {
		contentType = "image/png"
	}
	return GeneratedImage{Data: body, ContentType: contentType}, nil
}

func decodeDataURL(ref string) (GeneratedImage, error) {
	prefix, data, found := strings.Cut(ref, ",")
	if !found || strings.TrimSpace(data) == "" {
		return GeneratedImage{}, &ImageError{UserMessage: "Image service returned an invalid image payload."}
	}
	if !strings.Contains(strings.ToLower(prefix), ";base64") {
		return GeneratedImage{}, &ImageError{UserMessage: "Image service returned invalid base64 image data."}
	}

	contentType := "image/png"
	metadata := strings.TrimPrefix(prefix, "data:")
	if mediaType := strings.TrimSpace(strings.Split(metadata, ";")[0]); mediaType != "" {
		contentType = mediaType
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return GeneratedImage{}, &ImageError{UserMessage: "Image service returned invalid base64 image data.", cause: err}
	}
	if len(decoded) == 0 {
		return GeneratedImage{}, &ImageError{UserMessage: "Image service returned an empty image."}
	}
	return GeneratedImage{Data: decoded, ContentType: contentType}, nil
}

// responseDetail collapses an error body into a single bounded line.
func responseDetail(body []byte) string {
	detail := ""
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		for _, key := range []string{"error", "message", "detail"} {
			if v := parsed.Get(key); v.Exists() {
				detail = v.String()
				break
			}
		}
		if detail == "" {
			detail = parsed.Raw
		}
	} else {
		detail = string(body)
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
