package channel

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
)

// Route is one webhook endpoint a channel wants mounted on the gateway's
// HTTP server.
type Route struct {
	Method  string
	Path    string
	Handler app.HandlerFunc
}

// Ack is the synchronous webhook acknowledgement. Classification happens
// before the HTTP response: the handler returns the status/reason pair and
// the webhook echoes it as JSON, while slow work runs in the background.
type Ack struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

const (
	AckIgnored  = "ignored"
	AckAccepted = "accepted"
)

func Ignored(reason string) Ack {
	return Ack{Status: AckIgnored, Reason: reason}
}

func Accepted(reason string) Ack {
	return Ack{Status: AckAccepted, Reason: reason}
}

// Channel defines a runtime adapter between the bot and a chat platform.
// Transports are webhook-driven: each channel exposes the routes it needs
// and invokes the registered handler for every normalized inbound message.
type Channel interface {
	// ID returns the unique configured channel identifier.
	ID() string

	// Type returns the channel provider type used for routing.
	Type() Type

	// Routes returns the webhook routes to mount on the gateway server.
	Routes() []Route

	// SendMessage sends text content to the target chat.
	// chatID is provider-specific and is passed as a string for portability.
	SendMessage(ctx context.Context, chatID string, content string) error

	// SendImage sends image bytes with an optional caption to the target chat.
	SendImage(ctx context.Context, chatID string, data []byte, contentType string, caption string) error

	// SendChatAction sends a transient user-visible activity state
	// (for example "typing") to the target chat.
	// Implementations that do not support this should return ErrUnsupportedOperation.
	SendChatAction(ctx context.Context, chatID string, action ChatAction) error

	// RegisterMessageHandler registers the inbound message callback.
	// The handler is invoked synchronously for each incoming normalized
	// Message and returns the webhook acknowledgement; anything slow is
	// deferred to background work before the handler returns.
	RegisterMessageHandler(handler func(ctx context.Context, msg *Message) (Ack, error)) error
}
