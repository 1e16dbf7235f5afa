package search

import (
	"context"
)

const defaultLimit = 10

// Result is a single search hit from any provider.
type Result struct {
	Title   string
	URL     string
	Snippet string
	Source  string
	Date    string // ISO date when the provider knows it, otherwise empty
	// ImageURL is set by image-capable providers; it points at the raw image
	// while URL may point at the hosting page.
	ImageURL string
	// ThumbnailURL is set by video providers for numbered-selection replies.
	ThumbnailURL string
}

// Provider is the interface that search backends implement.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Options carries the cross-provider knobs a factory may need.
type Options struct {
	// Proxy is an optional proxy URL applied to the provider's HTTP client.
	Proxy string
	// APIKey is used by keyed providers (brave, weather).
	APIKey string
	// Units selects metric or imperial output for the weather provider.
	Units string
	// SafeSearch is "on", "moderate", or "off"; providers that support
	// filtering map it onto their own parameter.
	SafeSearch string
}
