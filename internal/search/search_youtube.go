package search

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

type youtubeVideosProvider struct {
	client *httpClient
}

func init() {
	Register("youtube_videos", func(opts Options) (Provider, error) {
		return &youtubeVideosProvider{
			client: newHTTPClient(clientOptions{
				headers: map[string]string{
					"Accept-Language": "en-US,en;q=0.9",
					"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
				},
				proxy: opts.Proxy,
			}),
		}, nil
	})
}

func (p *youtubeVideosProvider) Name() string { return "youtube_videos" }

var ytInitialDataPattern = regexp.MustCompile(`(?s)ytInitialData\s*=\s*(\{.*?\});`)

// ytText reads YouTube's nested text objects (simpleText or runs).
func ytText(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	if simple := v.Get("simpleText"); simple.Exists() {
		return simple.String()
	}
	var b strings.Builder
	v.Get("runs").ForEach(func(_, run gjson.Result) bool {
		b.WriteString(run.Get("text").String())
		return true
	})
	return strings.TrimSpace(b.String())
}

// ytVideoRenderers walks the whole data tree collecting videoRenderer nodes.
func ytVideoRenderers(node gjson.Result, out *[]gjson.Result, max int) {
	if len(*out) >= max {
		return
	}
	if node.IsObject() {
		if vr := node.Get("videoRenderer"); vr.IsObject() {
			*out = append(*out, vr)
			if len(*out) >= max {
				return
			}
		}
	}
	if node.IsObject() || node.IsArray() {
		node.ForEach(func(_, child gjson.Result) bool {
			ytVideoRenderers(child, out, max)
			return len(*out) < max
		})
	}
}

func (p *youtubeVideosProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("search_query", query)

	body, err := p.client.get(ctx, "https://www.youtube.com/results", params, nil)
	if err != nil {
		return nil, err
	}

	m := ytInitialDataPattern.FindSubmatch(body)
	if m == nil {
		return nil, nil
	}
	data := gjson.ParseBytes(m[1])
	if !data.IsObject() {
		return nil, nil
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	var renderers []gjson.Result
	ytVideoRenderers(data, &renderers, limit)

	var results []Result
	for _, item := range renderers {
		videoID := item.Get("videoId").String()
		if videoID == "" {
			continue
		}

		title := ytText(item.Get("title"))
		description := ytText(item.Get("descriptionSnippet"))
		duration := ytText(item.Get("lengthText"))
		published := ytText(item.Get("publishedTimeText"))
		uploader := ytText(item.Get("ownerText"))
		views := ytText(item.Get("viewCountText"))
		thumbnail := item.Get("thumbnail.thumbnails.0.url").String()

		var parts []string
		if uploader != "" {
			parts = append(parts, "by "+uploader)
		}
		if duration != "" {
			parts = append(parts, "["+duration+"]")
		}
		if published != "" {
			parts = append(parts, "("+published+")")
		}
		if views != "" {
			parts = append(parts, "- "+views)
		}
		if description != "" {
			parts = append(parts, "| "+description)
		}

		results = append(results, Result{
			Title:        title,
			URL:          "https://www.youtube.com/watch?v=" + videoID,
			Snippet:      strings.Join(parts, " "),
			Source:       "YouTube",
			ThumbnailURL: thumbnail,
		})
	}

	return results, nil
}
