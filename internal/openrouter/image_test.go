package openrouter

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestImageClient(url string) *ImageClient {
	return NewImageClient(ImageConfig{
		APIKey:  "test-key",
		Model:   "google/gemini-2.5-flash-image",
		BaseURL: url,
		Timeout: 5 * time.Second,
	})
}

func TestImageGenerateFromDataURL(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	encoded := base64.StdEncoding.EncodeToString(png)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"images":[{"image_url":{"url":"data:image/png;base64,` + encoded + `"}}]}}]}`))
	}))
	defer srv.Close()

	images, err := newTestImageClient(srv.URL).GenerateImages(context.Background(), "a cat")
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	if images[0].ContentType != "image/png" {
		t.Fatalf("unexpected content type %q", images[0].ContentType)
	}
	if string(images[0].Data) != string(png) {
		t.Fatal("decoded bytes do not match")
	}
}

func TestImageGenerateFromRemoteURL(t *testing.T) {
	var imageURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"images":[{"image_url":{"url":"` + imageURL + `"}}]}}]}`))
	})
	mux.HandleFunc("/image.webp", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp; charset=binary")
		w.Write([]byte("webp-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	imageURL = srv.URL + "/image.webp"

	images, err := newTestImageClient(srv.URL).GenerateImages(context.Background(), "a dog")
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if len(images) != 1 || images[0].ContentType != "image/webp" {
		t.Fatalf("unexpected images: %+v", images)
	}
	if string(images[0].Data) != "webp-bytes" {
		t.Fatal("fetched bytes do not match")
	}
}

func TestImageGenerateEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"no images here"}}]}`))
	}))
	defer srv.Close()

	_, err := newTestImageClient(srv.URL).GenerateImages(context.Background(), "a cat")
	var imgErr *ImageError
	if !errors.As(err, &imgErr) {
		t.Fatalf("expected ImageError, got %v", err)
	}
	if imgErr.UserMessage != "Image service returned an empty image payload." {
		t.Fatalf("unexpected user message %q", imgErr.UserMessage)
	}
}

func TestImageGenerateAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestImageClient(srv.URL).GenerateImages(context.Background(), "a cat")
	var imgErr *ImageError
	if !errors.As(err, &imgErr) {
		t.Fatalf("expected ImageError, got %v", err)
	}
	if imgErr.UserMessage != "Image service authorization failed." {
		t.Fatalf("unexpected user message %q", imgErr.UserMessage)
	}
}

func TestDecodeDataURLRejectsMissingBase64Marker(t *testing.T) {
	_, err := decodeDataURL("data:image/png,rawdata")
	var imgErr *ImageError
	if !errors.As(err, &imgErr) {
		t.Fatalf("expected ImageError, got %v", err)
	}
	if imgErr.UserMessage != "Image service returned invalid base64 image data." {
		t.Fatalf("unexpected user message %q", imgErr.UserMessage)
	}
}
