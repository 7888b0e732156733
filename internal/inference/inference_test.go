package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"drinkwise/api/internal/apperr"
)

func TestGeminiGenerateImage(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/test-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "secret" {
			t.Errorf("api key not sent")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"  {\"type\":\"Beer\"}  "}]}}]}`)
	}))
	defer server.Close()

	g := NewGemini(GeminiConfig{BaseURL: server.URL + "/", APIKey: "secret", Model: "test-model"})
	text, err := g.GenerateImage(context.Background(), "what drink?", []byte("img"), "image/png", Options{Temperature: 0.1, MaxOutputTokens: 50})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if text != `{"type":"Beer"}` {
		t.Fatalf("unexpected text %q", text)
	}
	if len(got.Contents) != 1 || len(got.Contents[0].Parts) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	inline := got.Contents[0].Parts[1].InlineData
	if inline == nil || inline.MimeType != "image/png" || inline.Data != "aW1n" {
		t.Fatalf("unexpected inline data %+v", inline)
	}
	if got.GenerationConfig.MaxOutputTokens != 50 {
		t.Fatalf("generation config not sent: %+v", got.GenerationConfig)
	}
}

func TestGeminiFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "rejected", status: http.StatusTooManyRequests, body: `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			g := NewGemini(GeminiConfig{BaseURL: server.URL, APIKey: "secret"})
			if _, err := g.Generate(context.Background(), "hi", Options{}); !errors.Is(err, apperr.DependencyUnavailable) {
				t.Fatalf("expected dependency unavailable, got %v", err)
			}
		})
	}
}

func TestGeminiWithoutKeyAndDisabled(t *testing.T) {
	g := NewGemini(GeminiConfig{BaseURL: "http://127.0.0.1:1"})
	if _, err := g.Generate(context.Background(), "hi", Options{}); !errors.Is(err, apperr.DependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if _, err := (Disabled{}).GenerateImage(context.Background(), "hi", []byte("x"), "image/png", Options{}); !errors.Is(err, apperr.DependencyUnavailable) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}
