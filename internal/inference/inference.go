// Package inference talks to the generative text and image model.
package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"drinkwise/api/internal/apperr"
)

type Options struct {
	Temperature     float64
	MaxOutputTokens int
}

// Client is implemented by every inference backend.
type Client interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	GenerateImage(ctx context.Context, prompt string, image []byte, mimeType string, opts Options) (string, error)
}

type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	http  *resty.Client
	key   string
	model string
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Gemini{http: client, key: cfg.APIKey, model: cfg.Model}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *Gemini) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return g.generate(ctx, []part{{Text: prompt}}, opts)
}

func (g *Gemini) GenerateImage(ctx context.Context, prompt string, image []byte, mimeType string, opts Options) (string, error) {
	if len(image) == 0 {
		return "", apperr.New(apperr.InvalidArgument, "image is empty")
	}
	return g.generate(ctx, []part{
		{Text: prompt},
		{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
	}, opts)
}

func (g *Gemini) generate(ctx context.Context, parts []part, opts Options) (string, error) {
	if g.key == "" {
		return "", apperr.New(apperr.DependencyUnavailable, "inference is not configured")
	}
	var out generateResponse
	var failure errorResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("key", g.key).
		SetBody(generateRequest{
			Contents: []content{{Parts: parts}},
			GenerationConfig: generationConfig{
				Temperature:     opts.Temperature,
				MaxOutputTokens: opts.MaxOutputTokens,
			},
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/v1beta/models/" + g.model + ":generateContent")
	if err != nil {
		return "", apperr.Wrap(apperr.DependencyUnavailable, "inference request failed", err)
	}
	if resp.IsError() {
		message := failure.Error.Message
		if message == "" {
			message = resp.Status()
		}
		return "", apperr.WithDetails(apperr.DependencyUnavailable, "inference request rejected",
			map[string]any{"status": resp.StatusCode(), "message": message})
	}

	for _, candidate := range out.Candidates {
		for _, p := range candidate.Content.Parts {
			if text := strings.TrimSpace(p.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", apperr.New(apperr.DependencyUnavailable, fmt.Sprintf("inference returned no text for %s", g.model))
}

// Disabled is used when no backend is configured. Every call fails so that
// callers take their fallback path.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, Options) (string, error) {
	return "", apperr.New(apperr.DependencyUnavailable, "inference is not configured")
}

func (Disabled) GenerateImage(context.Context, string, []byte, string, Options) (string, error) {
	return "", apperr.New(apperr.DependencyUnavailable, "inference is not configured")
}
