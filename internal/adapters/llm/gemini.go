package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"crowdcount/internal/adapters/observability"
)

// GeminiGateway is a thin wrapper around the official genai client.
type GeminiGateway struct {
	cli         *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// NewGemini builds a gateway for the Gemini API. An empty baseURL keeps the
// SDK's default endpoint.
func NewGemini(ctx context.Context, key, baseURL, model string, maxTokens int, temperature float32) (*GeminiGateway, error) {
	cc := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = 800
	}
	return &GeminiGateway{cli: cli, model: model, maxTokens: int32(maxTokens), temperature: temperature}, nil
}

func (g *GeminiGateway) Name() string { return "gemini:" + g.model }

// Complete requests application/json output; the reply still goes through
// response repair like any other provider's.
func (g *GeminiGateway) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.cli.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		MaxOutputTokens:  g.maxTokens,
		ResponseMIMEType: "application/json",
	})
	status := http.StatusOK
	if err != nil {
		status = 0
	}
	observability.ObserveExternal("gemini", "generateContent", status, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
