package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"crowdcount/internal/adapters/observability"
)

var ErrEmptyResponse = errors.New("llm: empty response")

// requestShape is one way of phrasing the same chat request. Providers and
// models disagree on which optional parameters they accept.
type requestShape struct {
	name        string
	tokenField  string // max_completion_tokens | max_tokens
	temperature bool
	jsonMode    bool
}

// Tried in order; a shape is skipped once a parameter it sends was rejected.
var requestShapes = []requestShape{
	{name: "default", tokenField: paramMaxCompletionTokens, temperature: true, jsonMode: true},
	{name: "legacy_max_tokens", tokenField: paramMaxTokens, temperature: true, jsonMode: true},
	{name: "fixed_temperature", tokenField: paramMaxCompletionTokens, temperature: false, jsonMode: true},
	{name: "legacy_fixed_temperature", tokenField: paramMaxTokens, temperature: false, jsonMode: true},
	{name: "plain_text", tokenField: paramMaxCompletionTokens, temperature: false, jsonMode: false},
}

const (
	paramMaxCompletionTokens = "max_completion_tokens"
	paramMaxTokens           = "max_tokens"
	paramTemperature         = "temperature"
	paramResponseFormat      = "response_format"
)

// spellings found in provider errors and in go-openai's own request checks
var paramSpellings = map[string]string{
	"max_completion_tokens": paramMaxCompletionTokens,
	"MaxCompletionTokens":   paramMaxCompletionTokens,
	"max_tokens":            paramMaxTokens,
	"MaxTokens":             paramMaxTokens,
	"temperature":           paramTemperature,
	"response_format":       paramResponseFormat,
	"ResponseFormat":        paramResponseFormat,
}

func (s requestShape) params() []string {
	p := []string{s.tokenField}
	if s.temperature {
		p = append(p, paramTemperature)
	}
	if s.jsonMode {
		p = append(p, paramResponseFormat)
	}
	return p
}

type OpenAIGateway struct {
	cli         *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAI builds a gateway for any OpenAI-compatible chat completion API.
// An empty baseURL means api.openai.com.
func NewOpenAI(key, baseURL, model string, maxTokens int, temperature float32) *OpenAIGateway {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	// deadlines come from the caller's context
	cfg.HTTPClient = &http.Client{}
	if maxTokens <= 0 {
		maxTokens = 800
	}
	return &OpenAIGateway{cli: openai.NewClientWithConfig(cfg), model: model, maxTokens: maxTokens, temperature: temperature}
}

func (g *OpenAIGateway) Name() string { return "openai:" + g.model }

func (g *OpenAIGateway) Complete(ctx context.Context, prompt string) (string, error) {
	rejected := map[string]bool{}
	var lastErr error
	for _, shape := range requestShapes {
		if usesAny(shape, rejected) {
			continue
		}
		text, err := g.send(ctx, shape, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		param, ok := rejectedParam(err)
		if !ok {
			return "", err
		}
		log.Debug().Str("shape", shape.name).Str("param", param).Msg("provider rejected parameter; trying next request shape")
		rejected[param] = true
	}
	if lastErr == nil {
		lastErr = errors.New("llm: no compatible request shape")
	}
	return "", fmt.Errorf("openai: all request shapes rejected: %w", lastErr)
}

func (g *OpenAIGateway) send(ctx context.Context, shape requestShape, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a careful crowd-size estimator. You answer with a single JSON object."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if shape.tokenField == paramMaxTokens {
		req.MaxTokens = g.maxTokens
	} else {
		req.MaxCompletionTokens = g.maxTokens
	}
	if shape.temperature {
		req.Temperature = g.temperature
	}
	if shape.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := g.cli.CreateChatCompletion(ctx, req)
	observability.ObserveExternal("openai", "chat.completions", statusOf(err), time.Since(start))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	log.Debug().
		Str("shape", shape.name).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("llm completion ok")
	return resp.Choices[0].Message.Content, nil
}

func usesAny(s requestShape, rejected map[string]bool) bool {
	for _, p := range s.params() {
		if rejected[p] {
			return true
		}
	}
	return false
}

// rejectedParam reports which request parameter a 400 (or a client-side
// request check) complained about.
func rejectedParam(err error) (string, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode != http.StatusBadRequest {
			return "", false
		}
		if apiErr.Param != nil {
			if p, ok := paramSpellings[*apiErr.Param]; ok {
				return p, true
			}
		}
		return firstParamIn(apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", false
	}
	return firstParamIn(err.Error())
}

// firstParamIn returns the earliest known parameter named in msg. Messages like
// "'max_tokens' is not supported, use 'max_completion_tokens'" name the
// rejected one first.
func firstParamIn(msg string) (string, bool) {
	best, at := "", -1
	for spelling, canonical := range paramSpellings {
		if i := strings.Index(msg, spelling); i >= 0 && (at < 0 || i < at) {
			best, at = canonical, i
		}
	}
	return best, at >= 0
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
