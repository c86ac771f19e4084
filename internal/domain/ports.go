package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// LLMGateway sends one prompt to a chat-completion provider and returns the raw
// assistant text. Provider quirks stay behind this interface.
type LLMGateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coords, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
