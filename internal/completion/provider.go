package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Config controls provider construction.
type Config struct {
	Mode    string
	APIKey  string
	BaseURL string
}

func NewProvider(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
		}
		return &keyRoutedProvider{
			fallback: NewMockProvider(),
			keyed:    NewOpenAIProvider("", cfg.BaseURL),
		}, nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("openai api key is required for openai mode")
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider mode %q", cfg.Mode)
	}
}

// keyRoutedProvider sends requests that carry their own credential to the
// real provider and answers the rest locally.
type keyRoutedProvider struct {
	fallback Provider
	keyed    Provider
}

func (p *keyRoutedProvider) Name() string { return "auto" }

func (p *keyRoutedProvider) StreamChat(ctx context.Context, req Request) (Stream, error) {
	if strings.TrimSpace(req.APIKey) != "" {
		return p.keyed.StreamChat(ctx, req)
	}
	return p.fallback.StreamChat(ctx, req)
}
