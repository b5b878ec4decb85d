package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const openAIProviderName = "openai"

// OpenAIProvider streams chat completions from OpenAI or any compatible endpoint.
type OpenAIProvider struct {
	defaultKey string
	baseURL    string
	client     *openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	p := &OpenAIProvider{
		defaultKey: strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
	p.client = openai.NewClientWithConfig(p.configFor(p.defaultKey))
	return p
}

func (p *OpenAIProvider) Name() string { return openAIProviderName }

func (p *OpenAIProvider) StreamChat(ctx context.Context, req Request) (Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	stream, err := p.clientFor(req.APIKey).CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, toUpstreamError(err)
	}
	return &openAIStream{stream: stream}, nil
}

// clientFor returns a client bound to the given credential. Overrides get a
// client of their own; the shared default client is never reconfigured.
func (p *OpenAIProvider) clientFor(apiKey string) *openai.Client {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || apiKey == p.defaultKey {
		return p.client
	}
	return openai.NewClientWithConfig(p.configFor(apiKey))
}

func (p *OpenAIProvider) configFor(apiKey string) openai.ClientConfig {
	cfg := openai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	return cfg
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("openai stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		// Role-only and finish chunks carry no content.
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

func toUpstreamError(err error) error {
	out := &UpstreamError{
		Provider: openAIProviderName,
		Message:  err.Error(),
		Err:      err,
	}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.HTTPStatusCode
		out.Message = apiErr.Message
		if code, ok := apiErr.Code.(string); ok {
			out.Code = code
		} else if apiErr.Type != "" {
			out.Code = apiErr.Type
		}
	case errors.As(err, &reqErr):
		out.StatusCode = reqErr.HTTPStatusCode
		if reqErr.Err != nil {
			out.Message = reqErr.Err.Error()
		}
	}
	return out
}
