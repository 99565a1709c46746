// Package llm provides the reasoning-step clients used to decompose queries
// and write executive summaries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/config"
)

// DefaultMaxTokens caps completion length when a request does not set one.
const DefaultMaxTokens = 2048

// ErrEmptyCompletion is returned when the provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int64
}

// Completer produces text for a single-turn prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// NewFromConfig builds the completer selected by cfg.Provider, paced by
// cfg.RequestsPerMinute. It returns nil, nil for the "none" provider.
func NewFromConfig(cfg config.LLMConfig) (Completer, error) {
	var c Completer
	switch strings.ToLower(cfg.Provider) {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderAnthropic:
		client, err := NewAnthropicClient(AnthropicConfig{
			Model:         cfg.Model,
			APIKey:        cfg.APIKey,
			UseAWSBedrock: cfg.UseBedrock,
			AWSRegion:     cfg.AWSRegion,
			AWSProfile:    cfg.AWSProfile,
		})
		if err != nil {
			return nil, err
		}
		c = client
	case config.ProviderOpenAI:
		client, err := NewOpenAIClient(OpenAIConfig{
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		c = client
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return NewRateLimited(c, cfg.RequestsPerMinute), nil
}

func maxTokens(req Request) int64 {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}

// UsageOf returns the token usage recorded by c, looking through wrappers.
// It reports false for completers that do not track usage.
func UsageOf(c Completer) (*Usage, bool) {
	for c != nil {
		switch v := c.(type) {
		case interface{ Usage() *Usage }:
			return v.Usage(), true
		case interface{ Unwrap() Completer }:
			c = v.Unwrap()
		default:
			return nil, false
		}
	}
	return nil, false
}
