package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/retry"
)

// AnthropicGenerator produces content through the Anthropic Messages API.
type AnthropicGenerator struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// AnthropicConfig holds configuration for creating an Anthropic generator.
type AnthropicConfig struct {
	Model  string
	APIKey string
}

// NewAnthropicGenerator creates a generator backed by the Anthropic API.
func NewAnthropicGenerator(cfg *AnthropicConfig, logger *zap.Logger) (*AnthropicGenerator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	return &AnthropicGenerator{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.Named("generation-anthropic"),
	}, nil
}

var _ Generator = (*AnthropicGenerator)(nil)

// Generate implements Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	system, user := buildPrompt(req)

	start := time.Now()
	resp, err := retry.DoWithResult(ctx, nil, func() (anthropic.MessagesResponse, error) {
		return g.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:     anthropic.Model(g.model),
			System:    system,
			MaxTokens: 1024,
			Messages: []anthropic.Message{
				{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
					{Type: "text", Text: &user},
				}},
			},
		})
	})
	if err != nil {
		g.logger.Error("Generation request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	var body string
	for _, block := range resp.Content {
		if block.Text != nil {
			body += *block.Text
		}
	}
	if body == "" {
		return nil, fmt.Errorf("empty response from provider")
	}

	g.logger.Info("Generation completed",
		zap.String("model", g.model),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Body:     body,
		Provider: g.Name(),
		Model:    g.model,
	}, nil
}

// Name implements Generator.
func (g *AnthropicGenerator) Name() string { return "anthropic" }
