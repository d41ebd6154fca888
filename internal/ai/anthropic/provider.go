package anthropic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kiranshivaraju/issuehound/internal/ai/prompt"
	"github.com/kiranshivaraju/issuehound/internal/config"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	client *anthropic.Client
	model  string
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Provider{
		client: &client,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 2000,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.BuildAnalysis(req))),
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.AnalysisResult{}, models.ErrInferenceTimeout
		}
		return models.AnalysisResult{}, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	result, err := prompt.ParseReply(text)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	result.Model = p.model
	result.CreatedAt = time.Now().UTC()
	return result, nil
}

var _ models.AIProvider = (*Provider)(nil)
