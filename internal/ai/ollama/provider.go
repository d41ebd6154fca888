package ollama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kiranshivaraju/issuehound/internal/ai/prompt"
	"github.com/kiranshivaraju/issuehound/internal/config"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// Provider implements models.AIProvider against a local Ollama daemon.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{},
	}
}

func (p *Provider) Name() string { return "ollama" }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (p *Provider) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	body, err := json.Marshal(generateRequest{
		Model:  p.model,
		Prompt: prompt.BuildAnalysis(req),
		Stream: false,
	})
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.AnalysisResult{}, models.ErrInferenceTimeout
		}
		return models.AnalysisResult{}, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.AnalysisResult{}, fmt.Errorf("%w: status %d: %s", models.ErrProviderUnavailable, resp.StatusCode, snippet)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
	}

	result, err := prompt.ParseReply(gr.Response)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	result.Model = p.model
	return result, nil
}

var _ models.AIProvider = (*Provider)(nil)
