package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/policyglass/policyglass/internal/ai/prompt"
	"github.com/policyglass/policyglass/internal/config"
	"github.com/policyglass/policyglass/pkg/models"
)

// Provider implements models.PolicyProvider using the OpenAI chat completions API.
// Research and audit calls may use different models; the audit call requests
// JSON output and runs at low temperature for stable scoring.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) ResearchPolicy(ctx context.Context, url string) (models.PolicyResearch, error) {
	text, err := p.complete(ctx, chatRequest{
		Model: p.cfg.ResearchModel,
		Messages: []chatMessage{
			{Role: "user", Content: prompt.Research(url)},
		},
	})
	if err != nil {
		return models.PolicyResearch{}, err
	}
	return prompt.ParseResearch(text)
}

func (p *Provider) AuditPolicy(ctx context.Context, termsText string) (models.PolicyAudit, error) {
	temp := 0.3
	text, err := p.complete(ctx, chatRequest{
		Model: p.cfg.AuditModel,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.AuditSystem},
			{Role: "user", Content: prompt.AuditUser(termsText)},
		},
		Temperature:    &temp,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return models.PolicyAudit{}, err
	}
	return prompt.ParseAudit(text)
}

func (p *Provider) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/chat/completions", p.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: openai status %d", models.ErrProviderUnavailable, resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decoding chat response: %v", models.ErrInvalidResponse, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat response has no choices", models.ErrInvalidResponse)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
}

// --- OpenAI request/response types ---

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var _ models.PolicyProvider = (*Provider)(nil)
