package anthropic

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

const (
	apiVersion        = "2023-06-01"
	researchMaxTokens = 8192
	auditMaxTokens    = 4096
)

// Provider implements models.PolicyProvider using the Anthropic messages API.
type Provider struct {
	cfg    config.AnthropicConfig
	client *http.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) ResearchPolicy(ctx context.Context, url string) (models.PolicyResearch, error) {
	text, err := p.message(ctx, messagesRequest{
		Model:     p.cfg.Model,
		MaxTokens: researchMaxTokens,
		Messages: []message{
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
	text, err := p.message(ctx, messagesRequest{
		Model:       p.cfg.Model,
		MaxTokens:   auditMaxTokens,
		System:      prompt.AuditSystem,
		Temperature: &temp,
		Messages: []message{
			{Role: "user", Content: prompt.AuditUser(termsText)},
		},
	})
	if err != nil {
		return models.PolicyAudit{}, err
	}
	return prompt.ParseAudit(text)
}

func (p *Provider) message(ctx context.Context, req messagesRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding messages request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/messages", p.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: anthropic status %d", models.ErrProviderUnavailable, resp.StatusCode)
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return "", fmt.Errorf("%w: decoding messages response: %v", models.ErrInvalidResponse, err)
	}

	for _, block := range msgResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: messages response has no text content", models.ErrInvalidResponse)
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

// --- Anthropic request/response types ---

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

var _ models.PolicyProvider = (*Provider)(nil)
