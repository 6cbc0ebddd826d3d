package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/config"
)

var (
	_ domain.LLMProvider   = (*OllamaProvider)(nil)
	_ domain.HealthChecker = (*OllamaProvider)(nil)
)

// Default Ollama timeouts: short connect (local), long response (model loading).
const (
	ollamaDefaultConnTimeout = 5 * time.Second
	ollamaDefaultRespTimeout = 300 * time.Second
)

// OllamaProvider talks to a local Ollama server. Chat goes through Ollama's
// OpenAI-compatible /v1 endpoint; model listing and health use the native API.
type OllamaProvider struct {
	inner   *OpenAIProvider
	baseURL string // native API base, without /v1
	client  *http.Client
	logger  *slog.Logger
}

// OllamaModel describes a locally available Ollama model.
type OllamaModel struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

func NewOllamaProvider(cfg config.ProviderConfig, logger *slog.Logger) *OllamaProvider {
	if logger == nil {
		logger = slog.Default()
	}
	ollamaCfg := cfg
	if ollamaCfg.ConnTimeout == 0 {
		ollamaCfg.ConnTimeout = ollamaDefaultConnTimeout
	}
	if ollamaCfg.RespTimeout == 0 {
		ollamaCfg.RespTimeout = ollamaDefaultRespTimeout
	}
	client := NewHTTPClient(ollamaCfg)

	baseURL := strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		inner: &OpenAIProvider{
			name:    cfg.Name,
			model:   cfg.Model,
			baseURL: baseURL + "/v1",
			client:  client,
			logger:  logger,
		},
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *OllamaProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *OllamaProvider) Name() string { return p.inner.Name() }

// ListModels returns the locally available Ollama models.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]OllamaModel, error) {
	body, err := doJSONRequest(ctx, p.client, http.MethodGet, p.baseURL+"/api/tags", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Models []OllamaModel `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp.Models, nil
}

// IsHealthy checks if the Ollama server is reachable.
func (p *OllamaProvider) IsHealthy(ctx context.Context) bool {
	_, err := doJSONRequest(ctx, p.client, http.MethodGet, p.baseURL+"/", nil, nil)
	return err == nil
}

// Warmup asks Ollama to load the configured model so the first agent
// request does not pay the load latency.
func (p *OllamaProvider) Warmup(ctx context.Context) error {
	if !p.IsHealthy(ctx) {
		return fmt.Errorf("%w: ollama server not reachable at %s", domain.ErrProviderUnavailable, p.baseURL)
	}

	p.logger.Info("warming up ollama model", "model", p.inner.model, "base_url", p.baseURL)

	payload, err := json.Marshal(map[string]string{"model": p.inner.model, "keep_alive": "5m"})
	if err != nil {
		return fmt.Errorf("marshal warmup request: %w", err)
	}
	if _, err := doJSONRequest(ctx, p.client, http.MethodPost, p.baseURL+"/api/generate", payload, nil); err != nil {
		return fmt.Errorf("warmup %s: %w", p.inner.model, err)
	}

	p.logger.Info("ollama model warmed up", "model", p.inner.model)
	return nil
}
