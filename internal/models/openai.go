package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/swarmd/internal/config"
)

// openAIBackend targets any server speaking the OpenAI completions API
// (vLLM, TGI, llama.cpp in OpenAI mode, OpenAI itself).
type openAIBackend struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

func newOpenAIBackend(cfg config.ModelConfig) *openAIBackend {
	timeout := time.Duration(cfg.Config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	apiKey, _ := cfg.Extra["api_key"].(string)
	return &openAIBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.ModelPath,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Load probes the models endpoint so a dead backend fails fast instead of on
// the first agent request.
func (b *openAIBackend) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	b.setHeaders(req)
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", b.baseURL, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe %s: status %d", b.baseURL, resp.StatusCode)
	}
	return nil
}

type openAICompletionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type openAICompletionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *openAIBackend) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(openAICompletionRequest{
		Model:       b.model,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	var out openAICompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("backend error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return out.Choices[0].Text, nil
}

func (b *openAIBackend) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}
