// Package intent implements the Intent Extractor (§4.11): an optional call
// to an Azure OpenAI chat-completions deployment that proposes values for
// request fields the caller left blank, parsed from free-text chat content.
//
// Grounded on tools/si/openai_cmd.go's direct net/http POST-and-decode
// pattern against a provider's chat API — the teacher never pulls in an LLM
// client SDK for this, it rolls a thin HTTP caller against the
// chat-completions shape, and this is the one LLM call site in the repo so
// it keeps that same choice rather than introducing anthropic-sdk-go or
// langchaingo.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deployforge/internal/config"
)

const apiVersion = "2024-02-15-preview"

const systemPrompt = `You extract structured deployment parameters from a user's free-text request.
Respond with a single JSON object only, no prose, using a subset of these keys when the
text implies a value: action (deploy|redeploy|scale|decommission), deployment_mode
(local|cloud-local|cloud-hosted), github_repo_url, target_namespace, instance_name,
instance_id, app_subdomain_label, replicas. Omit any key you cannot confidently infer.`

// Extractor calls the configured Azure OpenAI deployment to fill in
// request fields from free-text. A nil *Extractor is valid and Extract on
// it always returns (nil, nil) — callers don't need a separate enabled
// check.
type Extractor struct {
	endpoint   string
	apiKey     string
	deployment string
	client     *http.Client
}

// New returns an Extractor if cfg carries Azure OpenAI configuration, or
// nil otherwise (§4.11: "Not required for machine-generated requests").
func New(cfg config.Config) *Extractor {
	if !cfg.IntentExtraction {
		return nil
	}
	return &Extractor{
		endpoint:   strings.TrimRight(cfg.AzureOpenAIEndpoint, "/"),
		apiKey:     cfg.AzureOpenAIAPIKey,
		deployment: cfg.AzureOpenAIDeploy,
		client:     &http.Client{Timeout: 20 * time.Second},
	}
}

type chatCompletionRequest struct {
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Temperature    float64        `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Extract proposes field values from userText. Per §4.11, failure here is
// non-fatal: the caller degrades to "ask the user" rather than failing the
// pipeline, so Extract returns a nil map alongside a non-nil error and lets
// the caller decide to ignore it.
func (e *Extractor) Extract(ctx context.Context, userText string) (map[string]any, error) {
	if e == nil || strings.TrimSpace(userText) == "" {
		return nil, nil
	}

	body := chatCompletionRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
		Temperature:    0,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("intent: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", e.endpoint, e.deployment, apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("intent: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("intent: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("intent: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("intent: azure openai returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("intent: decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("intent: azure openai error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("intent: azure openai returned no choices")
	}

	var fields map[string]any
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, fmt.Errorf("intent: model reply was not valid json: %w", err)
	}
	return fields, nil
}

// Merge applies proposed onto dst, a JSON-tagged request-shaped map,
// without overwriting any key dst already holds a non-empty value for
// (§4.11: "merged without overwriting fields the caller already supplied").
func Merge(dst map[string]any, proposed map[string]any) {
	for k, v := range proposed {
		existing, present := dst[k]
		if present && !isEmptyValue(existing) {
			continue
		}
		dst[k] = v
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case float64:
		return t == 0
	default:
		return false
	}
}
