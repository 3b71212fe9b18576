// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// =============================================================================
// OpenAI Wire Types
// =============================================================================

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel   = "gpt-4o-mini"
)

type openaiRequest struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	Temperature         *float32        `json:"temperature,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OpenAIClient implements Client for OpenAI-compatible endpoints using
// raw net/http.
//
// Description:
//
//	Uses the Chat Completions REST API directly without third-party SDKs.
//	Temperature defaults are left to the caller: synthesis uses a low
//	temperature, repair a slightly higher one.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewOpenAIClient creates an OpenAIClient.
//
// Inputs:
//   - apiKey: API key. Must not be empty.
//   - model: Model name; empty selects the default.
//   - timeout: Per-request wall clock bound.
//
// Outputs:
//   - *OpenAIClient: The configured client.
//   - error: Non-nil when apiKey is empty.
func NewOpenAIClient(apiKey, model string, timeout time.Duration) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is missing (OPENAI_API_KEY)")
	}
	if model == "" {
		model = defaultOpenAIModel
		slog.Debug("OPENAI_MODEL not set, using default", "model", model)
	}
	slog.Info("Initializing OpenAI oracle client", "model", model)
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultOpenAIBaseURL,
	}, nil
}

// NewOpenAIClientWithConfig creates an OpenAIClient with an explicit
// base URL. Useful for testing with httptest servers and for
// OpenAI-compatible gateways.
func NewOpenAIClientWithConfig(apiKey, model, baseURL string, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAIClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Generate implements Client.Generate.
func (o *OpenAIClient) Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	messages := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}
	return o.Chat(ctx, messages, params)
}

// Chat implements Client.Chat using the chat completions API.
//
// Outputs:
//   - string: The assistant's response text.
//   - error: Non-nil for transport errors, non-2xx statuses, API error
//     payloads, and empty completions (*EmptyResponseError).
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	model := o.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	ctx, span := otel.Tracer(llmTracerName).Start(ctx, "llm.OpenAIClient.Chat",
		oteltrace.WithAttributes(
			attribute.String("provider", "openai"),
			attribute.String("model", model),
			attribute.Int("message_count", len(messages)),
		),
	)
	defer span.End()

	wire := make([]openaiMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		switch role {
		case "system", "user", "assistant":
		default:
			role = "user"
		}
		wire = append(wire, openaiMessage{Role: role, Content: m.Content})
	}

	reqBody := openaiRequest{
		Model:               model,
		Messages:            wire,
		Temperature:         params.Temperature,
		MaxCompletionTokens: params.MaxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("openai: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("openai: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("openai: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var parsed openaiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("openai: decoding response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openai: API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		emptyErr := &EmptyResponseError{
			Duration:     time.Since(start),
			MessageCount: len(messages),
			Model:        model,
		}
		span.RecordError(emptyErr)
		span.SetStatus(codes.Error, emptyErr.Error())
		return "", emptyErr
	}

	slog.Debug("OpenAI completion received",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"finish_reason", parsed.Choices[0].FinishReason)

	return parsed.Choices[0].Message.Content, nil
}
