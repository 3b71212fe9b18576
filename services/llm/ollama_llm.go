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
// Ollama Wire Types
// =============================================================================

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OllamaClient implements Client against a local Ollama server's
// /api/chat endpoint using raw net/http.
//
// Thread Safety: OllamaClient is safe for concurrent use.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient creates an OllamaClient.
//
// Inputs:
//   - baseURL: Server base URL (e.g. "http://localhost:11434"). Must not
//     be empty.
//   - model: Model name. Must not be empty; Ollama has no account-level
//     default.
//   - timeout: Per-request wall clock bound.
func NewOllamaClient(baseURL, model string, timeout time.Duration) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama: base URL is missing (OLLAMA_BASE_URL)")
	}
	if model == "" {
		return nil, fmt.Errorf("ollama: model is missing (OLLAMA_MODEL)")
	}
	slog.Info("Initializing Ollama oracle client", "base_url", baseURL, "model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
	}, nil
}

// Generate implements Client.Generate.
func (o *OllamaClient) Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error) {
	messages := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}
	return o.Chat(ctx, messages, params)
}

// Chat implements Client.Chat using the non-streaming /api/chat API.
func (o *OllamaClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	model := o.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	ctx, span := otel.Tracer(llmTracerName).Start(ctx, "llm.OllamaClient.Chat",
		oteltrace.WithAttributes(
			attribute.String("provider", "ollama"),
			attribute.String("model", model),
			attribute.Int("message_count", len(messages)),
		),
	)
	defer span.End()

	wire := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	var opts *ollamaOptions
	if params.Temperature != nil || params.MaxTokens != nil {
		opts = &ollamaOptions{Temperature: params.Temperature, NumPredict: params.MaxTokens}
	}

	payload, err := json.Marshal(ollamaRequest{
		Model:    model,
		Messages: wire,
		Stream:   false,
		Options:  opts,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ollama: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ollama: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("ollama: decoding response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama: API error: %s", parsed.Error)
	}
	if strings.TrimSpace(parsed.Message.Content) == "" {
		emptyErr := &EmptyResponseError{
			Duration:     time.Since(start),
			MessageCount: len(messages),
			Model:        model,
		}
		span.RecordError(emptyErr)
		span.SetStatus(codes.Error, emptyErr.Error())
		return "", emptyErr
	}

	slog.Debug("Ollama completion received",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds())

	return parsed.Message.Content, nil
}
