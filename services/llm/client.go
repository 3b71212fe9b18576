// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the generative oracle clients. The rest of the
// pipeline only sees the Client interface; the concrete clients talk to
// OpenAI-compatible or Ollama endpoints over raw net/http, without SDKs.
//
// The oracle is an unreliable external collaborator: every call may fail
// with a network, timeout or malformed-output error, and callers must
// route such failures to their deterministic fallbacks instead of
// crashing.
package llm

import (
	"context"
	"fmt"
	"time"
)

const llmTracerName = "github.com/AleutianAI/envforge/services/llm"

// Message is one turn of a conversation sent to the oracle.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams tunes a single generation request. Nil pointer
// fields mean "use the provider default".
type GenerationParams struct {
	Temperature   *float32
	MaxTokens     *int
	ModelOverride string
}

// Client is the narrow oracle contract. One prompt in, free-form text
// out; no internal retries (a failure is reported upward immediately).
type Client interface {
	// Generate sends a single user prompt with the given system persona.
	Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error)

	// Chat sends a full conversation.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// EmptyResponseError indicates the provider returned a well-formed but
// empty completion.
type EmptyResponseError struct {
	Duration     time.Duration
	MessageCount int
	Model        string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("llm: model %s returned an empty response after %v (%d messages)",
		e.Model, e.Duration, e.MessageCount)
}

// Temp returns a pointer to a float32 temperature value.
func Temp(v float32) *float32 { return &v }

// Tokens returns a pointer to a max-token count.
func Tokens(n int) *int { return &n }
