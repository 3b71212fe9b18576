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
	"fmt"

	"github.com/AleutianAI/envforge/services/envspec/config"
)

// NewClient creates the oracle client selected by the settings.
//
// Description:
//
//	Central creation point for oracle clients. Provider-specific
//	requirements (API key for OpenAI, model name for Ollama) are
//	enforced here so the pipeline fails before any scanning starts
//	rather than on the first oracle call.
//
// Inputs:
//   - s: Validated settings.
//
// Outputs:
//   - Client: The configured oracle client.
//   - error: Non-nil when the provider is unsupported or its
//     requirements are not met.
func NewClient(s config.Settings) (Client, error) {
	switch s.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(s.OpenAIAPIKey, s.OpenAIModel, s.OracleTimeout)
	case config.ProviderOllama:
		return NewOllamaClient(s.OllamaBaseURL, s.OllamaModel, s.OracleTimeout)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", s.Provider)
	}
}
