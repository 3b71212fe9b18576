// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the explicit settings value threaded through the
// pipeline's constructors and the externalized prompt templates. Nothing
// in the build loop reads ambient process state: the CLI resolves the
// environment once, here, and passes the result down.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for the build loop. The fallback Python version is what the
// deterministic repair pins when a build-toolchain failure is detected;
// the baseline is used when nothing at all could be inferred.
const (
	DefaultMaxRetries      = 5
	DefaultPythonBaseline  = "3.11"
	FallbackPythonVersion  = "3.10"
	DefaultCreateTimeout   = 10 * time.Minute
	DefaultRemoveTimeout   = 60 * time.Second
	DefaultListTimeout     = 30 * time.Second
	DefaultOracleTimeout   = 120 * time.Second
	DiagnosticStoreBytes   = 4000
	DiagnosticExcerptBytes = 300
	ManifestExcerptBytes   = 3000
	GenerativeScanBytes    = 6000
	MaxSourceFileBytes     = 500 * 1024
	VersionScanFileLimit   = 500
)

// Provider names accepted by Settings.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Settings configures one build. It is constructed once (normally by
// the CLI) and passed explicitly; see the design note about keeping the
// loop testable without environment mutation.
type Settings struct {
	// Provider selects the oracle backend: "openai" or "ollama".
	Provider string

	// OpenAIAPIKey authenticates against the OpenAI-compatible endpoint.
	// Required when Provider is "openai".
	OpenAIAPIKey string

	// OpenAIModel overrides the default model name.
	OpenAIModel string

	// OllamaBaseURL points at a local Ollama server.
	OllamaBaseURL string

	// OllamaModel names the Ollama model to use.
	OllamaModel string

	// MaxRetries is the retry ceiling for the repair loop. Always >= 1.
	MaxRetries int

	// CreateTimeout bounds one materializer create invocation.
	CreateTimeout time.Duration

	// OracleTimeout bounds one oracle round-trip.
	OracleTimeout time.Duration
}

// FromEnv builds Settings from the process environment, applying
// defaults. It never fails: missing credentials surface later, when the
// selected provider is actually constructed.
func FromEnv() Settings {
	s := Settings{
		Provider:      envOr("ENVFORGE_PROVIDER", ProviderOpenAI),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		OllamaBaseURL: envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   os.Getenv("OLLAMA_MODEL"),
		MaxRetries:    DefaultMaxRetries,
		CreateTimeout: DefaultCreateTimeout,
		OracleTimeout: DefaultOracleTimeout,
	}
	if v := os.Getenv("ENVFORGE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.MaxRetries = n
		}
	}
	return s
}

// Validate checks that the settings can drive a build.
func (s Settings) Validate() error {
	if s.MaxRetries < 1 {
		return fmt.Errorf("config: max retries must be >= 1, got %d", s.MaxRetries)
	}
	switch s.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("config: unsupported provider %q (valid: %s, %s)",
			s.Provider, ProviderOpenAI, ProviderOllama)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
