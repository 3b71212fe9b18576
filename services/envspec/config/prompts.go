// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Prompt Templates
// =============================================================================

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptTemplate is one oracle contract: a system persona plus a user
// template rendered with text/template.
type PromptTemplate struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Prompts holds the three oracle contracts. There is deliberately one
// template per contract: prompt variants are configuration, not code.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Prompts struct {
	Synthesis  PromptTemplate `yaml:"synthesis"`
	Repair     PromptTemplate `yaml:"repair"`
	Extraction PromptTemplate `yaml:"extraction"`
}

var (
	promptsOnce   sync.Once
	loadedPrompts *Prompts
	promptsErr    error
)

// LoadPrompts parses and validates the embedded prompt configuration.
// The result is cached; subsequent calls return the same value.
func LoadPrompts() (*Prompts, error) {
	promptsOnce.Do(func() {
		var p Prompts
		if err := yaml.Unmarshal(defaultPromptsYAML, &p); err != nil {
			promptsErr = fmt.Errorf("config: parsing embedded prompts: %w", err)
			return
		}
		if err := p.Validate(); err != nil {
			promptsErr = err
			return
		}
		loadedPrompts = &p
	})
	return loadedPrompts, promptsErr
}

// Validate ensures every contract has both parts.
func (p *Prompts) Validate() error {
	for name, t := range map[string]PromptTemplate{
		"synthesis":  p.Synthesis,
		"repair":     p.Repair,
		"extraction": p.Extraction,
	} {
		if t.System == "" || t.User == "" {
			return fmt.Errorf("config: prompt %q is missing system or user template", name)
		}
	}
	return nil
}

// Render executes the user template with the given data.
func (t PromptTemplate) Render(data any) (string, error) {
	tmpl, err := template.New("prompt").Parse(t.User)
	if err != nil {
		return "", fmt.Errorf("config: parsing prompt template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("config: rendering prompt template: %w", err)
	}
	return buf.String(), nil
}
