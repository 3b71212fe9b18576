// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synth turns extracted dependency facts into an environment
// specification. The oracle drafts the manifest; deterministic
// post-processing enforces the invariants the oracle cannot be trusted
// with (valid YAML, an exact python pin, no markdown fences).
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/envforge/services/envspec"
	"github.com/AleutianAI/envforge/services/envspec/config"
	"github.com/AleutianAI/envforge/services/envspec/scan"
	"github.com/AleutianAI/envforge/services/llm"
)

const synthTracerName = "github.com/AleutianAI/envforge/services/envspec/synth"

var pythonPinRe = regexp.MustCompile(`(?m)^\s*-\s*python\s*=`)

// Builder synthesizes an environment specification from facts.
//
// Thread Safety: Builder is safe for concurrent use.
type Builder struct {
	oracle  llm.Client
	prompts *config.Prompts
}

// NewBuilder creates a Builder backed by the given oracle.
func NewBuilder(oracle llm.Client) (*Builder, error) {
	if oracle == nil {
		return nil, fmt.Errorf("synth: builder requires an oracle client")
	}
	prompts, err := config.LoadPrompts()
	if err != nil {
		return nil, err
	}
	return &Builder{oracle: oracle, prompts: prompts}, nil
}

// Synthesize produces the initial specification.
//
// Description:
//
//	The target Python version is the maximum of the user override and
//	the inferred minimum, defaulting to the modern baseline when nothing
//	was inferred. The oracle's draft is cleaned of markdown fences,
//	structurally validated, and given an exact python pin if the oracle
//	omitted one.
//
// Inputs:
//   - ctx: Cancels the oracle call.
//   - facts: Extracted dependency facts.
//   - projectName: Raw project name; sanitized for the env name.
//   - versionOverride: User-supplied Python version, "" for none.
//
// Outputs:
//   - envspec.Specification: The validated initial manifest.
//   - error: Non-nil when the oracle fails or returns unusable YAML.
func (b *Builder) Synthesize(ctx context.Context, facts envspec.DependencyFacts, projectName, versionOverride string) (envspec.Specification, error) {
	pythonVersion := ChoosePythonVersion(versionOverride, facts.PythonMin)

	ctx, span := otel.Tracer(synthTracerName).Start(ctx, "synth.Builder.Synthesize",
		oteltrace.WithAttributes(
			attribute.String("project", projectName),
			attribute.String("python_version", pythonVersion),
			attribute.Bool("gpu", facts.GPURequired),
			attribute.Int("packages", len(facts.Packages)),
		),
	)
	defer span.End()

	gpu := "No"
	if facts.GPURequired {
		gpu = "Yes"
	}
	prompt, err := b.prompts.Synthesis.Render(map[string]string{
		"ProjectName":   projectName,
		"PythonVersion": pythonVersion,
		"GPU":           gpu,
		"Facts":         FormatFacts(facts),
	})
	if err != nil {
		return envspec.Specification{}, err
	}

	raw, err := b.oracle.Generate(ctx, b.prompts.Synthesis.System, prompt,
		llm.GenerationParams{Temperature: llm.Temp(0.1)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return envspec.Specification{}, fmt.Errorf("synth: oracle synthesis failed: %w", err)
	}

	text := EnsurePythonPin(CleanMarkdown(raw), pythonVersion)
	if err := ValidateSpec(text); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return envspec.Specification{}, err
	}

	slog.Info("Specification synthesized",
		"project", projectName,
		"python_version", pythonVersion,
		"bytes", len(text))
	return envspec.Specification{Text: text}, nil
}

// ChoosePythonVersion resolves the target Python version: the maximum
// of the override and the inferred minimum under dotted ordering, with
// the modern baseline filling in when nothing was inferred.
func ChoosePythonVersion(override, inferred string) string {
	if inferred == "" {
		inferred = config.DefaultPythonBaseline
	}
	if v := scan.MaxVersion(override, inferred); v != "" {
		return v
	}
	return config.DefaultPythonBaseline
}

// FormatFacts renders facts as the plain-text block the synthesis
// prompt embeds.
func FormatFacts(facts envspec.DependencyFacts) string {
	var b strings.Builder
	if len(facts.Packages) == 0 {
		b.WriteString("(no third-party imports detected)\n")
	}
	for _, pkg := range facts.Packages {
		if hint, ok := facts.VersionHints[pkg]; ok {
			fmt.Fprintf(&b, "- %s%s\n", pkg, hint)
		} else {
			fmt.Fprintf(&b, "- %s\n", pkg)
		}
	}
	for _, excerpt := range facts.ManifestExcerpts {
		b.WriteString("\n")
		b.WriteString(excerpt)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// CleanMarkdown strips a surrounding markdown code fence that models
// add despite instructions.
func CleanMarkdown(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(lines[len(lines)-1], "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// EnsurePythonPin guarantees a "- python=<version>" entry.
//
// Description:
//
//	An existing python entry is left untouched (rewriting risks
//	corrupting otherwise valid YAML). Otherwise the pin is inserted
//	directly under the dependencies key, or a minimal dependencies
//	section is appended as a last resort.
func EnsurePythonPin(text, pythonVersion string) string {
	if pythonPinRe.MatchString(text) {
		return text
	}

	lines := strings.Split(text, "\n")
	var out []string
	inserted := false
	for _, line := range lines {
		out = append(out, line)
		if !inserted && strings.TrimSpace(line) == "dependencies:" {
			out = append(out, fmt.Sprintf("  - python=%s", pythonVersion))
			inserted = true
		}
	}
	if !inserted {
		out = append(out, "dependencies:", fmt.Sprintf("  - python=%s", pythonVersion))
	}
	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}

// specShape is the minimal structure a usable environment manifest
// must have.
type specShape struct {
	Name         string `yaml:"name"`
	Channels     []any  `yaml:"channels"`
	Dependencies []any  `yaml:"dependencies"`
}

// ValidateSpec checks that the text is parseable YAML with a non-empty
// dependencies list.
func ValidateSpec(text string) error {
	var shape specShape
	if err := yaml.Unmarshal([]byte(text), &shape); err != nil {
		return fmt.Errorf("synth: generated specification is not valid YAML: %w", err)
	}
	if len(shape.Dependencies) == 0 {
		return fmt.Errorf("synth: generated specification has no dependencies section")
	}
	return nil
}
