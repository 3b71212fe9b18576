// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/envforge/services/envspec"
	"github.com/AleutianAI/envforge/services/envspec/config"
	"github.com/AleutianAI/envforge/services/llm"
)

// =============================================================================
// Generative Extraction Strategy
// =============================================================================

// GenerativeAnalyzer asks the oracle for dependency facts one file at a
// time, parsing a constrained line-prefix reply.
//
// Description:
//
//	Used as an opt-in supplement to static analysis for projects whose
//	dependencies hide behind dynamic imports or unusual build tooling.
//	Each file is truncated to a fixed budget before it is sent. A failed
//	oracle call skips the file; it never aborts extraction.
type GenerativeAnalyzer struct {
	oracle  llm.Client
	prompts *config.Prompts
}

// NewGenerativeAnalyzer creates a GenerativeAnalyzer.
func NewGenerativeAnalyzer(oracle llm.Client) (*GenerativeAnalyzer, error) {
	if oracle == nil {
		return nil, fmt.Errorf("scan: generative analyzer requires an oracle client")
	}
	prompts, err := config.LoadPrompts()
	if err != nil {
		return nil, err
	}
	return &GenerativeAnalyzer{oracle: oracle, prompts: prompts}, nil
}

// FileFacts are the oracle-reported facts for one file.
type FileFacts struct {
	Packages     []string
	VersionHints map[string]string
	GPU          bool
	PythonMin    string
}

// ScanFile sends one source file to the oracle and parses the reply.
//
// Outputs:
//   - FileFacts: Parsed facts; unknown reply lines are ignored.
//   - error: Non-nil when the oracle call itself fails.
func (g *GenerativeAnalyzer) ScanFile(ctx context.Context, fileName, content string) (FileFacts, error) {
	ctx, span := otel.Tracer(scanTracerName).Start(ctx, "scan.GenerativeAnalyzer.ScanFile",
		oteltrace.WithAttributes(attribute.String("file", fileName)),
	)
	defer span.End()

	prompt, err := g.prompts.Extraction.Render(map[string]string{
		"FileName": fileName,
		"Content":  envspec.Truncate(content, config.GenerativeScanBytes),
	})
	if err != nil {
		return FileFacts{}, err
	}

	reply, err := g.oracle.Generate(ctx, g.prompts.Extraction.System, prompt,
		llm.GenerationParams{Temperature: llm.Temp(0.0)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return FileFacts{}, fmt.Errorf("scan: oracle extraction for %s: %w", fileName, err)
	}

	facts := parseFactLines(reply)
	slog.Debug("Generative scan complete",
		"file", fileName,
		"packages", len(facts.Packages),
		"gpu", facts.GPU)
	return facts, nil
}

// parseFactLines parses the constrained IMPORT/VERSION_HINT/GPU/PYTHON
// reply format. Anything else the model says is dropped.
func parseFactLines(reply string) FileFacts {
	facts := FileFacts{VersionHints: map[string]string{}}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		prefix, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch prefix {
		case "IMPORT":
			name := strings.ToLower(value)
			if !IsStdlib(name) {
				facts.Packages = append(facts.Packages, name)
			}
		case "VERSION_HINT":
			if m := requirementRe.FindStringSubmatch(value); m != nil {
				facts.VersionHints[strings.ToLower(m[1])] = m[2] + m[3]
			}
		case "GPU":
			if strings.EqualFold(value, "yes") {
				facts.GPU = true
			}
		case "PYTHON":
			if validVersion(value) != "" {
				facts.PythonMin = MaxVersion(facts.PythonMin, value)
			}
		}
	}
	return facts
}
