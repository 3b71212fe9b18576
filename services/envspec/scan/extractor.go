// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan extracts dependency facts from a located project:
// imports from Python sources and notebooks, declared dependencies and
// version constraints from manifests, a GPU heuristic, and a minimum
// Python version. Static analysis makes no external calls; the
// generative strategy is an opt-in supplement that consults the oracle
// per file.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/envforge/services/envspec"
	"github.com/AleutianAI/envforge/services/envspec/config"
)

const scanTracerName = "github.com/AleutianAI/envforge/services/envspec/scan"

// Extractor merges the static and (optional) generative strategies into
// one DependencyFacts value.
//
// Description:
//
//	Files are processed strictly sequentially in the order the filter
//	selected them (manifests first). Per-file failures are logged and
//	skipped; only the inability to read the project at all is an error.
//
// Thread Safety: Extractor is NOT safe for concurrent use (the static
// parser is stateful).
type Extractor struct {
	static     *StaticAnalyzer
	generative *GenerativeAnalyzer
}

// NewExtractor creates an Extractor. Pass a nil generative analyzer to
// run static-only extraction.
func NewExtractor(generative *GenerativeAnalyzer) *Extractor {
	return &Extractor{
		static:     NewStaticAnalyzer(),
		generative: generative,
	}
}

// Extract walks the selected files and produces the merged facts.
//
// Inputs:
//   - ctx: Cancels oracle calls in generative mode.
//   - pc: Located project; pc.Files must come from SelectFiles.
//
// Outputs:
//   - envspec.DependencyFacts: Deduplicated, mapped, sorted facts.
//   - error: Non-nil only when no file could be processed at all.
func (e *Extractor) Extract(ctx context.Context, pc envspec.ProjectContext) (envspec.DependencyFacts, error) {
	ctx, span := otel.Tracer(scanTracerName).Start(ctx, "scan.Extractor.Extract",
		oteltrace.WithAttributes(
			attribute.String("root", pc.Root),
			attribute.Int("file_count", len(pc.Files)),
		),
	)
	defer span.End()

	imports := map[string]struct{}{}
	hints := map[string]string{}
	var excerpts []string
	var sourcePaths []string
	gpu := false
	pythonMin := ""
	processed := 0

	for _, path := range pc.Files {
		name := filepath.Base(path)

		if IsManifest(name) {
			content, err := os.ReadFile(path)
			if err != nil {
				slog.Warn("Cannot read manifest", "path", path, "error", err)
				continue
			}
			processed++
			excerpts = append(excerpts, fmt.Sprintf("--- Content of %s ---\n%s",
				name, envspec.Truncate(string(content), config.ManifestExcerptBytes)))

			mf := ParseManifest(name, string(content))
			for _, pkg := range mf.Packages {
				imports[pkg] = struct{}{}
			}
			for pkg, hint := range mf.VersionHints {
				mergeHint(hints, pkg, hint)
			}
			pythonMin = MaxVersion(pythonMin, mf.PythonMin)
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Cannot read source file", "path", path, "error", err)
			continue
		}
		processed++
		sourcePaths = append(sourcePaths, path)

		var found []string
		var hasGPU bool
		if strings.EqualFold(filepath.Ext(name), ".ipynb") {
			found, hasGPU, err = e.static.ScanNotebook(ctx, content)
		} else {
			found, hasGPU, err = e.static.ScanSource(ctx, content)
		}
		if err != nil {
			logScanFailure(path, err)
		}
		for _, imp := range found {
			imports[imp] = struct{}{}
		}
		gpu = gpu || hasGPU

		if e.generative != nil {
			ff, err := e.generative.ScanFile(ctx, name, string(content))
			if err != nil {
				slog.Warn("Generative scan failed, using static facts only",
					"file", name, "error", err)
				continue
			}
			for _, pkg := range ff.Packages {
				imports[pkg] = struct{}{}
			}
			for pkg, hint := range ff.VersionHints {
				mergeHint(hints, pkg, hint)
			}
			gpu = gpu || ff.GPU
			pythonMin = MaxVersion(pythonMin, ff.PythonMin)
		}
	}

	if processed == 0 && len(pc.Files) > 0 {
		return envspec.DependencyFacts{}, fmt.Errorf("scan: none of the %d selected files could be read", len(pc.Files))
	}

	// An explicit manifest declaration wins; otherwise sample source
	// syntax for version-sensitive constructs.
	if pythonMin == "" {
		pythonMin = e.inferVersionFromSources(sourcePaths)
	}

	facts := envspec.DependencyFacts{
		Packages:         finalizePackages(imports),
		VersionHints:     hints,
		GPURequired:      gpu,
		PythonMin:        pythonMin,
		ManifestExcerpts: excerpts,
	}

	span.SetAttributes(
		attribute.Int("packages", len(facts.Packages)),
		attribute.Bool("gpu", facts.GPURequired),
		attribute.String("python_min", facts.PythonMin),
	)
	slog.Info("Fact extraction complete",
		"packages", len(facts.Packages),
		"version_hints", len(facts.VersionHints),
		"gpu", facts.GPURequired,
		"python_min", facts.PythonMin)
	return facts, nil
}

// inferVersionFromSources scans a bounded, prioritized sample of source
// files for syntax that only parses under newer Python versions.
func (e *Extractor) inferVersionFromSources(paths []string) string {
	version := ""
	ordered := prioritizeForVersionScan(paths)
	if len(ordered) > config.VersionScanFileLimit {
		ordered = ordered[:config.VersionScanFileLimit]
	}
	for _, path := range ordered {
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		for _, hint := range syntaxVersionHints(string(content)) {
			version = MaxVersion(version, hint)
		}
		// Nothing in the table exceeds 3.10.
		if version == "3.10" {
			break
		}
	}
	return version
}

// finalizePackages maps import names to package names, deduplicates
// case-insensitively, and sorts.
func finalizePackages(imports map[string]struct{}) []string {
	seen := map[string]struct{}{}
	for imp := range imports {
		pkg := strings.ToLower(MapImport(imp))
		seen[pkg] = struct{}{}
	}
	packages := make([]string, 0, len(seen))
	for pkg := range seen {
		packages = append(packages, pkg)
	}
	sort.Strings(packages)
	return packages
}

// mergeHint records a version hint, preferring an exact pin over any
// looser constraint already present.
func mergeHint(hints map[string]string, pkg, hint string) {
	existing, ok := hints[pkg]
	if !ok {
		hints[pkg] = hint
		return
	}
	if strings.HasPrefix(hint, "==") && !strings.HasPrefix(existing, "==") {
		hints[pkg] = hint
	}
}
