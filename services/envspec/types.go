// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package envspec defines the shared data model for the environment
// synthesis pipeline: the located project, the facts extracted from it,
// the specification under test, and the attempt history the repair loop
// accumulates.
package envspec

import (
	"fmt"
	"sort"
	"strings"
)

// ProjectContext identifies the project being analyzed.
//
// Description:
//
//	Created once by the root locator and treated as immutable afterward.
//	Root is always an absolute path. Files holds the relevant file paths
//	selected for fact extraction, manifests first.
type ProjectContext struct {
	// Root is the absolute path of the effective project root.
	Root string

	// Files are the absolute paths of files selected for analysis.
	Files []string

	// Redirected is true when the locator moved away from the start path
	// (monorepo nesting).
	Redirected bool
}

// DependencyFacts is the merged result of fact extraction.
//
// Description:
//
//	Built incrementally by the extractor and finalized before synthesis;
//	never mutated after. Packages are deduplicated, lowercase, and already
//	mapped from import names to package names (cv2 -> opencv-python).
type DependencyFacts struct {
	// Packages are inferred third-party package names, sorted.
	Packages []string

	// VersionHints maps a package name to its constraint string
	// (e.g. ">=1.21"). An exact (==) hint wins over a looser one.
	VersionHints map[string]string

	// GPURequired is a heuristic CUDA/GPU signal, not proof.
	GPURequired bool

	// PythonMin is the inferred minimum Python version ("3.10"),
	// empty when nothing could be inferred.
	PythonMin string

	// ManifestExcerpts holds bounded raw excerpts of manifest files,
	// passed to the oracle as context.
	ManifestExcerpts []string
}

// Specification is an immutable snapshot of the environment manifest
// under test. Each repair produces a new value; snapshots are never
// edited in place.
type Specification struct {
	Text string
}

// AttemptRecord captures one materialization attempt.
//
// Description:
//
//	The record holds the specification that was tried, the (truncated)
//	diagnostic it produced, and a one-line summary of the repair applied
//	to produce the next specification. Records are append-only; together
//	they form the error history consumed by the oracle and the
//	deterministic fallback.
type AttemptRecord struct {
	Number        int
	Spec          Specification
	Diagnostic    string
	RepairSummary string
}

// NormalizeLines reduces a manifest to its comparable form: blank lines
// and comments stripped, remaining lines trimmed and sorted.
//
// Description:
//
//	This is the comparison used by the progress invariant: a repair that
//	leaves the normalized form unchanged is a no-op. Known limitation
//	(accepted): a repair that only reorders dependency lines also
//	normalizes to the same form and is classified as a no-op.
func NormalizeLines(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	sort.Strings(kept)
	return strings.Join(kept, "\n")
}

// SameNormalized reports whether two specifications are identical under
// NormalizeLines.
func SameNormalized(a, b Specification) bool {
	return NormalizeLines(a.Text) == NormalizeLines(b.Text)
}

// Truncate bounds s to max bytes, appending an ellipsis marker when the
// input was cut. Used for diagnostics and manifest excerpts.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n... [truncated]"
}

// SummarizeHistory condenses attempt records into a bounded textual form
// for the oracle's repair prompt.
//
// Inputs:
//   - history: Attempt records in order.
//   - excerptBytes: Per-attempt diagnostic budget.
//
// Outputs:
//   - string: "None - this is the first attempt" when history is empty.
func SummarizeHistory(history []AttemptRecord, excerptBytes int) string {
	if len(history) == 0 {
		return "None - this is the first attempt"
	}
	var b strings.Builder
	for _, rec := range history {
		fmt.Fprintf(&b, "[Attempt %d] Fix applied: %s\n", rec.Number, rec.RepairSummary)
		fmt.Fprintf(&b, "[Attempt %d] Error excerpt: %s\n", rec.Number, Truncate(rec.Diagnostic, excerptBytes))
	}
	return strings.TrimRight(b.String(), "\n")
}
