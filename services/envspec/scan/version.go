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
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// =============================================================================
// Python Version Inference
// =============================================================================

var (
	matchStatementRe = regexp.MustCompile(`(?m)^\s*match\s+.+:`)
	caseClauseRe     = regexp.MustCompile(`(?m)^\s*case\s+.+:`)
	fstringDebugRe   = regexp.MustCompile(`f["'][^"']*\{[^}]*=[^}]*\}`)
	positionalOnlyRe = regexp.MustCompile(`def\s+\w+\([^)]*,\s*/\s*[,)]`)
	dottedVersionRe  = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)
)

// syntaxVersionHints returns the minimum Python versions implied by
// syntax patterns in one source file. The patterns are textual, not
// parsed; a hit in a comment overestimates harmlessly (the environment
// still works on the newer version).
func syntaxVersionHints(content string) []string {
	var hints []string

	// Structural pattern matching.
	if matchStatementRe.MatchString(content) && caseClauseRe.MatchString(content) {
		hints = append(hints, "3.10")
	}
	// Walrus operator.
	if strings.Contains(content, ":=") {
		hints = append(hints, "3.8")
	}
	// typing.Literal.
	if strings.Contains(content, "from typing import") && strings.Contains(content, "Literal") {
		hints = append(hints, "3.8")
	}
	// f-string self-documenting expressions.
	if fstringDebugRe.MatchString(content) {
		hints = append(hints, "3.8")
	}
	// Positional-only parameters.
	if positionalOnlyRe.MatchString(content) {
		hints = append(hints, "3.8")
	}
	return hints
}

// MaxVersion returns the greater of two dotted major.minor versions.
// Empty strings lose to anything; malformed versions are ignored.
func MaxVersion(a, b string) string {
	av, bv := validVersion(a), validVersion(b)
	switch {
	case av == "" && bv == "":
		return ""
	case av == "":
		return bv
	case bv == "":
		return av
	}
	if semver.Compare("v"+av, "v"+bv) >= 0 {
		return av
	}
	return bv
}

func validVersion(v string) string {
	if dottedVersionRe.MatchString(v) {
		return v
	}
	return ""
}

// prioritizeForVersionScan orders source paths so that test and config
// entry points are scanned before the cap cuts the sample off. Version
// sensitive syntax concentrates in those files.
func prioritizeForVersionScan(paths []string) []string {
	ordered := make([]string, len(paths))
	copy(ordered, paths)
	sort.SliceStable(ordered, func(i, j int) bool {
		return versionScanRank(ordered[i]) < versionScanRank(ordered[j])
	})
	return ordered
}

func versionScanRank(path string) int {
	lower := strings.ToLower(path)
	base := lower[strings.LastIndex(lower, "/")+1:]
	switch {
	case base == "conftest.py":
		return 0
	case strings.HasPrefix(base, "test_"), strings.HasSuffix(base, "_test.py"):
		return 1
	case base == "setup.py", base == "main.py", base == "app.py":
		return 2
	default:
		return 3
	}
}
