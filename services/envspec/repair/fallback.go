// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repair

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/envforge/services/envspec"
	"github.com/AleutianAI/envforge/services/envspec/config"
	"github.com/AleutianAI/envforge/services/envspec/synth"
)

// =============================================================================
// Deterministic Fallback Rules
// =============================================================================

// ErrNoRepairPossible signals that no fallback rule could change the
// specification. The controller treats this as fatal.
var ErrNoRepairPossible = fmt.Errorf("repair: no fallback rule produced a change")

var (
	// Build-toolchain failure signatures.
	buildFailureMarkers = []string{
		"gcc", "g++", "Python.h", "wheel", "Py_UNICODE",
		"_PyInterpreterState", "error: subprocess-exited-with-error",
	}

	// "package is unresolvable" signatures.
	notFoundMarkers = []string{
		"PackagesNotFoundError", "ResolvePackageNotFound",
		"No matching distribution found", "Could not find a version",
		"not found", "does not exist",
	}

	// Generic pip installer failure signatures.
	pipFailureMarkers = []string{"pip subprocess error", "ERROR: pip", "pip._internal"}

	// Quoted token adjacent to a version operator in a diagnostic. The
	// single "=" is conda's native pin syntax and must match too.
	quotedPkgRe = regexp.MustCompile(`['"]([A-Za-z0-9][A-Za-z0-9_.\-]*)\s*(?:==|>=|<=|~=|=|>|<)`)

	// Manifest-line-shaped token in a solver error block.
	manifestTokenRe = regexp.MustCompile(`(?m)^\s*-\s*([a-z0-9][a-z0-9_.\-]*)(?:[=<>~]|$)`)

	pythonPinLineRe = regexp.MustCompile(`(?m)^(\s*-\s*)python\s*=[^\s#]*`)
	constraintRe    = regexp.MustCompile(`^(\s*-\s*["']?[A-Za-z0-9_.\-]+)\s*(?:==|>=|<=|~=|=|>|<)[^\s#"']*`)
)

// ApplyFallback classifies the diagnostic and applies one fixed
// transformation to the specification.
//
// Description:
//
//	Rules are tried in a fixed order; a rule that matches the
//	diagnostic but produces no textual change falls through to the
//	next. Every returned specification differs from the input, keeping
//	the progress invariant.
//
// Inputs:
//   - spec: The specification that just failed.
//   - diagnostic: Raw materializer diagnostic text.
//
// Outputs:
//   - envspec.Specification: The transformed specification.
//   - string: One-line summary of the transformation for the history.
//   - error: ErrNoRepairPossible when nothing could be changed.
func ApplyFallback(spec envspec.Specification, diagnostic string) (envspec.Specification, string, error) {
	type rule struct {
		name  string
		apply func() (string, string, bool)
	}

	rules := []rule{
		{"build-toolchain", func() (string, string, bool) {
			if !containsAny(diagnostic, buildFailureMarkers) {
				return "", "", false
			}
			out := forcePythonPin(spec.Text, config.FallbackPythonVersion)
			return out, fmt.Sprintf("pinned python=%s (build toolchain failure)", config.FallbackPythonVersion), true
		}},
		{"named-package", func() (string, string, bool) {
			pkg := extractPackage(diagnostic, spec.Text)
			if pkg == "" {
				return "", "", false
			}
			if containsAny(diagnostic, notFoundMarkers) {
				out := deleteDependencyLine(spec.Text, pkg)
				return out, fmt.Sprintf("removed unresolvable package %q", pkg), true
			}
			out := stripConstraintFor(spec.Text, pkg)
			return out, fmt.Sprintf("relaxed version constraint on %q", pkg), true
		}},
		{"pip-section", func() (string, string, bool) {
			if !containsAny(diagnostic, pipFailureMarkers) {
				return "", "", false
			}
			out := stripPipConstraints(spec.Text)
			return out, "relaxed all pip version constraints", true
		}},
		{"last-resort", func() (string, string, bool) {
			out, removed := removeFirstDependency(spec.Text)
			if removed == "" {
				return "", "", false
			}
			return out, fmt.Sprintf("removed dependency line %q (last resort)", removed), true
		}},
	}

	for _, r := range rules {
		out, summary, matched := r.apply()
		if !matched {
			continue
		}
		next := envspec.Specification{Text: out}
		if envspec.SameNormalized(spec, next) {
			continue
		}
		return next, summary, nil
	}
	return envspec.Specification{}, "", ErrNoRepairPossible
}

func containsAny(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// forcePythonPin rewrites an existing python pin, or inserts one when
// absent.
func forcePythonPin(text, version string) string {
	if pythonPinLineRe.MatchString(text) {
		return pythonPinLineRe.ReplaceAllString(text, "${1}python="+version)
	}
	return synth.EnsurePythonPin(text, version)
}

// extractPackage pulls a package name out of the diagnostic, but only
// when the specification actually mentions it; a name the spec does
// not contain cannot drive a line transformation.
func extractPackage(diagnostic, specText string) string {
	var candidates []string
	for _, m := range quotedPkgRe.FindAllStringSubmatch(diagnostic, -1) {
		candidates = append(candidates, m[1])
	}
	for _, m := range manifestTokenRe.FindAllStringSubmatch(diagnostic, -1) {
		candidates = append(candidates, m[1])
	}
	for _, c := range candidates {
		name := strings.ToLower(c)
		if name == "python" || name == "pip" {
			continue
		}
		if dependencyLineFor(specText, name) != "" {
			return name
		}
	}
	return ""
}

// dependencyLineFor returns the first spec line declaring the package,
// "" when absent.
func dependencyLineFor(text, pkg string) string {
	for _, line := range strings.Split(text, "\n") {
		if lineDeclares(line, pkg) {
			return line
		}
	}
	return ""
}

func lineDeclares(line, pkg string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "-") {
		return false
	}
	entry := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
	return dependencyName(entry) == pkg
}

// dependencyName extracts the bare package name from a dependency
// entry, stripping quotes and any version constraint.
func dependencyName(entry string) string {
	name := strings.ToLower(strings.Trim(entry, `"'`))
	for _, op := range []string{"==", ">=", "<=", "~=", "=", ">", "<"} {
		if idx := strings.Index(name, op); idx >= 0 {
			name = name[:idx]
			break
		}
	}
	return strings.TrimSpace(name)
}

func deleteDependencyLine(text, pkg string) string {
	var out []string
	deleted := false
	for _, line := range strings.Split(text, "\n") {
		if !deleted && lineDeclares(line, pkg) {
			deleted = true
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func stripConstraintFor(text, pkg string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !lineDeclares(line, pkg) {
			continue
		}
		if m := constraintRe.FindStringSubmatch(line); m != nil {
			lines[i] = m[1]
		}
		break
	}
	return strings.Join(lines, "\n")
}

// stripPipConstraints removes version constraints from every entry of
// the pip subsection.
func stripPipConstraints(text string) string {
	lines := strings.Split(text, "\n")
	inPip := false
	pipIndent := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		indent := len(line) - len(strings.TrimLeft(line, " "))
		if trimmed == "- pip:" || trimmed == "pip:" {
			inPip = true
			pipIndent = indent
			continue
		}
		if inPip {
			if trimmed == "" || indent <= pipIndent {
				inPip = false
				continue
			}
			if m := constraintRe.FindStringSubmatch(line); m != nil {
				lines[i] = m[1]
			}
		}
	}
	return strings.Join(lines, "\n")
}

// removeFirstDependency drops the first top-level dependency line that
// is neither the python pin nor the pip subsection. Returns the removed
// entry, "" when there was nothing removable.
func removeFirstDependency(text string) (string, string) {
	lines := strings.Split(text, "\n")
	inPip := false
	pipIndent := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		indent := len(line) - len(strings.TrimLeft(line, " "))
		if trimmed == "- pip:" || trimmed == "pip:" {
			inPip = true
			pipIndent = indent
			continue
		}
		if inPip {
			if trimmed != "" && indent > pipIndent {
				continue
			}
			inPip = false
		}
		if !strings.HasPrefix(trimmed, "-") {
			continue
		}
		entry := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
		if dependencyName(entry) == "python" {
			continue
		}
		if entry == "" || strings.HasSuffix(entry, ":") {
			continue
		}
		// Channels lists also use "- name" lines; only touch entries
		// after the dependencies key.
		if !afterDependenciesKey(lines, i) {
			continue
		}
		return strings.Join(append(append([]string{}, lines[:i]...), lines[i+1:]...), "\n"), entry
	}
	return text, ""
}

func afterDependenciesKey(lines []string, idx int) bool {
	for i := idx - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "dependencies:" {
			return true
		}
		if strings.HasSuffix(trimmed, ":") && !strings.HasPrefix(trimmed, "-") {
			return false
		}
	}
	return false
}
