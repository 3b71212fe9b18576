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
	"strings"
)

// =============================================================================
// Manifest Parsing (no oracle calls)
// =============================================================================

var (
	// package==1.2, package >= 1.2.3 and friends.
	requirementRe = regexp.MustCompile(`^([a-zA-Z0-9_-]+)\s*(==|>=|<=|>|<|~=)\s*([0-9.]+)`)

	// Quoted entries inside install_requires=[...] or the pyproject
	// dependencies = [...] array.
	quotedDepRe = regexp.MustCompile(`["']([a-zA-Z0-9_.-]+)\s*((?:==|>=|<=|>|<|~=)\s*[0-9.]+)?["']`)

	// python_requires=">=3.9" in setup.py, requires-python = ">=3.9" in
	// pyproject.toml.
	pythonRequiresRe = regexp.MustCompile(`(?:python_requires|requires-python)\s*=\s*["']\s*>=?\s*([0-9]+\.[0-9]+)`)
)

// ManifestFacts are the deterministic signals parsed from one manifest
// file.
type ManifestFacts struct {
	// Packages are declared dependency names, lowercase.
	Packages []string

	// VersionHints maps package name to its constraint ("==1.26.4").
	VersionHints map[string]string

	// PythonMin is the declared minimum Python version, "" when absent.
	PythonMin string
}

// ParseManifest extracts dependency declarations from a manifest file
// by name.
//
// Description:
//
//	requirements files are parsed line by line; setup.py and
//	pyproject.toml are scanned for their dependency list sections.
//	Conda environment files and lockfiles contribute no parsed facts
//	here (their raw excerpts still reach the oracle).
func ParseManifest(name, content string) ManifestFacts {
	facts := ManifestFacts{VersionHints: map[string]string{}}

	switch {
	case strings.HasPrefix(name, "requirements"):
		parseRequirements(content, &facts)
	case name == "setup.py":
		parseDeclaredList(content, "install_requires", &facts)
		facts.PythonMin = matchPythonRequires(content)
	case name == "pyproject.toml":
		parseDeclaredList(content, "dependencies", &facts)
		facts.PythonMin = matchPythonRequires(content)
	}
	return facts
}

func parseRequirements(content string, facts *ManifestFacts) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if m := requirementRe.FindStringSubmatch(line); m != nil {
			pkg := strings.ToLower(m[1])
			facts.Packages = append(facts.Packages, pkg)
			facts.VersionHints[pkg] = m[2] + m[3]
			continue
		}
		// Bare name without a constraint.
		if name, _, _ := strings.Cut(line, " "); name != "" {
			if ok, _ := regexp.MatchString(`^[a-zA-Z0-9_.-]+$`, name); ok {
				facts.Packages = append(facts.Packages, strings.ToLower(name))
			}
		}
	}
}

// parseDeclaredList scans for a named bracketed list (install_requires
// or dependencies) and extracts its quoted entries. The scan is
// regex-based over the bracketed region; it does not evaluate the file.
func parseDeclaredList(content, listName string, facts *ManifestFacts) {
	idx := strings.Index(content, listName)
	if idx < 0 {
		return
	}
	rest := content[idx:]
	open := strings.Index(rest, "[")
	if open < 0 {
		return
	}
	end := strings.Index(rest[open:], "]")
	if end < 0 {
		return
	}
	region := rest[open : open+end]

	for _, m := range quotedDepRe.FindAllStringSubmatch(region, -1) {
		pkg := strings.ToLower(m[1])
		if pkg == "" {
			continue
		}
		facts.Packages = append(facts.Packages, pkg)
		if m[2] != "" {
			facts.VersionHints[pkg] = strings.ReplaceAll(m[2], " ", "")
		}
	}
}

func matchPythonRequires(content string) string {
	if m := pythonRequiresRe.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return ""
}
