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
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/envforge/services/envspec/config"
)

// excludedDirs are directory names never descended into during file
// selection. Hidden directories are excluded by prefix.
var excludedDirs = map[string]struct{}{
	"__pycache__": {}, ".git": {}, ".github": {}, "venv": {}, "env": {},
	".venv": {}, "node_modules": {}, ".idea": {}, ".vscode": {},
	"dist": {}, "build": {}, ".eggs": {}, ".tox": {}, ".pytest_cache": {},
	".mypy_cache": {}, "docs": {}, "documentation": {}, "examples": {},
	"tests": {}, "test": {}, "assets": {}, "images": {}, "static": {},
	"templates": {}, "migrations": {}, "htmlcov": {}, "coverage": {},
	"wheels": {}, "sdist": {}, "var": {}, "instance": {},
}

// manifestFiles are dependency definition files that are always
// selected and ordered before source files.
var manifestFiles = map[string]struct{}{
	"requirements.txt": {}, "requirements-dev.txt": {},
	"requirements-test.txt": {}, "setup.py": {}, "setup.cfg": {},
	"pyproject.toml": {}, "environment.yml": {}, "environment.yaml": {},
	"conda.yaml": {}, "Pipfile": {}, "Pipfile.lock": {}, "poetry.lock": {},
}

// sourceExtensions are the analyzable source file extensions.
var sourceExtensions = map[string]struct{}{
	".py":    {},
	".ipynb": {},
}

// IsManifest reports whether a file name is a dependency manifest.
func IsManifest(name string) bool {
	_, ok := manifestFiles[name]
	return ok
}

// SelectFiles walks the project root and returns the absolute paths of
// files relevant to dependency analysis.
//
// Description:
//
//	Manifests are always included and sorted first; Python sources and
//	notebooks follow, subject to the size cap. Excluded and hidden
//	directories are pruned, and unreadable entries are skipped rather
//	than failing the walk.
//
// Inputs:
//   - root: Absolute project root.
//
// Outputs:
//   - []string: Selected absolute paths, manifests first.
//   - error: Non-nil only when the root itself cannot be walked.
func SelectFiles(root string) ([]string, error) {
	var manifests, sources []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, excluded := excludedDirs[strings.ToLower(name)]; excluded {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if IsManifest(name) {
			manifests = append(manifests, path)
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := sourceExtensions[ext]; !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			slog.Warn("Cannot stat file", "path", path, "error", err)
			return nil
		}
		if info.Size() > config.MaxSourceFileBytes {
			slog.Warn("Skipping large file", "path", path, "size_kb", info.Size()/1024)
			return nil
		}
		sources = append(sources, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(manifests, func(i, j int) bool {
		return filepath.Base(manifests[i]) < filepath.Base(manifests[j])
	})
	sort.Strings(sources)

	slog.Info("File selection complete",
		"root", root,
		"manifests", len(manifests),
		"sources", len(sources))
	return append(manifests, sources...), nil
}
