// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rootfind locates the effective project root below a start
// path. Monorepos frequently nest the installable project one or more
// levels down; the locator scores candidate directories and redirects
// analysis to the best one.
package rootfind

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/envforge/services/envspec"
)

// MaxScanDepth bounds the breadth-first traversal. Deeper directories
// are never visited, which keeps huge trees cheap to scan.
const MaxScanDepth = 4

// ignoredDirs are never descended into. Pruning happens at every level,
// before the child is queued.
var ignoredDirs = map[string]bool{
	".git": true, ".idea": true, ".vscode": true, "__pycache__": true,
	"node_modules": true, "venv": true, "env": true, ".env": true,
	"dist": true, "build": true,
}

// packagingManifests score +10: a directory that directly contains one
// of these is very likely the project root.
var packagingManifests = []string{
	"setup.py", "pyproject.toml", "environment.yml", "environment.yaml", "conda.yaml",
}

// nonSourceRoles score -10: conventional directory names that hold
// supporting material rather than the project itself.
var nonSourceRoles = map[string]bool{
	"docs": true, "tests": true, "examples": true, "scripts": true,
}

type candidate struct {
	score int
	path  string
}

// Locate finds the effective project root under startPath.
//
// Description:
//
//	Traverses breadth-first down to MaxScanDepth, pruning ignoredDirs at
//	every level. Each visited directory receives an integer score:
//	+10 for a packaging manifest, +5 for requirements.txt, +5 for a
//	src/app subdirectory, -10 when the directory name is a known
//	non-source role. Candidates scoring above zero are ranked by
//	(score descending, path length ascending); ties go to the shallower
//	path. When nothing scores above zero the start path is returned
//	unchanged. This is a heuristic: downstream extraction re-scans
//	broadly, so a false positive is recoverable.
//
// Inputs:
//   - startPath: Directory to search from. Must exist and be a directory.
//
// Outputs:
//   - envspec.ProjectContext: Root set to the winning directory (absolute),
//     Redirected true when it differs from startPath. Files is left empty;
//     the scan package's file filter populates it.
//   - error: Non-nil when startPath is missing or not a directory.
func Locate(startPath string) (envspec.ProjectContext, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return envspec.ProjectContext{}, fmt.Errorf("rootfind: resolving %q: %w", startPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return envspec.ProjectContext{}, fmt.Errorf("rootfind: %w", err)
	}
	if !info.IsDir() {
		return envspec.ProjectContext{}, fmt.Errorf("rootfind: %s is not a directory", abs)
	}

	candidates := collectCandidates(abs)
	if len(candidates) == 0 {
		return envspec.ProjectContext{Root: abs}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return len(candidates[i].path) < len(candidates[j].path)
	})

	best := candidates[0]
	if best.path != abs {
		slog.Info("project root redirected",
			slog.String("start", abs),
			slog.String("root", best.path),
			slog.Int("score", best.score))
		return envspec.ProjectContext{Root: best.path, Redirected: true}, nil
	}
	return envspec.ProjectContext{Root: abs}, nil
}

// collectCandidates runs the bounded BFS and scores every visited
// directory.
func collectCandidates(root string) []candidate {
	type entry struct {
		path  string
		depth int
	}
	queue := []entry{{path: root, depth: 0}}
	var out []candidate

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(cur.path)
		if err != nil {
			slog.Warn("rootfind: skipping unreadable directory",
				slog.String("path", cur.path), slog.String("error", err.Error()))
			continue
		}

		var files, dirs []string
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, e.Name())
			} else {
				files = append(files, e.Name())
			}
		}

		if score := scoreDirectory(cur.path, files, dirs); score > 0 {
			out = append(out, candidate{score: score, path: cur.path})
		}

		if cur.depth >= MaxScanDepth {
			continue
		}
		for _, d := range dirs {
			if ignoredDirs[d] {
				continue
			}
			queue = append(queue, entry{path: filepath.Join(cur.path, d), depth: cur.depth + 1})
		}
	}
	return out
}

// scoreDirectory computes the heuristic score for one directory.
func scoreDirectory(path string, files, dirs []string) int {
	score := 0
	fileSet := make(map[string]bool, len(files))
	for _, f := range files {
		fileSet[f] = true
	}
	for _, m := range packagingManifests {
		if fileSet[m] {
			score += 10
			break
		}
	}
	if fileSet["requirements.txt"] {
		score += 5
	}
	for _, d := range dirs {
		if d == "src" || d == "app" {
			score += 5
			break
		}
	}
	if nonSourceRoles[strings.ToLower(filepath.Base(path))] {
		score -= 10
	}
	return score
}
