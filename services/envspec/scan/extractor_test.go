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
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/envforge/services/envspec"
	"github.com/AleutianAI/envforge/services/llm"
)

// scriptedOracle replays canned replies in order.
type scriptedOracle struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedOracle) Generate(ctx context.Context, system, prompt string, params llm.GenerationParams) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("scripted oracle: no reply configured")
}

func (s *scriptedOracle) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	return s.Generate(ctx, "", "", params)
}

func projectContext(t *testing.T, root string) envspec.ProjectContext {
	t.Helper()
	files, err := SelectFiles(root)
	require.NoError(t, err)
	return envspec.ProjectContext{Root: root, Files: files}
}

func TestExtract_StaticMergesSourcesAndManifests(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "requirements.txt"), "numpy==1.26.4\nflask>=2.0\n")
	writeFile(t, filepath.Join(root, "main.py"), "import cv2\nimport os\nimport numpy\n")

	e := NewExtractor(nil)
	facts, err := e.Extract(context.Background(), projectContext(t, root))
	require.NoError(t, err)

	assert.Contains(t, facts.Packages, "opencv-python")
	assert.Contains(t, facts.Packages, "numpy")
	assert.Contains(t, facts.Packages, "flask")
	assert.NotContains(t, facts.Packages, "os")
	assert.Equal(t, "==1.26.4", facts.VersionHints["numpy"])
	require.Len(t, facts.ManifestExcerpts, 1)
	assert.Contains(t, facts.ManifestExcerpts[0], "requirements.txt")
}

func TestExtract_MalformedFileIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good.py"), "import torch\n")
	writeFile(t, filepath.Join(root, "broken.ipynb"), "{not valid json")

	e := NewExtractor(nil)
	facts, err := e.Extract(context.Background(), projectContext(t, root))
	require.NoError(t, err)
	assert.Contains(t, facts.Packages, "pytorch")
}

func TestExtract_GPUAndVersionInference(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "train.py"),
		"import torch\ndevice = torch.device('cuda')\n\nmatch mode:\n    case 'fast':\n        pass\n")

	e := NewExtractor(nil)
	facts, err := e.Extract(context.Background(), projectContext(t, root))
	require.NoError(t, err)
	assert.True(t, facts.GPURequired)
	assert.Equal(t, "3.10", facts.PythonMin)
}

func TestExtract_ManifestPythonMinWinsOverSyntax(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "setup.py"),
		"setup(python_requires=\">=3.9\", install_requires=[\"flask\"])\n")
	writeFile(t, filepath.Join(root, "app.py"), "import flask\nx := 1\n")

	e := NewExtractor(nil)
	facts, err := e.Extract(context.Background(), projectContext(t, root))
	require.NoError(t, err)
	assert.Equal(t, "3.9", facts.PythonMin)
}

func TestExtract_GenerativeSupplementsStatic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dynamic.py"), "mod = __import__('lightgbm')\n")

	oracle := &scriptedOracle{replies: []string{
		"IMPORT: lightgbm\nVERSION_HINT: lightgbm>=4.0\nGPU: no\nPYTHON: 3.9\nCHATTER: ignored",
	}}
	gen, err := NewGenerativeAnalyzer(oracle)
	require.NoError(t, err)

	e := NewExtractor(gen)
	facts, err := e.Extract(context.Background(), projectContext(t, root))
	require.NoError(t, err)
	assert.Contains(t, facts.Packages, "lightgbm")
	assert.Equal(t, ">=4.0", facts.VersionHints["lightgbm"])
	assert.Equal(t, "3.9", facts.PythonMin)
	assert.False(t, facts.GPURequired)
}

func TestExtract_OracleFailureFallsBackToStatic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.py"), "import pandas\n")

	oracle := &scriptedOracle{errs: []error{errors.New("connection refused")}}
	gen, err := NewGenerativeAnalyzer(oracle)
	require.NoError(t, err)

	e := NewExtractor(gen)
	facts, err := e.Extract(context.Background(), projectContext(t, root))
	require.NoError(t, err)
	assert.Contains(t, facts.Packages, "pandas")
}

func TestParseFactLines_ExactPinBeatsLooseHint(t *testing.T) {
	hints := map[string]string{}
	mergeHint(hints, "numpy", ">=1.20")
	mergeHint(hints, "numpy", "==1.26.4")
	assert.Equal(t, "==1.26.4", hints["numpy"])

	mergeHint(hints, "numpy", ">=1.0")
	assert.Equal(t, "==1.26.4", hints["numpy"], "loose hint never displaces an exact pin")
}
