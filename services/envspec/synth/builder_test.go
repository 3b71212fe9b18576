// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/envforge/services/envspec"
	"github.com/AleutianAI/envforge/services/llm"
)

type fakeOracle struct {
	reply string
	err   error

	lastSystem string
	lastPrompt string
}

func (f *fakeOracle) Generate(ctx context.Context, system, prompt string, params llm.GenerationParams) (string, error) {
	f.lastSystem = system
	f.lastPrompt = prompt
	return f.reply, f.err
}

func (f *fakeOracle) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	return f.reply, f.err
}

func TestSynthesize_CleansAndPins(t *testing.T) {
	oracle := &fakeOracle{reply: "```yaml\nname: demo\nchannels:\n  - conda-forge\ndependencies:\n  - numpy\n```"}
	b, err := NewBuilder(oracle)
	require.NoError(t, err)

	spec, err := b.Synthesize(context.Background(), envspec.DependencyFacts{
		Packages: []string{"numpy"},
	}, "demo", "")
	require.NoError(t, err)

	assert.NotContains(t, spec.Text, "```")
	assert.Contains(t, spec.Text, "python=3.11", "baseline applies when nothing was inferred")
	assert.Contains(t, oracle.lastPrompt, "numpy")
}

func TestSynthesize_ExistingPinIsKept(t *testing.T) {
	oracle := &fakeOracle{reply: "name: demo\ndependencies:\n  - python=3.9\n  - flask\n"}
	b, err := NewBuilder(oracle)
	require.NoError(t, err)

	spec, err := b.Synthesize(context.Background(), envspec.DependencyFacts{}, "demo", "")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(spec.Text, "python="))
	assert.Contains(t, spec.Text, "python=3.9")
}

func TestSynthesize_OracleFailure(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("timeout")}
	b, err := NewBuilder(oracle)
	require.NoError(t, err)

	_, err = b.Synthesize(context.Background(), envspec.DependencyFacts{}, "demo", "")
	assert.Error(t, err)
}

func TestSynthesize_RejectsUnusableYAML(t *testing.T) {
	oracle := &fakeOracle{reply: "Sorry, I cannot help with that."}
	b, err := NewBuilder(oracle)
	require.NoError(t, err)

	_, err = b.Synthesize(context.Background(), envspec.DependencyFacts{}, "demo", "")
	assert.Error(t, err)
}

func TestChoosePythonVersion(t *testing.T) {
	assert.Equal(t, "3.11", ChoosePythonVersion("", ""))
	assert.Equal(t, "3.10", ChoosePythonVersion("", "3.10"))
	assert.Equal(t, "3.12", ChoosePythonVersion("3.12", "3.10"))
	assert.Equal(t, "3.11", ChoosePythonVersion("3.9", ""), "override below the inferred floor loses")
}

func TestEnsurePythonPin_InsertsUnderDependencies(t *testing.T) {
	text := "name: demo\nchannels:\n  - defaults\ndependencies:\n  - numpy\n"
	pinned := EnsurePythonPin(text, "3.10")

	lines := strings.Split(pinned, "\n")
	depIdx := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "dependencies:" {
			depIdx = i
		}
	}
	require.GreaterOrEqual(t, depIdx, 0)
	assert.Equal(t, "  - python=3.10", lines[depIdx+1])
}

func TestEnsurePythonPin_AppendsSectionAsLastResort(t *testing.T) {
	pinned := EnsurePythonPin("name: demo", "3.10")
	assert.Contains(t, pinned, "dependencies:\n  - python=3.10")
}

func TestCleanMarkdown(t *testing.T) {
	assert.Equal(t, "name: x", CleanMarkdown("```yaml\nname: x\n```"))
	assert.Equal(t, "name: x", CleanMarkdown("name: x"))
	assert.Equal(t, "name: x", CleanMarkdown("```\nname: x\n```"))
}

func TestFormatFacts(t *testing.T) {
	out := FormatFacts(envspec.DependencyFacts{
		Packages:         []string{"numpy", "flask"},
		VersionHints:     map[string]string{"numpy": "==1.26.4"},
		ManifestExcerpts: []string{"--- Content of requirements.txt ---\nnumpy==1.26.4"},
	})
	assert.Contains(t, out, "- numpy==1.26.4")
	assert.Contains(t, out, "- flask")
	assert.Contains(t, out, "requirements.txt")

	assert.Contains(t, FormatFacts(envspec.DependencyFacts{}), "no third-party imports")
}
