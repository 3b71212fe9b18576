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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/envforge/services/envspec"
)

const baseSpec = `name: demo
channels:
  - conda-forge
  - defaults
dependencies:
  - python=3.11
  - numpy==1.21.0
  - requests
  - pip:
      - torch==2.0.1
      - flask>=2.0
`

func spec(text string) envspec.Specification { return envspec.Specification{Text: text} }

func TestApplyFallback_BuildToolchainForcesPin(t *testing.T) {
	next, summary, err := ApplyFallback(spec(baseSpec),
		"error: command 'gcc' failed: Python.h: No such file or directory")
	require.NoError(t, err)
	assert.Contains(t, next.Text, "python=3.10")
	assert.NotContains(t, next.Text, "python=3.11")
	assert.Contains(t, summary, "python=3.10")
}

func TestApplyFallback_BuildToolchainInsertsPinWhenAbsent(t *testing.T) {
	noPin := "name: demo\ndependencies:\n  - numpy\n"
	next, _, err := ApplyFallback(spec(noPin), "wheel build failed with gcc error")
	require.NoError(t, err)
	assert.Contains(t, next.Text, "python=3.10")
}

func TestApplyFallback_PinAlreadyAtFallbackFallsThrough(t *testing.T) {
	pinned := strings.Replace(baseSpec, "python=3.11", "python=3.10", 1)
	next, summary, err := ApplyFallback(spec(pinned), "gcc failed while solving 'numpy==1.21.0'")
	require.NoError(t, err)

	// Rule one is a no-op here, so the named-package rule applies.
	assert.Contains(t, next.Text, "- numpy\n")
	assert.NotContains(t, next.Text, "numpy==1.21.0")
	assert.Contains(t, summary, "numpy")
}

func TestApplyFallback_ConflictStripsConstraint(t *testing.T) {
	next, _, err := ApplyFallback(spec(baseSpec),
		"Found conflicts! Looking for: 'numpy==1.21.0'")
	require.NoError(t, err)
	assert.Contains(t, next.Text, "- numpy\n")
	assert.NotContains(t, next.Text, "numpy==1.21.0")
	assert.Contains(t, next.Text, "python=3.11", "python pin untouched")
}

func TestApplyFallback_CondaSinglePinStripsConstraint(t *testing.T) {
	// conda's native pin syntax uses a single "=". The named-package
	// rule must relax exactly that line instead of falling through to
	// the last resort and removing a healthy dependency.
	pinned := "name: demo\nchannels:\n  - conda-forge\ndependencies:\n  - python=3.11\n  - scipy\n  - numpy=1.21.0\n"
	diag := "Found conflicts!\nThe following packages are incompatible:\n  - numpy=1.21.0\n"

	next, summary, err := ApplyFallback(spec(pinned), diag)
	require.NoError(t, err)
	assert.Contains(t, next.Text, "- numpy\n")
	assert.NotContains(t, next.Text, "numpy=1.21.0")
	assert.Contains(t, next.Text, "scipy", "unrelated dependency untouched")
	assert.Contains(t, summary, "numpy")
}

func TestApplyFallback_CondaSinglePinQuotedDiagnostic(t *testing.T) {
	pinned := strings.Replace(baseSpec, "numpy==1.21.0", "numpy=1.21.0", 1)
	next, _, err := ApplyFallback(spec(pinned), "package 'numpy=1.21.0' conflicts with installed versions")
	require.NoError(t, err)
	assert.Contains(t, next.Text, "- numpy\n")
	assert.NotContains(t, next.Text, "numpy=1.21.0")
}

func TestApplyFallback_UnresolvableDeletesLine(t *testing.T) {
	diag := "PackagesNotFoundError: The following packages are not available:\n  - requests\n"
	next, summary, err := ApplyFallback(spec(baseSpec), diag)
	require.NoError(t, err)
	assert.NotContains(t, next.Text, "requests")
	assert.Contains(t, summary, "removed")
}

func TestApplyFallback_GenericPipFailureStripsPipConstraints(t *testing.T) {
	next, _, err := ApplyFallback(spec(baseSpec),
		"Pip subprocess error: installation failed")
	require.NoError(t, err)
	assert.Contains(t, next.Text, "- torch\n")
	assert.Contains(t, next.Text, "- flask\n")
	assert.Contains(t, next.Text, "numpy==1.21.0", "conda section untouched")
}

func TestApplyFallback_LastResortRemovesFirstDependency(t *testing.T) {
	next, summary, err := ApplyFallback(spec(baseSpec), "some unclassifiable failure")
	require.NoError(t, err)
	assert.NotContains(t, next.Text, "numpy")
	assert.Contains(t, next.Text, "python=3.11")
	assert.Contains(t, next.Text, "torch==2.0.1", "pip subsection untouched")
	assert.Contains(t, summary, "last resort")
}

func TestApplyFallback_LastResortNeverRemovesChannels(t *testing.T) {
	minimal := "name: demo\nchannels:\n  - conda-forge\ndependencies:\n  - python=3.11\n  - numpy\n"
	next, _, err := ApplyFallback(spec(minimal), "mystery failure")
	require.NoError(t, err)
	assert.Contains(t, next.Text, "conda-forge")
	assert.NotContains(t, next.Text, "numpy")
}

func TestApplyFallback_LastResortRemovesPythonPrefixedPackage(t *testing.T) {
	// python-dotenv is an ordinary package, not the interpreter pin.
	withDotenv := "name: demo\ndependencies:\n  - python=3.11\n  - python-dotenv==1.0\n  - requests\n"
	next, _, err := ApplyFallback(spec(withDotenv), "mystery failure")
	require.NoError(t, err)
	assert.NotContains(t, next.Text, "python-dotenv")
	assert.Contains(t, next.Text, "python=3.11")
	assert.Contains(t, next.Text, "requests")
}

func TestApplyFallback_LastResortKeepsUnpinnedPython(t *testing.T) {
	unpinned := "name: demo\ndependencies:\n  - python\n  - numpy\n"
	next, _, err := ApplyFallback(spec(unpinned), "mystery failure")
	require.NoError(t, err)
	assert.Contains(t, next.Text, "- python\n")
	assert.NotContains(t, next.Text, "numpy")
}

func TestApplyFallback_NothingLeftToChange(t *testing.T) {
	bare := "name: demo\ndependencies:\n  - python=3.10\n"
	_, _, err := ApplyFallback(spec(bare), "mystery failure")
	assert.ErrorIs(t, err, ErrNoRepairPossible)
}

func TestApplyFallback_ProgressInvariant(t *testing.T) {
	diagnostics := []string{
		"gcc build failure",
		"conflict with 'numpy==1.21.0'",
		"PackagesNotFoundError:\n  - requests",
		"Pip subprocess error",
		"unclassifiable",
	}
	for _, diag := range diagnostics {
		next, _, err := ApplyFallback(spec(baseSpec), diag)
		require.NoError(t, err, "diagnostic %q", diag)
		assert.False(t, envspec.SameNormalized(spec(baseSpec), next),
			"fallback for %q must change the specification", diag)
	}
}
