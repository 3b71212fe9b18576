// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conda

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecCommand substitutes a shell snippet for the conda binary.
func mockExecCommand(script string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
}

func writeSpec(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "environment.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: demo\ndependencies:\n  - python=3.11\n"), 0o644))
	return path
}

func TestCreate_Success(t *testing.T) {
	e := NewExecutor(time.Minute)
	e.execCommand = mockExecCommand("exit 0")

	ok, diag := e.Create(context.Background(), writeSpec(t), "demo")
	assert.True(t, ok)
	assert.Empty(t, diag)
}

func TestCreate_FailureCapturesStderr(t *testing.T) {
	e := NewExecutor(time.Minute)
	e.execCommand = mockExecCommand("echo 'ResolvePackageNotFound: nonexistent-lib' >&2; exit 1")

	ok, diag := e.Create(context.Background(), writeSpec(t), "demo")
	assert.False(t, ok)
	assert.Contains(t, diag, "ResolvePackageNotFound")
}

func TestCreate_FailureFallsBackToStdout(t *testing.T) {
	e := NewExecutor(time.Minute)
	e.execCommand = mockExecCommand("echo 'Solving environment: failed'; exit 1")

	ok, diag := e.Create(context.Background(), writeSpec(t), "demo")
	assert.False(t, ok)
	assert.Contains(t, diag, "Solving environment")
}

func TestCreate_MissingSpecFile(t *testing.T) {
	e := NewExecutor(time.Minute)
	e.execCommand = mockExecCommand("exit 0")

	ok, diag := e.Create(context.Background(), "/does/not/exist.yml", "demo")
	assert.False(t, ok)
	assert.Contains(t, diag, "not found")
}

func TestCreate_Timeout(t *testing.T) {
	e := NewExecutor(100 * time.Millisecond)
	e.execCommand = mockExecCommand("sleep 5")

	ok, diag := e.Create(context.Background(), writeSpec(t), "demo")
	assert.False(t, ok)
	assert.Contains(t, diag, "timed out")
}

func TestCreate_BinaryMissing(t *testing.T) {
	e := NewExecutor(time.Minute)
	e.execCommand = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "definitely-not-a-real-binary-xyz")
	}

	ok, diag := e.Create(context.Background(), writeSpec(t), "demo")
	assert.False(t, ok)
	assert.Contains(t, diag, "conda command not found")
}

func TestExists(t *testing.T) {
	e := NewExecutor(time.Minute)
	e.execCommand = mockExecCommand("printf '# conda environments:\\nbase  /opt/conda\\ndemo  /opt/conda/envs/demo\\n'")
	assert.True(t, e.Exists(context.Background(), "demo"))
	assert.False(t, e.Exists(context.Background(), "demo2"))

	e.execCommand = mockExecCommand("exit 1")
	assert.False(t, e.Exists(context.Background(), "demo"))
}

func TestRemove(t *testing.T) {
	e := NewExecutor(time.Minute)

	e.execCommand = mockExecCommand("exit 0")
	assert.NoError(t, e.Remove(context.Background(), "demo"))

	e.execCommand = mockExecCommand("echo 'EnvironmentNameNotFound: demo does not exist' >&2; exit 1")
	assert.NoError(t, e.Remove(context.Background(), "demo"), "missing environment counts as removed")

	e.execCommand = mockExecCommand("echo 'permission denied' >&2; exit 1")
	assert.Error(t, e.Remove(context.Background(), "demo"))
}
