// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conda adapts the conda CLI as the environment materializer.
// Every failure mode of the tool (binary missing, timeout, non-zero
// exit) is folded into an (ok, diagnostic) pair so the repair loop
// treats them uniformly.
package conda

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/envforge/services/envspec/config"
)

const condaTracerName = "github.com/AleutianAI/envforge/services/envspec/conda"

// Executor runs conda commands with bounded timeouts.
//
// Thread Safety: Executor is safe for concurrent use; each call builds
// its own command.
type Executor struct {
	createTimeout time.Duration
	removeTimeout time.Duration
	listTimeout   time.Duration

	// execCommand is swapped in tests.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExecutor creates an Executor. A non-positive createTimeout selects
// the default.
func NewExecutor(createTimeout time.Duration) *Executor {
	if createTimeout <= 0 {
		createTimeout = config.DefaultCreateTimeout
	}
	return &Executor{
		createTimeout: createTimeout,
		removeTimeout: config.DefaultRemoveTimeout,
		listTimeout:   config.DefaultListTimeout,
		execCommand:   exec.CommandContext,
	}
}

// Create materializes an environment from a specification file.
//
// Description:
//
//	Runs `conda env create -f <specPath> -n <envName> --yes` under the
//	create timeout. Failure never returns an error value: the boolean
//	carries the verdict and the string carries a diagnostic suitable
//	for the repair oracle (stderr preferred, stdout as fallback).
//
// Inputs:
//   - ctx: Outer cancellation; the create timeout is layered on top.
//   - specPath: Path to the environment.yml under test.
//   - envName: Sanitized environment name.
//
// Outputs:
//   - bool: True when the tool accepted the specification.
//   - string: Empty on success, diagnostic text on failure.
func (e *Executor) Create(ctx context.Context, specPath, envName string) (bool, string) {
	if _, err := os.Stat(specPath); err != nil {
		return false, fmt.Sprintf("environment file not found: %s", specPath)
	}

	ctx, cancel := context.WithTimeout(ctx, e.createTimeout)
	defer cancel()

	ctx, span := otel.Tracer(condaTracerName).Start(ctx, "conda.Executor.Create",
		oteltrace.WithAttributes(
			attribute.String("env_name", envName),
			attribute.String("spec_path", specPath),
		),
	)
	defer span.End()

	slog.Info("Creating conda environment", "env_name", envName, "spec_path", specPath)
	start := time.Now()

	var stdout, stderr bytes.Buffer
	cmd := e.execCommand(ctx, "conda", "env", "create", "-f", specPath, "-n", envName, "--yes")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		slog.Info("Environment created", "env_name", envName, "duration", elapsed.Round(time.Second))
		return true, ""
	}

	diagnostic := diagnosticFrom(ctx, err, stdout.String(), stderr.String(), e.createTimeout)
	span.SetAttributes(attribute.Bool("failed", true))
	slog.Warn("Environment creation failed",
		"env_name", envName,
		"duration", elapsed.Round(time.Second),
		"diagnostic_bytes", len(diagnostic))
	return false, diagnostic
}

// Exists reports whether an environment with the given name is present
// in `conda env list`. Any failure to ask counts as absent.
func (e *Executor) Exists(ctx context.Context, envName string) bool {
	ctx, cancel := context.WithTimeout(ctx, e.listTimeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := e.execCommand(ctx, "conda", "env", "list")
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		slog.Warn("Cannot list conda environments", "error", err)
		return false
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == envName {
			return true
		}
	}
	return false
}

// Remove deletes an environment. An environment that does not exist is
// treated as already removed.
func (e *Executor) Remove(ctx context.Context, envName string) error {
	ctx, cancel := context.WithTimeout(ctx, e.removeTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := e.execCommand(ctx, "conda", "env", "remove", "-n", envName, "--yes")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		slog.Info("Environment removed", "env_name", envName)
		return nil
	}

	msg := strings.ToLower(stderr.String() + stdout.String())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist") {
		return nil
	}
	return fmt.Errorf("conda: removing environment %s: %w: %s", envName, err, strings.TrimSpace(stderr.String()))
}

// diagnosticFrom folds the three failure shapes into one diagnostic
// string.
func diagnosticFrom(ctx context.Context, err error, stdout, stderr string, timeout time.Duration) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("conda command timed out after %v", timeout)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return "conda command not found. Make sure conda is installed and in PATH"
	}
	if diag := strings.TrimSpace(stderr); diag != "" {
		return diag
	}
	if diag := strings.TrimSpace(stdout); diag != "" {
		return diag
	}
	return err.Error()
}
