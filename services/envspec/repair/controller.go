// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package repair drives the bounded self-healing loop: test a
// specification against the materializer, and on failure alternate
// between oracle-suggested repairs and deterministic fallback rules
// until the tool accepts the specification or the retry ceiling is
// reached.
package repair

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/envforge/services/envspec"
	"github.com/AleutianAI/envforge/services/envspec/config"
	"github.com/AleutianAI/envforge/services/envspec/synth"
	"github.com/AleutianAI/envforge/services/llm"
)

const repairTracerName = "github.com/AleutianAI/envforge/services/envspec/repair"

// State is a terminal outcome of the loop.
type State string

const (
	// StateSucceeded means the materializer accepted a specification.
	StateSucceeded State = "SUCCEEDED"

	// StateExhausted means the retry ceiling was reached; the last
	// specification and the full history are surfaced for a human.
	StateExhausted State = "EXHAUSTED"

	// StateFatal means no repair could be constructed at all. Distinct
	// from exhaustion: the budget may not have been spent.
	StateFatal State = "FATAL"
)

// Materializer is the narrow contract to the environment tool. Failure
// is a value, not an error: the diagnostic text drives repair.
type Materializer interface {
	Create(ctx context.Context, specPath, envName string) (bool, string)
	Exists(ctx context.Context, envName string) bool
	Remove(ctx context.Context, envName string) error
}

// Result is the terminal outcome of one build.
type Result struct {
	BuildID  string
	State    State
	Spec     envspec.Specification
	SpecPath string
	EnvName  string

	// History holds one record per materialization call, append-only.
	History []envspec.AttemptRecord
}

// Controller owns the repair state machine.
//
// Description:
//
//	Strictly sequential: one specification is live at a time, at most
//	maxAttempts materializer calls are made, and the history it
//	accumulates is owned by a single Run call. Oracle failures never
//	crash the loop; they route to the deterministic fallback.
//
// Thread Safety: A Controller may run one build at a time.
type Controller struct {
	oracle      llm.Client
	prompts     *config.Prompts
	mat         Materializer
	maxAttempts int
}

// NewController creates a Controller.
//
// Inputs:
//   - oracle: Repair oracle; may be nil to run fallback-only repairs.
//   - mat: Materializer adapter.
//   - maxAttempts: Retry ceiling; non-positive selects the default.
func NewController(oracle llm.Client, mat Materializer, maxAttempts int) (*Controller, error) {
	if mat == nil {
		return nil, fmt.Errorf("repair: controller requires a materializer")
	}
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultMaxRetries
	}
	prompts, err := config.LoadPrompts()
	if err != nil {
		return nil, err
	}
	return &Controller{
		oracle:      oracle,
		prompts:     prompts,
		mat:         mat,
		maxAttempts: maxAttempts,
	}, nil
}

// Run executes the loop until a terminal state.
//
// Description:
//
//	Each cycle writes the live specification to specPath (overwriting),
//	removes any pre-existing environment of the same name, and invokes
//	the materializer. On failure below the ceiling a repair is
//	constructed: the oracle first, the deterministic fallback when the
//	oracle fails or returns a no-op under normalized-line comparison.
//
// Outputs:
//   - *Result: Terminal state with the full attempt history; non-nil
//     even when err is non-nil (fatal outcomes carry their history).
//   - error: Non-nil only for FATAL outcomes and spec-file write
//     failures.
func (c *Controller) Run(ctx context.Context, spec envspec.Specification, specPath, envName string) (*Result, error) {
	buildID := uuid.NewString()

	ctx, span := otel.Tracer(repairTracerName).Start(ctx, "repair.Controller.Run",
		oteltrace.WithAttributes(
			attribute.String("build_id", buildID),
			attribute.String("env_name", envName),
			attribute.Int("max_attempts", c.maxAttempts),
		),
	)
	defer span.End()

	result := &Result{
		BuildID:  buildID,
		Spec:     spec,
		SpecPath: specPath,
		EnvName:  envName,
	}
	current := spec

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := os.WriteFile(specPath, []byte(current.Text), 0o644); err != nil {
			result.State = StateFatal
			result.Spec = current
			return result, fmt.Errorf("repair: writing specification file: %w", err)
		}

		// A stale same-named environment would turn a broken spec into
		// a false success.
		if c.mat.Exists(ctx, envName) {
			if err := c.mat.Remove(ctx, envName); err != nil {
				slog.Warn("Cannot remove stale environment", "build_id", buildID, "env_name", envName, "error", err)
			}
		}

		slog.Info("Testing specification",
			"build_id", buildID,
			"attempt", attempt,
			"max_attempts", c.maxAttempts)

		ok, diagnostic := c.mat.Create(ctx, specPath, envName)
		if ok {
			result.History = append(result.History, envspec.AttemptRecord{
				Number:        attempt,
				Spec:          current,
				RepairSummary: "specification accepted",
			})
			result.State = StateSucceeded
			result.Spec = current
			slog.Info("Build succeeded", "build_id", buildID, "attempts", attempt)
			return result, nil
		}

		diagnostic = envspec.Truncate(diagnostic, config.DiagnosticStoreBytes)

		if attempt == c.maxAttempts {
			result.History = append(result.History, envspec.AttemptRecord{
				Number:        attempt,
				Spec:          current,
				Diagnostic:    diagnostic,
				RepairSummary: "none (retry ceiling reached)",
			})
			result.State = StateExhausted
			result.Spec = current
			slog.Warn("Retry ceiling reached", "build_id", buildID, "attempts", attempt)
			return result, nil
		}

		next, summary, err := c.repairOnce(ctx, current, diagnostic, result.History)
		if err != nil {
			result.History = append(result.History, envspec.AttemptRecord{
				Number:        attempt,
				Spec:          current,
				Diagnostic:    diagnostic,
				RepairSummary: "none (no repair possible)",
			})
			result.State = StateFatal
			result.Spec = current
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, fmt.Errorf("repair: attempt %d: %w", attempt, err)
		}

		result.History = append(result.History, envspec.AttemptRecord{
			Number:        attempt,
			Spec:          current,
			Diagnostic:    diagnostic,
			RepairSummary: summary,
		})
		slog.Info("Repair applied", "build_id", buildID, "attempt", attempt, "summary", summary)
		current = next
	}

	// Unreachable: the loop always returns from a terminal state.
	result.State = StateExhausted
	result.Spec = current
	return result, nil
}

// repairOnce produces the next specification, oracle first.
func (c *Controller) repairOnce(ctx context.Context, current envspec.Specification, diagnostic string, history []envspec.AttemptRecord) (envspec.Specification, string, error) {
	if c.oracle != nil {
		repaired, err := c.oracleRepair(ctx, current, diagnostic, history)
		if err != nil {
			slog.Warn("Oracle repair failed, applying deterministic fallback", "error", err)
		} else if envspec.SameNormalized(current, repaired) {
			slog.Info("Oracle repair was a no-op, applying deterministic fallback")
		} else {
			return repaired, "oracle repair applied", nil
		}
	}
	return ApplyFallback(current, diagnostic)
}

// oracleRepair asks the oracle for a fixed manifest and validates the
// reply shape.
func (c *Controller) oracleRepair(ctx context.Context, current envspec.Specification, diagnostic string, history []envspec.AttemptRecord) (envspec.Specification, error) {
	prompt, err := c.prompts.Repair.Render(map[string]string{
		"Spec":       current.Text,
		"Diagnostic": diagnostic,
		"History":    envspec.SummarizeHistory(history, config.DiagnosticExcerptBytes),
	})
	if err != nil {
		return envspec.Specification{}, err
	}

	raw, err := c.oracle.Generate(ctx, c.prompts.Repair.System, prompt,
		llm.GenerationParams{Temperature: llm.Temp(0.3)})
	if err != nil {
		return envspec.Specification{}, err
	}

	text := synth.CleanMarkdown(raw)
	if err := synth.ValidateSpec(text); err != nil {
		return envspec.Specification{}, err
	}
	return envspec.Specification{Text: text}, nil
}
