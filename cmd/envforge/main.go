// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command envforge builds a working conda environment for an arbitrary
// Python project: it locates the effective project root, extracts
// dependency facts, synthesizes an environment.yml through the oracle,
// and repairs it against conda failures until it materializes or the
// retry budget runs out.
//
// Usage:
//
//	envforge ./my-project
//	envforge ./my-project ./out/environment.yml
//	envforge ./my-project --env-name demo --python-version 3.12
//	envforge ./my-project --no-create            # write the spec, skip conda
//	envforge ./my-project --provider ollama      # local oracle
//	envforge ./my-project --oracle-scan          # per-file generative scan
//
// With OpenAI (default provider):
//
//	OPENAI_API_KEY=sk-... envforge ./my-project
//
// With Ollama:
//
//	OLLAMA_BASE_URL=http://localhost:11434 OLLAMA_MODEL=llama3 envforge ./my-project --provider ollama
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/envforge/services/envspec"
	"github.com/AleutianAI/envforge/services/envspec/conda"
	"github.com/AleutianAI/envforge/services/envspec/config"
	"github.com/AleutianAI/envforge/services/envspec/repair"
	"github.com/AleutianAI/envforge/services/envspec/rootfind"
	"github.com/AleutianAI/envforge/services/envspec/scan"
	"github.com/AleutianAI/envforge/services/envspec/synth"
	"github.com/AleutianAI/envforge/services/llm"
)

var (
	envNameFlag       string
	pythonVersionFlag string
	providerFlag      string
	maxRetriesFlag    int
	noCreateFlag      bool
	oracleScanFlag    bool
	forceFlag         bool
	summaryFlag       string
	traceFlag         bool
	verboseFlag       bool
)

// existingEnvFiles are conda-native environment files whose presence
// short-circuits synthesis.
var existingEnvFiles = []string{"environment.yml", "environment.yaml", "conda.yaml"}

func main() {
	rootCmd := &cobra.Command{
		Use:   "envforge <source> [destination]",
		Short: "Synthesize and self-heal a conda environment for a Python project",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runBuild,

		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&envNameFlag, "env-name", "", "environment name (default: sanitized project directory name)")
	rootCmd.Flags().StringVar(&pythonVersionFlag, "python-version", "", "minimum Python version override (e.g. 3.12)")
	rootCmd.Flags().StringVar(&providerFlag, "provider", "", "oracle provider: openai or ollama (default: ENVFORGE_PROVIDER or openai)")
	rootCmd.Flags().IntVar(&maxRetriesFlag, "max-retries", 0, "retry ceiling for the repair loop (default: 5)")
	rootCmd.Flags().BoolVar(&noCreateFlag, "no-create", false, "write the specification file without invoking conda")
	rootCmd.Flags().BoolVar(&oracleScanFlag, "oracle-scan", false, "supplement static analysis with per-file oracle extraction")
	rootCmd.Flags().BoolVar(&forceFlag, "force", false, "synthesize even when the project already ships a conda environment file")
	rootCmd.Flags().StringVar(&summaryFlag, "summary", "", "write a dependency facts summary to this path")
	rootCmd.Flags().BoolVar(&traceFlag, "trace", false, "emit OpenTelemetry spans to stdout")
	rootCmd.Flags().BoolVar(&verboseFlag, "verbose", false, "debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	setupLogging()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if traceFlag {
		shutdown, err := setupTracing(ctx)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	settings := config.FromEnv()
	if providerFlag != "" {
		settings.Provider = providerFlag
	}
	if maxRetriesFlag > 0 {
		settings.MaxRetries = maxRetriesFlag
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	// Root location fails fast on a bad path; everything downstream
	// tolerates partial data.
	pc, err := rootfind.Locate(args[0])
	if err != nil {
		return err
	}
	if pc.Redirected {
		fmt.Printf("Project root redirected to %s\n", pc.Root)
	}

	if !forceFlag {
		if existing := findExistingEnvFile(pc.Root); existing != "" {
			fmt.Printf("Project already ships %s; nothing to synthesize.\n", existing)
			fmt.Println("Re-run with --force to synthesize a fresh specification.")
			return nil
		}
	}

	files, err := scan.SelectFiles(pc.Root)
	if err != nil {
		return err
	}
	pc.Files = files

	oracle, err := llm.NewClient(settings)
	if err != nil {
		return err
	}

	var generative *scan.GenerativeAnalyzer
	if oracleScanFlag {
		if generative, err = scan.NewGenerativeAnalyzer(oracle); err != nil {
			return err
		}
	}
	facts, err := scan.NewExtractor(generative).Extract(ctx, pc)
	if err != nil {
		return err
	}

	if summaryFlag != "" {
		if err := writeSummary(summaryFlag, pc, facts); err != nil {
			slog.Warn("Cannot write summary file", "path", summaryFlag, "error", err)
		} else {
			fmt.Printf("Dependency summary written to %s\n", summaryFlag)
		}
	}

	projectName := filepath.Base(pc.Root)
	envName := envNameFlag
	if envName == "" {
		envName = projectName
	}
	envName = synth.SanitizeEnvName(envName)

	builder, err := synth.NewBuilder(oracle)
	if err != nil {
		return err
	}
	specification, err := builder.Synthesize(ctx, facts, projectName, pythonVersionFlag)
	if err != nil {
		return err
	}

	specPath := filepath.Join(pc.Root, "environment.yml")
	if len(args) == 2 {
		specPath = args[1]
	}

	if noCreateFlag {
		if err := os.WriteFile(specPath, []byte(specification.Text), 0o644); err != nil {
			return fmt.Errorf("writing specification file: %w", err)
		}
		fmt.Printf("Specification written to %s (conda skipped)\n", specPath)
		return nil
	}

	executor := conda.NewExecutor(settings.CreateTimeout)
	controller, err := repair.NewController(oracle, executor, settings.MaxRetries)
	if err != nil {
		return err
	}

	result, runErr := controller.Run(ctx, specification, specPath, envName)
	report(result, runErr)
	if result != nil && result.State == repair.StateSucceeded {
		return nil
	}
	if runErr != nil {
		return runErr
	}
	return fmt.Errorf("build ended in state %s after %d attempts", result.State, len(result.History))
}

func setupLogging() {
	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// setupTracing installs a stdout span exporter. Returns the shutdown
// hook that flushes pending spans.
func setupTracing(ctx context.Context) (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return func() {
		if err := provider.Shutdown(ctx); err != nil {
			slog.Warn("Trace provider shutdown failed", "error", err)
		}
	}, nil
}

func findExistingEnvFile(root string) string {
	for _, name := range existingEnvFiles {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return name
		}
	}
	return ""
}

// writeSummary persists a human-readable facts report next to the
// build for later diagnosis.
func writeSummary(path string, pc envspec.ProjectContext, facts envspec.DependencyFacts) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Dependency Summary for %s\n\n", filepath.Base(pc.Root))
	fmt.Fprintf(&b, "Files analyzed: %d\n", len(pc.Files))
	fmt.Fprintf(&b, "GPU required: %v\n", facts.GPURequired)
	if facts.PythonMin != "" {
		fmt.Fprintf(&b, "Minimum Python: %s\n", facts.PythonMin)
	}
	b.WriteString("\n## Packages\n")
	if len(facts.Packages) == 0 {
		b.WriteString("(none detected)\n")
	}
	for _, pkg := range facts.Packages {
		if hint, ok := facts.VersionHints[pkg]; ok {
			fmt.Fprintf(&b, "- %s%s\n", pkg, hint)
		} else {
			fmt.Fprintf(&b, "- %s\n", pkg)
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// report prints the terminal outcome; failures dump the full history
// so a human can pick up where the loop stopped.
func report(result *repair.Result, runErr error) {
	if result == nil {
		return
	}
	switch result.State {
	case repair.StateSucceeded:
		fmt.Printf("\nEnvironment %q created after %d attempt(s).\n", result.EnvName, len(result.History))
		fmt.Printf("Specification: %s\n", result.SpecPath)
		fmt.Printf("Activate with: conda activate %s\n", result.EnvName)
	case repair.StateExhausted:
		fmt.Printf("\nRetry ceiling reached after %d attempt(s).\n", len(result.History))
		printHistory(result)
	case repair.StateFatal:
		fmt.Printf("\nBuild aborted: %v\n", runErr)
		printHistory(result)
	}
}

func printHistory(result *repair.Result) {
	fmt.Println("Attempt history:")
	for _, rec := range result.History {
		fmt.Printf("  [%d] %s\n", rec.Number, rec.RepairSummary)
		if rec.Diagnostic != "" {
			fmt.Printf("      %s\n", envspec.Truncate(firstLine(rec.Diagnostic), 200))
		}
	}
	fmt.Printf("Last specification: %s\n", result.SpecPath)
	fmt.Println("Inspect the file and adjust it manually, or re-run with a higher --max-retries.")
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
