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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// gpuKeywords are the lowercase substrings treated as a CUDA/GPU
// signal. The match is a heuristic and callers treat it as a hint,
// not proof.
var gpuKeywords = []string{"cuda", "gpu", "torch.device", "tensorflow-gpu"}

// StaticAnalyzer extracts import facts from Python sources by parsing
// them into a syntax tree.
//
// Description:
//
//	The parser is error tolerant: a file with syntax errors still yields
//	the imports in its well-formed regions, and a file that cannot be
//	parsed at all contributes nothing instead of failing the scan.
//
// Thread Safety: StaticAnalyzer is NOT safe for concurrent use; the
// underlying parser is stateful. The extraction pipeline is sequential.
type StaticAnalyzer struct {
	parser *sitter.Parser
}

// NewStaticAnalyzer creates a StaticAnalyzer with a Python grammar.
func NewStaticAnalyzer() *StaticAnalyzer {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &StaticAnalyzer{parser: parser}
}

// ScanSource extracts top-level import names and a GPU signal from one
// Python source buffer.
//
// Inputs:
//   - ctx: Cancels a long parse.
//   - content: Raw file bytes.
//
// Outputs:
//   - []string: Top-level import names (first dotted component), with
//     standard library and underscore-prefixed names excluded.
//   - bool: True when a GPU keyword appears in the content.
//   - error: Non-nil when the buffer could not be parsed at all.
func (a *StaticAnalyzer) ScanSource(ctx context.Context, content []byte) ([]string, bool, error) {
	hasGPU := containsGPUKeyword(string(content))

	tree, err := a.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, hasGPU, fmt.Errorf("scan: parsing source: %w", err)
	}
	defer tree.Close()

	found := map[string]struct{}{}
	collectImports(tree.RootNode(), content, found)

	var imports []string
	for name := range found {
		if IsStdlib(name) {
			continue
		}
		imports = append(imports, name)
	}
	return imports, hasGPU, nil
}

// ScanNotebook extracts imports from a Jupyter notebook by
// concatenating its code cells and scanning the result as one source.
//
// Outputs:
//   - error: Non-nil when the notebook JSON is malformed. Notebooks
//     often contain magic commands; callers log and skip on error.
func (a *StaticAnalyzer) ScanNotebook(ctx context.Context, content []byte) ([]string, bool, error) {
	var nb struct {
		Cells []struct {
			CellType string   `json:"cell_type"`
			Source   []string `json:"source"`
		} `json:"cells"`
	}
	if err := json.Unmarshal(content, &nb); err != nil {
		return nil, false, fmt.Errorf("scan: decoding notebook: %w", err)
	}

	var code strings.Builder
	for _, cell := range nb.Cells {
		if cell.CellType != "code" {
			continue
		}
		for _, line := range cell.Source {
			code.WriteString(line)
		}
		code.WriteString("\n")
	}
	return a.ScanSource(ctx, []byte(code.String()))
}

// collectImports walks the syntax tree accumulating the first dotted
// component of every import statement. Relative imports have no module
// name at the top level and are skipped.
func collectImports(node *sitter.Node, content []byte, found map[string]struct{}) {
	switch node.Type() {
	case "import_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				addTopLevel(child, content, found)
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					addTopLevel(name, content, found)
				}
			}
		}
		return
	case "import_from_statement":
		if module := node.ChildByFieldName("module_name"); module != nil && module.Type() == "dotted_name" {
			addTopLevel(module, content, found)
		}
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectImports(node.NamedChild(i), content, found)
	}
}

func addTopLevel(dotted *sitter.Node, content []byte, found map[string]struct{}) {
	text := string(content[dotted.StartByte():dotted.EndByte()])
	top := strings.SplitN(text, ".", 2)[0]
	if top != "" {
		found[top] = struct{}{}
	}
}

func containsGPUKeyword(content string) bool {
	lower := strings.ToLower(content)
	for _, k := range gpuKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// logScanFailure reports a per-file scan failure without aborting the
// overall extraction.
func logScanFailure(path string, err error) {
	slog.Debug("Source scan failed, skipping file", "path", path, "error", err)
}
