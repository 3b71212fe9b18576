// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package envspec

import (
	"strings"
	"testing"
)

func TestNormalizeLines_StripsBlanksAndComments(t *testing.T) {
	in := "name: demo\n\n# a comment\ndependencies:\n  - python=3.11\n"
	got := NormalizeLines(in)
	if strings.Contains(got, "#") {
		t.Errorf("comments should be stripped, got: %q", got)
	}
	if strings.Contains(got, "\n\n") {
		t.Errorf("blank lines should be stripped, got: %q", got)
	}
}

func TestSameNormalized_IgnoresOrderAndWhitespace(t *testing.T) {
	a := Specification{Text: "dependencies:\n  - numpy\n  - requests\n"}
	b := Specification{Text: "  - requests\n\ndependencies:\n# note\n  - numpy\n"}
	if !SameNormalized(a, b) {
		t.Error("expected specs to match under normalization")
	}
}

// A reorder-only "fix" is classified as a no-op. This is an accepted
// false positive of the line-set comparison, pinned here so a future
// change to the semantics is deliberate.
func TestSameNormalized_ReorderOnlyRepairIsNoOp(t *testing.T) {
	before := Specification{Text: "dependencies:\n  - numpy\n  - scipy\n"}
	after := Specification{Text: "dependencies:\n  - scipy\n  - numpy\n"}
	if !SameNormalized(before, after) {
		t.Error("reorder-only repair should normalize to the same form")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("Truncate should not touch short input, got %q", got)
	}
	long := strings.Repeat("x", 50)
	got := Truncate(long, 10)
	if !strings.HasPrefix(got, strings.Repeat("x", 10)) || !strings.Contains(got, "truncated") {
		t.Errorf("unexpected truncation result: %q", got)
	}
}

func TestSummarizeHistory_Empty(t *testing.T) {
	got := SummarizeHistory(nil, 300)
	if got != "None - this is the first attempt" {
		t.Errorf("unexpected empty-history summary: %q", got)
	}
}

func TestSummarizeHistory_BoundsDiagnostics(t *testing.T) {
	history := []AttemptRecord{
		{Number: 1, Diagnostic: strings.Repeat("e", 1000), RepairSummary: "relaxed numpy"},
		{Number: 2, Diagnostic: "conflict", RepairSummary: "pinned python=3.10"},
	}
	got := SummarizeHistory(history, 50)
	if !strings.Contains(got, "[Attempt 1]") || !strings.Contains(got, "[Attempt 2]") {
		t.Fatalf("summary missing attempts: %q", got)
	}
	if !strings.Contains(got, "relaxed numpy") || !strings.Contains(got, "pinned python=3.10") {
		t.Errorf("summary missing fix descriptions: %q", got)
	}
	if strings.Contains(got, strings.Repeat("e", 60)) {
		t.Errorf("diagnostic excerpt not bounded: %q", got)
	}
}
