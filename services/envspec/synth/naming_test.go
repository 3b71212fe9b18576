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
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeEnvName(t *testing.T) {
	cases := map[string]string{
		"ML Test Project": "ml_test_project",
		"My-App@v2.0":     "my_appv20",
		"project#123":     "project123",
		"--weird--":       "weird",
		"___":             "env",
		"":                "env",
		"   ":             "env",
		"42degrees":       "env_42degrees",
		"already_fine":    "already_fine",
	}
	for input, want := range cases {
		assert.Equal(t, want, SanitizeEnvName(input), "input %q", input)
	}
}

func TestSanitizeEnvName_AlwaysValid(t *testing.T) {
	valid := regexp.MustCompile(`^[a-z][a-z0-9_]*$|^env$`)
	inputs := []string{
		"normal", "UPPER", "mixed Case-name", "@#$%", "9lives",
		"a  b  c", "trailing_", "_leading", "un__der__scores",
	}
	for _, input := range inputs {
		got := SanitizeEnvName(input)
		assert.Regexp(t, valid, got, "input %q produced %q", input, got)
	}
}
