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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyntaxVersionHints(t *testing.T) {
	matchCase := `
match command:
    case "start":
        run()
`
	assert.Contains(t, syntaxVersionHints(matchCase), "3.10")

	walrus := "while (chunk := read()):\n    pass\n"
	assert.Contains(t, syntaxVersionHints(walrus), "3.8")

	literal := "from typing import Literal\nMode = Literal['a', 'b']\n"
	assert.Contains(t, syntaxVersionHints(literal), "3.8")

	plain := "import os\nprint('hello')\n"
	assert.Empty(t, syntaxVersionHints(plain))
}

func TestMaxVersion(t *testing.T) {
	assert.Equal(t, "3.10", MaxVersion("3.10", "3.8"))
	assert.Equal(t, "3.10", MaxVersion("3.9", "3.10"))
	assert.Equal(t, "3.10", MaxVersion("3.10", "3.2"), "ordering is numeric, not lexical")
	assert.Equal(t, "3.9", MaxVersion("", "3.9"))
	assert.Equal(t, "3.9", MaxVersion("3.9", ""))
	assert.Equal(t, "", MaxVersion("", ""))
	assert.Equal(t, "3.9", MaxVersion("3.9", "not-a-version"))
}

func TestPrioritizeForVersionScan(t *testing.T) {
	paths := []string{
		"/p/pkg/util.py",
		"/p/tests/conftest.py",
		"/p/main.py",
		"/p/tests/test_api.py",
	}
	ordered := prioritizeForVersionScan(paths)
	assert.Equal(t, "/p/tests/conftest.py", ordered[0])
	assert.Equal(t, "/p/tests/test_api.py", ordered[1])
	assert.Equal(t, "/p/main.py", ordered[2])
	assert.Equal(t, "/p/pkg/util.py", ordered[3])
}
