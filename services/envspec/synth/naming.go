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
	"strings"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SanitizeEnvName converts an arbitrary project name into a valid conda
// environment name.
//
// Description:
//
//	Spaces and hyphens become underscores, any other non-alphanumeric
//	character is deleted, the result is lowercased, consecutive
//	underscores collapse, and edge underscores are stripped. A name that
//	ends up empty becomes "env"; a leading digit gets an "env_" prefix.
func SanitizeEnvName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "env"
	}

	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	name = invalidNameChars.ReplaceAllString(name, "")
	name = strings.ToLower(name)

	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	name = strings.Trim(name, "_")

	if name == "" {
		return "env"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "env_" + name
	}
	return name
}
