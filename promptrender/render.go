/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package promptrender substitutes {{variable}} placeholders in rule prompt
// templates. Rendering is fail-soft: malformed or unknown placeholders are
// emitted verbatim so a misconfigured rule degrades to a literal prompt
// instead of aborting the evaluation.
package promptrender

import (
	"strings"
	"unicode"
)

// Render replaces every {{name}} token in template with values[name].
// Token names tolerate surrounding whitespace. Tokens whose name is not in
// values, or that are not valid identifiers, are left untouched. An
// unclosed {{ emits the remainder of the template verbatim.
func Render(template string, values map[string]string) string {
	var result strings.Builder

	for len(template) > 0 {
		start := strings.Index(template, "{{")
		if start == -1 {
			result.WriteString(template)
			break
		}
		result.WriteString(template[:start])

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			// Unclosed binding: emit the rest as-is.
			result.WriteString(template[start:])
			break
		}
		end += start + 2

		token := template[start:end]
		name := strings.TrimSpace(token[2 : len(token)-2])

		if isValidIdentifier(name) {
			if val, ok := values[name]; ok {
				result.WriteString(val)
			} else {
				result.WriteString(token)
			}
		} else {
			result.WriteString(token)
		}

		template = template[end:]
	}

	return result.String()
}

// Variables returns the set of placeholder names found in template.
func Variables(template string) map[string]struct{} {
	names := make(map[string]struct{})

	for len(template) > 0 {
		start := strings.Index(template, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(template[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2

		name := strings.TrimSpace(template[start+2 : end-2])
		if isValidIdentifier(name) {
			names[name] = struct{}{}
		}
		template = template[end:]
	}

	return names
}

// isValidIdentifier checks if a string is a valid binding identifier.
// Valid identifiers must start with a letter and contain only letters,
// digits, and underscores.
func isValidIdentifier(s string) bool {
	if len(s) == 0 {
		return false
	}
	runes := []rune(s)
	if !unicode.IsLetter(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
