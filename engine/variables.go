/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package engine

import (
	"strings"

	"github.com/tracelens/onlineval/entity"
	"github.com/tracelens/onlineval/rules"
)

// contextVariable is the built-in template variable carrying the rendered
// thread transcript for thread-kind rules.
const contextVariable = "context"

// resolveVariables builds the value set for template rendering. Resolution
// is fail-soft: a mapping whose path does not resolve yields its configured
// path string so rendering never aborts on a missing field. Thread kinds get
// the chronological transcript under "context" before explicit mappings are
// applied, so a rule may override it.
func resolveVariables(e *entity.Scored, kind rules.Kind, mappings []rules.VariableMapping) map[string]string {
	values := make(map[string]string, len(mappings)+1)
	if kind.Target() == rules.TargetThread {
		values[contextVariable] = e.Transcript()
	}
	for _, m := range mappings {
		if m.IsLiteral() {
			values[m.Name] = m.Literal
			continue
		}
		if val, ok := e.Lookup(m.Section, m.Path); ok {
			values[m.Name] = val
		} else {
			values[m.Name] = m.Path
		}
	}
	return values
}

// resolveArguments maps a python metric's argument references onto entity
// values. A reference is "section" or "section.path" over input, output,
// and metadata; thread kinds additionally resolve "context" to the
// chronological transcript, mirroring the judge template variable. Anything
// else passes through as a literal, and an unresolved path falls back to
// the reference string itself.
func resolveArguments(e *entity.Scored, kind rules.Kind, arguments map[string]string) map[string]string {
	out := make(map[string]string, len(arguments))
	for name, ref := range arguments {
		out[name] = resolveArgument(e, kind, ref)
	}
	return out
}

func resolveArgument(e *entity.Scored, kind rules.Kind, ref string) string {
	if ref == contextVariable && kind.Target() == rules.TargetThread {
		return e.Transcript()
	}
	sec, path, _ := strings.Cut(ref, ".")
	switch rules.Section(sec) {
	case rules.SectionInput, rules.SectionOutput, rules.SectionMetadata:
		if val, ok := e.Lookup(rules.Section(sec), path); ok {
			return val
		}
		return ref
	default:
		return ref
	}
}
