/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package rules defines the automation rule evaluator model consumed by the
// online scoring engine: the evaluator kind taxonomy, the filter DSL, prompt
// variable mappings, and the structured-output schema fields.
//
// Rules are owned and mutated by the management layer. The engine only ever
// reads them, through the cached registry in rules/registry.
package rules
