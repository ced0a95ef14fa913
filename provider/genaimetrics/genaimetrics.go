/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package genaimetrics records OpenTelemetry counters for judge model token
// usage, with graceful degradation if metric creation fails.
package genaimetrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Recorder holds the token-usage counters. One recorder is shared across
// providers; the model name is a dimension on every recorded metric.
type Recorder struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	judgeCalls       metric.Int64Counter
}

// New creates a recorder on the named meter. If any counter fails to
// initialize it logs a warning and substitutes a no-op counter instead of
// failing entirely.
func New(meterName string) *Recorder {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("The number of prompt tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("The number of completion tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	judgeCalls, err := meter.Int64Counter("genai.judge.calls",
		metric.WithDescription("The number of judge model invocations"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create judge calls counter, metrics will be disabled", "error", err, "meter", meterName)
		judgeCalls = noop.Int64Counter{}
	}

	return &Recorder{
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		judgeCalls:       judgeCalls,
	}
}

// RecordUsage records one judge call and its token consumption.
func (r *Recorder) RecordUsage(ctx context.Context, model string, promptTokens, completionTokens int64) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	r.judgeCalls.Add(ctx, 1, attrs)
	r.promptTokens.Add(ctx, promptTokens, attrs)
	r.completionTokens.Add(ctx, completionTokens, attrs)
}
