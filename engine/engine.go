/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package engine scores batches of entities against the enabled rules of a
// project. Every (entity, rule) pair is independent: filter, sample, render,
// invoke, parse. Failures of one pair are converted to user-facing log
// entries and never abort the batch; only a rule-registry outage surfaces as
// a batch error so the consumer can leave the batch unacknowledged.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tracelens/onlineval/engine/pythonrunner"
	"github.com/tracelens/onlineval/entity"
	"github.com/tracelens/onlineval/metrics"
	"github.com/tracelens/onlineval/promptrender"
	"github.com/tracelens/onlineval/provider"
	"github.com/tracelens/onlineval/provider/genaimetrics"
	"github.com/tracelens/onlineval/rules"
	"github.com/tracelens/onlineval/sinks"
)

const (
	defaultWorkers      = 8
	defaultCallTimeout  = 60 * time.Second
	defaultBatchTimeout = 5 * time.Minute
)

// RuleSource resolves the enabled rules of a (project, kind) pair.
type RuleSource interface {
	FindEnabled(ctx context.Context, projectID uuid.UUID, kind rules.Kind) ([]rules.Rule, error)
}

// Engine evaluates entity batches. Construct with New; the zero value is not
// usable.
type Engine struct {
	rules  RuleSource
	llm    provider.Client
	python pythonrunner.Runner
	scores sinks.ScoreSink
	logs   sinks.LogSink
	usage  *genaimetrics.Recorder

	workers      int
	callTimeout  time.Duration
	batchTimeout time.Duration
}

// Option configures the engine.
type Option func(*Engine)

// WithPythonRunner wires the external user-defined-metric executor.
func WithPythonRunner(r pythonrunner.Runner) Option {
	return func(e *Engine) { e.python = r }
}

// WithUsageRecorder wires GenAI token accounting for judge calls.
func WithUsageRecorder(rec *genaimetrics.Recorder) Option {
	return func(e *Engine) { e.usage = rec }
}

// WithWorkers caps concurrent (entity, rule) evaluations, and with them the
// number of in-flight outbound LLM calls.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCallTimeout bounds one provider or metric-runner call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) { e.callTimeout = d }
}

// WithBatchTimeout bounds total processing of one batch. Pairs still pending
// at expiry fail with a timeout like any other provider error.
func WithBatchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.batchTimeout = d }
}

// New builds an engine over the given rule source, provider boundary, and
// output sinks.
func New(source RuleSource, llm provider.Client, scores sinks.ScoreSink, logs sinks.LogSink, opts ...Option) *Engine {
	e := &Engine{
		rules:        source,
		llm:          llm,
		scores:       scores,
		logs:         logs,
		workers:      defaultWorkers,
		callTimeout:  defaultCallTimeout,
		batchTimeout: defaultBatchTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores every entity of the batch against every enabled rule of
// (projectID, kind) and submits the accumulated feedback scores in a single
// sink write. It returns an error only when the rules cannot be resolved at
// all; every item-level failure is contained and logged.
func (e *Engine) Evaluate(ctx context.Context, projectID uuid.UUID, workspaceID string, kind rules.Kind, entities []entity.Scored) error {
	return e.evaluate(ctx, projectID, workspaceID, kind, uuid.Nil, entities)
}

// EvaluateRule behaves like Evaluate but restricts scoring to a single rule,
// for envelopes routed point-to-rule by the producer.
func (e *Engine) EvaluateRule(ctx context.Context, projectID uuid.UUID, workspaceID string, kind rules.Kind, ruleID uuid.UUID, entities []entity.Scored) error {
	return e.evaluate(ctx, projectID, workspaceID, kind, ruleID, entities)
}

func (e *Engine) evaluate(ctx context.Context, projectID uuid.UUID, workspaceID string, kind rules.Kind, onlyRule uuid.UUID, entities []entity.Scored) error {
	enabled, err := e.rules.FindEnabled(ctx, projectID, kind)
	if err != nil {
		return fmt.Errorf("resolving rules for project %s: %w", projectID, err)
	}
	if onlyRule != uuid.Nil {
		kept := enabled[:0:0]
		for _, r := range enabled {
			if r.ID == onlyRule {
				kept = append(kept, r)
			}
		}
		enabled = kept
	}
	if len(enabled) == 0 || len(entities) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { metrics.ObserveBatchDuration(time.Since(start)) }()

	batchCtx := ctx
	if e.batchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, e.batchTimeout)
		defer cancel()
	}

	var (
		mu        sync.Mutex
		collected []sinks.FeedbackScore
	)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range entities {
		ent := &entities[i]
		for _, r := range enabled {
			g.Go(func() error {
				pair := e.evaluatePair(batchCtx, workspaceID, r, ent)
				if len(pair) > 0 {
					mu.Lock()
					collected = append(collected, pair...)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait() // pair errors are contained, never returned

	if len(collected) == 0 {
		return nil
	}

	// The batch is already scored; redelivering it over a sink outage would
	// double-score every successful pair. Log and move on.
	if err := e.scores.SubmitBatch(context.WithoutCancel(ctx), workspaceID, collected); err != nil {
		clog.FromContext(ctx).With("workspace_id", workspaceID).
			With("scores", len(collected)).
			With("error", err).
			Error("Dropping feedback score batch")
		return nil
	}
	metrics.AddScoresWritten(len(collected))
	return nil
}

// evaluatePair runs one (entity, rule) evaluation end to end. All failures,
// panics included, are contained here.
func (e *Engine) evaluatePair(ctx context.Context, workspaceID string, r rules.Rule, ent *entity.Scored) (scores []sinks.FeedbackScore) {
	defer func() {
		if p := recover(); p != nil {
			scores = nil
			metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeFailed)
			e.reportFailure(ctx, workspaceID, r, sinks.LevelError,
				fmt.Sprintf("evaluating entity %s panicked: %v", ent.ID, p), nil)
		}
	}()

	ok, err := matchesAll(ent, r.Filters)
	if err != nil {
		metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeFailed)
		e.reportFailure(ctx, workspaceID, r, sinks.LevelError,
			fmt.Sprintf("filtering entity %s: %v", ent.ID, err), nil)
		return nil
	}
	if !ok {
		metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeFiltered)
		return nil
	}

	// One independent draw per (entity, rule) pair; no seeding, no
	// determinism across retries or redeliveries.
	if rand.Float64() >= r.SamplingRate {
		metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeSampled)
		return nil
	}

	if r.Kind.IsPythonMetric() {
		return e.evaluatePython(ctx, workspaceID, r, ent)
	}
	return e.evaluateJudge(ctx, workspaceID, r, ent)
}

func (e *Engine) evaluateJudge(ctx context.Context, workspaceID string, r rules.Rule, ent *entity.Scored) []sinks.FeedbackScore {
	code := r.LLMJudge
	values := resolveVariables(ent, r.Kind, code.Variables)

	messages := make([]provider.Message, 0, len(code.Messages))
	for _, m := range code.Messages {
		messages = append(messages, provider.Message{
			Role:    messageRole(m.Role),
			Content: promptrender.Render(m.Content, values),
		})
	}

	req := &provider.Request{
		Model:       code.Model.Name,
		Temperature: code.Model.Temperature,
		MaxTokens:   code.Model.MaxTokens,
		Messages:    messages,
		ResponseFormat: &provider.ResponseFormat{
			Name:   r.Name,
			Fields: code.Schema,
		},
	}

	callCtx := ctx
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}
	resp, err := e.llm.Chat(callCtx, req)
	if err != nil {
		metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeFailed)
		e.reportFailure(ctx, workspaceID, r, sinks.LevelError,
			fmt.Sprintf("scoring entity %s with model %s: %v", ent.ID, code.Model.Name, err), nil)
		return nil
	}
	if e.usage != nil {
		e.usage.RecordUsage(ctx, code.Model.Name, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	scores, err := parseScores(ent.ID, code.Schema, resp.Message)
	if err != nil {
		metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeFailed)
		e.reportFailure(ctx, workspaceID, r, sinks.LevelWarn,
			fmt.Sprintf("discarding response for entity %s: %v", ent.ID, err),
			map[string]string{"response": truncate(resp.Message, 512)})
		return nil
	}
	metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeScored)
	return scores
}

func (e *Engine) evaluatePython(ctx context.Context, workspaceID string, r rules.Rule, ent *entity.Scored) []sinks.FeedbackScore {
	if e.python == nil {
		metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeFailed)
		e.reportFailure(ctx, workspaceID, r, sinks.LevelError,
			fmt.Sprintf("skipping entity %s: no metric runner configured", ent.ID), nil)
		return nil
	}

	code := r.Python
	args := resolveArguments(ent, r.Kind, code.Arguments)

	callCtx := ctx
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}
	results, err := e.python.Score(callCtx, code.Metric, args)
	if err != nil {
		metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeFailed)
		e.reportFailure(ctx, workspaceID, r, sinks.LevelError,
			fmt.Sprintf("scoring entity %s with metric %q: %v", ent.ID, code.Metric, err), nil)
		return nil
	}

	scores := make([]sinks.FeedbackScore, 0, len(results))
	for _, res := range results {
		scores = append(scores, sinks.FeedbackScore{
			EntityID: ent.ID,
			Name:     res.Name,
			Value:    res.Value,
			Reason:   res.Reason,
			Source:   sinks.SourceOnlineScoring,
		})
	}
	metrics.IncRuleEvaluation(string(r.Kind), metrics.OutcomeScored)
	return scores
}

// reportFailure records one contained item failure in the user-facing log,
// keyed by the rule so its owner can inspect it. The batch context may
// already be expired when this runs.
func (e *Engine) reportFailure(ctx context.Context, workspaceID string, r rules.Rule, level sinks.LogLevel, msg string, markers map[string]string) {
	entry := sinks.LogEntry{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		WorkspaceID: workspaceID,
		RuleID:      r.ID,
		Message:     msg,
		Markers:     markers,
	}
	if err := e.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		clog.FromContext(ctx).With("rule_id", r.ID).
			With("error", err).
			Warn("Failed to append user-facing log entry")
	}
}

func messageRole(role string) provider.Role {
	switch role {
	case "system":
		return provider.RoleSystem
	case "assistant", "ai", "model":
		return provider.RoleAssistant
	default:
		return provider.RoleUser
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
