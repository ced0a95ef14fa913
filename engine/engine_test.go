/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/tracelens/onlineval/engine"
	"github.com/tracelens/onlineval/engine/pythonrunner"
	"github.com/tracelens/onlineval/entity"
	"github.com/tracelens/onlineval/provider"
	"github.com/tracelens/onlineval/rules"
	"github.com/tracelens/onlineval/sinks"
)

type fakeSource struct {
	rules []rules.Rule
	err   error
}

func (f *fakeSource) FindEnabled(context.Context, uuid.UUID, rules.Kind) ([]rules.Rule, error) {
	return f.rules, f.err
}

type fakeClient struct {
	calls atomic.Int32
	chat  func(req *provider.Request) (*provider.Response, error)
}

func (f *fakeClient) Chat(_ context.Context, req *provider.Request) (*provider.Response, error) {
	f.calls.Add(1)
	return f.chat(req)
}

type fakeScoreSink struct {
	mu      sync.Mutex
	batches [][]sinks.FeedbackScore
}

func (f *fakeScoreSink) SubmitBatch(_ context.Context, _ string, scores []sinks.FeedbackScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]sinks.FeedbackScore(nil), scores...))
	return nil
}

func (f *fakeScoreSink) all() []sinks.FeedbackScore {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sinks.FeedbackScore
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakeLogSink struct {
	mu      sync.Mutex
	entries []sinks.LogEntry
}

func (f *fakeLogSink) Append(_ context.Context, entry sinks.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogSink) ListEntries(_ context.Context, q sinks.LogQuery) ([]sinks.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sinks.LogEntry
	for _, e := range f.entries {
		if q.Level != "" && e.Level != q.Level {
			continue
		}
		if q.RuleID != uuid.Nil && e.RuleID != q.RuleID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func judgeRule(kind rules.Kind, samplingRate float64, template string) rules.Rule {
	return rules.Rule{
		ID:           uuid.New(),
		ProjectID:    uuid.New(),
		Name:         "quality",
		Kind:         kind,
		SamplingRate: samplingRate,
		Enabled:      true,
		LLMJudge: &rules.LLMJudgeCode{
			Model:    rules.ModelParams{Name: "gpt-4o"},
			Messages: []rules.PromptMessage{{Role: "user", Content: template}},
			Variables: []rules.VariableMapping{
				{Name: "question", Section: rules.SectionInput, Path: "question"},
			},
			Schema: []rules.OutputSchemaField{{Name: "Quality", Type: rules.FieldInteger}},
		},
	}
}

func qualityResponse(score int) func(*provider.Request) (*provider.Response, error) {
	raw, _ := json.Marshal(map[string]any{
		"Quality": map[string]any{"score": score, "reason": "looks fine"},
	})
	return func(*provider.Request) (*provider.Response, error) {
		return &provider.Response{Message: string(raw)}, nil
	}
}

func traceEntity(question string) entity.Scored {
	return entity.Scored{
		ID:    uuid.New(),
		Name:  "chat",
		Input: json.RawMessage(`{"question": "` + question + `"}`),
	}
}

func TestEvaluateFullSamplingScoresEveryEntityOnce(t *testing.T) {
	client := &fakeClient{chat: qualityResponse(5)}
	scoreSink := &fakeScoreSink{}
	eng := engine.New(
		&fakeSource{rules: []rules.Rule{judgeRule(rules.TraceLLMJudge, 1.0, "Judge {{question}}")}},
		client, scoreSink, &fakeLogSink{},
	)

	entities := []entity.Scored{traceEntity("a"), traceEntity("b"), traceEntity("c")}
	if err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.TraceLLMJudge, entities); err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}

	if got := client.calls.Load(); got != 3 {
		t.Errorf("provider calls: got = %d, wanted = 3", got)
	}
	if got := len(scoreSink.batches); got != 1 {
		t.Fatalf("sink batches: got = %d, wanted = 1 (single batched write)", got)
	}
	if got := len(scoreSink.batches[0]); got != 3 {
		t.Errorf("scores in batch: got = %d, wanted = 3", got)
	}
	for _, sc := range scoreSink.batches[0] {
		if sc.Value != 5 || sc.Name != "Quality" || sc.Source != sinks.SourceOnlineScoring {
			t.Errorf("score: got = %+v, wanted Quality=5 from online_scoring", sc)
		}
	}
}

func TestEvaluateZeroSamplingNeverCallsProvider(t *testing.T) {
	client := &fakeClient{chat: qualityResponse(5)}
	scoreSink := &fakeScoreSink{}
	eng := engine.New(
		&fakeSource{rules: []rules.Rule{judgeRule(rules.TraceLLMJudge, 0.0, "Judge {{question}}")}},
		client, scoreSink, &fakeLogSink{},
	)

	entities := make([]entity.Scored, 50)
	for i := range entities {
		entities[i] = traceEntity("q")
	}
	if err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.TraceLLMJudge, entities); err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}

	if got := client.calls.Load(); got != 0 {
		t.Errorf("provider calls: got = %d, wanted = 0", got)
	}
	if got := len(scoreSink.batches); got != 0 {
		t.Errorf("sink batches: got = %d, wanted = 0", got)
	}
}

func TestEvaluateFiltersAreConjunctive(t *testing.T) {
	r := judgeRule(rules.TraceLLMJudge, 1.0, "Judge {{question}}")
	r.Filters = []rules.Filter{
		{Field: "name", Operator: rules.OpEqual, Value: "chat"},         // matches
		{Field: "tags", Operator: rules.OpContains, Value: "production"}, // does not
	}

	client := &fakeClient{chat: qualityResponse(5)}
	scoreSink := &fakeScoreSink{}
	eng := engine.New(&fakeSource{rules: []rules.Rule{r}}, client, scoreSink, &fakeLogSink{})

	err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.TraceLLMJudge,
		[]entity.Scored{traceEntity("a"), traceEntity("b")})
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}

	if got := client.calls.Load(); got != 0 {
		t.Errorf("provider calls with a non-matching filter: got = %d, wanted = 0", got)
	}
}

func TestEvaluateUnresolvedPathRendersLiteralPath(t *testing.T) {
	r := judgeRule(rules.TraceLLMJudge, 1.0, "Summary: {{summary}}")
	r.LLMJudge.Variables = []rules.VariableMapping{
		{Name: "summary", Section: rules.SectionInput, Path: "messages.0.content"},
	}

	var (
		mu       sync.Mutex
		rendered string
	)
	client := &fakeClient{chat: func(req *provider.Request) (*provider.Response, error) {
		mu.Lock()
		rendered = req.Messages[0].Content
		mu.Unlock()
		return &provider.Response{Message: `{"Quality": {"score": 1, "reason": "r"}}`}, nil
	}}

	eng := engine.New(&fakeSource{rules: []rules.Rule{r}}, client, &fakeScoreSink{}, &fakeLogSink{})
	err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.TraceLLMJudge,
		[]entity.Scored{traceEntity("hello")})
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}

	if want := "Summary: messages.0.content"; rendered != want {
		t.Errorf("rendered prompt: got = %q, wanted = %q", rendered, want)
	}
}

func TestEvaluateProviderErrorDoesNotBlockOtherEntities(t *testing.T) {
	r := judgeRule(rules.TraceLLMJudge, 1.0, "Judge {{question}}")

	client := &fakeClient{chat: func(req *provider.Request) (*provider.Response, error) {
		if strings.Contains(req.Messages[0].Content, "boom") {
			return nil, errors.New("upstream 500")
		}
		return &provider.Response{Message: `{"Quality": {"score": 3, "reason": "r"}}`}, nil
	}}
	scoreSink := &fakeScoreSink{}
	logSink := &fakeLogSink{}
	eng := engine.New(&fakeSource{rules: []rules.Rule{r}}, client, scoreSink, logSink)

	failing := traceEntity("boom")
	healthy := traceEntity("fine")
	err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.TraceLLMJudge,
		[]entity.Scored{failing, healthy})
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}

	scores := scoreSink.all()
	if len(scores) != 1 || scores[0].EntityID != healthy.ID {
		t.Errorf("scores: got = %+v, wanted one score for the healthy entity", scores)
	}

	logged, _ := logSink.ListEntries(context.Background(), sinks.LogQuery{Level: sinks.LevelError})
	if len(logged) != 1 {
		t.Fatalf("error log entries: got = %d, wanted = 1", len(logged))
	}
	if logged[0].RuleID != r.ID || !strings.Contains(logged[0].Message, failing.ID.String()) {
		t.Errorf("log entry: got = %+v, wanted rule %s naming entity %s", logged[0], r.ID, failing.ID)
	}
}

func TestEvaluateMixedTypeSchemaCoercion(t *testing.T) {
	r := judgeRule(rules.TraceLLMJudge, 1.0, "Judge {{question}}")
	r.LLMJudge.Schema = []rules.OutputSchemaField{
		{Name: "Relevance", Type: rules.FieldInteger},
		{Name: "Conciseness", Type: rules.FieldDouble},
		{Name: "Technical Accuracy", Type: rules.FieldBoolean},
	}

	client := &fakeClient{chat: func(*provider.Request) (*provider.Response, error) {
		return &provider.Response{Message: `{
			"Relevance": {"score": 4, "reason": "on topic"},
			"Technical Accuracy": {"score": 4.5, "reason": "mostly right"},
			"Conciseness": {"score": true, "reason": "short"}
		}`}, nil
	}}
	scoreSink := &fakeScoreSink{}
	eng := engine.New(&fakeSource{rules: []rules.Rule{r}}, client, scoreSink, &fakeLogSink{})

	err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.TraceLLMJudge,
		[]entity.Scored{traceEntity("q")})
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}

	got := map[string]float64{}
	for _, sc := range scoreSink.all() {
		got[sc.Name] = sc.Value
	}
	want := map[string]float64{"Relevance": 4, "Technical Accuracy": 4.5, "Conciseness": 1}
	if len(got) != len(want) {
		t.Fatalf("scores: got = %v, wanted = %v", got, want)
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("score %s: got = %v, wanted = %v", name, got[name], value)
		}
	}
}

func TestEvaluateMalformedResponseYieldsZeroScoresAndWarn(t *testing.T) {
	r := judgeRule(rules.TraceLLMJudge, 1.0, "Judge {{question}}")

	client := &fakeClient{chat: func(*provider.Request) (*provider.Response, error) {
		return &provider.Response{Message: `a{"Quality": {"score": 4, "reason": "r"}}`}, nil
	}}
	scoreSink := &fakeScoreSink{}
	logSink := &fakeLogSink{}
	eng := engine.New(&fakeSource{rules: []rules.Rule{r}}, client, scoreSink, logSink)

	err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.TraceLLMJudge,
		[]entity.Scored{traceEntity("q")})
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}

	if got := len(scoreSink.batches); got != 0 {
		t.Errorf("sink batches for malformed response: got = %d, wanted = 0", got)
	}
	warned, _ := logSink.ListEntries(context.Background(), sinks.LogQuery{Level: sinks.LevelWarn})
	if len(warned) != 1 {
		t.Errorf("WARN log entries: got = %d, wanted = 1", len(warned))
	}
}

func TestEvaluateThreadTranscriptIsChronological(t *testing.T) {
	r := judgeRule(rules.ThreadLLMJudge, 1.0, "Evaluate this conversation:\n{{context}}")
	r.LLMJudge.Variables = nil

	var (
		mu       sync.Mutex
		rendered []string
	)
	client := &fakeClient{chat: func(req *provider.Request) (*provider.Response, error) {
		mu.Lock()
		rendered = append(rendered, req.Messages[0].Content)
		mu.Unlock()
		return &provider.Response{Message: `{"Quality": {"score": 2, "reason": "r"}}`}, nil
	}}
	eng := engine.New(&fakeSource{rules: []rules.Rule{r}}, client, &fakeScoreSink{}, &fakeLogSink{})

	thread := entity.Scored{
		ID:       uuid.New(),
		ThreadID: "t-1",
		Messages: []entity.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "bye"},
		},
	}
	err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.ThreadLLMJudge,
		[]entity.Scored{thread})
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}

	want := "Evaluate this conversation:\nuser: hi\nassistant: hello\nuser: bye"
	if len(rendered) != 1 || rendered[0] != want {
		t.Errorf("rendered context: got = %q, wanted = %q", rendered, want)
	}

	// Reordering the messages changes the rendered block deterministically.
	reordered := thread
	reordered.Messages = []entity.Message{thread.Messages[2], thread.Messages[0], thread.Messages[1]}
	if err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.ThreadLLMJudge,
		[]entity.Scored{reordered}); err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}
	if len(rendered) != 2 || rendered[1] == rendered[0] {
		t.Errorf("reordered transcript rendered identically: %q", rendered)
	}
}

type fakeRunner struct {
	mu      sync.Mutex
	args    []map[string]string
	results []pythonrunner.Result
	err     error
}

func (f *fakeRunner) Score(_ context.Context, _ string, arguments map[string]string) ([]pythonrunner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, arguments)
	return f.results, f.err
}

func TestEvaluateThreadMetricReceivesTranscript(t *testing.T) {
	r := rules.Rule{
		ID:           uuid.New(),
		ProjectID:    uuid.New(),
		Name:         "coherence",
		Kind:         rules.ThreadPythonMetric,
		SamplingRate: 1.0,
		Enabled:      true,
		Python: &rules.PythonCode{
			Metric:    "conversation_coherence",
			Arguments: map[string]string{"conversation": "context"},
		},
	}

	runner := &fakeRunner{results: []pythonrunner.Result{{Name: "coherence", Value: 0.9}}}
	scoreSink := &fakeScoreSink{}
	eng := engine.New(&fakeSource{rules: []rules.Rule{r}}, &fakeClient{chat: qualityResponse(1)},
		scoreSink, &fakeLogSink{}, engine.WithPythonRunner(runner))

	thread := entity.Scored{
		ID:       uuid.New(),
		ThreadID: "t-1",
		Messages: []entity.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	}
	err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.ThreadPythonMetric,
		[]entity.Scored{thread})
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}

	if len(runner.args) != 1 {
		t.Fatalf("runner calls: got = %d, wanted = 1", len(runner.args))
	}
	want := map[string]string{"conversation": "user: hi\nassistant: hello"}
	if got := runner.args[0]; len(got) != 1 || got["conversation"] != want["conversation"] {
		t.Errorf("runner arguments: got = %v, wanted = %v", got, want)
	}

	scores := scoreSink.all()
	if len(scores) != 1 || scores[0].Name != "coherence" || scores[0].Value != 0.9 {
		t.Errorf("scores: got = %+v, wanted one coherence=0.9", scores)
	}
}

func TestEvaluateRegistryOutageFailsTheBatch(t *testing.T) {
	boom := errors.New("cache unavailable")
	eng := engine.New(&fakeSource{err: boom}, &fakeClient{chat: qualityResponse(1)}, &fakeScoreSink{}, &fakeLogSink{})

	err := eng.Evaluate(context.Background(), uuid.New(), "ws-1", rules.TraceLLMJudge,
		[]entity.Scored{traceEntity("q")})
	if !errors.Is(err, boom) {
		t.Fatalf("Evaluate() error: got = %v, wanted wrapped %v", err, boom)
	}
}
