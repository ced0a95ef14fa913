/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tracelens/onlineval/config"
	"github.com/tracelens/onlineval/rules"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/onlineval")

	c, err := config.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if c.RedisURL != "redis://localhost:6379" {
		t.Errorf("RedisURL: got = %q", c.RedisURL)
	}
	if c.RuleCacheTTL != 30*time.Second || c.EngineWorkers != 8 {
		t.Errorf("defaults: got = %+v", c)
	}
}

func TestLoadRequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	if _, err := config.Load(context.Background()); err == nil {
		t.Error("Load() without POSTGRES_DSN: got nil error, wanted one")
	}
}

func writeStreams(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streams.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing streams file: %v", err)
	}
	return path
}

func TestLoadStreams(t *testing.T) {
	path := writeStreams(t, `
streams:
  - stream_name: traces
    kind: trace_llm_judge
    consumer_group: onlineval
    batch_size: 50
    poll_interval: 100ms
  - stream_name: threads
    kind: thread_python_metric
    consumer_group: onlineval
    codec: gzip_json
`)

	streams, err := config.LoadStreams(path)
	if err != nil {
		t.Fatalf("LoadStreams() unexpected error: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("streams: got = %d, wanted = 2", len(streams))
	}
	if streams[0].Kind != rules.TraceLLMJudge || streams[0].BatchSize != 50 || streams[0].PollInterval != 100*time.Millisecond {
		t.Errorf("first stream: got = %+v", streams[0])
	}
	if streams[1].Codec != "gzip_json" || streams[1].BatchSize == 0 {
		t.Errorf("second stream defaults: got = %+v", streams[1])
	}
}

func TestLoadStreamsRejectsDuplicates(t *testing.T) {
	path := writeStreams(t, `
streams:
  - stream_name: traces
    kind: trace_llm_judge
    consumer_group: onlineval
  - stream_name: traces
    kind: trace_llm_judge
    consumer_group: onlineval
`)

	if _, err := config.LoadStreams(path); err == nil {
		t.Error("LoadStreams() with duplicate binding: got nil error, wanted one")
	}
}

func TestLoadStreamsRejectsUnknownKind(t *testing.T) {
	path := writeStreams(t, `
streams:
  - stream_name: traces
    kind: trace_judge
    consumer_group: onlineval
`)

	if _, err := config.LoadStreams(path); err == nil {
		t.Error("LoadStreams() with unknown kind: got nil error, wanted one")
	}
}
