/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads process configuration from the environment and the
// operator-facing stream definitions from a YAML file.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tracelens/onlineval/stream"
)

// Config is the process environment.
type Config struct {
	RedisURL    string `env:"REDIS_URL, default=redis://localhost:6379"`
	PostgresDSN string `env:"POSTGRES_DSN, required"`

	// HTTPAddr serves /metrics and /healthz.
	HTTPAddr string `env:"HTTP_ADDR, default=:8080"`

	// StreamsFile is the YAML file binding streams to evaluator kinds.
	StreamsFile string `env:"STREAMS_FILE, default=streams.yaml"`

	RuleCacheTTL time.Duration `env:"RULE_CACHE_TTL, default=30s"`

	EngineWorkers  int           `env:"ENGINE_WORKERS, default=8"`
	LLMCallTimeout time.Duration `env:"LLM_CALL_TIMEOUT, default=60s"`
	BatchTimeout   time.Duration `env:"BATCH_TIMEOUT, default=5m"`

	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`

	// PythonRunnerURL points at the user-defined-metric executor; python
	// kinds fail per item when unset.
	PythonRunnerURL string `env:"PYTHON_RUNNER_URL"`
}

// Load reads the process environment.
func Load(ctx context.Context) (*Config, error) {
	var c Config
	if err := envconfig.Process(ctx, &c); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	return &c, nil
}

type streamsFile struct {
	Streams []stream.Config `yaml:"streams"`
}

// LoadStreams reads and validates the stream definitions.
func LoadStreams(path string) ([]stream.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stream definitions: %w", err)
	}

	var f streamsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(f.Streams) == 0 {
		return nil, fmt.Errorf("%s defines no streams", path)
	}

	seen := make(map[string]bool, len(f.Streams))
	for i := range f.Streams {
		if err := f.Streams[i].Validate(); err != nil {
			return nil, err
		}
		key := f.Streams[i].StreamName + "/" + f.Streams[i].ConsumerGroup
		if seen[key] {
			return nil, fmt.Errorf("duplicate stream binding %s", key)
		}
		seen[key] = true
	}
	return f.Streams, nil
}
