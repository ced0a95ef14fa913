/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaiprovider implements the LLM provider boundary on the OpenAI
// chat completions API. Structured output uses the native json_schema
// response format (schema-constrained decoding).
package openaiprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tracelens/onlineval/provider"
	"github.com/tracelens/onlineval/provider/retry"
)

type client struct {
	api         openai.Client
	retryConfig retry.Config
}

// Option configures the provider.
type Option func(*client) error

// WithRetryConfig overrides the default transient-error retry behavior.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *client) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.retryConfig = cfg
		return nil
	}
}

// New creates an OpenAI-backed provider client.
func New(apiKey string, opts ...Option) (provider.Client, error) {
	c := &client{
		api:         openai.NewClient(option.WithAPIKey(apiKey)),
		retryConfig: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// Chat implements provider.Client.
func (c *client) Chat(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	log := clog.FromContext(ctx)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case provider.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case provider.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}

	if req.ResponseFormat != nil {
		// json.Marshal-able schema; the SDK serializes it verbatim.
		var schema map[string]any
		raw, err := json.Marshal(req.ResponseFormat.JSONSchema())
		if err != nil {
			return nil, fmt.Errorf("marshaling response schema: %w", err)
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("decoding response schema: %w", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.ResponseFormat.Name,
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	completion, err := retry.Do(ctx, c.retryConfig, "openai_chat", isTransientError, func() (*openai.ChatCompletion, error) {
		return c.api.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai chat completion returned no choices")
	}

	log.With("model", req.Model).
		With("prompt_tokens", completion.Usage.PromptTokens).
		With("completion_tokens", completion.Usage.CompletionTokens).
		Debug("OpenAI chat completion finished")

	return &provider.Response{
		Message: completion.Choices[0].Message.Content,
		Usage: provider.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}

// isTransientError checks if an error is a retryable OpenAI API error.
// Returns true for rate limit and transient server errors.
func isTransientError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}
