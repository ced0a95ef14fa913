/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package anthropicprovider implements the LLM provider boundary on the
// Anthropic messages API. The API has no schema-constrained decoding, so
// structured output uses instruction injection: an explicit directive
// demanding a single JSON object matching the schema is appended to the
// conversation.
package anthropicprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/chainguard-dev/clog"
	"github.com/tracelens/onlineval/provider"
	"github.com/tracelens/onlineval/provider/retry"
)

const defaultMaxTokens = 4096

type client struct {
	api         anthropic.Client
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

// New creates an Anthropic-backed provider client.
func New(apiKey string, opts ...Option) (provider.Client, error) {
	c := &client{
		api:         anthropic.NewClient(option.WithAPIKey(apiKey)),
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

	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		switch m.Role {
		case provider.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case provider.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	if req.ResponseFormat != nil {
		directive, err := req.ResponseFormat.Directive()
		if err != nil {
			return nil, err
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(directive)))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
		System:    system,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	message, err := retry.Do(ctx, c.retryConfig, "anthropic_chat", isTransientError, func() (*anthropic.Message, error) {
		return c.api.Messages.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic message: %w", err)
	}

	var text strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("no text content in anthropic response")
	}

	log.With("model", req.Model).
		With("prompt_tokens", message.Usage.InputTokens).
		With("completion_tokens", message.Usage.OutputTokens).
		Debug("Anthropic message finished")

	return &provider.Response{
		Message: text.String(),
		Usage: provider.Usage{
			PromptTokens:     message.Usage.InputTokens,
			CompletionTokens: message.Usage.OutputTokens,
		},
	}, nil
}

// isTransientError checks if an error is a retryable Anthropic API error.
// Returns true for rate limit, overloaded, and transient server errors.
func isTransientError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 503, 504, 529:
			return true
		}
	}
	return false
}
