/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package geminiprovider implements the LLM provider boundary on the Google
// Gemini API. Structured output uses the native response schema
// (schema-constrained decoding with an application/json MIME type).
package geminiprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/tracelens/onlineval/provider"
	"github.com/tracelens/onlineval/provider/retry"
	"github.com/tracelens/onlineval/rules"
	"google.golang.org/genai"
)

type client struct {
	api         *genai.Client
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

// New creates a Gemini-backed provider client.
func New(ctx context.Context, apiKey string, opts ...Option) (provider.Client, error) {
	api, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	c := &client{
		api:         api,
		retryConfig: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// responseSchema converts the abstract response format into the Gemini
// schema dialect.
func responseSchema(format *provider.ResponseFormat) *genai.Schema {
	properties := make(map[string]*genai.Schema, len(format.Fields))
	required := make([]string, 0, len(format.Fields))

	for _, field := range format.Fields {
		var scoreType genai.Type
		switch field.Type {
		case rules.FieldInteger:
			scoreType = genai.TypeInteger
		case rules.FieldBoolean:
			scoreType = genai.TypeBoolean
		default:
			scoreType = genai.TypeNumber
		}
		properties[field.Name] = &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"score": {
					Type:        scoreType,
					Description: field.Description,
				},
				"reason": {
					Type:        genai.TypeString,
					Description: "Justification for the score.",
				},
			},
			Required: []string{"score", "reason"},
		}
		required = append(required, field.Name)
	}

	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   required,
	}
}

// Chat implements provider.Client.
func (c *client) Chat(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	log := clog.FromContext(ctx)

	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ResponseFormat != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = responseSchema(req.ResponseFormat)
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case provider.RoleSystem:
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
		case provider.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}

	response, err := retry.Do(ctx, c.retryConfig, "gemini_chat", isTransientError, func() (*genai.GenerateContentResponse, error) {
		return c.api.Models.GenerateContent(ctx, req.Model, contents, config)
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := response.Text()
	if text == "" {
		return nil, errors.New("no text content in gemini response")
	}

	var usage provider.Usage
	if response.UsageMetadata != nil {
		usage = provider.Usage{
			PromptTokens:     int64(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: int64(response.UsageMetadata.CandidatesTokenCount),
		}
		log.With("model", req.Model).
			With("prompt_tokens", usage.PromptTokens).
			With("completion_tokens", usage.CompletionTokens).
			Debug("Gemini generation finished")
	}

	return &provider.Response{
		Message: text,
		Usage:   usage,
	}, nil
}

// isTransientError checks if an error is a retryable Gemini API error.
// Returns true for rate limit, quota exhaustion, and transient server errors.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota exceeded") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "Overloaded") ||
		strings.Contains(errStr, "Internal error") ||
		strings.Contains(errStr, "server error")
}
