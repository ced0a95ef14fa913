/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package provider defines the LLM provider boundary used by the scoring
// engine: a chat request with optional structured-output formatting, and a
// response carrying the model text plus token usage.
//
// Retry for transient provider errors lives behind this boundary (see
// provider/retry and the concrete providers); callers apply their own
// per-call timeout via context.
package provider

import "context"

// Role is the author of one chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one rendered chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat completion call.
type Request struct {
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int64     `json:"max_tokens,omitempty"`
	Messages    []Message `json:"messages"`

	// ResponseFormat, when set, constrains the response to a JSON object
	// with one entry per schema field. Providers with native schema
	// enforcement apply it at decode time; others inject an instruction.
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Usage reports token consumption of one call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Response is the provider's reply.
type Response struct {
	Message string `json:"message"`
	Usage   Usage  `json:"usage"`
}

// Client is the provider boundary the engine calls. Implementations own
// retry/backoff for transient errors; a permanent (4xx-class) error is
// returned on the first attempt.
type Client interface {
	Chat(ctx context.Context, req *Request) (*Response, error)
}
