/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pythonrunner is the boundary to the external user-defined-metric
// executor. The engine resolves a metric's arguments against the scored
// entity and hands them off; the runner owns sandboxing and execution.
package pythonrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is one named score returned by a metric execution.
type Result struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason,omitempty"`
}

// Runner executes one user-defined metric against resolved arguments.
type Runner interface {
	Score(ctx context.Context, metric string, arguments map[string]string) ([]Result, error)
}

const defaultTimeout = 30 * time.Second

// HTTPRunner calls a metric-executor service over HTTP.
type HTTPRunner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRunner returns a runner posting to baseURL's /v1/score endpoint.
func NewHTTPRunner(baseURL string) *HTTPRunner {
	return &HTTPRunner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

type scoreRequest struct {
	Metric    string            `json:"metric"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

type scoreResponse struct {
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// Score implements Runner.
func (r *HTTPRunner) Score(ctx context.Context, metric string, arguments map[string]string) ([]Result, error) {
	body, err := json.Marshal(scoreRequest{Metric: metric, Arguments: arguments})
	if err != nil {
		return nil, fmt.Errorf("encoding metric request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building metric request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling metric executor: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading metric response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metric executor returned %d: %s", resp.StatusCode, raw)
	}

	var decoded scoreResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding metric response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("metric %q failed: %s", metric, decoded.Error)
	}
	return decoded.Results, nil
}
