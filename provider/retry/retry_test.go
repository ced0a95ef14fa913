/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tracelens/onlineval/provider/retry"
)

func testConfig() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

// alwaysTransient is a test helper that considers all errors retryable.
func alwaysTransient(err error) bool {
	return err != nil
}

func TestDoSuccessFirstAttempt(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	result, err := retry.Do(context.Background(), testConfig(), "chat", alwaysTransient, func() (string, error) {
		attempts.Add(1)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected result %q, got %q", "ok", result)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestDoRecoversAfterTransientErrors(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	transient := errors.New("429 rate limited")

	result, err := retry.Do(context.Background(), testConfig(), "chat", alwaysTransient, func() (string, error) {
		if attempts.Add(1) < 3 {
			return "", transient
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" {
		t.Fatalf("expected result %q, got %q", "recovered", result)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()
	transient := errors.New("503 overloaded")

	var attempts atomic.Int32
	_, err := retry.Do(context.Background(), testConfig(), "chat", alwaysTransient, func() (string, error) {
		attempts.Add(1)
		return "", transient
	})
	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	if got := attempts.Load(); got != 4 {
		t.Fatalf("expected 4 attempts (1 initial + 3 retries), got %d", got)
	}
	if !errors.Is(err, transient) {
		t.Fatalf("expected wrapped error to contain original, got: %v", err)
	}
}

func TestDoPermanentErrorStopsImmediately(t *testing.T) {
	t.Parallel()
	permanent := errors.New("400 bad request")

	var attempts atomic.Int32
	_, err := retry.Do(context.Background(), testConfig(), "chat", func(error) bool { return false }, func() (string, error) {
		attempts.Add(1)
		return "", permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected original error, got: %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected 1 attempt for permanent error, got %d", got)
	}
}

func TestDoContextCancellationInterruptsBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	transient := errors.New("429 rate limited")

	var attempts atomic.Int32
	_, err := retry.Do(ctx, testConfig(), "chat", alwaysTransient, func() (string, error) {
		if attempts.Add(1) == 1 {
			cancel()
		}
		return "", transient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
}

func TestDoZeroAttemptsDisablesRetry(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxAttempts = 0

	var attempts atomic.Int32
	_, err := retry.Do(context.Background(), cfg, "chat", alwaysTransient, func() (string, error) {
		attempts.Add(1)
		return "", errors.New("429 rate limited")
	})
	if err == nil {
		t.Fatal("expected error with retries disabled")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	if err := retry.DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() unexpected error: %v", err)
	}
	bad := retry.Config{MaxAttempts: -1}
	if err := bad.Validate(); err == nil {
		t.Error("Validate() expected error for negative max attempts")
	}
}
