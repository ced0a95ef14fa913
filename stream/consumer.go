/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package stream polls Redis streams for entity-created events and feeds
// decoded batches to the scoring engine. Delivery is at-least-once through
// consumer groups: entries are acknowledged after engine processing returns,
// a failed batch is re-read by its own consumer at the next tick, entries
// pending past the visibility window are reclaimed from crashed members, and
// undecodable entries are acknowledged immediately so a poison message cannot
// stall the stream.
package stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/tracelens/onlineval/entity"
	"github.com/tracelens/onlineval/metrics"
	"github.com/tracelens/onlineval/rules"
	"github.com/tracelens/onlineval/stream/codec"
)

const (
	// payloadField is the stream entry field carrying the encoded envelope.
	payloadField = "payload"

	defaultBatchSize        = 100
	defaultPollInterval     = time.Second
	defaultVisibilityWindow = 5 * time.Minute
)

// Config describes one consumed stream.
type Config struct {
	StreamName       string        `yaml:"stream_name"`
	Kind             rules.Kind    `yaml:"kind"`
	ConsumerGroup    string        `yaml:"consumer_group"`
	BatchSize        int64         `yaml:"batch_size"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	VisibilityWindow time.Duration `yaml:"visibility_window"`
	Codec            string        `yaml:"codec"`
}

// UnmarshalYAML decodes a stream binding, accepting durations in Go syntax
// such as "100ms".
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		StreamName       string     `yaml:"stream_name"`
		Kind             rules.Kind `yaml:"kind"`
		ConsumerGroup    string     `yaml:"consumer_group"`
		BatchSize        int64      `yaml:"batch_size"`
		PollInterval     string     `yaml:"poll_interval"`
		VisibilityWindow string     `yaml:"visibility_window"`
		Codec            string     `yaml:"codec"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.StreamName = raw.StreamName
	c.Kind = raw.Kind
	c.ConsumerGroup = raw.ConsumerGroup
	c.BatchSize = raw.BatchSize
	c.Codec = raw.Codec

	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("stream %s: bad poll_interval: %w", raw.StreamName, err)
		}
		c.PollInterval = d
	}
	if raw.VisibilityWindow != "" {
		d, err := time.ParseDuration(raw.VisibilityWindow)
		if err != nil {
			return fmt.Errorf("stream %s: bad visibility_window: %w", raw.StreamName, err)
		}
		c.VisibilityWindow = d
	}
	return nil
}

// Validate checks the stream binding and fills defaults.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream has no name")
	}
	if err := c.Kind.Validate(); err != nil {
		return fmt.Errorf("stream %s: %w", c.StreamName, err)
	}
	if c.ConsumerGroup == "" {
		return fmt.Errorf("stream %s has no consumer group", c.StreamName)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.VisibilityWindow <= 0 {
		c.VisibilityWindow = defaultVisibilityWindow
	}
	return nil
}

// Evaluator is the engine surface the consumer drives.
type Evaluator interface {
	Evaluate(ctx context.Context, projectID uuid.UUID, workspaceID string, kind rules.Kind, entities []entity.Scored) error
	EvaluateRule(ctx context.Context, projectID uuid.UUID, workspaceID string, kind rules.Kind, ruleID uuid.UUID, entities []entity.Scored) error
}

// ThreadStore resolves thread ids from a thread-kind envelope into scorable
// snapshots.
type ThreadStore interface {
	FetchThreads(ctx context.Context, projectID uuid.UUID, threadIDs []string) ([]entity.Scored, error)
}

// RedisStreams is the slice of the Redis client the consumer uses.
type RedisStreams interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Consumer polls one stream on behalf of one consumer group member.
type Consumer struct {
	cfg     Config
	rdb     RedisStreams
	codec   codec.Codec
	engine  Evaluator
	threads ThreadStore
	name    string

	// redeliver is set when the previous batch failed; the next fetch then
	// re-reads this consumer's own pending entries instead of waiting out
	// the visibility window. Touched only by the poll loop.
	redeliver bool
}

// ConsumerOption configures a consumer.
type ConsumerOption func(*Consumer)

// WithThreadStore wires thread-id resolution for thread-kind streams.
func WithThreadStore(ts ThreadStore) ConsumerOption {
	return func(c *Consumer) { c.threads = ts }
}

// WithConsumerName overrides the generated group-member name.
func WithConsumerName(name string) ConsumerOption {
	return func(c *Consumer) { c.name = name }
}

// NewConsumer builds a consumer for one configured stream.
func NewConsumer(cfg Config, rdb RedisStreams, eng Evaluator, opts ...ConsumerOption) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dec, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", cfg.StreamName, err)
	}

	host, _ := os.Hostname()
	c := &Consumer{
		cfg:    cfg,
		rdb:    rdb,
		codec:  dec,
		engine: eng,
		name:   fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run polls until ctx is canceled. Cancellation stops intake; the batch in
// flight finishes and acknowledges before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	log := clog.FromContext(ctx).With("stream", c.cfg.StreamName).With("group", c.cfg.ConsumerGroup)
	ctx = clog.WithLogger(ctx, log)

	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	log.With("consumer", c.name).Info("Stream consumer started")

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Stream consumer drained")
			return nil
		case <-ticker.C:
			if err := c.pollOnce(ctx); err != nil {
				log.With("error", err).Warn("Poll failed, batch left for redelivery")
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.StreamName, c.cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s on %s: %w", c.cfg.ConsumerGroup, c.cfg.StreamName, err)
	}
	return nil
}

// pollOnce reads one batch, dispatches it to the engine, and acknowledges
// whatever was fully handled.
func (c *Consumer) pollOnce(ctx context.Context) error {
	msgs, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	// Processing outlives shutdown so an in-flight batch still acks instead
	// of being redelivered and double-scored.
	procCtx := context.WithoutCancel(ctx)
	err = c.process(procCtx, msgs)
	c.redeliver = err != nil
	return err
}

func (c *Consumer) fetch(ctx context.Context) ([]redis.XMessage, error) {
	// Entries pending past the visibility window are reclaimed first so a
	// crashed group member cannot strand them.
	claimed, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.StreamName,
		Group:    c.cfg.ConsumerGroup,
		Consumer: c.name,
		MinIdle:  c.cfg.VisibilityWindow,
		Start:    "0-0",
		Count:    c.cfg.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reclaiming pending entries: %w", err)
	}

	msgs := claimed
	if c.redeliver {
		// The previous batch failed; pick our own pending entries back up
		// now rather than after the visibility window.
		if remaining := c.cfg.BatchSize - int64(len(msgs)); remaining > 0 {
			own, err := c.readGroup(ctx, "0", remaining)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, own...)
		}
	}
	if remaining := c.cfg.BatchSize - int64(len(msgs)); remaining > 0 {
		fresh, err := c.readGroup(ctx, ">", remaining)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, fresh...)
	}
	return msgs, nil
}

func (c *Consumer) readGroup(ctx context.Context, start string, count int64) ([]redis.XMessage, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.ConsumerGroup,
		Consumer: c.name,
		Streams:  []string{c.cfg.StreamName, start},
		Count:    count,
		Block:    -1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// batch accumulates the envelopes sharing one engine invocation.
type batch struct {
	workspaceID string
	projectID   uuid.UUID
	ruleID      uuid.UUID
	entities    []entity.Scored
	ids         []string
}

func (c *Consumer) process(ctx context.Context, msgs []redis.XMessage) error {
	log := clog.FromContext(ctx)

	var (
		ack      []string
		batches  = make(map[string]*batch)
		order    []string
		firstErr error
	)
	for _, m := range msgs {
		env, err := c.decode(m)
		if err != nil {
			// Poison message: ack and drop, never retry.
			log.With("id", m.ID).With("error", err).Warn("Dropping undecodable stream entry")
			metrics.IncDecodeFailures(c.cfg.StreamName)
			ack = append(ack, m.ID)
			continue
		}

		ents := env.Entities
		if len(env.ThreadIDs) > 0 {
			fetched, err := c.resolveThreads(ctx, env.ProjectID, env.ThreadIDs)
			if err != nil {
				// Transient store failure: same treatment as a registry
				// outage, the entry is re-read at the next tick.
				log.With("id", m.ID).With("error", err).Warn("Thread resolution failed, entry left pending")
				if firstErr == nil {
					firstErr = fmt.Errorf("resolving threads for entry %s: %w", m.ID, err)
				}
				continue
			}
			ents = append(ents, fetched...)
		}

		key := env.WorkspaceID + "|" + env.ProjectID.String() + "|" + env.RuleID.String()
		b, ok := batches[key]
		if !ok {
			b = &batch{workspaceID: env.WorkspaceID, projectID: env.ProjectID, ruleID: env.RuleID}
			batches[key] = b
			order = append(order, key)
		}
		b.entities = append(b.entities, ents...)
		b.ids = append(b.ids, m.ID)
		metrics.IncEntitiesConsumed(c.cfg.StreamName, len(ents))
	}

	for _, key := range order {
		b := batches[key]
		var err error
		if b.ruleID != uuid.Nil {
			err = c.engine.EvaluateRule(ctx, b.projectID, b.workspaceID, c.cfg.Kind, b.ruleID, b.entities)
		} else {
			err = c.engine.Evaluate(ctx, b.projectID, b.workspaceID, c.cfg.Kind, b.entities)
		}
		if err != nil {
			// Rules could not be resolved at all; redeliver the whole batch.
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ack = append(ack, b.ids...)
	}

	if len(ack) > 0 {
		if err := c.rdb.XAck(ctx, c.cfg.StreamName, c.cfg.ConsumerGroup, ack...).Err(); err != nil {
			return fmt.Errorf("acknowledging %d entries: %w", len(ack), err)
		}
	}
	return firstErr
}

func (c *Consumer) decode(m redis.XMessage) (*codec.Envelope, error) {
	raw, ok := m.Values[payloadField].(string)
	if !ok {
		return nil, fmt.Errorf("entry has no %s field", payloadField)
	}
	return c.codec.Decode([]byte(raw))
}

func (c *Consumer) resolveThreads(ctx context.Context, projectID uuid.UUID, threadIDs []string) ([]entity.Scored, error) {
	if c.threads == nil {
		return nil, fmt.Errorf("no thread store configured for stream %s", c.cfg.StreamName)
	}
	return c.threads.FetchThreads(ctx, projectID, threadIDs)
}
