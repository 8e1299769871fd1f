package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"geez-bingo/internal/engine"
)

// lastEventTTL is how long the most recent event of a session stays readable.
const lastEventTTL = time.Hour

// RedisSink publishes events as JSON on one channel per session and keeps the
// latest event under "<channel>:last" so late subscribers can catch up.
type RedisSink struct {
	rdb    *redis.Client
	prefix string
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink creates a RedisSink. Channels are named prefix + session id.
func NewRedisSink(rdb *redis.Client, prefix string) *RedisSink {
	return &RedisSink{rdb: rdb, prefix: prefix}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Channel returns the pub/sub channel for a session.
func (s *RedisSink) Channel(topic int64) string {
	return s.prefix + strconv.FormatInt(topic, 10)
}

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, topic int64, ev engine.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	channel := s.Channel(topic)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, channel, b)
		pipe.Set(ctx, channel+":last", b, lastEventTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Last returns the most recent event stored for a session.
func (s *RedisSink) Last(ctx context.Context, topic int64) (*engine.Event, bool, error) {
	val, err := s.rdb.Get(ctx, s.Channel(topic)+":last").Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ev engine.Event
	if err := json.Unmarshal(val, &ev); err != nil {
		return nil, false, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, true, nil
}
