package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/Alpha-ashu/Candidate-Experience/internal/logging"
)

// RedisHub is the multi-instance fan-out broker spec §4.6 calls for when
// N>1 gateway instances share a session's subscribers: PUBLISH/SUBSCRIBE
// on a per-session channel, keyed the same way the in-process Hub keys its
// ring buffers. Ordering and lossy-on-slow-consumer semantics are
// inherited from Redis pub/sub itself (a disconnected subscriber misses
// messages published while it is down; this repository does not attempt
// to paper over that — see the Non-goals section of SPEC_FULL.md).
type RedisHub struct {
	client *redis.Client
	log    *logging.Logger
}

// NewRedisHub connects to the given Redis URL (redis://host:port/db).
func NewRedisHub(url string, log *logging.Logger) (*RedisHub, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisHub{client: redis.NewClient(opt), log: log}, nil
}

func channelFor(sessionID string) string { return "interview-events:" + sessionID }

// Publish marshals and publishes an event to the session's channel.
func (h *RedisHub) Publish(ctx context.Context, sessionID string, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return h.client.Publish(ctx, channelFor(sessionID), payload).Err()
}

// RedisSubscription wraps a live redis.PubSub for one session.
type RedisSubscription struct {
	pubsub *redis.PubSub
}

// Subscribe opens a Redis subscription for the session's channel.
func (h *RedisHub) Subscribe(ctx context.Context, sessionID string) *RedisSubscription {
	return &RedisSubscription{pubsub: h.client.Subscribe(ctx, channelFor(sessionID))}
}

// Events decodes incoming messages into Event values on a channel that
// closes when the subscription is closed.
func (s *RedisSubscription) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		ch := s.pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err == nil {
					out <- e
				}
			}
		}
	}()
	return out
}

// Close releases the underlying subscription.
func (s *RedisSubscription) Close() error { return s.pubsub.Close() }

// Close releases the underlying client.
func (h *RedisHub) Close() error { return h.client.Close() }
