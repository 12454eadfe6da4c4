// Package bus implements the stream bus: a durable, partition-free message
// stream with consumer groups, at-least-once delivery, and a finalize
// (ack+delete) operation that gives exactly-once-apply semantics to an
// idempotent consumer. Built on Redis Streams.
package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one stream record: its id and its field map, decoded from the
// Redis XRANGE/XREADGROUP reply shape.
type Entry struct {
	ID     string
	Fields map[string]string
}

// Bus wraps a single multiplexed Redis client shared across all producers
// and consumers in a process.
type Bus struct {
	client redis.UniversalClient
}

// New parses url (a redis:// or rediss:// URL) and returns a Bus backed by it.
func New(url string) (*Bus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Bus{client: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an already-constructed client.
func NewFromClient(client redis.UniversalClient) *Bus {
	return &Bus{client: client}
}

// Close releases the underlying connection pool.
func (b *Bus) Close() error {
	return b.client.Close()
}

// EnsureGroup creates stream (if absent) and group on it. Idempotent: the
// Redis BUSYGROUP error ("group already exists") is treated as success.
func (b *Bus) EnsureGroup(ctx context.Context, stream, group string) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		err := b.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
		if err != nil && !isBusyGroupErr(err) {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("ensure group %s/%s: %w", stream, group, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return strings.Contains(err.Error(), "BUSYGROUP")
}

// Append appends a new entry to stream. When maxLen > 0 an approximate
// MAXLEN cap (~) is applied, matching the optional cap on result streams.
func (b *Bus) Append(ctx context.Context, stream string, fields map[string]any, maxLen int64) (string, error) {
	return withRetry(ctx, func() (string, error) {
		args := &redis.XAddArgs{Stream: stream, Values: fields}
		if maxLen > 0 {
			args.MaxLen = maxLen
			args.Approx = true
		}
		return b.client.XAdd(ctx, args).Result()
	})
}

// AppendWithTTL appends an entry like Append, then sets an expiration on the
// whole stream key — used for the per-chat deletion streams, which are
// discarded 24h after their most recent write. Redis TTL-on-key semantics mean every append on the same stream
// extends its lifetime by ttl from the latest write.
func (b *Bus) AppendWithTTL(ctx context.Context, stream string, fields map[string]any, ttl time.Duration) (string, error) {
	id, err := b.Append(ctx, stream, fields, 0)
	if err != nil {
		return "", err
	}
	if _, err := withRetry(ctx, func() (struct{}, error) {
		return struct{}{}, b.client.Expire(ctx, stream, ttl).Err()
	}); err != nil {
		return id, fmt.Errorf("expire %s: %w", stream, err)
	}
	return id, nil
}

// Consume reads up to count new entries (marker ">") for consumer in group on
// stream, blocking up to block. tick is a per-consumer counter the caller
// owns across calls: every 10th consecutive empty new-entry read, Consume
// additionally re-reads from "0" (pending history) to recover entries
// orphaned by a crashed consumer.
func (b *Bus) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration, tick *uint64) ([]Entry, error) {
	entries, err := b.readGroup(ctx, stream, group, consumer, count, block, ">")
	if err != nil {
		return nil, err
	}

	if len(entries) > 0 {
		*tick = 0
		return entries, nil
	}

	*tick++
	if *tick%10 != 0 {
		return nil, nil
	}

	// Negative block means "no BLOCK argument": a history read returns
	// immediately whether or not anything is pending.
	pending, err := b.readGroup(ctx, stream, group, consumer, count, -1, "0")
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (b *Bus) readGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration, start string) ([]Entry, error) {
	streams, err := withRetry(ctx, func() ([]redis.XStream, error) {
		return b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, start},
			Count:    count,
			Block:    block,
		}).Result()
	})
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read group %s/%s: %w", stream, group, err)
	}

	var out []Entry
	for _, s := range streams {
		for _, msg := range s.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				if sv, ok := v.(string); ok {
					fields[k] = sv
				} else {
					fields[k] = fmt.Sprintf("%v", v)
				}
			}
			out = append(out, Entry{ID: msg.ID, Fields: fields})
		}
	}
	return out, nil
}

// Finalize acknowledges and deletes id from stream/group — the combined
// ack+delete that keeps the stream from growing without bound while giving
// exactly-once-apply over at-least-once delivery.
func (b *Bus) Finalize(ctx context.Context, stream, group, id string) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		if err := b.client.XAck(ctx, stream, group, id).Err(); err != nil {
			return struct{}{}, err
		}
		if err := b.client.XDel(ctx, stream, id).Err(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("finalize %s/%s/%s: %w", stream, group, id, err)
	}
	return nil
}
