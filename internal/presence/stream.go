package presence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/happier-dev/happier-sub002/internal/models"
)

// Stream field names on the durable queue wire format.
const (
	fieldKind    = "kind"
	fieldID      = "id"
	fieldTS      = "ts"
	fieldAccount = "account"
)

// stream abstracts the consumer-group queue operations the worker needs.
// Satisfied by RedisStream in production and by a fake in tests.
type stream interface {
	EnsureGroup(ctx context.Context) error
	Publish(ctx context.Context, entry models.StreamEntry) error
	ReadGroup(ctx context.Context, consumer string, count int64, block time.Duration) ([]redis.XMessage, error)
	AutoClaim(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]redis.XMessage, error)
	Ack(ctx context.Context, ids ...string) error
}

// RedisStream is the Redis Streams implementation of the durable presence
// queue. Entries are delivered to exactly one consumer in the group at a
// time; unacked entries idle past a threshold are reclaimed via XAUTOCLAIM.
type RedisStream struct {
	client *redis.Client
	stream string
	group  string
}

func NewRedisStream(client *redis.Client, streamName, group string) *RedisStream {
	return &RedisStream{client: client, stream: streamName, group: group}
}

func (s *RedisStream) EnsureGroup(ctx context.Context) error {
	// Start at "0" so entries published before the first consumer boots are
	// still delivered.
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (s *RedisStream) Publish(ctx context.Context, entry models.StreamEntry) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			fieldKind:    string(entry.Kind),
			fieldID:      entry.EntityID,
			fieldTS:      strconv.FormatInt(entry.Timestamp, 10),
			fieldAccount: entry.AccountID,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish presence entry: %w", err)
	}
	return nil
}

func (s *RedisStream) ReadGroup(ctx context.Context, consumer string, count int64, block time.Duration) ([]redis.XMessage, error) {
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	var msgs []redis.XMessage
	for _, st := range res {
		msgs = append(msgs, st.Messages...)
	}
	return msgs, nil
}

func (s *RedisStream) AutoClaim(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]redis.XMessage, error) {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim idle entries: %w", err)
	}
	return msgs, nil
}

func (s *RedisStream) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, s.stream, s.group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack entries: %w", err)
	}
	return nil
}

// parseStreamEntry decodes one queue message. Missing required fields make
// the entry poison: the caller acks and skips so the queue never jams. An
// empty account is permitted for session entries.
func parseStreamEntry(values map[string]interface{}) (models.StreamEntry, bool) {
	kind, _ := values[fieldKind].(string)
	id, _ := values[fieldID].(string)
	tsRaw, _ := values[fieldTS].(string)

	pk := models.PresenceKind(kind)
	if (pk != models.PresenceSession && pk != models.PresenceMachine) || id == "" || tsRaw == "" {
		return models.StreamEntry{}, false
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil || ts <= 0 {
		return models.StreamEntry{}, false
	}

	account, _ := values[fieldAccount].(string)
	return models.StreamEntry{Kind: pk, EntityID: id, Timestamp: ts, AccountID: account}, true
}
