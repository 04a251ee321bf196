package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happier-dev/happier-sub002/internal/models"
)

func getTestRedisClient(t *testing.T) *redis.Client {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err, "Failed to parse test redis URL")
	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

// TestRedisStream_ColdStartDeliversEarlierEntries: entries published before
// the consumer group exists must still reach the first consumer.
func TestRedisStream_ColdStartDeliversEarlierEntries(t *testing.T) {
	client := getTestRedisClient(t)
	ctx := context.Background()

	streamName := "presence-test:" + uuid.NewString()
	s := NewRedisStream(client, streamName, "flush")
	t.Cleanup(func() { client.Del(ctx, streamName) })

	require.NoError(t, s.Publish(ctx, models.StreamEntry{
		Kind: models.PresenceSession, EntityID: "s1", Timestamp: 100,
	}))

	require.NoError(t, s.EnsureGroup(ctx))
	// Re-creating an existing group is a no-op, not an error.
	require.NoError(t, s.EnsureGroup(ctx))

	msgs, err := s.ReadGroup(ctx, "c1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	entry, ok := parseStreamEntry(msgs[0].Values)
	require.True(t, ok)
	assert.Equal(t, models.PresenceSession, entry.Kind)
	assert.Equal(t, "s1", entry.EntityID)
	assert.Equal(t, int64(100), entry.Timestamp)

	require.NoError(t, s.Ack(ctx, msgs[0].ID))
}
