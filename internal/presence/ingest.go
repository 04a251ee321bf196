package presence

import (
	"context"

	"github.com/happier-dev/happier-sub002/internal/models"
)

// Ingestor is where a validated liveness ping goes. Multi-process deployments
// publish to the durable queue; single-process ones coalesce locally.
type Ingestor interface {
	SessionAlive(ctx context.Context, sessionID string, ts int64) error
	MachineAlive(ctx context.Context, accountID, machineID string, ts int64) error
}

// StreamIngestor publishes pings onto the durable queue for the consumer
// group to flush centrally.
type StreamIngestor struct {
	stream stream
}

func NewStreamIngestor(s *RedisStream) *StreamIngestor {
	return &StreamIngestor{stream: s}
}

func (i *StreamIngestor) SessionAlive(ctx context.Context, sessionID string, ts int64) error {
	return i.stream.Publish(ctx, models.StreamEntry{
		Kind:      models.PresenceSession,
		EntityID:  sessionID,
		Timestamp: ts,
	})
}

func (i *StreamIngestor) MachineAlive(ctx context.Context, accountID, machineID string, ts int64) error {
	return i.stream.Publish(ctx, models.StreamEntry{
		Kind:      models.PresenceMachine,
		EntityID:  machineID,
		Timestamp: ts,
		AccountID: accountID,
	})
}

// LocalIngestor coalesces in-process; a Flusher writes the batch out.
type LocalIngestor struct {
	batcher *Batcher
}

func NewLocalIngestor(b *Batcher) *LocalIngestor {
	return &LocalIngestor{batcher: b}
}

func (i *LocalIngestor) SessionAlive(_ context.Context, sessionID string, ts int64) error {
	i.batcher.RecordSessionAlive(sessionID, ts)
	return nil
}

func (i *LocalIngestor) MachineAlive(_ context.Context, accountID, machineID string, ts int64) error {
	i.batcher.RecordMachineAlive(accountID, machineID, ts)
	return nil
}
