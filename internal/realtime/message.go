package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type Event string

const (
	EventClusterStatusChanged Event = "cluster_status_changed"
	EventClusterGenerating    Event = "cluster_generating"
	EventClusterGenerated     Event = "cluster_generated"
	EventJobProgress          Event = "job_progress"
	EventError                Event = "error"
)

// Message is the transport-neutral event envelope. Channel is the owner id so
// subscribers can filter per user.
type Message struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

func OwnerChannel(ownerID uuid.UUID) string { return ownerID.String() }

// Publisher is the write side of a Bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Emitter publishes fire-and-forget: failures are logged, never returned.
type Emitter struct {
	pub Publisher
	log *logger.Logger
}

func NewEmitter(pub Publisher, log *logger.Logger) *Emitter {
	return &Emitter{pub: pub, log: log.With("component", "Emitter")}
}

func (e *Emitter) Emit(ctx context.Context, ownerID uuid.UUID, event Event, data any) {
	if e == nil || e.pub == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		// Terminal events are often emitted after the job context is done.
		ctx = context.Background()
	}
	msg := Message{Channel: OwnerChannel(ownerID), Event: event, Data: data}
	if err := e.pub.Publish(ctx, msg); err != nil {
		e.log.Warn("publish failed", "event", event, "error", err)
	}
}
