package bus

import (
	"context"
	"sync"

	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

// MemoryBus delivers messages in-process. It keeps a copy of everything
// published so tests can inspect the event stream.
type MemoryBus struct {
	mu       sync.Mutex
	subs     []func(realtime.Message)
	messages []realtime.Message
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Publish(ctx context.Context, msg realtime.Message) error {
	b.mu.Lock()
	b.messages = append(b.messages, msg)
	subs := append([]func(realtime.Message){}, b.subs...)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
	return nil
}

func (b *MemoryBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	b.mu.Lock()
	b.subs = append(b.subs, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) Close() error { return nil }

func (b *MemoryBus) Messages() []realtime.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.Message{}, b.messages...)
}

// Events returns the published messages of one event type, in order.
func (b *MemoryBus) Events(event realtime.Event) []realtime.Message {
	var out []realtime.Message
	for _, m := range b.Messages() {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}
