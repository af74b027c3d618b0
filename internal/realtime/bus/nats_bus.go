package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yungbote/clusterforge-backend/internal/platform/envutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

type natsBus struct {
	log     *logger.Logger
	nc      *nats.Conn
	subject string
}

func NewNATSBus(log *logger.Logger) (Bus, error) {
	url := envutil.String("NATS_URL", nats.DefaultURL)
	nc, err := nats.Connect(url,
		nats.Name("clusterforge"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &natsBus{
		log:     log.With("service", "NATSBus"),
		nc:      nc,
		subject: envutil.String("NATS_SUBJECT", "clusterforge.events"),
	}, nil
}

func (b *natsBus) Publish(ctx context.Context, msg realtime.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, raw)
}

func (b *natsBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		var msg realtime.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.log.Warn("bad nats event payload", "error", err)
			return
		}
		onMsg(msg)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (b *natsBus) Close() error {
	return b.nc.Drain()
}
