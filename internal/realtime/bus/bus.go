package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/clusterforge-backend/internal/platform/envutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}

// FromEnv selects the transport named by EVENT_TRANSPORT (redis, nats or memory).
func FromEnv(log *logger.Logger) (Bus, error) {
	switch strings.ToLower(envutil.String("EVENT_TRANSPORT", "redis")) {
	case "redis":
		return NewRedisBus(log)
	case "nats":
		return NewNATSBus(log)
	case "memory":
		return NewMemoryBus(), nil
	default:
		return nil, fmt.Errorf("unknown EVENT_TRANSPORT %q", envutil.String("EVENT_TRANSPORT", ""))
	}
}
