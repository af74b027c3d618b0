package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/clusterforge-backend/internal/platform/envutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/platform/objectstore"
	"github.com/yungbote/clusterforge-backend/internal/platform/openai"
	"github.com/yungbote/clusterforge-backend/internal/platform/search"
	"github.com/yungbote/clusterforge-backend/internal/realtime/bus"
	"github.com/yungbote/clusterforge-backend/internal/temporalx"
)

// Clients holds the external connections. Redis and Temporal are optional;
// without Redis, locks and the link cache stay in process memory.
type Clients struct {
	Redis       *goredis.Client
	Bus         bus.Bus
	Store       objectstore.Store
	OpenAI      openai.Client
	Search      *search.Client
	Temporal    temporalsdkclient.Client
	TemporalCfg temporalx.Config
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("wiring clients")
	c := &Clients{TemporalCfg: temporalx.ConfigFromEnv()}

	if addr := envutil.String("REDIS_ADDR", ""); addr != "" {
		c.Redis = goredis.NewClient(&goredis.Options{
			Addr:        addr,
			Password:    envutil.String("REDIS_PASSWORD", ""),
			DB:          envutil.Int("REDIS_DB", 0),
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c.Redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("redis ping %s: %w", addr, err)
		}
	}

	var err error
	switch envutil.String("EVENT_TRANSPORT", "") {
	case "":
		if c.Redis != nil {
			c.Bus = bus.NewRedisBusWithClient(c.Redis, envutil.String("REDIS_CHANNEL", "cluster_events"), log)
		} else {
			log.Warn("no REDIS_ADDR; events stay in process")
			c.Bus = bus.NewMemoryBus()
		}
	default:
		c.Bus, err = bus.FromEnv(log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init event bus: %w", err)
		}
	}

	c.Store, err = objectstore.New(ctx, log, objectstore.ConfigFromEnv())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init object store: %w", err)
	}

	c.OpenAI, err = openai.NewClient(log, openai.ConfigFromEnv())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init openai client: %w", err)
	}

	c.Search = search.NewClient(log, search.ConfigFromEnv())

	if cfg.JobDispatch == DispatchTemporal {
		c.Temporal, err = temporalx.NewClient(log, c.TemporalCfg)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init temporal client: %w", err)
		}
		if c.Temporal == nil {
			c.Close()
			return nil, fmt.Errorf("JOB_DISPATCH=temporal requires TEMPORAL_ADDRESS")
		}
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
