package progress

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

const defaultBuffer = 256

// Event is one progress observation for a job.
type Event struct {
	ClusterID uuid.UUID `json:"cluster_id"`
	Seq       int64     `json:"seq"`
	Progress  float64   `json:"progress"`
	Delta     float64   `json:"delta"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Store persists the latest coarse progress (the job lock hash).
type Store interface {
	SetProgress(ctx context.Context, clusterID uuid.UUID, progress float64) error
}

// Reporter accumulates progress for one job. Values only move forward and
// stay within [0, 100]. Publishing happens on a separate goroutine; when its
// buffer is full the event is dropped rather than blocking the caller.
type Reporter struct {
	clusterID uuid.UUID
	ownerID   uuid.UUID

	mu     sync.Mutex
	value  float64
	seq    int64
	closed bool
	ch     chan Event
	done   chan struct{}

	emitter *realtime.Emitter
	store   Store
	metrics observability.Recorder
	log     *logger.Logger
}

type Options struct {
	Buffer  int
	Emitter *realtime.Emitter
	Store   Store
	Metrics observability.Recorder
}

func NewReporter(clusterID, ownerID uuid.UUID, opts Options, log *logger.Logger) *Reporter {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NoopRecorder{}
	}
	r := &Reporter{
		clusterID: clusterID,
		ownerID:   ownerID,
		ch:        make(chan Event, opts.Buffer),
		done:      make(chan struct{}),
		emitter:   opts.Emitter,
		store:     opts.Store,
		metrics:   opts.Metrics,
		log:       log.With("component", "ProgressReporter", "cluster_id", clusterID),
	}
	go r.drain()
	return r
}

// Add advances progress by delta percentage points. Negative or NaN deltas
// are ignored.
func (r *Reporter) Add(delta float64, msg string) {
	if delta <= 0 || math.IsNaN(delta) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanceLocked(math.Min(100, r.value+delta), msg)
}

// Set raises progress to value; lower values are ignored.
func (r *Reporter) Set(value float64, msg string) {
	if math.IsNaN(value) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if value > 100 {
		value = 100
	}
	if value < r.value {
		return
	}
	r.advanceLocked(value, msg)
}

func (r *Reporter) advanceLocked(next float64, msg string) {
	if r.closed {
		return
	}
	delta := next - r.value
	r.value = next
	r.seq++
	ev := Event{ClusterID: r.clusterID, Seq: r.seq, Progress: next, Delta: delta, Message: msg, At: time.Now()}
	select {
	case r.ch <- ev:
	default:
		r.metrics.IncProgressDropped()
	}
}

func (r *Reporter) Value() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Close flushes buffered events and stops the publisher.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
}

func (r *Reporter) drain() {
	defer close(r.done)
	ctx := context.Background()
	for ev := range r.ch {
		if r.store != nil {
			if err := r.store.SetProgress(ctx, r.clusterID, ev.Progress); err != nil {
				r.log.Debug("progress store failed", "error", err)
			}
		}
		if r.emitter != nil {
			r.emitter.Emit(ctx, r.ownerID, realtime.EventClusterGenerating, ev)
		}
	}
}
