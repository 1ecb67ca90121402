package feed

import (
	"context"
	"hash/fnv"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
	"github.com/andresfuster1/SoonishRepo/internal/observability"
)

// Reconciler periodically removes plans whose expiry elapsed without any data
// event arriving, and releases idle per-viewer state. Viewers are partitioned
// into shards swept on independently jittered tickers so expiry work never
// bursts across the whole population at once.
type Reconciler struct {
	sync     *Synchronizer
	clock    domain.Clock
	interval time.Duration
	shards   int
	logger   *log.Logger

	shutdownComplete chan struct{}
}

// ReconcilerOption configures optional Reconciler behaviour.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger overrides the sweep logger.
func WithReconcilerLogger(logger *log.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler constructs a Reconciler sweeping every interval across the
// given number of viewer shards.
func NewReconciler(sync *Synchronizer, clock domain.Clock, interval time.Duration, shards int, opts ...ReconcilerOption) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if shards <= 0 {
		shards = 1
	}
	r := &Reconciler{
		sync:             sync,
		clock:            clock,
		interval:         interval,
		shards:           shards,
		logger:           log.New(log.Writer(), "[reconciler] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the sweep loops and blocks until the context is cancelled.
// It should be called in a goroutine; Wait blocks until shutdown completes.
func (r *Reconciler) Start(ctx context.Context) {
	defer close(r.shutdownComplete)

	var wg sync.WaitGroup
	for shard := 0; shard < r.shards; shard++ {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			r.runShard(ctx, shard)
		}(shard)
	}
	wg.Wait()
}

// Wait blocks until the reconciler has stopped.
func (r *Reconciler) Wait() {
	<-r.shutdownComplete
}

func (r *Reconciler) runShard(ctx context.Context, shard int) {
	// Initial jitter desynchronizes the shards.
	jitter := time.Duration(rand.Int64N(int64(r.interval)))
	timer := time.NewTimer(jitter)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.SweepShard(shard)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepShard runs one sweep pass over the shard's viewers, removing expired
// entries and releasing views left with nothing visible.
func (r *Reconciler) SweepShard(shard int) {
	now := r.clock.Now()
	expired, released := 0, 0

	for _, viewerID := range r.sync.ViewerIDs() {
		if r.shardOf(viewerID) != shard {
			continue
		}
		expired += r.sync.SweepViewer(viewerID, now)
		if r.sync.ReleaseIfIdle(viewerID) {
			released++
		}
	}

	observability.RecordSweep(expired, released)
	if expired > 0 || released > 0 {
		r.logger.Printf("sweep shard=%d expired=%d released=%d", shard, expired, released)
	}
}

// SweepAll runs a single pass over every shard. Used during tests and
// shutdown drains.
func (r *Reconciler) SweepAll() {
	for shard := 0; shard < r.shards; shard++ {
		r.SweepShard(shard)
	}
}

func (r *Reconciler) shardOf(viewerID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(viewerID))
	return int(h.Sum32() % uint32(r.shards))
}
