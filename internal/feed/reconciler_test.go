package feed

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerSweepRemovesExpiredAndReleasesIdleViews(t *testing.T) {
	graph := &stubGraph{friends: map[string][]string{"alice": {"bob"}}}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	short := micro("short", "alice", syncBase.Add(time.Hour))
	long := micro("long", "alice", syncBase.Add(6*time.Hour))
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(short)))
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(long)))

	r := NewReconciler(s, clock, time.Minute, 4,
		WithReconcilerLogger(log.New(io.Discard, "", 0)))

	// Nothing has expired yet.
	rec.reset()
	r.SweepAll()
	assert.Empty(t, rec.diffs)

	clock.now = syncBase.Add(90 * time.Minute)
	r.SweepAll()

	require.Len(t, rec.diffs, 2, "one removal diff per affected viewer")
	for _, d := range rec.diffs {
		require.Len(t, d.Removed, 1)
		assert.Equal(t, "short", d.Removed[0].ID)
	}
	assert.Len(t, s.Snapshot("alice").Plans, 1)
	assert.Len(t, s.Snapshot("bob").Plans, 1)

	// Once everything expires, the idle views are garbage collected.
	clock.now = syncBase.Add(7 * time.Hour)
	r.SweepAll()
	assert.Empty(t, s.ViewerIDs())
}

func TestReconcilerStopsOnContextCancel(t *testing.T) {
	graph := &stubGraph{}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	r := NewReconciler(s, clock, 10*time.Millisecond, 2,
		WithReconcilerLogger(log.New(io.Discard, "", 0)))

	ctx, cancel := context.WithCancel(context.Background())
	go r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop after cancellation")
	}
}

func TestReconcilerShardsPartitionViewers(t *testing.T) {
	graph := &stubGraph{}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	viewers := []string{"alice", "bob", "carol", "dave", "erin"}
	for _, viewer := range viewers {
		require.NoError(t, s.Ingest(context.Background(),
			upsertEvent(micro("plan-"+viewer, viewer, syncBase.Add(time.Hour)))))
	}

	r := NewReconciler(s, clock, time.Minute, 3,
		WithReconcilerLogger(log.New(io.Discard, "", 0)))

	clock.now = syncBase.Add(2 * time.Hour)
	for shard := 0; shard < 3; shard++ {
		r.SweepShard(shard)
	}
	assert.Empty(t, s.ViewerIDs(), "every viewer belongs to exactly one shard")
}
