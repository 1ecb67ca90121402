package feed

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
)

type stubGraph struct {
	friends map[string][]string
	stale   bool
	err     error
}

func (g *stubGraph) Friends(_ context.Context, userID string) (domain.FriendSet, error) {
	if g.err != nil {
		return domain.FriendSet{}, g.err
	}
	return domain.FriendSet{IDs: g.friends[userID], Stale: g.stale}, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type diffRecorder struct {
	diffs []Diff
}

func (r *diffRecorder) record(d Diff) { r.diffs = append(r.diffs, d) }

func (r *diffRecorder) reset() { r.diffs = nil }

var syncBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestSynchronizer(graph domain.FriendGraph, clock domain.Clock, rec *diffRecorder) *Synchronizer {
	return NewSynchronizer(graph, clock, 24*time.Hour, rec.record,
		WithLogger(log.New(io.Discard, "", 0)))
}

func micro(id, owner string, start time.Time) domain.Plan {
	return domain.Plan{
		ID:        id,
		OwnerID:   owner,
		Kind:      domain.PlanKindMicro,
		Title:     id,
		StartTime: start,
	}
}

func upsertEvent(p domain.Plan) domain.PlanEvent {
	return domain.PlanEvent{Op: domain.PlanOpUpsert, Plan: p}
}

func TestSynchronizerRoutesToOwnerAndFriends(t *testing.T) {
	graph := &stubGraph{friends: map[string][]string{"alice": {"bob"}}}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	plan := micro("p1", "alice", syncBase.Add(2*time.Hour))
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(plan)))

	for _, viewer := range []string{"alice", "bob"} {
		snap := s.Snapshot(viewer)
		require.Len(t, snap.Plans, 1, "viewer %s", viewer)
		assert.Equal(t, "p1", snap.Plans[0].ID)
	}
	assert.Empty(t, s.Snapshot("carol").Plans, "non-friends see nothing")
	assert.Len(t, rec.diffs, 2)
}

func TestSynchronizerRejectsInvalidPlan(t *testing.T) {
	graph := &stubGraph{}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	bad := micro("p1", "alice", time.Time{})
	err := s.Ingest(context.Background(), upsertEvent(bad))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, rec.diffs)
	assert.Empty(t, s.Snapshot("alice").Plans)
}

func TestSynchronizerReingestIsIdempotent(t *testing.T) {
	graph := &stubGraph{friends: map[string][]string{"alice": {"bob"}}}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	plan := micro("p1", "alice", syncBase.Add(2*time.Hour))
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(plan)))
	rec.reset()

	require.NoError(t, s.Ingest(context.Background(), upsertEvent(plan)))
	assert.Empty(t, rec.diffs, "identical re-ingest produces no diffs")
	assert.Len(t, s.Snapshot("bob").Plans, 1)
}

func TestSynchronizerExpiredUpsertOnlyEnsuresRemoval(t *testing.T) {
	graph := &stubGraph{friends: map[string][]string{"alice": {"bob"}}}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	plan := micro("p1", "alice", syncBase.Add(time.Hour))
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(plan)))
	rec.reset()

	// The start passes; a replayed upsert must remove, never resurrect.
	clock.now = syncBase.Add(2 * time.Hour)
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(plan)))

	assert.Empty(t, s.Snapshot("alice").Plans)
	assert.Empty(t, s.Snapshot("bob").Plans)
	require.Len(t, rec.diffs, 2)
	for _, d := range rec.diffs {
		assert.Empty(t, d.Added)
		require.Len(t, d.Removed, 1)
		assert.Equal(t, "p1", d.Removed[0].ID)
	}
}

func TestSynchronizerPastMicroNeverServed(t *testing.T) {
	graph := &stubGraph{}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	past := micro("p1", "alice", syncBase.Add(-time.Minute))
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(past)))
	assert.Empty(t, s.Snapshot("alice").Plans)
}

func TestSynchronizerDeleteRemovesEverywhere(t *testing.T) {
	graph := &stubGraph{friends: map[string][]string{"alice": {"bob", "carol"}}}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	plan := micro("p1", "alice", syncBase.Add(2*time.Hour))
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(plan)))
	rec.reset()

	// Friendships may have churned since insertion; delete by id only.
	graph.friends = map[string][]string{}
	require.NoError(t, s.Ingest(context.Background(), domain.PlanEvent{
		Op:   domain.PlanOpDelete,
		Plan: domain.Plan{ID: "p1"},
	}))

	for _, viewer := range []string{"alice", "bob", "carol"} {
		assert.Empty(t, s.Snapshot(viewer).Plans, "viewer %s", viewer)
	}
	assert.Len(t, rec.diffs, 3)
}

func TestSynchronizerApplyFriendship(t *testing.T) {
	graph := &stubGraph{}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	// Both users had plans before they became friends.
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(micro("pa", "alice", syncBase.Add(time.Hour)))))
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(micro("pb", "bob", syncBase.Add(time.Hour)))))
	assert.Len(t, s.Snapshot("alice").Plans, 1)

	s.ApplyFriendship(domain.FriendshipEvent{Op: domain.FriendshipOpAdd, UserID: "alice", FriendID: "bob"})
	assert.Len(t, s.Snapshot("alice").Plans, 2, "friend's plans become visible")
	assert.Len(t, s.Snapshot("bob").Plans, 2)

	s.ApplyFriendship(domain.FriendshipEvent{Op: domain.FriendshipOpRemove, UserID: "bob", FriendID: "alice"})
	snapAlice := s.Snapshot("alice")
	require.Len(t, snapAlice.Plans, 1, "removal is symmetric and immediate")
	assert.Equal(t, "pa", snapAlice.Plans[0].ID)
	snapBob := s.Snapshot("bob")
	require.Len(t, snapBob.Plans, 1)
	assert.Equal(t, "pb", snapBob.Plans[0].ID)
}

func TestSynchronizerStaleLookupFlagsView(t *testing.T) {
	graph := &stubGraph{friends: map[string][]string{"alice": {"bob"}}, stale: true}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	require.NoError(t, s.Ingest(context.Background(), upsertEvent(micro("p1", "alice", syncBase.Add(time.Hour)))))
	assert.True(t, s.Snapshot("alice").Stale)
	assert.True(t, s.Snapshot("bob").Stale)

	// Recovery clears the flag on the next refresh.
	graph.stale = false
	require.NoError(t, s.Ingest(context.Background(), upsertEvent(micro("p2", "alice", syncBase.Add(2*time.Hour)))))
	assert.False(t, s.Snapshot("alice").Stale)
}

func TestSynchronizerSurfacesFriendGraphFailure(t *testing.T) {
	graph := &stubGraph{err: errors.New("lookup failed")}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	err := s.Ingest(context.Background(), upsertEvent(micro("p1", "alice", syncBase.Add(time.Hour))))
	require.Error(t, err)
	assert.Empty(t, rec.diffs)
}

func TestSynchronizerUnsubscribe(t *testing.T) {
	graph := &stubGraph{}
	clock := &fakeClock{now: syncBase}
	rec := &diffRecorder{}
	s := newTestSynchronizer(graph, clock, rec)

	require.NoError(t, s.Ingest(context.Background(), upsertEvent(micro("p1", "alice", syncBase.Add(time.Hour)))))
	require.Contains(t, s.ViewerIDs(), "alice")

	s.Unsubscribe("alice")
	assert.NotContains(t, s.ViewerIDs(), "alice")
	assert.Empty(t, s.Snapshot("alice").Plans)
}
