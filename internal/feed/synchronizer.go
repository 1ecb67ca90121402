package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
	"github.com/andresfuster1/SoonishRepo/internal/observability"
)

// Diff describes one mutation of a viewer's live view. The same shape is
// emitted for data-driven changes and for time-driven expiry removals so
// downstream overlap retirement stays uniform.
type Diff struct {
	ViewerID string
	Added    []domain.Plan
	Removed  []domain.Plan
}

// DiffFunc consumes view diffs. It is invoked after the originating view's
// lock has been released and must not call back into the emitting viewer's
// mutation path.
type DiffFunc func(Diff)

// Option configures optional Synchronizer behaviour.
type Option func(*Synchronizer)

// WithLogger overrides the logger used for ingestion warnings.
func WithLogger(logger *log.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// Synchronizer ingests plan change events and maintains one live view per
// active viewer.
type Synchronizer struct {
	friendGraph domain.FriendGraph
	clock       domain.Clock
	horizon     time.Duration
	onDiff      DiffFunc
	logger      *log.Logger

	mu    sync.RWMutex
	views map[string]*liveView
}

// NewSynchronizer constructs a Synchronizer. horizon bounds micro-plan lead
// time at creation; onDiff receives every view mutation.
func NewSynchronizer(friendGraph domain.FriendGraph, clock domain.Clock, horizon time.Duration, onDiff DiffFunc, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		friendGraph: friendGraph,
		clock:       clock,
		horizon:     horizon,
		onDiff:      onDiff,
		logger:      log.New(log.Writer(), "[feed] ", log.LstdFlags),
		views:       make(map[string]*liveView),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot is the result of reading a viewer's live view.
type Snapshot struct {
	Plans []domain.Plan
	// Stale marks a view last refreshed from a degraded friend-graph
	// lookup; returned entries reflect the last known topology.
	Stale bool
}

// Ingest applies one plan change event. Upserts are validated and routed to
// the owner and every current friend; deletes are removed from every view that
// holds the plan. The friend-graph lookup happens before any view lock is
// taken.
func (s *Synchronizer) Ingest(ctx context.Context, ev domain.PlanEvent) error {
	switch ev.Op {
	case domain.PlanOpDelete:
		s.removeEverywhere(ev.Plan.ID)
		return nil
	case domain.PlanOpUpsert:
		return s.upsert(ctx, ev.Plan)
	default:
		return fmt.Errorf("%w: unknown plan op %q", domain.ErrValidation, ev.Op)
	}
}

func (s *Synchronizer) upsert(ctx context.Context, plan domain.Plan) error {
	if err := plan.Validate(s.horizon); err != nil {
		return err
	}
	plan = plan.Clone()

	fs, err := s.friendGraph.Friends(ctx, plan.OwnerID)
	if err != nil {
		return fmt.Errorf("resolving viewers for plan %s: %w", plan.ID, err)
	}

	viewers := append([]string{plan.OwnerID}, fs.IDs...)

	// Expiry is evaluated against the current clock, not the event's
	// timestamp: a replayed upsert for an already-expired plan only ensures
	// removal.
	if plan.ExpiredAt(s.clock.Now()) {
		for _, viewerID := range viewers {
			if view := s.viewFor(viewerID); view != nil {
				if removed, ok := view.remove(plan.ID); ok {
					s.emit(Diff{ViewerID: viewerID, Removed: []domain.Plan{removed}})
				}
			}
		}
		return nil
	}

	for _, viewerID := range viewers {
		view := s.ensureView(viewerID)
		if view.upsert(plan, fs.Stale) {
			s.emit(Diff{ViewerID: viewerID, Added: []domain.Plan{plan}})
		}
	}
	s.publishGauges()
	return nil
}

// removeEverywhere drops the plan id from every view holding it. Friendships
// may have churned since insertion, so the scan covers all views rather than
// trusting the current friend set.
func (s *Synchronizer) removeEverywhere(planID string) {
	for _, viewerID := range s.ViewerIDs() {
		view := s.viewFor(viewerID)
		if view == nil {
			continue
		}
		if removed, ok := view.remove(planID); ok {
			s.emit(Diff{ViewerID: viewerID, Removed: []domain.Plan{removed}})
		}
	}
	s.publishGauges()
}

// ApplyFriendship updates both users' views for a friendship change. On add,
// each side's own live plans become visible to the other; on remove, they
// disappear immediately. The two views are locked one at a time, never
// together.
func (s *Synchronizer) ApplyFriendship(ev domain.FriendshipEvent) {
	a, b := ev.UserID, ev.FriendID
	if a == "" || b == "" || a == b {
		s.logger.Printf("ignoring malformed friendship event (%q, %q)", a, b)
		return
	}

	switch ev.Op {
	case domain.FriendshipOpAdd:
		s.shareOwnPlans(a, b)
		s.shareOwnPlans(b, a)
	case domain.FriendshipOpRemove:
		s.hideOwnPlans(a, b)
		s.hideOwnPlans(b, a)
	default:
		s.logger.Printf("ignoring unknown friendship op %q", ev.Op)
	}
	s.publishGauges()
}

// shareOwnPlans copies from's own live plans into to's view.
func (s *Synchronizer) shareOwnPlans(from, to string) {
	source := s.viewFor(from)
	if source == nil {
		return
	}
	plans := source.ownedBy(from)
	if len(plans) == 0 {
		return
	}

	now := s.clock.Now()
	target := s.ensureView(to)
	var added []domain.Plan
	for _, plan := range plans {
		if plan.ExpiredAt(now) {
			continue
		}
		if target.upsert(plan, false) {
			added = append(added, plan)
		}
	}
	if len(added) > 0 {
		s.emit(Diff{ViewerID: to, Added: added})
	}
}

// hideOwnPlans removes every plan owned by owner from viewerID's view.
func (s *Synchronizer) hideOwnPlans(owner, viewerID string) {
	view := s.viewFor(viewerID)
	if view == nil {
		return
	}
	if removed := view.removeOwnedBy(owner); len(removed) > 0 {
		s.emit(Diff{ViewerID: viewerID, Removed: removed})
	}
}

// Snapshot returns the viewer's current live view, lazily filtering entries
// that expired since the last sweep.
func (s *Synchronizer) Snapshot(viewerID string) Snapshot {
	view := s.viewFor(viewerID)
	if view == nil {
		return Snapshot{}
	}
	plans, stale := view.snapshot(s.clock.Now())
	return Snapshot{Plans: plans, Stale: stale}
}

// SweepViewer removes entries that crossed their expiry boundary and emits
// the removal diff. It reports the number of removed plans.
func (s *Synchronizer) SweepViewer(viewerID string, now time.Time) int {
	view := s.viewFor(viewerID)
	if view == nil {
		return 0
	}
	removed := view.sweep(now)
	if len(removed) > 0 {
		s.emit(Diff{ViewerID: viewerID, Removed: removed})
	}
	return len(removed)
}

// ReleaseIfIdle garbage-collects the viewer's state when nothing is visible
// to them anymore. It reports whether the view was released.
func (s *Synchronizer) ReleaseIfIdle(viewerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.views[viewerID]
	if !ok || view.size() > 0 {
		return false
	}
	delete(s.views, viewerID)
	return true
}

// Unsubscribe drops the viewer's state immediately, e.g. on session end.
func (s *Synchronizer) Unsubscribe(viewerID string) {
	s.mu.Lock()
	delete(s.views, viewerID)
	s.mu.Unlock()
	s.publishGauges()
}

// ViewerIDs lists the viewers with materialized state.
func (s *Synchronizer) ViewerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.views))
	for id := range s.views {
		out = append(out, id)
	}
	return out
}

func (s *Synchronizer) viewFor(viewerID string) *liveView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.views[viewerID]
}

func (s *Synchronizer) ensureView(viewerID string) *liveView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.views[viewerID]
	if !ok {
		view = newLiveView()
		s.views[viewerID] = view
	}
	return view
}

func (s *Synchronizer) emit(diff Diff) {
	if s.onDiff != nil {
		s.onDiff(diff)
	}
}

func (s *Synchronizer) publishGauges() {
	s.mu.RLock()
	views := len(s.views)
	plans := 0
	for _, view := range s.views {
		plans += view.size()
	}
	s.mu.RUnlock()
	observability.RecordLiveViews(views, plans)
}
