// Package engine wires feed synchronization, overlap matching, and
// notification emission into one explicitly constructed service.
package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
	"github.com/andresfuster1/SoonishRepo/internal/feed"
	"github.com/andresfuster1/SoonishRepo/internal/observability"
	"github.com/andresfuster1/SoonishRepo/internal/overlap"
)

// Config carries the engine's tunables.
type Config struct {
	MaxDistanceKm     float64
	MaxTimeDeltaHours float64
	MicroPlanHorizon  time.Duration
	SweepInterval     time.Duration
	SweepShards       int
}

// Bootstrapper loads the initial working set from durable storage so the
// in-memory views survive process restarts.
type Bootstrapper interface {
	ListFriendships(ctx context.Context) ([]domain.Friendship, error)
	ListActivePlans(ctx context.Context, now time.Time) ([]domain.Plan, error)
}

// friendshipApplier is implemented by friend-graph adapters that keep a local
// cache; the engine pushes edge changes into it so lookups stay warm.
type friendshipApplier interface {
	Apply(ev domain.FriendshipEvent)
}

// Option configures optional Engine behaviour.
type Option func(*Engine)

// WithLogger overrides the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBootstrapper installs the startup loader.
func WithBootstrapper(boot Bootstrapper) Option {
	return func(e *Engine) {
		e.boot = boot
	}
}

// Engine is the live plan-feed and overlap-detection core. All collaborators
// are injected; lifecycle is Start/Wait driven by the caller's context.
type Engine struct {
	synchronizer *feed.Synchronizer
	matcher      *overlap.Matcher
	reconciler   *feed.Reconciler
	friendGraph  domain.FriendGraph
	sink         domain.NotificationSink
	clock        domain.Clock
	boot         Bootstrapper
	logger       *log.Logger

	sinkCtx context.Context
}

// New constructs an Engine and its internal components.
func New(friendGraph domain.FriendGraph, sink domain.NotificationSink, clock domain.Clock, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		friendGraph: friendGraph,
		sink:        sink,
		clock:       clock,
		logger:      log.New(log.Writer(), "[engine] ", log.LstdFlags),
		sinkCtx:     context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.matcher = overlap.NewMatcher(cfg.MaxDistanceKm, cfg.MaxTimeDeltaHours, clock)
	e.synchronizer = feed.NewSynchronizer(friendGraph, clock, cfg.MicroPlanHorizon, e.handleDiff)
	e.reconciler = feed.NewReconciler(e.synchronizer, clock, cfg.SweepInterval, cfg.SweepShards)
	return e
}

// Start bootstraps state from storage and launches the expiry reconciler. It
// returns once bootstrap is complete; the reconciler stops when ctx is
// cancelled and Wait drains it.
func (e *Engine) Start(ctx context.Context) error {
	e.sinkCtx = ctx

	if e.boot != nil {
		if err := e.bootstrap(ctx); err != nil {
			return err
		}
	}

	go e.reconciler.Start(ctx)
	return nil
}

// Wait blocks until the reconciler has shut down.
func (e *Engine) Wait() {
	e.reconciler.Wait()
}

func (e *Engine) bootstrap(ctx context.Context) error {
	friendships, err := e.boot.ListFriendships(ctx)
	if err != nil {
		return err
	}
	for _, f := range friendships {
		e.matcher.FriendshipAdded(f.UserA, f.UserB)
		if applier, ok := e.friendGraph.(friendshipApplier); ok {
			applier.Apply(domain.FriendshipEvent{Op: domain.FriendshipOpAdd, UserID: f.UserA, FriendID: f.UserB})
		}
	}

	plans, err := e.boot.ListActivePlans(ctx, e.clock.Now())
	if err != nil {
		return err
	}
	for _, plan := range plans {
		if err := e.HandlePlanEvent(ctx, domain.PlanEvent{Op: domain.PlanOpUpsert, Plan: plan}); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				e.logger.Printf("skipping invalid stored plan %s: %v", plan.ID, err)
				continue
			}
			return err
		}
	}

	e.logger.Printf("bootstrap complete: %d friendships, %d plans", len(friendships), len(plans))
	return nil
}

// HandlePlanEvent applies one plan change event end to end: view maintenance,
// incremental overlap recomputation, and notification emission.
func (e *Engine) HandlePlanEvent(ctx context.Context, ev domain.PlanEvent) error {
	return e.synchronizer.Ingest(ctx, ev)
}

// HandleFriendshipEvent applies a friendship add or removal. Removal retires
// every overlap record between the two users without re-running any distance
// or time checks; addition surfaces existing coincidences without requiring
// any plan re-submission.
func (e *Engine) HandleFriendshipEvent(ctx context.Context, ev domain.FriendshipEvent) error {
	if ev.UserID == "" || ev.FriendID == "" || ev.UserID == ev.FriendID {
		return errors.New("malformed friendship event")
	}

	if applier, ok := e.friendGraph.(friendshipApplier); ok {
		applier.Apply(ev)
	}
	e.synchronizer.ApplyFriendship(ev)

	switch ev.Op {
	case domain.FriendshipOpAdd:
		e.dispatch(e.matcher.FriendshipAdded(ev.UserID, ev.FriendID))
	case domain.FriendshipOpRemove:
		e.dispatch(e.matcher.FriendshipRemoved(ev.UserID, ev.FriendID))
	}
	return nil
}

// GetLiveFeed returns the viewer's ordered, expiry-filtered live plans.
func (e *Engine) GetLiveFeed(viewerID string) feed.Snapshot {
	return e.synchronizer.Snapshot(viewerID)
}

// GetActiveOverlaps returns the live overlap records touching the user's
// plans.
func (e *Engine) GetActiveOverlaps(userID string) []domain.OverlapRecord {
	return e.matcher.ActiveFor(userID)
}

// Unsubscribe releases a viewer's materialized state, e.g. on session end.
// Dropping the view takes the viewer's own plans out of their live set, so
// overlap records touching those plans are retired in the same step. Without
// this, a pair whose both owners unsubscribed would have no owner-view diff
// left to ever retire it.
func (e *Engine) Unsubscribe(viewerID string) {
	e.synchronizer.Unsubscribe(viewerID)
	e.dispatch(e.matcher.RemoveOwnedBy(viewerID))
}

// handleDiff routes view mutations into the matcher. Only diffs against the
// owner's own view drive matching; copies of the same plan in friends' views
// would otherwise double-trigger. The diff arrives after the originating
// view's lock is released, so sink I/O below never blocks a view.
func (e *Engine) handleDiff(d feed.Diff) {
	for _, plan := range d.Added {
		if plan.OwnerID != d.ViewerID {
			continue
		}
		e.dispatch(e.matcher.UpsertPlan(plan))
	}
	for _, plan := range d.Removed {
		if plan.OwnerID != d.ViewerID {
			continue
		}
		events, err := e.matcher.RemovePlan(plan.ID)
		if err != nil {
			// Overlap state is derivative; it self-heals on the
			// next diff.
			e.logger.Printf("overlap retirement: %v", err)
		}
		e.dispatch(events)
	}
}

func (e *Engine) dispatch(events []overlap.Event) {
	for _, ev := range events {
		switch ev.Op {
		case overlap.EventOpAdd:
			observability.RecordOverlapDetected(e.matcher.LiveRecordCount())
			if err := e.sink.OverlapDetected(e.sinkCtx, ev.Record); err != nil {
				e.logger.Printf("notify overlap detected %s: %v", ev.Record.Key(), err)
			}
		case overlap.EventOpRemove:
			observability.RecordOverlapRetired(e.matcher.LiveRecordCount())
			if err := e.sink.OverlapRetired(e.sinkCtx, ev.Record); err != nil {
				e.logger.Printf("notify overlap retired %s: %v", ev.Record.Key(), err)
			}
		}
	}
}
