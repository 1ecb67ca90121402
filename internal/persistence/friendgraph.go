// Package persistence adapts durable storage to the engine's collaborator
// contracts.
package persistence

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
	"github.com/andresfuster1/SoonishRepo/internal/observability"
)

// FriendLister is the storage-side lookup the friend graph wraps.
type FriendLister interface {
	GetFriends(ctx context.Context, userID string) ([]string, error)
}

// FriendGraphOption configures optional FriendGraph behaviour.
type FriendGraphOption func(*FriendGraph)

// WithFriendGraphLogger overrides the logger used for degradation warnings.
func WithFriendGraphLogger(logger *log.Logger) FriendGraphOption {
	return func(g *FriendGraph) {
		g.logger = logger
	}
}

// FriendGraph implements domain.FriendGraph over a storage lookup with
// bounded exponential backoff and a last-known-good cache. When the store
// stays unreachable past the retry budget, lookups degrade to the cached set
// and are flagged stale instead of failing the caller's view.
type FriendGraph struct {
	lister     FriendLister
	maxRetries int
	baseDelay  time.Duration
	logger     *log.Logger

	mu    sync.RWMutex
	cache map[string][]string
}

// NewFriendGraph constructs a FriendGraph with the given retry budget.
func NewFriendGraph(lister FriendLister, maxRetries int, baseDelay time.Duration, opts ...FriendGraphOption) *FriendGraph {
	if maxRetries <= 0 {
		maxRetries = 4
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	g := &FriendGraph{
		lister:     lister,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     log.New(log.Writer(), "[friendgraph] ", log.LstdFlags),
		cache:      make(map[string][]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Friends resolves the user's current friend set, retrying transient store
// failures and falling back to the last known value when the budget is
// exhausted.
func (g *FriendGraph) Friends(ctx context.Context, userID string) (domain.FriendSet, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, g.backoff(attempt)); err != nil {
				return domain.FriendSet{}, err
			}
		}

		friends, err := g.lister.GetFriends(ctx, userID)
		if err == nil {
			g.store(userID, friends)
			return domain.FriendSet{IDs: friends}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return domain.FriendSet{}, ctx.Err()
		}
	}

	if cached, ok := g.lookup(userID); ok {
		g.logger.Printf("serving stale friend set for %s after %d attempts: %v", userID, g.maxRetries+1, lastErr)
		observability.RecordStaleFriendLookup()
		return domain.FriendSet{IDs: cached, Stale: true}, nil
	}
	return domain.FriendSet{}, fmt.Errorf("%w: friend lookup for %s: %v", domain.ErrCollaboratorUnavailable, userID, lastErr)
}

// Apply folds a friendship change into the cache so subsequent lookups stay
// warm without a round trip.
func (g *FriendGraph) Apply(ev domain.FriendshipEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch ev.Op {
	case domain.FriendshipOpAdd:
		g.addEdge(ev.UserID, ev.FriendID)
		g.addEdge(ev.FriendID, ev.UserID)
	case domain.FriendshipOpRemove:
		g.dropEdge(ev.UserID, ev.FriendID)
		g.dropEdge(ev.FriendID, ev.UserID)
	}
}

// backoff returns the delay before the given attempt: exponential from the
// base with up to 50% random jitter.
func (g *FriendGraph) backoff(attempt int) time.Duration {
	delay := g.baseDelay << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(delay)/2 + 1))
	return delay + jitter
}

func (g *FriendGraph) store(userID string, friends []string) {
	copied := make([]string, len(friends))
	copy(copied, friends)
	sort.Strings(copied)

	g.mu.Lock()
	g.cache[userID] = copied
	g.mu.Unlock()
}

func (g *FriendGraph) lookup(userID string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cached, ok := g.cache[userID]
	if !ok {
		return nil, false
	}
	out := make([]string, len(cached))
	copy(out, cached)
	return out, true
}

func (g *FriendGraph) addEdge(from, to string) {
	existing, ok := g.cache[from]
	if !ok {
		// No cached baseline to extend; the next lookup fetches fresh.
		return
	}
	for _, id := range existing {
		if id == to {
			return
		}
	}
	existing = append(existing, to)
	sort.Strings(existing)
	g.cache[from] = existing
}

func (g *FriendGraph) dropEdge(from, to string) {
	existing, ok := g.cache[from]
	if !ok {
		return
	}
	out := existing[:0]
	for _, id := range existing {
		if id != to {
			out = append(out, id)
		}
	}
	g.cache[from] = out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
