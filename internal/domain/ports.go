package domain

import (
	"context"
	"time"
)

// FriendSet is the result of a friend-graph lookup. Stale marks a result
// served from the last known good value after the collaborator failed; views
// refreshed from a stale set are flagged accordingly.
type FriendSet struct {
	IDs   []string
	Stale bool
}

// Contains reports whether the set includes the given user.
func (s FriendSet) Contains(userID string) bool {
	for _, id := range s.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// FriendGraph resolves the current friends of a user. Implementations retry
// transient failures internally and fall back to cached state where possible.
type FriendGraph interface {
	Friends(ctx context.Context, userID string) (FriendSet, error)
}

// NotificationSink receives overlap lifecycle events. Delivery is best-effort;
// the sink owns retries and the engine only logs failures.
type NotificationSink interface {
	OverlapDetected(ctx context.Context, record OverlapRecord) error
	OverlapRetired(ctx context.Context, record OverlapRecord) error
}

// Clock abstracts wall-clock time so expiry logic stays deterministic under
// test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by time.Now in UTC.
func SystemClock() Clock { return systemClock{} }
