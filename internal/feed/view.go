// Package feed maintains per-viewer materialized live views of plans.
package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
)

// liveView is one viewer's visibility-and-expiry-filtered plan set. The view's
// mutex is the unit of mutual exclusion: every mutation from ingestion, sweep,
// or friendship changes serializes here, while distinct viewers proceed in
// parallel. Methods never invoke collaborators while holding the lock.
type liveView struct {
	mu    sync.Mutex
	plans map[string]domain.Plan
	stale bool
}

func newLiveView() *liveView {
	return &liveView{plans: make(map[string]domain.Plan)}
}

// upsert inserts or replaces the plan and reports whether the view changed.
// Replacing an identical version is a no-op so re-ingested events do not
// produce diff churn.
func (v *liveView) upsert(plan domain.Plan, stale bool) (changed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stale = stale
	if prior, ok := v.plans[plan.ID]; ok && planEqual(prior, plan) {
		return false
	}
	v.plans[plan.ID] = plan
	return true
}

// remove drops the plan id and returns the removed plan when it was present.
func (v *liveView) remove(planID string) (domain.Plan, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	plan, ok := v.plans[planID]
	if ok {
		delete(v.plans, planID)
	}
	return plan, ok
}

// removeOwnedBy drops every plan belonging to the given owner.
func (v *liveView) removeOwnedBy(ownerID string) []domain.Plan {
	v.mu.Lock()
	defer v.mu.Unlock()

	var removed []domain.Plan
	for id, plan := range v.plans {
		if plan.OwnerID == ownerID {
			delete(v.plans, id)
			removed = append(removed, plan)
		}
	}
	return removed
}

// sweep removes entries whose expiry has elapsed at now.
func (v *liveView) sweep(now time.Time) []domain.Plan {
	v.mu.Lock()
	defer v.mu.Unlock()

	var removed []domain.Plan
	for id, plan := range v.plans {
		if plan.ExpiredAt(now) {
			delete(v.plans, id)
			removed = append(removed, plan)
		}
	}
	return removed
}

// snapshot returns the live entries ordered by start time. Expiry is applied
// lazily against now so an entry the sweep has not reached yet is never
// returned.
func (v *liveView) snapshot(now time.Time) ([]domain.Plan, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]domain.Plan, 0, len(v.plans))
	for _, plan := range v.plans {
		if plan.ExpiredAt(now) {
			continue
		}
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, v.stale
}

// ownedBy returns the viewer's entries belonging to the given owner.
func (v *liveView) ownedBy(ownerID string) []domain.Plan {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []domain.Plan
	for _, plan := range v.plans {
		if plan.OwnerID == ownerID {
			out = append(out, plan)
		}
	}
	return out
}

func (v *liveView) size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.plans)
}

func planEqual(a, b domain.Plan) bool {
	if a.ID != b.ID || a.OwnerID != b.OwnerID || a.Kind != b.Kind ||
		a.Title != b.Title || a.Description != b.Description ||
		!a.StartTime.Equal(b.StartTime) || !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	if (a.EndTime == nil) != (b.EndTime == nil) {
		return false
	}
	if a.EndTime != nil && !a.EndTime.Equal(*b.EndTime) {
		return false
	}
	if (a.Location == nil) != (b.Location == nil) {
		return false
	}
	if a.Location != nil {
		if a.Location.Name != b.Location.Name {
			return false
		}
		if (a.Location.Lat == nil) != (b.Location.Lat == nil) ||
			(a.Location.Lng == nil) != (b.Location.Lng == nil) {
			return false
		}
		if a.Location.Lat != nil && (*a.Location.Lat != *b.Location.Lat || *a.Location.Lng != *b.Location.Lng) {
			return false
		}
	}
	if len(a.Metadata) != len(b.Metadata) {
		return false
	}
	for k, v := range a.Metadata {
		if b.Metadata[k] != v {
			return false
		}
	}
	return true
}
