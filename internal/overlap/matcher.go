package overlap

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
)

// EventOp distinguishes overlap record lifecycle transitions.
type EventOp string

const (
	// EventOpAdd announces a newly detected overlap.
	EventOpAdd EventOp = "add"
	// EventOpRemove announces a retired overlap.
	EventOpRemove EventOp = "remove"
)

// Event is one entry of the matcher's output stream, forwarded to the
// notification sink.
type Event struct {
	Op     EventOp
	Record domain.OverlapRecord
}

// Matcher incrementally maintains the live set of overlap records. A plan
// change re-evaluates only pairs involving that plan against each friend's
// current live plans; nothing ever triggers a full cross-product pass. The
// per-friend scan is linear, which is fine at tens of plans per user; a
// grid or geohash bucket index could replace candidatesFor without touching
// the predicate if that stops being true.
type Matcher struct {
	maxDistanceKm     float64
	maxTimeDeltaHours float64
	clock             domain.Clock

	mu      sync.Mutex
	plans   map[string]domain.Plan
	byOwner map[string]map[string]struct{}
	friends map[string]map[string]struct{}
	records map[string]domain.OverlapRecord
}

// NewMatcher constructs a Matcher with inclusive thresholds.
func NewMatcher(maxDistanceKm, maxTimeDeltaHours float64, clock domain.Clock) *Matcher {
	return &Matcher{
		maxDistanceKm:     maxDistanceKm,
		maxTimeDeltaHours: maxTimeDeltaHours,
		clock:             clock,
		plans:             make(map[string]domain.Plan),
		byOwner:           make(map[string]map[string]struct{}),
		friends:           make(map[string]map[string]struct{}),
		records:           make(map[string]domain.OverlapRecord),
	}
}

// UpsertPlan registers or replaces one of the owner's live plans and
// re-evaluates pairs involving it. Re-detecting an already-live pair refreshes
// distance and delta but preserves DetectedAt and emits nothing.
func (m *Matcher) UpsertPlan(plan domain.Plan) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.plans[plan.ID] = plan
	owned := m.byOwner[plan.OwnerID]
	if owned == nil {
		owned = make(map[string]struct{})
		m.byOwner[plan.OwnerID] = owned
	}
	owned[plan.ID] = struct{}{}

	matched := make(map[string]struct{})
	var events []Event

	if plan.Location.HasCoordinates() {
		for friendID := range m.friends[plan.OwnerID] {
			for _, other := range m.candidatesFor(friendID) {
				key, rec, ok := m.match(plan, other)
				if !ok {
					continue
				}
				matched[key] = struct{}{}
				if existing, live := m.records[key]; live {
					existing.DistanceKm = rec.DistanceKm
					existing.TimeDeltaHours = rec.TimeDeltaHours
					m.records[key] = existing
					continue
				}
				m.records[key] = rec
				events = append(events, Event{Op: EventOpAdd, Record: rec})
			}
		}
	}

	// A re-ingested plan may have dropped out of range of a previously
	// matched counterpart; retire whatever no longer holds.
	for key, rec := range m.records {
		if !rec.InvolvesPlan(plan.ID) {
			continue
		}
		if _, still := matched[key]; still {
			continue
		}
		delete(m.records, key)
		events = append(events, Event{Op: EventOpRemove, Record: rec})
	}

	return events
}

// RemovePlan drops a plan from the live index and retires every record
// referencing it. Removing an unknown plan with no records returns
// ErrInconsistentState so the caller can log it; the operation is still a
// no-op.
func (m *Matcher) RemovePlan(planID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, known := m.plans[planID]
	if known {
		delete(m.plans, planID)
		if owned := m.byOwner[plan.OwnerID]; owned != nil {
			delete(owned, planID)
			if len(owned) == 0 {
				delete(m.byOwner, plan.OwnerID)
			}
		}
	}

	var events []Event
	for key, rec := range m.records {
		if !rec.InvolvesPlan(planID) {
			continue
		}
		delete(m.records, key)
		events = append(events, Event{Op: EventOpRemove, Record: rec})
	}

	if !known && len(events) == 0 {
		return nil, fmt.Errorf("%w: plan %s not tracked", domain.ErrInconsistentState, planID)
	}
	return events, nil
}

// RemoveOwnedBy drops every plan the owner has in the live index and retires
// every record referencing one of them. Used when the owner's live set is torn
// down as a whole, so pairs cannot outlive both participants' plans. Unknown
// owners are a no-op.
func (m *Matcher) RemoveOwnedBy(ownerID string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	owned := m.byOwner[ownerID]
	if len(owned) == 0 {
		return nil
	}
	delete(m.byOwner, ownerID)
	for planID := range owned {
		delete(m.plans, planID)
	}

	var events []Event
	for key, rec := range m.records {
		if !rec.InvolvesUser(ownerID) {
			continue
		}
		delete(m.records, key)
		events = append(events, Event{Op: EventOpRemove, Record: rec})
	}
	return events
}

// FriendshipAdded records the symmetric edge and cross-matches the two users'
// current live plans. Adding an existing edge is idempotent.
func (m *Matcher) FriendshipAdded(userA, userB string) []Event {
	if userA == userB {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.addEdge(userA, userB)
	m.addEdge(userB, userA)

	var events []Event
	for _, plan := range m.candidatesFor(userA) {
		if !plan.Location.HasCoordinates() {
			continue
		}
		for _, other := range m.candidatesFor(userB) {
			key, rec, ok := m.match(plan, other)
			if !ok {
				continue
			}
			if _, live := m.records[key]; live {
				continue
			}
			m.records[key] = rec
			events = append(events, Event{Op: EventOpAdd, Record: rec})
		}
	}
	return events
}

// FriendshipRemoved drops the edge and retires every record between the two
// users' plans without re-running any distance or time checks.
func (m *Matcher) FriendshipRemoved(userA, userB string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropEdge(userA, userB)
	m.dropEdge(userB, userA)

	var events []Event
	for key, rec := range m.records {
		if !rec.Between(userA, userB) {
			continue
		}
		delete(m.records, key)
		events = append(events, Event{Op: EventOpRemove, Record: rec})
	}
	return events
}

// ActiveFor returns the live records touching one of the user's plans,
// ordered by detection time then pair key for determinism.
func (m *Matcher) ActiveFor(userID string) []domain.OverlapRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.OverlapRecord
	for _, rec := range m.records {
		if rec.InvolvesUser(userID) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// LiveRecordCount reports the number of live overlap records.
func (m *Matcher) LiveRecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// match evaluates the predicate for a candidate pair. Both thresholds are
// inclusive and plans lacking coordinates never match.
func (m *Matcher) match(a, b domain.Plan) (string, domain.OverlapRecord, bool) {
	if a.OwnerID == b.OwnerID {
		return "", domain.OverlapRecord{}, false
	}
	if !a.Location.HasCoordinates() || !b.Location.HasCoordinates() {
		return "", domain.OverlapRecord{}, false
	}

	dist := Haversine(*a.Location.Lat, *a.Location.Lng, *b.Location.Lat, *b.Location.Lng)
	if dist > m.maxDistanceKm {
		return "", domain.OverlapRecord{}, false
	}
	delta := math.Abs(a.StartTime.Sub(b.StartTime).Hours())
	if delta > m.maxTimeDeltaHours {
		return "", domain.OverlapRecord{}, false
	}

	rec := domain.NewOverlapRecord(a, b, round1(dist), round1(delta), m.clock.Now())
	return rec.Key(), rec, true
}

func (m *Matcher) candidatesFor(ownerID string) []domain.Plan {
	ids := m.byOwner[ownerID]
	out := make([]domain.Plan, 0, len(ids))
	for id := range ids {
		out = append(out, m.plans[id])
	}
	return out
}

func (m *Matcher) addEdge(from, to string) {
	edges := m.friends[from]
	if edges == nil {
		edges = make(map[string]struct{})
		m.friends[from] = edges
	}
	edges[to] = struct{}{}
}

func (m *Matcher) dropEdge(from, to string) {
	if edges := m.friends[from]; edges != nil {
		delete(edges, to)
		if len(edges) == 0 {
			delete(m.friends, from)
		}
	}
}
