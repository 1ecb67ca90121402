package domain

import "time"

// OverlapRecord captures a detected space/time coincidence between two plans
// with distinct owners. The pair is unordered: records are canonicalized so
// the lexically smaller plan id is stored first, and at most one live record
// exists per pair.
type OverlapRecord struct {
	PlanAID        string
	PlanBID        string
	OwnerAID       string
	OwnerBID       string
	DistanceKm     float64
	TimeDeltaHours float64
	DetectedAt     time.Time
}

// NewOverlapRecord builds a canonicalized record for the given plan pair.
func NewOverlapRecord(a, b Plan, distanceKm, timeDeltaHours float64, detectedAt time.Time) OverlapRecord {
	if b.ID < a.ID {
		a, b = b, a
	}
	return OverlapRecord{
		PlanAID:        a.ID,
		PlanBID:        b.ID,
		OwnerAID:       a.OwnerID,
		OwnerBID:       b.OwnerID,
		DistanceKm:     distanceKm,
		TimeDeltaHours: timeDeltaHours,
		DetectedAt:     detectedAt,
	}
}

// PairKey returns the deduplication key for an unordered plan-id pair.
func PairKey(planA, planB string) string {
	if planB < planA {
		planA, planB = planB, planA
	}
	return planA + "|" + planB
}

// Key returns the record's deduplication key.
func (r OverlapRecord) Key() string {
	return PairKey(r.PlanAID, r.PlanBID)
}

// InvolvesPlan reports whether the record references the given plan id.
func (r OverlapRecord) InvolvesPlan(planID string) bool {
	return r.PlanAID == planID || r.PlanBID == planID
}

// InvolvesUser reports whether either referenced plan belongs to the user.
func (r OverlapRecord) InvolvesUser(userID string) bool {
	return r.OwnerAID == userID || r.OwnerBID == userID
}

// Between reports whether the record joins plans owned by the two users, in
// either order.
func (r OverlapRecord) Between(userA, userB string) bool {
	return (r.OwnerAID == userA && r.OwnerBID == userB) ||
		(r.OwnerAID == userB && r.OwnerBID == userA)
}

// PlansFor returns the record's plan ids oriented from the perspective of the
// given owner: first the owner's plan, then the friend's. ok is false when the
// owner does not participate in the record.
func (r OverlapRecord) PlansFor(ownerID string) (self, friend string, ok bool) {
	switch ownerID {
	case r.OwnerAID:
		return r.PlanAID, r.PlanBID, true
	case r.OwnerBID:
		return r.PlanBID, r.PlanAID, true
	}
	return "", "", false
}
