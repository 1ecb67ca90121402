// Package domain defines the data model and collaborator contracts for the
// plan feed engine.
package domain

import (
	"fmt"
	"time"
)

// PlanKind classifies a plan by its time horizon.
type PlanKind string

const (
	PlanKindMicro  PlanKind = "micro"
	PlanKindEvent  PlanKind = "event"
	PlanKindTravel PlanKind = "travel"
)

// Valid reports whether the kind is one of the known values.
func (k PlanKind) Valid() bool {
	switch k {
	case PlanKindMicro, PlanKindEvent, PlanKindTravel:
		return true
	}
	return false
}

// Location is an optional named place attached to a plan. Coordinates are
// either both present or both absent; a location with only a name is valid
// but never participates in overlap matching.
type Location struct {
	Name string
	Lat  *float64
	Lng  *float64
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Lat != nil && l.Lng != nil
}

// Plan is a user-authored, time-bounded activity record. Plans are immutable
// after creation except for deletion.
type Plan struct {
	ID          string
	OwnerID     string
	Kind        PlanKind
	Title       string
	Description string
	StartTime   time.Time
	EndTime     *time.Time
	Location    *Location
	Metadata    map[string]string
	CreatedAt   time.Time
}

// ExpiresAt returns the instant after which the plan no longer belongs in any
// live view. Micro plans expire at their start; events and travel expire at
// their end, falling back to the start when no end is set.
func (p Plan) ExpiresAt() time.Time {
	if p.Kind == PlanKindMicro {
		return p.StartTime
	}
	if p.EndTime != nil {
		return *p.EndTime
	}
	return p.StartTime
}

// ExpiredAt reports whether the plan is expired at the given instant.
func (p Plan) ExpiredAt(now time.Time) bool {
	return now.After(p.ExpiresAt())
}

// Validate checks structural invariants. The micro-plan horizon is enforced
// against CreatedAt, never against the current clock, so replayed events for
// old plans are not retroactively invalidated.
func (p Plan) Validate(horizon time.Duration) error {
	if p.ID == "" {
		return fmt.Errorf("%w: plan id is required", ErrValidation)
	}
	if p.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown plan kind %q", ErrValidation, p.Kind)
	}
	if p.StartTime.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrValidation)
	}
	if p.EndTime != nil && p.EndTime.Before(p.StartTime) {
		return fmt.Errorf("%w: end time precedes start time", ErrValidation)
	}
	if p.Location != nil {
		if (p.Location.Lat == nil) != (p.Location.Lng == nil) {
			return fmt.Errorf("%w: location has partial coordinates", ErrValidation)
		}
	}
	if p.Kind == PlanKindMicro && !p.CreatedAt.IsZero() {
		if !p.StartTime.After(p.CreatedAt) || p.StartTime.After(p.CreatedAt.Add(horizon)) {
			return fmt.Errorf("%w: micro plan start must fall within %s of creation", ErrValidation, horizon)
		}
	}
	return nil
}

// Clone returns a copy whose metadata map is independent of the original.
func (p Plan) Clone() Plan {
	out := p
	if p.EndTime != nil {
		end := *p.EndTime
		out.EndTime = &end
	}
	if p.Location != nil {
		loc := *p.Location
		if p.Location.Lat != nil {
			lat := *p.Location.Lat
			loc.Lat = &lat
		}
		if p.Location.Lng != nil {
			lng := *p.Location.Lng
			loc.Lng = &lng
		}
		out.Location = &loc
	}
	if p.Metadata != nil {
		out.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// PlanOp identifies the mutation carried by a plan change event.
type PlanOp string

const (
	PlanOpUpsert PlanOp = "upsert"
	PlanOpDelete PlanOp = "delete"
)

// PlanEvent is one entry of the plan change feed.
type PlanEvent struct {
	Op   PlanOp
	Plan Plan
}

// FriendshipOp identifies the mutation carried by a friendship change event.
type FriendshipOp string

const (
	FriendshipOpAdd    FriendshipOp = "add"
	FriendshipOpRemove FriendshipOp = "remove"
)

// FriendshipEvent records a symmetric edge change between two users.
type FriendshipEvent struct {
	Op       FriendshipOp
	UserID   string
	FriendID string
}

// Friendship is a symmetric, idempotent edge between two user ids.
type Friendship struct {
	UserA string
	UserB string
}
