package domain

// Event type identifiers carried in the event_type Kafka header.
const (
	EventPlanUpserted      = "plan.upserted"
	EventPlanDeleted       = "plan.deleted"
	EventFriendshipAdded   = "friendship.added"
	EventFriendshipRemoved = "friendship.removed"
	EventOverlapDetected   = "overlap.detected"
	EventOverlapRetired    = "overlap.retired"
)
