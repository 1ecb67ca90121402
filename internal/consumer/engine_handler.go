package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
)

// Engine is the slice of the live-plan engine the handler drives.
type Engine interface {
	HandlePlanEvent(ctx context.Context, ev domain.PlanEvent) error
	HandleFriendshipEvent(ctx context.Context, ev domain.FriendshipEvent) error
}

// EngineHandler decodes plan and friendship payloads and applies them to the
// engine. Validation rejects are logged and swallowed so the offending record
// is committed; collaborator failures propagate so the record is redelivered.
type EngineHandler struct {
	engine Engine
	logger *log.Logger
}

// EngineHandlerOption configures optional EngineHandler behaviour.
type EngineHandlerOption func(*EngineHandler)

// WithHandlerLogger overrides the logger used for rejected events.
func WithHandlerLogger(logger *log.Logger) EngineHandlerOption {
	return func(h *EngineHandler) {
		h.logger = logger
	}
}

// NewEngineHandler constructs a handler applying decoded events to the engine.
func NewEngineHandler(engine Engine, opts ...EngineHandlerOption) *EngineHandler {
	h := &EngineHandler{
		engine: engine,
		logger: log.New(log.Writer(), "[consumer] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type planPayload struct {
	PlanID      string            `json:"plan_id"`
	OwnerID     string            `json:"owner_id"`
	Kind        string            `json:"kind"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Location    *locationPayload  `json:"location,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type locationPayload struct {
	Name string   `json:"name,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

type planDeletedPayload struct {
	PlanID  string `json:"plan_id"`
	OwnerID string `json:"owner_id,omitempty"`
}

type friendshipPayload struct {
	UserID   string `json:"user_id"`
	FriendID string `json:"friend_id"`
}

// Handle routes a decoded message by event type.
func (h *EngineHandler) Handle(ctx context.Context, msg Message) error {
	var err error
	switch msg.EventType {
	case domain.EventPlanUpserted:
		err = h.handlePlanUpserted(ctx, msg)
	case domain.EventPlanDeleted:
		err = h.handlePlanDeleted(ctx, msg)
	case domain.EventFriendshipAdded:
		err = h.handleFriendship(ctx, msg, domain.FriendshipOpAdd)
	case domain.EventFriendshipRemoved:
		err = h.handleFriendship(ctx, msg, domain.FriendshipOpRemove)
	default:
		// Unrecognized types never become handleable; reject and commit
		// instead of re-scanning the record on every restart.
		err = fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, msg.EventType)
	}

	if errors.Is(err, domain.ErrValidation) {
		// Invalid payloads never become valid on redelivery.
		h.logger.Printf("rejected %s at offset %d: %v", msg.EventType, msg.Offset, err)
		recordRejected(msg)
		return nil
	}
	return err
}

func (h *EngineHandler) handlePlanUpserted(ctx context.Context, msg Message) error {
	var payload planPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: malformed plan payload: %v", domain.ErrValidation, err)
	}
	return h.engine.HandlePlanEvent(ctx, domain.PlanEvent{
		Op:   domain.PlanOpUpsert,
		Plan: payload.toDomain(),
	})
}

func (h *EngineHandler) handlePlanDeleted(ctx context.Context, msg Message) error {
	var payload planDeletedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: malformed plan deletion payload: %v", domain.ErrValidation, err)
	}
	if payload.PlanID == "" {
		return fmt.Errorf("%w: plan deletion missing plan_id", domain.ErrValidation)
	}
	return h.engine.HandlePlanEvent(ctx, domain.PlanEvent{
		Op:   domain.PlanOpDelete,
		Plan: domain.Plan{ID: payload.PlanID, OwnerID: payload.OwnerID},
	})
}

func (h *EngineHandler) handleFriendship(ctx context.Context, msg Message, op domain.FriendshipOp) error {
	var payload friendshipPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: malformed friendship payload: %v", domain.ErrValidation, err)
	}
	if payload.UserID == "" || payload.FriendID == "" {
		return fmt.Errorf("%w: friendship event missing user ids", domain.ErrValidation)
	}
	return h.engine.HandleFriendshipEvent(ctx, domain.FriendshipEvent{
		Op:       op,
		UserID:   payload.UserID,
		FriendID: payload.FriendID,
	})
}

func (p planPayload) toDomain() domain.Plan {
	plan := domain.Plan{
		ID:          p.PlanID,
		OwnerID:     p.OwnerID,
		Kind:        domain.PlanKind(p.Kind),
		Title:       p.Title,
		Description: p.Description,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		Metadata:    p.Metadata,
		CreatedAt:   p.CreatedAt,
	}
	if p.Location != nil {
		plan.Location = &domain.Location{
			Name: p.Location.Name,
			Lat:  p.Location.Lat,
			Lng:  p.Location.Lng,
		}
	}
	return plan
}
