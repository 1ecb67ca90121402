// Package api exposes the read-side HTTP surface for live feeds and overlaps.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/andresfuster1/SoonishRepo/internal/auth"
	"github.com/andresfuster1/SoonishRepo/internal/domain"
	"github.com/andresfuster1/SoonishRepo/internal/feed"
)

// LiveQuerier is the slice of the engine the handlers read from.
type LiveQuerier interface {
	GetLiveFeed(viewerID string) feed.Snapshot
	GetActiveOverlaps(userID string) []domain.OverlapRecord
}

// HealthChecker reports readiness of the storage collaborator.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Handler coordinates HTTP requests with the live-plan engine.
type Handler struct {
	engine LiveQuerier
	health HealthChecker
}

// NewHandler builds a Handler.
func NewHandler(engine LiveQuerier, health HealthChecker) *Handler {
	return &Handler{engine: engine, health: health}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/feed", h.getFeed)
	mux.HandleFunc("/v1/overlaps", h.getOverlaps)
	mux.HandleFunc("/healthz", h.healthz)
}

// healthz reports storage reachability for container health checks.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Healthy(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, auth.ScopePlansRead)
	if !ok {
		return
	}

	snapshot := h.engine.GetLiveFeed(claims.Subject)

	items := make([]PlanView, 0, len(snapshot.Plans))
	for _, plan := range snapshot.Plans {
		items = append(items, toPlanView(plan))
	}

	writeJSON(w, http.StatusOK, FeedResponse{Items: items, Stale: snapshot.Stale})
}

func (h *Handler) getOverlaps(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, auth.ScopeOverlapsRead)
	if !ok {
		return
	}

	records := h.engine.GetActiveOverlaps(claims.Subject)

	items := make([]OverlapView, 0, len(records))
	for _, record := range records {
		items = append(items, toOverlapView(claims.Subject, record))
	}

	writeJSON(w, http.StatusOK, OverlapsResponse{Items: items})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return nil, false
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

// PlanView exposes one live feed entry.
type PlanView struct {
	PlanID      string            `json:"plan_id"`
	OwnerID     string            `json:"owner_id"`
	Kind        string            `json:"kind"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Location    *LocationView     `json:"location,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LocationView carries the optional place attached to a plan.
type LocationView struct {
	Name string   `json:"name,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

// FeedResponse packages a viewer's live feed snapshot.
type FeedResponse struct {
	Items []PlanView `json:"items"`
	Stale bool       `json:"stale"`
}

// OverlapView exposes one active overlap from the caller's perspective.
type OverlapView struct {
	PlanIDSelf     string    `json:"plan_id_self"`
	PlanIDFriend   string    `json:"plan_id_friend"`
	FriendID       string    `json:"friend_id"`
	DistanceKm     float64   `json:"distance_km"`
	TimeDeltaHours float64   `json:"time_delta_hours"`
	DetectedAt     time.Time `json:"detected_at"`
}

// OverlapsResponse packages active overlaps.
type OverlapsResponse struct {
	Items []OverlapView `json:"items"`
}

func toPlanView(plan domain.Plan) PlanView {
	view := PlanView{
		PlanID:      plan.ID,
		OwnerID:     plan.OwnerID,
		Kind:        string(plan.Kind),
		Title:       plan.Title,
		Description: plan.Description,
		StartTime:   plan.StartTime,
		EndTime:     plan.EndTime,
		Metadata:    plan.Metadata,
	}
	if plan.Location != nil {
		view.Location = &LocationView{
			Name: plan.Location.Name,
			Lat:  plan.Location.Lat,
			Lng:  plan.Location.Lng,
		}
	}
	return view
}

func toOverlapView(viewerID string, record domain.OverlapRecord) OverlapView {
	self, friendPlan, _ := record.PlansFor(viewerID)
	friendID := record.OwnerAID
	if friendID == viewerID {
		friendID = record.OwnerBID
	}
	return OverlapView{
		PlanIDSelf:     self,
		PlanIDFriend:   friendPlan,
		FriendID:       friendID,
		DistanceKm:     record.DistanceKm,
		TimeDeltaHours: record.TimeDeltaHours,
		DetectedAt:     record.DetectedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
