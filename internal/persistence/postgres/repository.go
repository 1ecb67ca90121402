// Package postgres provides the durable plan store and friend graph behind
// the in-memory feed engine.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
)

// Repository reads plans and friendships from Postgres. It backs engine
// bootstrap and the friend-graph lookups made during ingestion.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetFriends returns the user's current friends. The friendship edge is
// symmetric and stored once per pair, so both orientations are matched.
func (r *Repository) GetFriends(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT CASE WHEN user_a = $1 THEN user_b ELSE user_a END
        FROM friendships WHERE user_a = $1 OR user_b = $1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		friends = append(friends, id)
	}
	return friends, rows.Err()
}

// ListFriendships returns every friendship edge, once per pair.
func (r *Repository) ListFriendships(ctx context.Context) ([]domain.Friendship, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_a, user_b FROM friendships`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Friendship
	for rows.Next() {
		var f domain.Friendship
		if err := rows.Scan(&f.UserA, &f.UserB); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListActivePlans returns non-deleted plans whose expiry has not elapsed at
// now, applying the same boundary the live views enforce: micro plans expire
// at their start, the rest at end falling back to start.
func (r *Repository) ListActivePlans(ctx context.Context, now time.Time) ([]domain.Plan, error) {
	const query = `SELECT plan_id, owner_id, kind, title, description, start_time, end_time,
            location_name, lat, lng, metadata, created_at
        FROM plans
        WHERE deleted_at IS NULL
          AND ((kind = 'micro' AND start_time >= $1) OR (kind <> 'micro' AND COALESCE(end_time, start_time) >= $1))
        ORDER BY start_time`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, plan)
	}
	return out, rows.Err()
}

// GetPlan fetches a plan by id regardless of expiry; nil when absent.
func (r *Repository) GetPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	const query = `SELECT plan_id, owner_id, kind, title, description, start_time, end_time,
            location_name, lat, lng, metadata, created_at
        FROM plans WHERE plan_id = $1 AND deleted_at IS NULL`

	rows, err := r.pool.Query(ctx, query, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	plan, err := scanPlan(rows)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func scanPlan(rows pgx.Rows) (domain.Plan, error) {
	var (
		plan         domain.Plan
		description  *string
		endTime      *time.Time
		locationName *string
		lat, lng     *float64
		metadata     []byte
	)
	if err := rows.Scan(&plan.ID, &plan.OwnerID, &plan.Kind, &plan.Title, &description,
		&plan.StartTime, &endTime, &locationName, &lat, &lng, &metadata, &plan.CreatedAt); err != nil {
		return domain.Plan{}, err
	}

	if description != nil {
		plan.Description = *description
	}
	plan.EndTime = endTime
	if locationName != nil || lat != nil || lng != nil {
		loc := &domain.Location{Lat: lat, Lng: lng}
		if locationName != nil {
			loc.Name = *locationName
		}
		plan.Location = loc
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &plan.Metadata); err != nil {
			return domain.Plan{}, err
		}
	}
	return plan, nil
}

// Healthy reports whether the pool can reach the database.
func (r *Repository) Healthy(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return errors.Join(domain.ErrCollaboratorUnavailable, err)
	}
	return nil
}
