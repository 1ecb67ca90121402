//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("soonish"),
		postgrescontainer.WithUsername("soonish"),
		postgrescontainer.WithPassword("soonish"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	repo := NewRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	alice := uuid.NewString()
	bob := uuid.NewString()
	carol := uuid.NewString()

	insertFriendship(t, ctx, pool, alice, bob)
	insertFriendship(t, ctx, pool, bob, carol)

	futureMicro := uuid.NewString()
	pastMicro := uuid.NewString()
	openEnded := uuid.NewString()

	_, err = pool.Exec(ctx, `INSERT INTO plans
        (plan_id, owner_id, kind, title, description, start_time, end_time, location_name, lat, lng, metadata, created_at)
        VALUES ($1, $2, 'micro', 'Coffee', 'quick one', $3, NULL, 'Blue Bottle', 37.7764, -122.4231, '{"source":"app"}', $4)`,
		futureMicro, alice, now.Add(2*time.Hour), now)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO plans
        (plan_id, owner_id, kind, title, start_time, created_at)
        VALUES ($1, $2, 'micro', 'Yesterday run', $3, $4)`,
		pastMicro, bob, now.Add(-3*time.Hour), now.Add(-4*time.Hour))
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `INSERT INTO plans
        (plan_id, owner_id, kind, title, start_time, end_time, created_at)
        VALUES ($1, $2, 'event', 'Concert', $3, $4, $5)`,
		openEnded, bob, now.Add(-1*time.Hour), now.Add(3*time.Hour), now.Add(-2*time.Hour))
	require.NoError(t, err)

	friends, err := repo.GetFriends(ctx, bob)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{alice, carol}, friends)

	pairs, err := repo.ListFriendships(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	active, err := repo.ListActivePlans(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	ids := []string{active[0].ID, active[1].ID}
	require.ElementsMatch(t, []string{futureMicro, openEnded}, ids)

	stored, err := repo.GetPlan(ctx, futureMicro)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "Coffee", stored.Title)
	require.Equal(t, "quick one", stored.Description)
	require.NotNil(t, stored.Location)
	require.Equal(t, "Blue Bottle", stored.Location.Name)
	require.NotNil(t, stored.Location.Lat)
	require.InDelta(t, 37.7764, *stored.Location.Lat, 1e-9)
	require.Equal(t, map[string]string{"source": "app"}, stored.Metadata)

	gone, err := repo.GetPlan(ctx, pastMicro)
	require.NoError(t, err)
	require.NotNil(t, gone, "past plans stay readable until deleted")

	_, err = pool.Exec(ctx, `UPDATE plans SET deleted_at = now() WHERE plan_id = $1`, openEnded)
	require.NoError(t, err)

	deleted, err := repo.GetPlan(ctx, openEnded)
	require.NoError(t, err)
	require.Nil(t, deleted)

	require.NoError(t, repo.Healthy(ctx))
}

func insertFriendship(t *testing.T, ctx context.Context, pool *pgxpool.Pool, a, b string) {
	t.Helper()
	if b < a {
		a, b = b, a
	}
	_, err := pool.Exec(ctx, `INSERT INTO friendships (user_a, user_b) VALUES ($1, $2)`, a, b)
	require.NoError(t, err)
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
