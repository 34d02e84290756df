//go:build integration
// +build integration

package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "agent",
			"POSTGRES_PASSWORD": "agent",
			"POSTGRES_DB":       "agent_state",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://agent:agent@%s:%s/agent_state?sslmode=disable", host, port.Port())

	var db *sql.DB
	require.Eventually(t, func() bool {
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return false
		}
		return db.Ping() == nil
	}, 30*time.Second, time.Second)

	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t)

	require.NoError(t, Migrate(ctx, db))

	s, err := NewPostgresStore(db)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(ctx, "auth_token")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "auth_token", "tok-1"))

	got, err := s.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)

	// Upsert replaces the value
	require.NoError(t, s.Set(ctx, "auth_token", "tok-2"))
	got, err = s.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got)

	require.NoError(t, s.Delete(ctx, "auth_token"))
	_, err = s.Get(ctx, "auth_token")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Migrate is idempotent
	assert.NoError(t, Migrate(ctx, db))
}
