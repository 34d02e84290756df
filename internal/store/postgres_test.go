package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgresStoreMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(regexp.QuoteMeta(`SELECT value FROM agent_state WHERE key = $1`))
	mock.ExpectPrepare(regexp.QuoteMeta(`
		INSERT INTO agent_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
	`))
	mock.ExpectPrepare(regexp.QuoteMeta(`DELETE FROM agent_state WHERE key = $1`))
}

func TestNewPostgresStore(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupPostgresStoreMocks(mock)

		s, err := NewPostgresStore(db)
		require.NoError(t, err)
		assert.NotNil(t, s)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(`SELECT value FROM agent_state WHERE key = $1`)).
			WillReturnError(assert.AnError)

		_, err = NewPostgresStore(db)
		assert.Error(t, err)
	})
}

func TestPostgresStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupPostgresStoreMocks(mock)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM agent_state WHERE key = $1`)).
			WithArgs("auth_token").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("tok-1"))

		s, err := NewPostgresStore(db)
		require.NoError(t, err)

		got, err := s.Get(ctx, "auth_token")
		require.NoError(t, err)
		assert.Equal(t, "tok-1", got)
	})

	t.Run("not_found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupPostgresStoreMocks(mock)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM agent_state WHERE key = $1`)).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"value"}))

		s, err := NewPostgresStore(db)
		require.NoError(t, err)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestPostgresStore_SetAndDelete(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	setupPostgresStoreMocks(mock)
	mock.ExpectExec(regexp.QuoteMeta(`
		INSERT INTO agent_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
	`)).
		WithArgs("auth_token", "tok-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM agent_state WHERE key = $1`)).
		WithArgs("auth_token").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s, err := NewPostgresStore(db)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "auth_token", "tok-2"))
	require.NoError(t, s.Delete(ctx, "auth_token"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
