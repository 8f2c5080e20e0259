package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSQLStore(t *testing.T, now time.Time) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLStore(sqlx.NewDb(db, "mysql"))
	require.NoError(t, err)
	store.now = func() time.Time { return now }
	return store, mock
}

func TestNewSQLStore_unsupportedDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLStore(sqlx.NewDb(db, "postgres"))
	assert.Error(t, err)
}

func TestSQLStore_Get(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		want      string
		wantFound bool
		wantErr   bool
	}{
		{
			name: "found without expiry",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"v", "expires_at"}).AddRow("value", 0)
				mock.ExpectQuery("SELECT v, expires_at FROM kv_entries WHERE k = \\?").
					WithArgs("key").
					WillReturnRows(rows)
			},
			want:      "value",
			wantFound: true,
		},
		{
			name: "found before expiry",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"v", "expires_at"}).AddRow("value", now.Add(time.Second).Unix())
				mock.ExpectQuery("SELECT v, expires_at FROM kv_entries WHERE k = \\?").
					WithArgs("key").
					WillReturnRows(rows)
			},
			want:      "value",
			wantFound: true,
		},
		{
			name: "expired",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"v", "expires_at"}).AddRow("value", now.Unix())
				mock.ExpectQuery("SELECT v, expires_at FROM kv_entries WHERE k = \\?").
					WithArgs("key").
					WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT v, expires_at FROM kv_entries WHERE k = \\?").
					WithArgs("key").
					WillReturnRows(sqlmock.NewRows([]string{"v", "expires_at"}))
			},
		},
		{
			name: "query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT v, expires_at FROM kv_entries WHERE k = \\?").
					WithArgs("key").
					WillReturnError(errors.New("connection error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockSQLStore(t, now)
			tt.setupMock(mock)

			got, found, err := store.Get(context.Background(), "key")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantFound, found)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_Set(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store, mock := newMockSQLStore(t, now)

	mock.ExpectExec("INSERT INTO kv_entries \\(k, v, expires_at\\) VALUES \\(\\?, \\?, \\?\\)\\s+ON DUPLICATE KEY UPDATE").
		WithArgs("key", "value", now.Add(time.Hour).Unix()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Set(context.Background(), "key", "value", time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Incr_mysql(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		want      int64
		wantErr   bool
	}{
		{
			name: "increments in a transaction",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("DELETE FROM kv_entries WHERE k = \\?").
					WithArgs("usage/2025-01-01", now.Unix()).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("INSERT INTO kv_entries").
					WithArgs("usage/2025-01-01", now.Add(48*time.Hour).Unix()).
					WillReturnResult(sqlmock.NewResult(0, 2))
				mock.ExpectQuery("SELECT v FROM kv_entries WHERE k = \\?").
					WithArgs("usage/2025-01-01").
					WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("7"))
				mock.ExpectCommit()
			},
			want: 7,
		},
		{
			name: "rolls back on failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("DELETE FROM kv_entries WHERE k = \\?").
					WithArgs("usage/2025-01-01", now.Unix()).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("INSERT INTO kv_entries").
					WithArgs("usage/2025-01-01", now.Add(48*time.Hour).Unix()).
					WillReturnError(errors.New("deadlock"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockSQLStore(t, now)
			tt.setupMock(mock)

			got, err := store.Incr(context.Background(), "usage/2025-01-01", 48*time.Hour)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_sqlite(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	store, err := NewSQLStore(db)
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))

	_, found, err := store.Get(ctx, "translation/v1/science")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "translation/v1/science", "first", 0))
	require.NoError(t, store.Set(ctx, "translation/v1/science", "second", 0))
	got, found, err := store.Get(ctx, "translation/v1/science")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", got)

	for want := int64(1); want <= 3; want++ {
		count, err := store.Incr(ctx, "usage/2025-01-01", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	now = now.Add(time.Hour)
	_, found, err = store.Get(ctx, "usage/2025-01-01")
	require.NoError(t, err)
	assert.False(t, found)

	count, err := store.Incr(ctx, "usage/2025-01-01", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
