package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Get(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock redismock.ClientMock)
		want      string
		wantFound bool
		wantErr   bool
	}{
		{
			name: "hit",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet("translation/v1/science").SetVal(`{"translated":"kexue"}`)
			},
			want:      `{"translated":"kexue"}`,
			wantFound: true,
		},
		{
			name: "miss",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet("translation/v1/science").RedisNil()
			},
		},
		{
			name: "connection error",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet("translation/v1/science").SetErr(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := redismock.NewClientMock()
			tt.setupMock(mock)
			store := NewRedisStore(client)

			got, found, err := store.Get(context.Background(), "translation/v1/science")
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

func TestRedisStore_Set(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectSet("translation/v1/science", "value", 24*time.Hour).SetVal("OK")
	store := NewRedisStore(client)

	require.NoError(t, store.Set(context.Background(), "translation/v1/science", "value", 24*time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Incr(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock redismock.ClientMock)
		want      int64
		wantErr   bool
	}{
		{
			name: "first increment sets expiry",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectIncr("usage/2025-01-01").SetVal(1)
				mock.ExpectExpire("usage/2025-01-01", 48*time.Hour).SetVal(true)
			},
			want: 1,
		},
		{
			name: "later increment keeps expiry",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectIncr("usage/2025-01-01").SetVal(42)
			},
			want: 42,
		},
		{
			name: "incr fails",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectIncr("usage/2025-01-01").SetErr(errors.New("timeout"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := redismock.NewClientMock()
			tt.setupMock(mock)
			store := NewRedisStore(client)

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
