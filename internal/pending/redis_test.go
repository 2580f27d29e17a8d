package pending

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwise1/voteledger/internal/ledger"
)

func TestRedisStore_Put(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)

	p := unlock("tok-1")
	data, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectSet("voteledger:unlock:pending:tok-1", string(data), 15*time.Minute).SetVal("OK")

	require.NoError(t, store.Put(context.Background(), p, 15*time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Claim(t *testing.T) {
	ctx := context.Background()
	p := unlock("tok-1")
	data, err := json.Marshal(p)
	require.NoError(t, err)

	t.Run("first claim takes the pending entry", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client)

		mock.ExpectSetNX("voteledger:unlock:confirmed:tok-1", "1", ConfirmedTTL).SetVal(true)
		mock.ExpectGetDel("voteledger:unlock:pending:tok-1").SetVal(string(data))

		got, err := store.Claim(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, p.ActorID, got.ActorID)
		assert.Equal(t, p.Category, got.Category)
		assert.True(t, p.IssuedAt.Equal(got.IssuedAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replay is already confirmed", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client)

		mock.ExpectSetNX("voteledger:unlock:confirmed:tok-1", "1", ConfirmedTTL).SetVal(false)

		_, err := store.Claim(ctx, "tok-1")
		assert.ErrorIs(t, err, ledger.ErrAlreadyConfirmed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing entry is expired and releases the marker", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client)

		mock.ExpectSetNX("voteledger:unlock:confirmed:tok-1", "1", ConfirmedTTL).SetVal(true)
		mock.ExpectGetDel("voteledger:unlock:pending:tok-1").RedisNil()
		mock.ExpectDel("voteledger:unlock:confirmed:tok-1").SetVal(1)

		_, err := store.Claim(ctx, "tok-1")
		assert.ErrorIs(t, err, ledger.ErrExpired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure is not mistaken for expiry", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client)

		mock.ExpectSetNX("voteledger:unlock:confirmed:tok-1", "1", ConfirmedTTL).SetErr(errors.New("connection refused"))

		_, err := store.Claim(ctx, "tok-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ledger.ErrExpired)
	})
}

func TestRedisStore_Release(t *testing.T) {
	ctx := context.Background()
	p := unlock("tok-1")
	data, err := json.Marshal(p)
	require.NoError(t, err)

	t.Run("restores the entry then drops the marker", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client)

		mock.ExpectSet("voteledger:unlock:pending:tok-1", string(data), 5*time.Minute).SetVal("OK")
		mock.ExpectDel("voteledger:unlock:confirmed:tok-1").SetVal(1)

		require.NoError(t, store.Release(ctx, p, 5*time.Minute))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lapsed token only drops the marker", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		store := NewRedisStore(client)

		mock.ExpectDel("voteledger:unlock:confirmed:tok-1").SetVal(1)

		require.NoError(t, store.Release(ctx, p, -time.Second))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
