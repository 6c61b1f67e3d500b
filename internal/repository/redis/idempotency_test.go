package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIdemBookingScopedPerUser(t *testing.T) {
	assert.NotEqual(t, KeyIdemBooking(1, "abc"), KeyIdemBooking(2, "abc"))
	assert.Equal(t, "railgo:v1:idem:bookings:1:abc", KeyIdemBooking(1, "abc"))
}

func TestAcquireLockFirstWins(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(rdb, time.Hour)
	key := KeyIdemBooking(1, "abc")

	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(true)
	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(false)

	ok, err := s.AcquireLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetResultReplaysSavedPayload(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(rdb, time.Hour)
	key := KeyIdemBooking(1, "abc")

	mock.ExpectSet(key, `RES:{"order_id":"x"}`, time.Hour).SetVal("OK")
	mock.ExpectGet(key).SetVal(`RES:{"order_id":"x"}`)

	require.NoError(t, s.SaveResult(context.Background(), key, `{"order_id":"x"}`))

	payload, ok, err := s.GetResult(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"order_id":"x"}`, payload)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetResultIgnoresLockMarker(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(rdb, time.Hour)
	key := KeyIdemBooking(1, "abc")

	mock.ExpectGet(key).SetVal("LOCK")
	mock.ExpectGet(key).SetVal("LOCK")

	_, ok, err := s.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := s.IsLocked(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, locked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetResultMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(rdb, time.Hour)
	key := KeyIdemBooking(1, "abc")

	mock.ExpectGet(key).RedisNil()

	_, ok, err := s.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseDropsKey(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(rdb, time.Hour)
	key := KeyIdemBooking(1, "abc")

	mock.ExpectDel(key).SetVal(1)

	require.NoError(t, s.Release(context.Background(), key))
	assert.NoError(t, mock.ExpectationsWereMet())
}
