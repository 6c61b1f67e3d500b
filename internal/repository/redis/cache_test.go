package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	ID    int64 `json:"id"`
	Seats int   `json:"seats"`
}

func TestGetJSONHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	mock.ExpectGet("k").SetVal(`{"id":3,"seats":12}`)

	v, ok, err := GetJSON[summary](context.Background(), c, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, summary{ID: 3, Seats: 12}, v)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJSONMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	mock.ExpectGet("k").RedisNil()

	_, ok, err := GetJSON[summary](context.Background(), c, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetJSONLoadsOnMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	// one miss before the singleflight gate, one inside it
	mock.ExpectGet("k").RedisNil()
	mock.ExpectGet("k").RedisNil()
	mock.ExpectSet("k", `{"id":3,"seats":12}`, time.Minute).SetVal("OK")

	loaded := 0
	v, err := GetOrSetJSON(context.Background(), c, "k", time.Minute,
		func(ctx context.Context) (summary, error) {
			loaded++
			return summary{ID: 3, Seats: 12}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, summary{ID: 3, Seats: 12}, v)
	assert.Equal(t, 1, loaded)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetJSONSkipsLoaderOnHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	mock.ExpectGet("k").SetVal(`{"id":3,"seats":12}`)

	v, err := GetOrSetJSON(context.Background(), c, "k", time.Minute,
		func(ctx context.Context) (summary, error) {
			t.Fatal("loader must not run on a cache hit")
			return summary{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, summary{ID: 3, Seats: 12}, v)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateJourneyDropsAllProjections(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	mock.ExpectDel(
		KeyJourneySummary(9),
		KeyJourneyAvailability(9),
		KeyJourneySeatMap(9),
	).SetVal(3)

	require.NoError(t, c.InvalidateJourney(context.Background(), 9))
	assert.NoError(t, mock.ExpectationsWereMet())
}
