package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeatInBounds(t *testing.T) {
	cases := []struct {
		name string
		seat Seat
		want bool
	}{
		{"first seat of first cargo", Seat{Cargo: 0, Number: 1}, true},
		{"last seat of last cargo", Seat{Cargo: 1, Number: 3}, true},
		{"negative cargo", Seat{Cargo: -1, Number: 1}, false},
		{"cargo equals cargo count", Seat{Cargo: 2, Number: 1}, false},
		{"seat zero", Seat{Cargo: 0, Number: 0}, false},
		{"seat past row end", Seat{Cargo: 0, Number: 4}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.seat.InBounds(2, 3))
		})
	}
}

func TestFreeSeatsFullGrid(t *testing.T) {
	free := FreeSeats(2, 3, nil)

	assert.Equal(t, []Seat{
		{Cargo: 0, Number: 1}, {Cargo: 0, Number: 2}, {Cargo: 0, Number: 3},
		{Cargo: 1, Number: 1}, {Cargo: 1, Number: 2}, {Cargo: 1, Number: 3},
	}, free)
}

func TestFreeSeatsSkipsTaken(t *testing.T) {
	free := FreeSeats(2, 3, []Seat{
		{Cargo: 0, Number: 2},
		{Cargo: 1, Number: 1},
		{Cargo: 1, Number: 3},
	})

	assert.Equal(t, []Seat{
		{Cargo: 0, Number: 1}, {Cargo: 0, Number: 3},
		{Cargo: 1, Number: 2},
	}, free)
}

func TestFreeSeatsSoldOut(t *testing.T) {
	taken := FreeSeats(1, 2, nil)
	assert.Empty(t, FreeSeats(1, 2, taken))
}

func TestJourneyCapacity(t *testing.T) {
	j := Journey{
		CargoCount:    5,
		SeatsPerCargo: 40,
		Departure:     time.Now(),
		Arrival:       time.Now().Add(time.Hour),
	}

	assert.Equal(t, 200, j.Capacity())
	assert.Equal(t, 0, Journey{}.Capacity())
}
