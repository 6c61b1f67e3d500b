package domain

// Seat identifies one bookable place inside a journey: a 0-based cargo
// (car) index and a 1-based seat number within that cargo.
type Seat struct {
	Cargo  int `json:"cargo"`
	Number int `json:"seat"`
}

// InBounds reports whether the seat exists on a train with the given
// layout.
func (s Seat) InBounds(cargoCount, seatsPerCargo int) bool {
	if s.Cargo < 0 || s.Cargo >= cargoCount {
		return false
	}
	return s.Number >= 1 && s.Number <= seatsPerCargo
}

// FreeSeats returns the full free inventory of a journey: the
// {0..cargoCount-1} x {1..seatsPerCargo} grid minus the taken seats,
// ordered by cargo then seat number.
func FreeSeats(cargoCount, seatsPerCargo int, taken []Seat) []Seat {
	occupied := make(map[Seat]struct{}, len(taken))
	for _, s := range taken {
		occupied[s] = struct{}{}
	}

	free := make([]Seat, 0, cargoCount*seatsPerCargo-len(occupied))
	for cargo := 0; cargo < cargoCount; cargo++ {
		for num := 1; num <= seatsPerCargo; num++ {
			s := Seat{Cargo: cargo, Number: num}
			if _, ok := occupied[s]; ok {
				continue
			}
			free = append(free, s)
		}
	}

	return free
}
