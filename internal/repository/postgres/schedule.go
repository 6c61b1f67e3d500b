package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yarkob/railgo/internal/domain"
)

// ScheduleRepo is the read path for journeys and their seat capacity.
type ScheduleRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ScheduleRepo) With(db DB) *ScheduleRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ScheduleRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetJourney retrieves a journey with its assigned crews.
//
// Returns:
//   - *domain.Journey: the journey when found.
//   - error: repository.ErrNotFound if the journey is not found.
func (r *ScheduleRepo) GetJourney(ctx context.Context, id int64) (*domain.Journey, error) {
	const op = "postgres.ScheduleRepo.GetJourney"

	db := r.handle()

	var j domain.Journey
	err := db.QueryRow(ctx,
		`SELECT id, route_id, train_id, departure_at, arrival_at, cargo_count, seats_per_cargo
       	 FROM journeys WHERE id = $1`,
		id,
	).Scan(&j.ID, &j.RouteID, &j.TrainID, &j.Departure, &j.Arrival, &j.CargoCount, &j.SeatsPerCargo)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	rows, err := db.Query(ctx,
		`SELECT c.id, c.first_name, c.last_name
       	 FROM journey_crews jc
       	 JOIN crews c ON c.id = jc.crew_id
      	 WHERE jc.journey_id = $1
      	 ORDER BY c.id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	for rows.Next() {
		var c domain.Crew
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		j.Crews = append(j.Crews, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &j, nil
}

// GetCapacity returns the journey's snapshotted seat layout.
//
// Returns:
//   - int, int: cargo count and seats per cargo.
//   - error: repository.ErrNotFound if the journey is not found.
func (r *ScheduleRepo) GetCapacity(ctx context.Context, journeyID int64) (int, int, error) {
	const op = "postgres.ScheduleRepo.GetCapacity"

	db := r.handle()

	var cargoCount, seatsPerCargo int
	err := db.QueryRow(ctx,
		`SELECT cargo_count, seats_per_cargo FROM journeys WHERE id = $1`,
		journeyID,
	).Scan(&cargoCount, &seatsPerCargo)
	if err != nil {
		return 0, 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return cargoCount, seatsPerCargo, nil
}

// ListJourneys lists journey summaries ordered by departure, including the
// remaining seat count (capacity minus live tickets).
func (r *ScheduleRepo) ListJourneys(ctx context.Context, limit, offset int) ([]domain.JourneySummary, error) {
	const op = "postgres.ScheduleRepo.ListJourneys"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT j.id, src.name, dst.name, t.name, j.departure_at, j.arrival_at,
        	j.cargo_count * j.seats_per_cargo - COUNT(tk.id)
       	 FROM journeys j
       	 JOIN routes r ON r.id = j.route_id
       	 JOIN stations src ON src.id = r.source_id
       	 JOIN stations dst ON dst.id = r.destination_id
       	 JOIN trains t ON t.id = j.train_id
       	 LEFT JOIN tickets tk ON tk.journey_id = j.id
      	 GROUP BY j.id, src.name, dst.name, t.name
      	 ORDER BY j.departure_at
      	 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.JourneySummary
	for rows.Next() {
		var s domain.JourneySummary
		if err := rows.Scan(
			&s.ID,
			&s.RouteSource,
			&s.RouteDestination,
			&s.TrainName,
			&s.Departure,
			&s.Arrival,
			&s.TicketsAvailable,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// CountsByJourney counts sold and free seats for a journey.
//
// Returns:
//   - *domain.JourneyCounts: the counts when the journey exists.
//   - error: repository.ErrNotFound if the journey is not found.
func (r *ScheduleRepo) CountsByJourney(ctx context.Context, journeyID int64) (*domain.JourneyCounts, error) {
	const op = "postgres.ScheduleRepo.CountsByJourney"

	db := r.handle()

	var jc domain.JourneyCounts
	err := db.QueryRow(ctx,
		`SELECT j.cargo_count * j.seats_per_cargo, COUNT(t.id)
       	 FROM journeys j
       	 LEFT JOIN tickets t ON t.journey_id = j.id
      	 WHERE j.id = $1
      	 GROUP BY j.id`,
		journeyID,
	).Scan(&jc.Total, &jc.Sold)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	jc.Available = jc.Total - jc.Sold

	return &jc, nil
}
