package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/yarkob/railgo/internal/domain"
	"github.com/yarkob/railgo/internal/repository"
)

// AdminRepo is the schedule-management write path: reference data, journey
// creation and the guarded train layout update.
type AdminRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AdminRepo) With(db DB) *AdminRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AdminRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *AdminRepo) CreateStation(
	ctx context.Context,
	name string,
	latitude, longitude decimal.Decimal,
) (int64, error) {
	const op = "postgres.AdminRepo.CreateStation"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO stations(name, latitude, longitude)
       	 VALUES ($1, $2, $3)
     	 RETURNING id`,
		name, latitude, longitude,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateRoute(
	ctx context.Context,
	sourceID, destinationID int64,
	distance decimal.Decimal,
) (int64, error) {
	const op = "postgres.AdminRepo.CreateRoute"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO routes(source_id, destination_id, distance)
       	 VALUES ($1, $2, $3)
     	 RETURNING id`,
		sourceID, destinationID, distance,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateTrainType(ctx context.Context, name string) (int64, error) {
	const op = "postgres.AdminRepo.CreateTrainType"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO train_types(name) VALUES ($1) RETURNING id`,
		name,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateCargoType(ctx context.Context, name string, seatsPerCargo int) (int64, error) {
	const op = "postgres.AdminRepo.CreateCargoType"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO cargo_types(name, seats_per_cargo)
       	 VALUES ($1, $2)
     	 RETURNING id`,
		name, seatsPerCargo,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) GetCargoType(ctx context.Context, db DB, id int64) (*domain.CargoType, error) {
	const op = "postgres.AdminRepo.GetCargoType"

	var ct domain.CargoType
	err := db.QueryRow(ctx,
		`SELECT id, name, seats_per_cargo FROM cargo_types WHERE id = $1`,
		id,
	).Scan(&ct.ID, &ct.Name, &ct.SeatsPerCargo)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &ct, nil
}

func (r *AdminRepo) CreateTrain(
	ctx context.Context,
	name string,
	trainTypeID, cargoTypeID int64,
	cargoCount int,
) (int64, error) {
	const op = "postgres.AdminRepo.CreateTrain"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO trains(name, train_type_id, cargo_type_id, cargo_count)
       	 VALUES ($1, $2, $3, $4)
     	 RETURNING id`,
		name, trainTypeID, cargoTypeID, cargoCount,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *AdminRepo) CreateCrew(ctx context.Context, firstName, lastName string) (int64, error) {
	const op = "postgres.AdminRepo.CreateCrew"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO crews(first_name, last_name)
       	 VALUES ($1, $2)
     	 RETURNING id`,
		firstName, lastName,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// CreateJourney inserts a journey, snapshotting the seat layout from the
// train's current cargo configuration.
//
// Returns:
//   - int64: the created journey ID.
//   - error: repository.ErrNotFound if the train does not exist.
func (r *AdminRepo) CreateJourney(
	ctx context.Context,
	db DB,
	routeID, trainID int64,
	departure, arrival time.Time,
) (int64, error) {
	const op = "postgres.AdminRepo.CreateJourney"

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO journeys(route_id, train_id, departure_at, arrival_at, cargo_count, seats_per_cargo)
       	 SELECT $1, t.id, $2, $3, t.cargo_count, ct.seats_per_cargo
       	 FROM trains t
       	 JOIN cargo_types ct ON ct.id = t.cargo_type_id
      	 WHERE t.id = $4
     	 RETURNING id`,
		routeID, departure, arrival, trainID,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// AssignCrews links crews to a journey within the caller's transaction.
func (r *AdminRepo) AssignCrews(ctx context.Context, db DB, journeyID int64, crewIDs []int64) error {
	const op = "postgres.AdminRepo.AssignCrews"

	batch := &pgx.Batch{}
	for _, crewID := range crewIDs {
		batch.Queue(
			`INSERT INTO journey_crews(journey_id, crew_id)
         	 VALUES ($1, $2)
       		 ON CONFLICT DO NOTHING`,
			journeyID, crewID,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ListJourneyIDsByTrain returns the ids of every journey scheduled on the
// train, within the caller's transaction.
func (r *AdminRepo) ListJourneyIDsByTrain(ctx context.Context, db DB, trainID int64) ([]int64, error) {
	const op = "postgres.AdminRepo.ListJourneyIDsByTrain"

	rows, err := db.Query(ctx,
		`SELECT id FROM journeys WHERE train_id = $1 ORDER BY id`,
		trainID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// UpdateTrainLayout changes a train's cargo configuration and re-snapshots
// the layout onto its journeys. The capacity-reduction guard runs first:
// if any live ticket would fall outside the new bounds the update is
// rejected with repository.ErrCapacityInUse and nothing changes.
func (r *AdminRepo) UpdateTrainLayout(
	ctx context.Context,
	db DB,
	trainID int64,
	cargoTypeID int64,
	cargoCount, seatsPerCargo int,
) error {
	const op = "postgres.AdminRepo.UpdateTrainLayout"

	var stranded int64
	err := db.QueryRow(ctx,
		`SELECT COUNT(*)
       	 FROM tickets t
       	 JOIN journeys j ON j.id = t.journey_id
      	 WHERE j.train_id = $1
        	AND (t.cargo >= $2 OR t.seat > $3)`,
		trainID, cargoCount, seatsPerCargo,
	).Scan(&stranded)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if stranded > 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrCapacityInUse)
	}

	tag, err := db.Exec(ctx,
		`UPDATE trains SET cargo_type_id = $2, cargo_count = $3 WHERE id = $1`,
		trainID, cargoTypeID, cargoCount,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if _, err := db.Exec(ctx,
		`UPDATE journeys SET cargo_count = $2, seats_per_cargo = $3 WHERE train_id = $1`,
		trainID, cargoCount, seatsPerCargo,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
