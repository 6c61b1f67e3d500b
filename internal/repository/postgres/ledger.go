package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yarkob/railgo/internal/domain"
	"github.com/yarkob/railgo/internal/repository"
)

// LedgerRepo is the authoritative record of seat occupancy. A ticket row is
// one claimed (journey, cargo, seat) tuple; the unique index on
// tickets(journey_id, cargo, seat) is the source of truth for the
// no-double-booking invariant, so correctness does not depend on any
// in-process lock.
type LedgerRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *LedgerRepo) With(db DB) *LedgerRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *LedgerRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// OccupiedSeats returns every taken (cargo, seat) tuple on a journey,
// ordered by cargo then seat.
func (r *LedgerRepo) OccupiedSeats(ctx context.Context, journeyID int64) ([]domain.Seat, error) {
	const op = "postgres.LedgerRepo.OccupiedSeats"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT cargo, seat
       	 FROM tickets
      	 WHERE journey_id = $1
      	 ORDER BY cargo, seat`,
		journeyID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.Cargo, &s.Number); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// OccupiedAmong returns the subset of the given tuples that is already
// taken on the journey. Used to turn a unique violation into a concrete
// conflict list.
func (r *LedgerRepo) OccupiedAmong(
	ctx context.Context,
	journeyID int64,
	seats []domain.Seat,
) ([]domain.Seat, error) {
	const op = "postgres.LedgerRepo.OccupiedAmong"

	db := r.handle()

	taken, err := occupiedAmong(ctx, db, journeyID, seats)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return taken, nil
}

// IsAvailable reports whether no live ticket occupies the tuple.
func (r *LedgerRepo) IsAvailable(ctx context.Context, journeyID int64, seat domain.Seat) (bool, error) {
	const op = "postgres.LedgerRepo.IsAvailable"

	db := r.handle()

	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (
       	 	SELECT 1 FROM tickets
      	 	WHERE journey_id = $1 AND cargo = $2 AND seat = $3
     	 )`,
		journeyID, seat.Cargo, seat.Number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return !exists, nil
}

// Reserve claims every requested tuple for the given order as one atomic
// step within the caller's transaction. It first reads the already-taken
// subset so legitimate contention surfaces as a conflict list instead of a
// bare constraint error; a race that slips past the read still trips the
// unique index and comes back as repository.ErrConflict.
//
// Returns:
//   - []domain.Ticket: the inserted tickets when successful.
//   - []domain.Seat: the conflicting tuples when some are taken.
//   - error: repository.ErrSeatsUnavailable alongside the conflict list.
//   - error: repository.ErrConflict on a lost insert race.
func (r *LedgerRepo) Reserve(
	ctx context.Context,
	db DB,
	orderID uuid.UUID,
	journeyID int64,
	seats []domain.Seat,
) ([]domain.Ticket, []domain.Seat, error) {
	const op = "postgres.LedgerRepo.Reserve"

	taken, err := occupiedAmong(ctx, db, journeyID, seats)
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if len(taken) > 0 {
		return nil, taken, fmt.Errorf("%s:%w", op, repository.ErrSeatsUnavailable)
	}

	tickets := make([]domain.Ticket, 0, len(seats))
	batch := &pgx.Batch{}
	for _, s := range seats {
		t := domain.Ticket{
			ID:        uuid.New(),
			OrderID:   orderID,
			JourneyID: journeyID,
			Cargo:     s.Cargo,
			Seat:      s.Number,
		}
		tickets = append(tickets, t)
		batch.Queue(
			`INSERT INTO tickets(id, order_id, journey_id, cargo, seat)
         	 VALUES ($1, $2, $3, $4, $5)`,
			t.ID, t.OrderID, t.JourneyID, t.Cargo, t.Seat,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tickets, nil, nil
}

// ReleaseByOrder frees every tuple held by the order's tickets within the
// caller's transaction and returns how many were released.
func (r *LedgerRepo) ReleaseByOrder(ctx context.Context, db DB, orderID uuid.UUID) (int64, error) {
	const op = "postgres.LedgerRepo.ReleaseByOrder"

	tag, err := db.Exec(ctx, `DELETE FROM tickets WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

func occupiedAmong(
	ctx context.Context,
	db DB,
	journeyID int64,
	seats []domain.Seat,
) ([]domain.Seat, error) {
	cargos := make([]int32, 0, len(seats))
	numbers := make([]int32, 0, len(seats))
	for _, s := range seats {
		cargos = append(cargos, int32(s.Cargo))
		numbers = append(numbers, int32(s.Number))
	}

	rows, err := db.Query(ctx,
		`SELECT t.cargo, t.seat
       	 FROM tickets t
       	 JOIN unnest($2::int[], $3::int[]) AS req(cargo, seat)
         	ON t.cargo = req.cargo AND t.seat = req.seat
      	 WHERE t.journey_id = $1
      	 ORDER BY t.cargo, t.seat`,
		journeyID, cargos, numbers,
	)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var out []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.Cargo, &s.Number); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}
