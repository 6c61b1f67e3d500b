package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yarkob/railgo/internal/domain"
	"github.com/yarkob/railgo/internal/repository"
)

type OrderRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OrderRepo) With(db DB) *OrderRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OrderRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert persists a new confirmed order within the caller's transaction.
// Written only by the allocator after a successful reservation.
func (r *OrderRepo) Insert(ctx context.Context, db DB, orderID uuid.UUID, userID int64) error {
	const op = "postgres.OrderRepo.Insert"

	if _, err := db.Exec(ctx,
		`INSERT INTO orders(id, user_id, status)
       	 VALUES ($1, $2, 'confirmed')`,
		orderID, userID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const op = "postgres.OrderRepo.Get"

	db := r.handle()

	var o domain.Order
	err := db.QueryRow(ctx,
		`SELECT id, user_id, status, created_at
       	 FROM orders WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &o, nil
}

// GetWithTickets retrieves an order together with its tickets ordered by
// cargo then seat.
func (r *OrderRepo) GetWithTickets(ctx context.Context, id uuid.UUID) (*domain.OrderWithTickets, error) {
	const op = "postgres.OrderRepo.GetWithTickets"

	db := r.handle()

	var out domain.OrderWithTickets
	err := db.QueryRow(ctx,
		`SELECT id, user_id, status, created_at
       	 FROM orders WHERE id = $1`,
		id,
	).Scan(&out.Order.ID, &out.Order.UserID, &out.Order.Status, &out.Order.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	rows, err := db.Query(ctx,
		`SELECT id, order_id, journey_id, cargo, seat, created_at
       	 FROM tickets
      	 WHERE order_id = $1
      	 ORDER BY cargo, seat`,
		id,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.OrderID, &t.JourneyID, &t.Cargo, &t.Seat, &t.CreatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out.Tickets = append(out.Tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &out, nil
}

// ListByUser lists a user's orders newest first, tickets included.
func (r *OrderRepo) ListByUser(
	ctx context.Context,
	userID int64,
	limit, offset int,
) ([]domain.OrderWithTickets, error) {
	const op = "postgres.OrderRepo.ListByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, user_id, status, created_at
       	 FROM orders
      	 WHERE user_id = $1
      	 ORDER BY created_at DESC
      	 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.OrderWithTickets
	index := make(map[uuid.UUID]int)
	var ids []uuid.UUID

	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.CreatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		index[o.ID] = len(out)
		ids = append(ids, o.ID)
		out = append(out, domain.OrderWithTickets{Order: o})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if len(ids) == 0 {
		return out, nil
	}

	trows, err := db.Query(ctx,
		`SELECT id, order_id, journey_id, cargo, seat, created_at
       	 FROM tickets
      	 WHERE order_id = ANY($1)
      	 ORDER BY cargo, seat`,
		ids,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer trows.Close()

	for trows.Next() {
		var t domain.Ticket
		if err := trows.Scan(&t.ID, &t.OrderID, &t.JourneyID, &t.Cargo, &t.Seat, &t.CreatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		if i, ok := index[t.OrderID]; ok {
			out[i].Tickets = append(out[i].Tickets, t)
		}
	}
	if err := trows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// MarkCancelled retires a confirmed order within the caller's transaction.
//
// Returns:
//   - error: repository.ErrNotFound if the order does not exist.
//   - error: repository.ErrOrderCancelled if it was already cancelled.
func (r *OrderRepo) MarkCancelled(ctx context.Context, db DB, id uuid.UUID) error {
	const op = "postgres.OrderRepo.MarkCancelled"

	var status domain.OrderStatus
	err := db.QueryRow(ctx,
		`SELECT status FROM orders WHERE id = $1`,
		id,
	).Scan(&status)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if status == domain.OrderCancelled {
		return fmt.Errorf("%s:%w", op, repository.ErrOrderCancelled)
	}

	if _, err := db.Exec(ctx,
		`UPDATE orders SET status = 'cancelled' WHERE id = $1`,
		id,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
