package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yarkob/railgo/internal/domain"
	"github.com/yarkob/railgo/internal/repository"
	postgresrepo "github.com/yarkob/railgo/internal/repository/postgres"
)

var ErrOrderNotFound = errors.New("order not found")

// Service is the order read path for history and reporting collaborators.
// Orders are only ever written by the allocator.
type Service struct {
	store *postgresrepo.Store
}

func New(store *postgresrepo.Store) *Service {
	return &Service{store: store}
}

// GetOrderWithTickets retrieves an order along with its tickets. An order
// owned by a different user reads as not found.
//
// Returns:
//   - *domain.OrderWithTickets: the retrieved order with tickets.
//   - error: orders.ErrOrderNotFound if the order is not found.
func (s *Service) GetOrderWithTickets(ctx context.Context, userID int64, orderID uuid.UUID) (*domain.OrderWithTickets, error) {
	const op = "service.orders.GetOrderWithTickets"

	o, err := s.store.Orders().GetWithTickets(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if o.Order.UserID != userID {
		return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
	}

	return o, nil
}

// ListByUser lists a user's orders newest first, tickets included.
func (s *Service) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.OrderWithTickets, error) {
	const op = "service.orders.ListByUser"

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	out, err := s.store.Orders().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
