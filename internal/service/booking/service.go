package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yarkob/railgo/internal/domain"
	"github.com/yarkob/railgo/internal/monitoring"
	"github.com/yarkob/railgo/internal/repository"
	postgresrepo "github.com/yarkob/railgo/internal/repository/postgres"
	redisrepo "github.com/yarkob/railgo/internal/repository/redis"
	"github.com/yarkob/railgo/internal/uow"
)

// SeatRequest is one desired seat tuple in a booking request.
type SeatRequest struct {
	JourneyID int64
	Cargo     int
	Seat      int
}

// Ledger is the seat-occupancy store the allocator reserves against.
type Ledger interface {
	Reserve(ctx context.Context, db postgresrepo.DB, orderID uuid.UUID, journeyID int64, seats []domain.Seat) ([]domain.Ticket, []domain.Seat, error)
	OccupiedAmong(ctx context.Context, journeyID int64, seats []domain.Seat) ([]domain.Seat, error)
	ReleaseByOrder(ctx context.Context, db postgresrepo.DB, orderID uuid.UUID) (int64, error)
}

// Schedules is the journey read path used for validation.
type Schedules interface {
	GetJourney(ctx context.Context, id int64) (*domain.Journey, error)
}

// Orders is the durable home for committed orders.
type Orders interface {
	Insert(ctx context.Context, db postgresrepo.DB, orderID uuid.UUID, userID int64) error
	GetWithTickets(ctx context.Context, id uuid.UUID) (*domain.OrderWithTickets, error)
	MarkCancelled(ctx context.Context, db postgresrepo.DB, id uuid.UUID) error
}

// TxRunner runs a function inside one transaction with after-commit hooks.
// Satisfied by uow.UoW.
type TxRunner interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error) error
}

type Config struct {
	MaxSeatsPerOrder int
	TxAttempts       int
}

// Service is the allocator: it turns one booking request into a single
// committed order or a clean no-op failure.
type Service struct {
	ledger    Ledger
	schedules Schedules
	orders    Orders
	uow       TxRunner
	cache     *redisrepo.Cache
	pubsub    *redisrepo.JourneysPubSub
	limiter   *redisrepo.SlidingWindowLimiter
	metrics   *monitoring.BookingMetrics
	now       func() time.Time
	cfg       Config
}

func New(
	ledger Ledger,
	schedules Schedules,
	orders Orders,
	txr TxRunner,
	cache *redisrepo.Cache,
	pubsub *redisrepo.JourneysPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	metrics *monitoring.BookingMetrics,
	cfg Config,
) *Service {
	if cfg.MaxSeatsPerOrder <= 0 {
		cfg.MaxSeatsPerOrder = 20
	}

	if cfg.TxAttempts <= 0 {
		cfg.TxAttempts = 3
	}

	return &Service{
		ledger:    ledger,
		schedules: schedules,
		orders:    orders,
		uow:       txr,
		cache:     cache,
		pubsub:    pubsub,
		limiter:   limiter,
		metrics:   metrics,
		now:       time.Now,
		cfg:       cfg,
	}
}

// Book reserves every requested seat tuple and persists the order in one
// transaction spanning all touched journeys. Either every ticket commits or
// none do.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: opaque, already-verified user identity.
//   - reqs: ordered desired tuples; may span multiple journeys.
//   - rlKey: rate-limit key; empty disables limiting.
//
// Returns:
//   - *domain.OrderWithTickets: the committed order.
//   - error: InvalidRequestError for malformed input, bounds violations,
//     duplicates or departed journeys.
//   - error: JourneyNotFoundError for an unknown journey.
//   - error: SeatConflictError with the conflicting tuples when some seats
//     are already taken.
func (s *Service) Book(
	ctx context.Context,
	userID int64,
	reqs []SeatRequest,
	rlKey string,
) (*domain.OrderWithTickets, error) {
	const op = "service.booking.Book"

	started := s.now()

	journeys, groups, err := s.validate(ctx, reqs)
	if err != nil {
		s.metrics.ObserveBooking("invalid", started)
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s:%w: retry in %s", op, ErrRateLimited, retry)
		}
	}

	var out *domain.OrderWithTickets

	for attempt := 0; attempt < s.cfg.TxAttempts; attempt++ {
		out, err = s.bookOnce(ctx, userID, journeys, groups)
		if err == nil {
			s.metrics.ObserveBooking("committed", started)
			return out, nil
		}

		var conflict SeatConflictError
		if errors.As(err, &conflict) {
			s.metrics.ObserveBooking("conflict", started)
			s.metrics.AddSeatConflicts(len(conflict.Conflicts))
			return nil, fmt.Errorf("%s:%w", op, conflict)
		}

		// A lost insert race aborts the transaction before the conflicting
		// tuples are known; re-read them outside the transaction. An empty
		// re-read means the competing order was already cancelled, so the
		// attempt is simply repeated.
		if errors.Is(err, repository.ErrConflict) {
			taken, rerr := s.occupiedNow(ctx, journeys, groups)
			if rerr != nil {
				return nil, fmt.Errorf("%s:%w", op, rerr)
			}
			if len(taken) > 0 {
				s.metrics.ObserveBooking("conflict", started)
				s.metrics.AddSeatConflicts(len(taken))
				return nil, fmt.Errorf("%s:%w", op, SeatConflictError{Conflicts: taken})
			}
			continue
		}

		if postgresrepo.IsRetryable(err) {
			continue
		}

		break
	}

	s.metrics.ObserveBooking("error", started)

	return nil, fmt.Errorf("%s:%w", op, err)
}

// Cancel releases every seat the order holds and retires the order in one
// transaction: both happen or neither does.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: owner identity; orders of other users read as not found.
//   - orderID: the order to cancel.
//
// Returns:
//   - error: ErrOrderNotFound if the order does not exist or is not owned
//     by the user.
//   - error: ErrOrderCancelled if it was already cancelled.
func (s *Service) Cancel(ctx context.Context, userID int64, orderID uuid.UUID) error {
	const op = "service.booking.Cancel"

	owt, err := s.orders.GetWithTickets(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}

		return fmt.Errorf("%s:%w", op, err)
	}

	if owt.Order.UserID != userID {
		return fmt.Errorf("%s:%w", op, ErrOrderNotFound)
	}

	if owt.Order.Status == domain.OrderCancelled {
		return fmt.Errorf("%s:%w", op, ErrOrderCancelled)
	}

	touched := make(map[int64]struct{})
	for _, t := range owt.Tickets {
		touched[t.JourneyID] = struct{}{}
	}

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		if err := s.orders.MarkCancelled(ctx, tx, orderID); err != nil {
			if errors.Is(err, repository.ErrOrderCancelled) {
				return fmt.Errorf("%s:%w", op, ErrOrderCancelled)
			}

			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrOrderNotFound)
			}

			return fmt.Errorf("%s:%w", op, err)
		}

		if _, err := s.ledger.ReleaseByOrder(ctx, tx, orderID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		for journeyID := range touched {
			jid := journeyID
			after(func(ctx context.Context) {
				s.invalidate(ctx, jid)
			})
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.IncCancellation()

	return nil
}

func (s *Service) bookOnce(
	ctx context.Context,
	userID int64,
	journeys []int64,
	groups map[int64][]domain.Seat,
) (*domain.OrderWithTickets, error) {
	var out *domain.OrderWithTickets

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		orderID := uuid.New()

		if err := s.orders.Insert(ctx, tx, orderID, userID); err != nil {
			return err
		}

		owt := &domain.OrderWithTickets{
			Order: domain.Order{
				ID:        orderID,
				UserID:    userID,
				Status:    domain.OrderConfirmed,
				CreatedAt: s.now(),
			},
		}

		for _, journeyID := range journeys {
			tickets, conflicts, err := s.ledger.Reserve(ctx, tx, orderID, journeyID, groups[journeyID])
			if err != nil {
				if errors.Is(err, repository.ErrSeatsUnavailable) {
					return SeatConflictError{Conflicts: toRequests(journeyID, conflicts)}
				}

				return err
			}

			owt.Tickets = append(owt.Tickets, tickets...)

			jid := journeyID
			after(func(ctx context.Context) {
				s.invalidate(ctx, jid)
			})
		}

		out = owt

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// validate checks structural constraints and bounds, and groups the
// requested tuples by journey preserving request order.
func (s *Service) validate(
	ctx context.Context,
	reqs []SeatRequest,
) ([]int64, map[int64][]domain.Seat, error) {
	if len(reqs) == 0 {
		return nil, nil, InvalidRequestError{Reason: "order has no tickets"}
	}

	if len(reqs) > s.cfg.MaxSeatsPerOrder {
		return nil, nil, InvalidRequestError{
			Reason: fmt.Sprintf("at most %d seats per order", s.cfg.MaxSeatsPerOrder),
		}
	}

	seen := make(map[SeatRequest]struct{}, len(reqs))
	groups := make(map[int64][]domain.Seat)
	var journeys []int64

	for _, req := range reqs {
		if _, dup := seen[req]; dup {
			return nil, nil, InvalidRequestError{
				Reason: fmt.Sprintf("duplicate seat (journey %d, cargo %d, seat %d)", req.JourneyID, req.Cargo, req.Seat),
			}
		}
		seen[req] = struct{}{}

		if _, ok := groups[req.JourneyID]; !ok {
			journeys = append(journeys, req.JourneyID)
		}
		groups[req.JourneyID] = append(groups[req.JourneyID], domain.Seat{Cargo: req.Cargo, Number: req.Seat})
	}

	now := s.now()

	for _, journeyID := range journeys {
		j, err := s.schedules.GetJourney(ctx, journeyID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, JourneyNotFoundError{JourneyID: journeyID}
			}

			return nil, nil, err
		}

		if !j.Departure.After(now) {
			return nil, nil, InvalidRequestError{
				Reason: fmt.Sprintf("journey %d already departed", journeyID),
			}
		}

		for _, seat := range groups[journeyID] {
			if !seat.InBounds(j.CargoCount, j.SeatsPerCargo) {
				return nil, nil, InvalidRequestError{
					Reason: fmt.Sprintf(
						"seat (cargo %d, seat %d) outside %dx%d layout of journey %d",
						seat.Cargo, seat.Number, j.CargoCount, j.SeatsPerCargo, journeyID,
					),
				}
			}
		}
	}

	return journeys, groups, nil
}

func (s *Service) occupiedNow(
	ctx context.Context,
	journeys []int64,
	groups map[int64][]domain.Seat,
) ([]SeatRequest, error) {
	var out []SeatRequest

	for _, journeyID := range journeys {
		taken, err := s.ledger.OccupiedAmong(ctx, journeyID, groups[journeyID])
		if err != nil {
			return nil, err
		}
		out = append(out, toRequests(journeyID, taken)...)
	}

	return out, nil
}

func (s *Service) invalidate(ctx context.Context, journeyID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateJourney(ctx, journeyID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishJourneyChanged(ctx, journeyID)
	}
}

func toRequests(journeyID int64, seats []domain.Seat) []SeatRequest {
	out := make([]SeatRequest, 0, len(seats))
	for _, s := range seats {
		out = append(out, SeatRequest{JourneyID: journeyID, Cargo: s.Cargo, Seat: s.Number})
	}
	return out
}
