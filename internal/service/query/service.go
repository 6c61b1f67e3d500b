package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yarkob/railgo/internal/domain"
	"github.com/yarkob/railgo/internal/repository"
	postgresrepo "github.com/yarkob/railgo/internal/repository/postgres"
	redisrepo "github.com/yarkob/railgo/internal/repository/redis"
)

type Config struct {
	JourneySummaryTTL time.Duration
	AvailabilityTTL   time.Duration
	SeatMapTTL        time.Duration
	DefaultPage       int
	MaxPage           int
}

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.JourneySummaryTTL <= 0 {
		cfg.JourneySummaryTTL = 60 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	if cfg.SeatMapTTL <= 0 {
		cfg.SeatMapTTL = 15 * time.Second
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 100
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 500
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// GetJourney retrieves a journey by its ID, utilizing a caching layer to
// improve performance.
//
// Returns:
//   - *domain.Journey: the retrieved journey, or nil if not found.
//   - error: query.ErrJourneyNotFound if the journey is not found.
func (s *Service) GetJourney(ctx context.Context, id int64) (*domain.Journey, error) {
	const op = "service.query.GetJourney"

	key := redisrepo.KeyJourneySummary(id)

	journey, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.JourneySummaryTTL,
		func(ctx context.Context) (domain.Journey, error) {
			j, err := s.store.Schedule().GetJourney(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Journey{}, ErrJourneyNotFound
				}

				return domain.Journey{}, err
			}

			return *j, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &journey, nil
}

// ListJourneys lists journey summaries ordered by departure, including the
// remaining seat count. Pagination is clamped to the configured page sizes.
func (s *Service) ListJourneys(ctx context.Context, limit, offset int) ([]domain.JourneySummary, error) {
	const op = "service.query.ListJourneys"

	limit = s.clampPage(limit)

	summaries, err := s.store.Schedule().ListJourneys(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return summaries, nil
}

// Availability returns sold/free/total seat counts for a journey, cached
// for a short window.
//
// Returns:
//   - *domain.JourneyCounts: the counts.
//   - error: query.ErrJourneyNotFound if the journey is not found.
func (s *Service) Availability(ctx context.Context, journeyID int64) (*domain.JourneyCounts, error) {
	const op = "service.query.Availability"

	key := redisrepo.KeyJourneyAvailability(journeyID)

	counts, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.JourneyCounts, error) {
			jc, err := s.store.Schedule().CountsByJourney(ctx, journeyID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.JourneyCounts{}, ErrJourneyNotFound
				}

				return domain.JourneyCounts{}, err
			}

			return *jc, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &counts, nil
}

// AvailableSeats returns the free (cargo, seat) tuples of a journey: the
// full grid minus committed tickets, cached for a short window.
//
// Returns:
//   - []domain.Seat: the free inventory ordered by cargo then seat.
//   - error: query.ErrJourneyNotFound if the journey is not found.
func (s *Service) AvailableSeats(ctx context.Context, journeyID int64) ([]domain.Seat, error) {
	const op = "service.query.AvailableSeats"

	key := redisrepo.KeyJourneySeatMap(journeyID)

	seats, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.SeatMapTTL,
		func(ctx context.Context) ([]domain.Seat, error) {
			cargoCount, seatsPerCargo, err := s.store.Schedule().GetCapacity(ctx, journeyID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, ErrJourneyNotFound
				}

				return nil, err
			}

			taken, err := s.store.Ledger().OccupiedSeats(ctx, journeyID)
			if err != nil {
				return nil, err
			}

			return domain.FreeSeats(cargoCount, seatsPerCargo, taken), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return seats, nil
}

// IsSeatAvailable reports whether no live ticket occupies the tuple. Reads
// the ledger directly; no caching, callers use it for point checks.
//
// Returns:
//   - bool: true iff the seat is free.
//   - error: query.ErrJourneyNotFound for an unknown journey.
func (s *Service) IsSeatAvailable(ctx context.Context, journeyID int64, seat domain.Seat) (bool, error) {
	const op = "service.query.IsSeatAvailable"

	cargoCount, seatsPerCargo, err := s.store.Schedule().GetCapacity(ctx, journeyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%s: %w", op, ErrJourneyNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !seat.InBounds(cargoCount, seatsPerCargo) {
		return false, nil
	}

	free, err := s.store.Ledger().IsAvailable(ctx, journeyID, seat)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return free, nil
}

func (s *Service) clampPage(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultPage
	}

	if limit > s.cfg.MaxPage {
		return s.cfg.MaxPage
	}

	return limit
}
