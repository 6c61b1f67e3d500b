package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yarkob/railgo/internal/domain"
	"github.com/yarkob/railgo/internal/repository"
	postgresrepo "github.com/yarkob/railgo/internal/repository/postgres"
	redisrepo "github.com/yarkob/railgo/internal/repository/redis"
	"github.com/yarkob/railgo/internal/uow"
)

// Original rolling stock never exceeds this per-cargo seat count.
const maxSeatsPerCargo = 160

var (
	minLatitude  = decimal.NewFromInt(-90)
	maxLatitude  = decimal.NewFromInt(90)
	minLongitude = decimal.NewFromInt(-180)
	maxLongitude = decimal.NewFromInt(180)
)

// Admins is the schedule write store. Satisfied by postgres.AdminRepo.
type Admins interface {
	CreateStation(ctx context.Context, name string, latitude, longitude decimal.Decimal) (int64, error)
	CreateRoute(ctx context.Context, sourceID, destinationID int64, distance decimal.Decimal) (int64, error)
	CreateTrainType(ctx context.Context, name string) (int64, error)
	CreateCargoType(ctx context.Context, name string, seatsPerCargo int) (int64, error)
	GetCargoType(ctx context.Context, db postgresrepo.DB, id int64) (*domain.CargoType, error)
	CreateTrain(ctx context.Context, name string, trainTypeID, cargoTypeID int64, cargoCount int) (int64, error)
	CreateCrew(ctx context.Context, firstName, lastName string) (int64, error)
	CreateJourney(ctx context.Context, db postgresrepo.DB, routeID, trainID int64, departure, arrival time.Time) (int64, error)
	AssignCrews(ctx context.Context, db postgresrepo.DB, journeyID int64, crewIDs []int64) error
	ListJourneyIDsByTrain(ctx context.Context, db postgresrepo.DB, trainID int64) ([]int64, error)
	UpdateTrainLayout(ctx context.Context, db postgresrepo.DB, trainID, cargoTypeID int64, cargoCount, seatsPerCargo int) error
}

// TxRunner runs a function inside one transaction with after-commit hooks.
// Satisfied by uow.UoW.
type TxRunner interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error) error
}

// Service is the schedule-management write path: reference data, journeys
// and the guarded train layout update.
type Service struct {
	admins Admins
	uow    TxRunner
	cache  *redisrepo.Cache
	pubsub *redisrepo.JourneysPubSub
}

func New(admins Admins, txr TxRunner, cache *redisrepo.Cache, pubsub *redisrepo.JourneysPubSub) *Service {
	return &Service{
		admins: admins,
		uow:    txr,
		cache:  cache,
		pubsub: pubsub,
	}
}

// CreateStation creates a station record and returns its ID.
//
// Returns:
//   - error: schedule.ErrStationConflict if the name is taken.
//   - error: schedule.ValidationError on out-of-range coordinates.
func (s *Service) CreateStation(ctx context.Context, name string, latitude, longitude decimal.Decimal) (int64, error) {
	const op = "service.schedule.CreateStation"

	if latitude.LessThan(minLatitude) || latitude.GreaterThan(maxLatitude) {
		return 0, fmt.Errorf("%s:%w", op, ValidationError{Reason: "latitude out of range"})
	}

	if longitude.LessThan(minLongitude) || longitude.GreaterThan(maxLongitude) {
		return 0, fmt.Errorf("%s:%w", op, ValidationError{Reason: "longitude out of range"})
	}

	id, err := s.admins.CreateStation(ctx, name, latitude, longitude)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return 0, fmt.Errorf("%s:%w", op, ErrStationConflict)
		}

		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// CreateRoute creates a route between two distinct stations.
//
// Returns:
//   - error: schedule.ErrRouteConflict if the pair already exists.
//   - error: schedule.ValidationError on equal endpoints or non-positive
//     distance.
func (s *Service) CreateRoute(ctx context.Context, sourceID, destinationID int64, distance decimal.Decimal) (int64, error) {
	const op = "service.schedule.CreateRoute"

	if sourceID == destinationID {
		return 0, fmt.Errorf("%s:%w", op, ValidationError{Reason: "source and destination must differ"})
	}

	if !distance.IsPositive() {
		return 0, fmt.Errorf("%s:%w", op, ValidationError{Reason: "distance must be positive"})
	}

	id, err := s.admins.CreateRoute(ctx, sourceID, destinationID, distance)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return 0, fmt.Errorf("%s:%w", op, ErrRouteConflict)
		}

		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

func (s *Service) CreateTrainType(ctx context.Context, name string) (int64, error) {
	const op = "service.schedule.CreateTrainType"

	id, err := s.admins.CreateTrainType(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return 0, fmt.Errorf("%s:%w", op, ErrTrainTypeConflict)
		}

		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// CreateCargoType creates a cargo type with its per-cargo seat count.
//
// Returns:
//   - error: schedule.ErrCargoTypeConflict if the name is taken.
//   - error: schedule.ValidationError on a seat count outside [1, 160].
func (s *Service) CreateCargoType(ctx context.Context, name string, seatsPerCargo int) (int64, error) {
	const op = "service.schedule.CreateCargoType"

	if seatsPerCargo < 1 || seatsPerCargo > maxSeatsPerCargo {
		return 0, fmt.Errorf("%s:%w", op, ValidationError{
			Reason: fmt.Sprintf("seats per cargo must be in [1, %d]", maxSeatsPerCargo),
		})
	}

	id, err := s.admins.CreateCargoType(ctx, name, seatsPerCargo)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return 0, fmt.Errorf("%s:%w", op, ErrCargoTypeConflict)
		}

		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

func (s *Service) CreateTrain(
	ctx context.Context,
	name string,
	trainTypeID, cargoTypeID int64,
	cargoCount int,
) (int64, error) {
	const op = "service.schedule.CreateTrain"

	if cargoCount < 1 {
		return 0, fmt.Errorf("%s:%w", op, ValidationError{Reason: "cargo count must be positive"})
	}

	id, err := s.admins.CreateTrain(ctx, name, trainTypeID, cargoTypeID, cargoCount)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%s:%w", op, ErrReferenceNotFound)
		}

		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

func (s *Service) CreateCrew(ctx context.Context, firstName, lastName string) (int64, error) {
	const op = "service.schedule.CreateCrew"

	if firstName == "" || lastName == "" {
		return 0, fmt.Errorf("%s:%w", op, ValidationError{Reason: "first and last name are required"})
	}

	id, err := s.admins.CreateCrew(ctx, firstName, lastName)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// CreateJourney creates a journey and assigns its crews within one
// transactional Unit of Work. The seat layout is snapshotted from the
// train at this point.
//
// Returns:
//   - error: schedule.ErrReferenceNotFound if the route or train is
//     missing.
//   - error: schedule.ValidationError if arrival is not after departure.
func (s *Service) CreateJourney(
	ctx context.Context,
	routeID, trainID int64,
	departure, arrival time.Time,
	crewIDs []int64,
) (int64, error) {
	const op = "service.schedule.CreateJourney"

	if !arrival.After(departure) {
		return 0, fmt.Errorf("%s:%w", op, ValidationError{Reason: "arrival must be after departure"})
	}

	var journeyID int64

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		id, err := s.admins.CreateJourney(ctx, tx, routeID, trainID, departure, arrival)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrReferenceNotFound)
			}

			return fmt.Errorf("%s:%w", op, err)
		}

		journeyID = id

		if len(crewIDs) > 0 {
			if err := s.admins.AssignCrews(ctx, tx, journeyID, crewIDs); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		after(func(ctx context.Context) {
			s.notify(ctx, journeyID)
		})

		return nil
	})

	return journeyID, err
}

// UpdateTrainLayout changes a train's cargo configuration. The
// capacity-reduction guard rejects the change when any live ticket would
// fall outside the new bounds. On success the cached projections of every
// journey on the train are invalidated after commit, since their layout
// snapshots were rewritten.
//
// Returns:
//   - error: schedule.ErrCapacityInUse when sold seats block the change.
//   - error: schedule.ErrTrainNotFound for an unknown train.
func (s *Service) UpdateTrainLayout(
	ctx context.Context,
	trainID, cargoTypeID int64,
	cargoCount int,
) error {
	const op = "service.schedule.UpdateTrainLayout"

	if cargoCount < 1 {
		return fmt.Errorf("%s:%w", op, ValidationError{Reason: "cargo count must be positive"})
	}

	return s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		ct, err := s.admins.GetCargoType(ctx, tx, cargoTypeID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrReferenceNotFound)
			}

			return fmt.Errorf("%s:%w", op, err)
		}

		err = s.admins.UpdateTrainLayout(ctx, tx, trainID, cargoTypeID, cargoCount, ct.SeatsPerCargo)
		if err != nil {
			if errors.Is(err, repository.ErrCapacityInUse) {
				return fmt.Errorf("%s:%w", op, ErrCapacityInUse)
			}

			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrTrainNotFound)
			}

			return fmt.Errorf("%s:%w", op, err)
		}

		journeyIDs, err := s.admins.ListJourneyIDsByTrain(ctx, tx, trainID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		for _, journeyID := range journeyIDs {
			jid := journeyID
			after(func(ctx context.Context) {
				s.notify(ctx, jid)
			})
		}

		return nil
	})
}

func (s *Service) notify(ctx context.Context, journeyID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateJourney(ctx, journeyID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishJourneyChanged(ctx, journeyID)
	}
}
