package schedule

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yarkob/railgo/internal/domain"
	"github.com/yarkob/railgo/internal/repository"
	postgresrepo "github.com/yarkob/railgo/internal/repository/postgres"
	redisrepo "github.com/yarkob/railgo/internal/repository/redis"
	"github.com/yarkob/railgo/internal/uow"
)

type memTrain struct {
	cargoTypeID int64
	cargoCount  int
}

type memJourney struct {
	trainID       int64
	cargoCount    int
	seatsPerCargo int
}

type memTicket struct {
	journeyID int64
	cargo     int
	seat      int
}

// memAdmin backs the schedule write path for layout-guard tests.
type memAdmin struct {
	nextID     int64
	cargoTypes map[int64]domain.CargoType
	trains     map[int64]*memTrain
	journeys   map[int64]*memJourney
	tickets    []memTicket
}

func newMemAdmin() *memAdmin {
	return &memAdmin{
		nextID:     1,
		cargoTypes: make(map[int64]domain.CargoType),
		trains:     make(map[int64]*memTrain),
		journeys:   make(map[int64]*memJourney),
	}
}

func (m *memAdmin) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memAdmin) addCargoType(id int64, seatsPerCargo int) {
	m.cargoTypes[id] = domain.CargoType{ID: id, SeatsPerCargo: seatsPerCargo}
}

func (m *memAdmin) addTrain(id, cargoTypeID int64, cargoCount int) {
	m.trains[id] = &memTrain{cargoTypeID: cargoTypeID, cargoCount: cargoCount}
}

func (m *memAdmin) addJourney(id, trainID int64, cargoCount, seatsPerCargo int) {
	m.journeys[id] = &memJourney{
		trainID:       trainID,
		cargoCount:    cargoCount,
		seatsPerCargo: seatsPerCargo,
	}
}

func (m *memAdmin) CreateStation(_ context.Context, _ string, _, _ decimal.Decimal) (int64, error) {
	return m.id(), nil
}

func (m *memAdmin) CreateRoute(_ context.Context, _, _ int64, _ decimal.Decimal) (int64, error) {
	return m.id(), nil
}

func (m *memAdmin) CreateTrainType(_ context.Context, _ string) (int64, error) {
	return m.id(), nil
}

func (m *memAdmin) CreateCargoType(_ context.Context, _ string, seatsPerCargo int) (int64, error) {
	id := m.id()
	m.addCargoType(id, seatsPerCargo)
	return id, nil
}

func (m *memAdmin) GetCargoType(_ context.Context, _ postgresrepo.DB, id int64) (*domain.CargoType, error) {
	ct, ok := m.cargoTypes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ct, nil
}

func (m *memAdmin) CreateTrain(_ context.Context, _ string, _, cargoTypeID int64, cargoCount int) (int64, error) {
	id := m.id()
	m.addTrain(id, cargoTypeID, cargoCount)
	return id, nil
}

func (m *memAdmin) CreateCrew(_ context.Context, _, _ string) (int64, error) {
	return m.id(), nil
}

func (m *memAdmin) CreateJourney(
	_ context.Context,
	_ postgresrepo.DB,
	_, trainID int64,
	_, _ time.Time,
) (int64, error) {
	t, ok := m.trains[trainID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	ct := m.cargoTypes[t.cargoTypeID]

	id := m.id()
	m.addJourney(id, trainID, t.cargoCount, ct.SeatsPerCargo)
	return id, nil
}

func (m *memAdmin) AssignCrews(_ context.Context, _ postgresrepo.DB, _ int64, _ []int64) error {
	return nil
}

func (m *memAdmin) ListJourneyIDsByTrain(_ context.Context, _ postgresrepo.DB, trainID int64) ([]int64, error) {
	var out []int64
	for id, j := range m.journeys {
		if j.trainID == trainID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *memAdmin) UpdateTrainLayout(
	_ context.Context,
	_ postgresrepo.DB,
	trainID, cargoTypeID int64,
	cargoCount, seatsPerCargo int,
) error {
	var stranded int
	for _, tk := range m.tickets {
		j, ok := m.journeys[tk.journeyID]
		if !ok || j.trainID != trainID {
			continue
		}
		if tk.cargo >= cargoCount || tk.seat > seatsPerCargo {
			stranded++
		}
	}
	if stranded > 0 {
		return repository.ErrCapacityInUse
	}

	t, ok := m.trains[trainID]
	if !ok {
		return repository.ErrNotFound
	}
	t.cargoTypeID = cargoTypeID
	t.cargoCount = cargoCount

	for _, j := range m.journeys {
		if j.trainID == trainID {
			j.cargoCount = cargoCount
			j.seatsPerCargo = seatsPerCargo
		}
	}
	return nil
}

// fakeTx runs the closure without a real transaction and fires the
// after-commit hooks only on success.
type fakeTx struct{}

func (fakeTx) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error,
) error {
	var hooks []uow.AfterCommit
	if err := fn(ctx, nil, func(h uow.AfterCommit) { hooks = append(hooks, h) }); err != nil {
		return err
	}
	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

// validation rejects bad input before any storage access, so a nil store
// is safe here
func newValidationService() *Service {
	return New(nil, nil, nil, nil)
}

func TestCreateStationCoordinateBounds(t *testing.T) {
	svc := newValidationService()
	ctx := context.Background()

	cases := []struct {
		name      string
		latitude  string
		longitude string
	}{
		{"latitude above range", "90.000001", "0"},
		{"latitude below range", "-90.000001", "0"},
		{"longitude above range", "0", "180.5"},
		{"longitude below range", "0", "-180.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lat := decimal.RequireFromString(tc.latitude)
			long := decimal.RequireFromString(tc.longitude)

			_, err := svc.CreateStation(ctx, "Central", lat, long)

			var validation ValidationError
			require.ErrorAs(t, err, &validation)
		})
	}
}

func TestCreateRouteRejectsLoops(t *testing.T) {
	svc := newValidationService()

	_, err := svc.CreateRoute(context.Background(), 3, 3, decimal.NewFromInt(100))

	var validation ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestCreateRouteRejectsNonPositiveDistance(t *testing.T) {
	svc := newValidationService()

	for _, d := range []string{"0", "-12.5"} {
		_, err := svc.CreateRoute(context.Background(), 1, 2, decimal.RequireFromString(d))

		var validation ValidationError
		require.ErrorAs(t, err, &validation)
	}
}

func TestCreateCargoTypeSeatCap(t *testing.T) {
	svc := newValidationService()

	var validation ValidationError

	_, err := svc.CreateCargoType(context.Background(), "coupe", 0)
	require.ErrorAs(t, err, &validation)

	_, err = svc.CreateCargoType(context.Background(), "coupe", maxSeatsPerCargo+1)
	require.ErrorAs(t, err, &validation)
}

func TestCreateJourneyRejectsInvertedTimes(t *testing.T) {
	svc := newValidationService()
	departure := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	var validation ValidationError

	_, err := svc.CreateJourney(context.Background(), 1, 1, departure, departure, nil)
	require.ErrorAs(t, err, &validation)

	_, err = svc.CreateJourney(context.Background(), 1, 1, departure, departure.Add(-time.Hour), nil)
	require.ErrorAs(t, err, &validation)
}

func TestUpdateTrainLayoutRejectsEmptyLayout(t *testing.T) {
	svc := newValidationService()

	err := svc.UpdateTrainLayout(context.Background(), 1, 1, 0)

	var validation ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestUpdateTrainLayoutRejectsStrandedTickets(t *testing.T) {
	admins := newMemAdmin()
	admins.addCargoType(1, 3)
	admins.addCargoType(2, 3)
	admins.addTrain(10, 1, 2)
	admins.addJourney(100, 10, 2, 3)
	admins.tickets = []memTicket{{journeyID: 100, cargo: 1, seat: 3}}

	svc := New(admins, fakeTx{}, nil, nil)

	// shrinking to one cargo strands the ticket in cargo 1
	err := svc.UpdateTrainLayout(context.Background(), 10, 2, 1)
	require.ErrorIs(t, err, ErrCapacityInUse)

	// nothing changed: the journey still carries its original snapshot
	assert.Equal(t, 2, admins.journeys[100].cargoCount)
	assert.Equal(t, 3, admins.journeys[100].seatsPerCargo)
	assert.Equal(t, 2, admins.trains[10].cargoCount)
}

func TestUpdateTrainLayoutRejectsSeatsPastNewRowEnd(t *testing.T) {
	admins := newMemAdmin()
	admins.addCargoType(1, 4)
	admins.addCargoType(2, 2)
	admins.addTrain(10, 1, 2)
	admins.addJourney(100, 10, 2, 4)
	admins.tickets = []memTicket{{journeyID: 100, cargo: 0, seat: 3}}

	svc := New(admins, fakeTx{}, nil, nil)

	// same cargo count, but the new cargo type has fewer seats per row
	err := svc.UpdateTrainLayout(context.Background(), 10, 2, 2)
	require.ErrorIs(t, err, ErrCapacityInUse)
	assert.Equal(t, 4, admins.journeys[100].seatsPerCargo)
}

func TestUpdateTrainLayoutShrinkWithoutStrandedTickets(t *testing.T) {
	admins := newMemAdmin()
	admins.addCargoType(1, 3)
	admins.addCargoType(2, 3)
	admins.addTrain(10, 1, 2)
	admins.addJourney(100, 10, 2, 3)
	admins.addJourney(101, 10, 2, 3)
	admins.tickets = []memTicket{{journeyID: 100, cargo: 0, seat: 1}}

	rdb, mock := redismock.NewClientMock()
	cache := redisrepo.New(rdb)

	// every journey on the train loses its cached projections after commit
	for _, jid := range []int64{100, 101} {
		mock.ExpectDel(
			redisrepo.KeyJourneySummary(jid),
			redisrepo.KeyJourneyAvailability(jid),
			redisrepo.KeyJourneySeatMap(jid),
		).SetVal(3)
	}

	svc := New(admins, fakeTx{}, cache, nil)

	require.NoError(t, svc.UpdateTrainLayout(context.Background(), 10, 2, 1))

	assert.Equal(t, 1, admins.trains[10].cargoCount)
	assert.Equal(t, int64(2), admins.trains[10].cargoTypeID)
	for _, jid := range []int64{100, 101} {
		assert.Equal(t, 1, admins.journeys[jid].cargoCount)
		assert.Equal(t, 3, admins.journeys[jid].seatsPerCargo)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTrainLayoutUnknownTrain(t *testing.T) {
	admins := newMemAdmin()
	admins.addCargoType(1, 3)

	svc := New(admins, fakeTx{}, nil, nil)

	err := svc.UpdateTrainLayout(context.Background(), 99, 1, 1)
	require.ErrorIs(t, err, ErrTrainNotFound)
}

func TestUpdateTrainLayoutUnknownCargoType(t *testing.T) {
	admins := newMemAdmin()
	admins.addTrain(10, 1, 2)

	svc := New(admins, fakeTx{}, nil, nil)

	err := svc.UpdateTrainLayout(context.Background(), 10, 99, 1)
	require.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestCreateJourneyInvalidatesNewJourney(t *testing.T) {
	admins := newMemAdmin()
	admins.addCargoType(1, 3)
	admins.addTrain(10, 1, 2)

	rdb, mock := redismock.NewClientMock()
	cache := redisrepo.New(rdb)

	svc := New(admins, fakeTx{}, cache, nil)

	departure := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	// the created journey id is the fake's next sequential id
	jid := admins.nextID
	mock.ExpectDel(
		redisrepo.KeyJourneySummary(jid),
		redisrepo.KeyJourneyAvailability(jid),
		redisrepo.KeyJourneySeatMap(jid),
	).SetVal(0)

	got, err := svc.CreateJourney(context.Background(), 1, 10, departure, departure.Add(4*time.Hour), []int64{7})
	require.NoError(t, err)
	assert.Equal(t, jid, got)

	// the snapshot came from the train's current layout
	assert.Equal(t, 2, admins.journeys[got].cargoCount)
	assert.Equal(t, 3, admins.journeys[got].seatsPerCargo)

	assert.NoError(t, mock.ExpectationsWereMet())
}
