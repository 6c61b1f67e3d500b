package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yarkob/railgo/internal/domain"
	"github.com/yarkob/railgo/internal/repository"
	postgresrepo "github.com/yarkob/railgo/internal/repository/postgres"
	"github.com/yarkob/railgo/internal/uow"
)

type seatKey struct {
	journeyID int64
	cargo     int
	seat      int
}

type memOrder struct {
	order   domain.Order
	tickets []domain.Ticket
}

// memStore backs Ledger, Schedules and Orders for allocator tests. The
// transaction mutex serializes whole transactions the way the serializable
// isolation level does, so a lost race surfaces as a seat conflict rather
// than a torn write.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	seats    map[seatKey]uuid.UUID
	orders   map[uuid.UUID]*memOrder
	journeys map[int64]*domain.Journey

	snapSeats  map[seatKey]uuid.UUID
	snapOrders map[uuid.UUID]*memOrder
}

func newMemStore() *memStore {
	return &memStore{
		seats:    make(map[seatKey]uuid.UUID),
		orders:   make(map[uuid.UUID]*memOrder),
		journeys: make(map[int64]*domain.Journey),
	}
}

func (m *memStore) addJourney(id int64, cargoCount, seatsPerCargo int, departure time.Time) {
	m.journeys[id] = &domain.Journey{
		ID:            id,
		Departure:     departure,
		Arrival:       departure.Add(4 * time.Hour),
		CargoCount:    cargoCount,
		SeatsPerCargo: seatsPerCargo,
	}
}

func (m *memStore) snapshot() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapSeats = make(map[seatKey]uuid.UUID, len(m.seats))
	for k, v := range m.seats {
		m.snapSeats[k] = v
	}

	m.snapOrders = make(map[uuid.UUID]*memOrder, len(m.orders))
	for k, v := range m.orders {
		cp := *v
		cp.tickets = append([]domain.Ticket(nil), v.tickets...)
		m.snapOrders[k] = &cp
	}
}

func (m *memStore) restore() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seats = m.snapSeats
	m.orders = m.snapOrders
}

func (m *memStore) Reserve(
	_ context.Context,
	_ postgresrepo.DB,
	orderID uuid.UUID,
	journeyID int64,
	seats []domain.Seat,
) ([]domain.Ticket, []domain.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var conflicts []domain.Seat
	for _, s := range seats {
		if _, taken := m.seats[seatKey{journeyID, s.Cargo, s.Number}]; taken {
			conflicts = append(conflicts, s)
		}
	}
	if len(conflicts) > 0 {
		return nil, conflicts, repository.ErrSeatsUnavailable
	}

	tickets := make([]domain.Ticket, 0, len(seats))
	for _, s := range seats {
		m.seats[seatKey{journeyID, s.Cargo, s.Number}] = orderID
		t := domain.Ticket{
			ID:        uuid.New(),
			OrderID:   orderID,
			JourneyID: journeyID,
			Cargo:     s.Cargo,
			Seat:      s.Number,
		}
		tickets = append(tickets, t)
	}

	if o, ok := m.orders[orderID]; ok {
		o.tickets = append(o.tickets, tickets...)
	}

	return tickets, nil, nil
}

func (m *memStore) OccupiedAmong(
	_ context.Context,
	journeyID int64,
	seats []domain.Seat,
) ([]domain.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var taken []domain.Seat
	for _, s := range seats {
		if _, ok := m.seats[seatKey{journeyID, s.Cargo, s.Number}]; ok {
			taken = append(taken, s)
		}
	}
	return taken, nil
}

func (m *memStore) ReleaseByOrder(
	_ context.Context,
	_ postgresrepo.DB,
	orderID uuid.UUID,
) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, owner := range m.seats {
		if owner == orderID {
			delete(m.seats, k)
			n++
		}
	}
	if o, ok := m.orders[orderID]; ok {
		o.tickets = nil
	}
	return n, nil
}

func (m *memStore) GetJourney(_ context.Context, id int64) (*domain.Journey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.journeys[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) Insert(
	_ context.Context,
	_ postgresrepo.DB,
	orderID uuid.UUID,
	userID int64,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[orderID] = &memOrder{
		order: domain.Order{
			ID:        orderID,
			UserID:    userID,
			Status:    domain.OrderConfirmed,
			CreatedAt: time.Now(),
		},
	}
	return nil
}

func (m *memStore) GetWithTickets(_ context.Context, id uuid.UUID) (*domain.OrderWithTickets, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &domain.OrderWithTickets{
		Order:   o.order,
		Tickets: append([]domain.Ticket(nil), o.tickets...),
	}, nil
}

func (m *memStore) MarkCancelled(_ context.Context, _ postgresrepo.DB, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if o.order.Status == domain.OrderCancelled {
		return repository.ErrOrderCancelled
	}
	o.order.Status = domain.OrderCancelled
	return nil
}

func (m *memStore) ticketCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seats)
}

// memTx serializes transactions and restores the snapshot on error.
type memTx struct {
	store *memStore
}

func (t *memTx) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error,
) error {
	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()

	t.store.snapshot()

	var hooks []uow.AfterCommit
	after := func(h uow.AfterCommit) { hooks = append(hooks, h) }

	if err := fn(ctx, nil, after); err != nil {
		t.store.restore()
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

func newTestService(store *memStore, cfg Config) *Service {
	return New(store, store, store, &memTx{store: store}, nil, nil, nil, nil, cfg)
}

func futureDeparture() time.Time {
	return time.Now().Add(24 * time.Hour)
}

func TestBookCommitsAllRequestedSeats(t *testing.T) {
	store := newMemStore()
	store.addJourney(1, 2, 3, futureDeparture())
	svc := newTestService(store, Config{})

	out, err := svc.Book(context.Background(), 7, []SeatRequest{
		{JourneyID: 1, Cargo: 0, Seat: 1},
		{JourneyID: 1, Cargo: 1, Seat: 3},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderConfirmed, out.Order.Status)
	assert.Equal(t, int64(7), out.Order.UserID)
	require.Len(t, out.Tickets, 2)
	assert.Equal(t, 2, store.ticketCount())

	for _, tk := range out.Tickets {
		assert.Equal(t, out.Order.ID, tk.OrderID)
	}
}

func TestBookRejectsMalformedRequests(t *testing.T) {
	store := newMemStore()
	store.addJourney(1, 2, 3, futureDeparture())
	store.addJourney(2, 1, 1, time.Now().Add(-time.Hour))
	svc := newTestService(store, Config{MaxSeatsPerOrder: 3})

	cases := []struct {
		name string
		reqs []SeatRequest
	}{
		{"empty order", nil},
		{"over the per-order cap", []SeatRequest{
			{1, 0, 1}, {1, 0, 2}, {1, 0, 3}, {1, 1, 1},
		}},
		{"duplicate tuple", []SeatRequest{
			{1, 0, 1}, {1, 0, 1},
		}},
		{"cargo out of bounds", []SeatRequest{
			{1, 2, 1},
		}},
		{"seat out of bounds", []SeatRequest{
			{1, 0, 4},
		}},
		{"seat zero", []SeatRequest{
			{1, 0, 0},
		}},
		{"departed journey", []SeatRequest{
			{2, 0, 1},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), 7, tc.reqs, "")

			var invalid InvalidRequestError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, 0, store.ticketCount())
		})
	}
}

func TestBookUnknownJourney(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, Config{})

	_, err := svc.Book(context.Background(), 7, []SeatRequest{
		{JourneyID: 42, Cargo: 0, Seat: 1},
	}, "")

	var notFound JourneyNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(42), notFound.JourneyID)
}

func TestBookReportsConflictingTuples(t *testing.T) {
	store := newMemStore()
	store.addJourney(1, 2, 3, futureDeparture())
	svc := newTestService(store, Config{})

	_, err := svc.Book(context.Background(), 1, []SeatRequest{
		{JourneyID: 1, Cargo: 0, Seat: 1},
	}, "")
	require.NoError(t, err)

	_, err = svc.Book(context.Background(), 2, []SeatRequest{
		{JourneyID: 1, Cargo: 0, Seat: 1},
		{JourneyID: 1, Cargo: 0, Seat: 2},
	}, "")

	var conflict SeatConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, SeatRequest{JourneyID: 1, Cargo: 0, Seat: 1}, conflict.Conflicts[0])

	// the losing order must leave nothing behind, including its free seat
	assert.Equal(t, 1, store.ticketCount())
}

func TestBookMultiJourneyIsAtomic(t *testing.T) {
	store := newMemStore()
	store.addJourney(1, 2, 3, futureDeparture())
	store.addJourney(2, 2, 3, futureDeparture())
	svc := newTestService(store, Config{})

	_, err := svc.Book(context.Background(), 1, []SeatRequest{
		{JourneyID: 2, Cargo: 1, Seat: 2},
	}, "")
	require.NoError(t, err)

	_, err = svc.Book(context.Background(), 2, []SeatRequest{
		{JourneyID: 1, Cargo: 0, Seat: 1},
		{JourneyID: 2, Cargo: 1, Seat: 2},
	}, "")

	var conflict SeatConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, int64(2), conflict.Conflicts[0].JourneyID)

	// the free seat on journey 1 must not have been committed
	taken, err := store.OccupiedAmong(context.Background(), 1, []domain.Seat{{Cargo: 0, Number: 1}})
	require.NoError(t, err)
	assert.Empty(t, taken)
}

func TestBookConcurrentOverlapSingleWinner(t *testing.T) {
	store := newMemStore()
	store.addJourney(1, 1, 1, futureDeparture())
	svc := newTestService(store, Config{})

	const workers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	var committed, conflicted int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()

			_, err := svc.Book(context.Background(), userID, []SeatRequest{
				{JourneyID: 1, Cargo: 0, Seat: 1},
			}, "")

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			default:
				var conflict SeatConflictError
				if errors.As(err, &conflict) {
					conflicted++
				}
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, committed)
	assert.Equal(t, workers-1, conflicted)
	assert.Equal(t, 1, store.ticketCount())
}

func TestBookConcurrentDisjointAllCommit(t *testing.T) {
	store := newMemStore()
	store.addJourney(1, 4, 4, futureDeparture())
	svc := newTestService(store, Config{})

	const workers = 16

	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Book(context.Background(), int64(n+1), []SeatRequest{
				{JourneyID: 1, Cargo: n / 4, Seat: n%4 + 1},
			}, "")
		}(i)
	}
	wg.Wait()

	for n, err := range errs {
		assert.NoError(t, err, "worker %d", n)
	}
	assert.Equal(t, workers, store.ticketCount())
}

func TestCancelFreesSeatsForRebooking(t *testing.T) {
	store := newMemStore()
	store.addJourney(1, 2, 3, futureDeparture())
	svc := newTestService(store, Config{})

	out, err := svc.Book(context.Background(), 1, []SeatRequest{
		{JourneyID: 1, Cargo: 0, Seat: 1},
		{JourneyID: 1, Cargo: 0, Seat: 2},
	}, "")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), 1, out.Order.ID))
	assert.Equal(t, 0, store.ticketCount())

	// the exact tuples are free again
	_, err = svc.Book(context.Background(), 2, []SeatRequest{
		{JourneyID: 1, Cargo: 0, Seat: 1},
		{JourneyID: 1, Cargo: 0, Seat: 2},
	}, "")
	require.NoError(t, err)
}

func TestCancelIsIdempotentlyRejected(t *testing.T) {
	store := newMemStore()
	store.addJourney(1, 2, 3, futureDeparture())
	svc := newTestService(store, Config{})

	out, err := svc.Book(context.Background(), 1, []SeatRequest{
		{JourneyID: 1, Cargo: 0, Seat: 1},
	}, "")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), 1, out.Order.ID))

	err = svc.Cancel(context.Background(), 1, out.Order.ID)
	assert.ErrorIs(t, err, ErrOrderCancelled)
}

func TestCancelHidesForeignOrders(t *testing.T) {
	store := newMemStore()
	store.addJourney(1, 2, 3, futureDeparture())
	svc := newTestService(store, Config{})

	out, err := svc.Book(context.Background(), 1, []SeatRequest{
		{JourneyID: 1, Cargo: 0, Seat: 1},
	}, "")
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), 99, out.Order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	err = svc.Cancel(context.Background(), 1, uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)

	// the order is untouched
	assert.Equal(t, 1, store.ticketCount())
}
