package service

import (
	"github.com/yarkob/railgo/internal/monitoring"
	postgres "github.com/yarkob/railgo/internal/repository/postgres"
	redis "github.com/yarkob/railgo/internal/repository/redis"
	"github.com/yarkob/railgo/internal/service/booking"
	"github.com/yarkob/railgo/internal/service/orders"
	"github.com/yarkob/railgo/internal/service/query"
	"github.com/yarkob/railgo/internal/service/schedule"
	"github.com/yarkob/railgo/internal/uow"
)

type Services struct {
	Booking  *booking.Service
	Schedule *schedule.Service
	Query    *query.Service
	Orders   *orders.Service
}

type Config struct {
	Booking booking.Config
	Query   query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.JourneysPubSub,
	limiter *redis.SlidingWindowLimiter,
	metrics *monitoring.BookingMetrics,
	cfg Config,
) *Services {
	return &Services{
		Booking: booking.New(
			store.Ledger(),
			store.Schedule(),
			store.Orders(),
			uow.NewUoW(store),
			cache,
			pubsub,
			limiter,
			metrics,
			cfg.Booking,
		),
		Schedule: schedule.New(store.Admin(), uow.NewUoW(store), cache, pubsub),
		Query:    query.New(store, cache, cfg.Query),
		Orders:   orders.New(store),
	}
}
