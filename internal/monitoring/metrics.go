package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railgo_bookings_total",
			Help: "Booking attempts by outcome",
		},
		[]string{"outcome"},
	)

	seatConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "railgo_seat_conflicts_total",
			Help: "Requested seat tuples that were already taken",
		},
	)

	bookingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "railgo_booking_duration_seconds",
			Help:    "Duration of booking transactions",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	cancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "railgo_cancellations_total",
			Help: "Cancelled orders",
		},
	)
)

// BookingMetrics is the allocator-facing handle; a nil receiver is a no-op
// so services can run unmetered in tests.
type BookingMetrics struct{}

func NewBookingMetrics() *BookingMetrics {
	return &BookingMetrics{}
}

func (m *BookingMetrics) ObserveBooking(outcome string, started time.Time) {
	if m == nil {
		return
	}
	bookingsTotal.WithLabelValues(outcome).Inc()
	bookingDuration.Observe(time.Since(started).Seconds())
}

func (m *BookingMetrics) AddSeatConflicts(n int) {
	if m == nil {
		return
	}
	seatConflictsTotal.Add(float64(n))
}

func (m *BookingMetrics) IncCancellation() {
	if m == nil {
		return
	}
	cancellationsTotal.Inc()
}
