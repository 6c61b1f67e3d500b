package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
)

type Station struct {
	ID        int64
	Name      string
	Latitude  decimal.Decimal
	Longitude decimal.Decimal
}

type Route struct {
	ID            int64
	SourceID      int64
	DestinationID int64
	Distance      decimal.Decimal
}

type TrainType struct {
	ID   int64
	Name string
}

type CargoType struct {
	ID            int64
	Name          string
	SeatsPerCargo int
}

type Train struct {
	ID          int64
	Name        string
	TrainTypeID int64
	CargoTypeID int64
	CargoCount  int
}

type Crew struct {
	ID        int64
	FirstName string
	LastName  string
}

func (c Crew) FullName() string {
	return c.FirstName + " " + c.LastName
}

// Journey is one scheduled run of a train over a route. CargoCount and
// SeatsPerCargo are snapshotted from the train at creation time, so the
// journey's seat inventory does not drift when the train layout changes.
type Journey struct {
	ID            int64
	RouteID       int64
	TrainID       int64
	Departure     time.Time
	Arrival       time.Time
	CargoCount    int
	SeatsPerCargo int
	Crews         []Crew
}

func (j Journey) Capacity() int {
	return j.CargoCount * j.SeatsPerCargo
}

// JourneySummary is the journey list projection: route endpoints by name,
// train name and the remaining seat count.
type JourneySummary struct {
	ID               int64
	RouteSource      string
	RouteDestination string
	TrainName        string
	Departure        time.Time
	Arrival          time.Time
	TicketsAvailable int64
}

type JourneyCounts struct {
	Sold      int64
	Available int64
	Total     int64
}

type Order struct {
	ID        uuid.UUID
	UserID    int64
	Status    OrderStatus
	CreatedAt time.Time
}

type Ticket struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	JourneyID int64
	Cargo     int
	Seat      int
	CreatedAt time.Time
}

type OrderWithTickets struct {
	Order   Order
	Tickets []Ticket
}
