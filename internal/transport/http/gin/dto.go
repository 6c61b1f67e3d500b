package httpgin

import (
	"time"

	"github.com/yarkob/railgo/internal/domain"
)

// SeatInput is one desired seat tuple. Cargo is a pointer because index 0
// is a valid value and must survive the required binding.
type SeatInput struct {
	JourneyID int64 `json:"journey_id" binding:"required"`
	Cargo     *int  `json:"cargo" binding:"required"`
	Seat      int   `json:"seat" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	Tickets []SeatInput `json:"tickets" binding:"required,min=1,dive"`
}

type SeatTuple struct {
	JourneyID int64 `json:"journey_id"`
	Cargo     int   `json:"cargo"`
	Seat      int   `json:"seat"`
}

type TicketResponse struct {
	ID        string `json:"id"`
	JourneyID int64  `json:"journey_id"`
	Cargo     int    `json:"cargo"`
	Seat      int    `json:"seat"`
}

type OrderResponse struct {
	OrderID   string           `json:"order_id"`
	Status    string           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	Tickets   []TicketResponse `json:"tickets"`
}

func toOrderResponse(o *domain.OrderWithTickets) OrderResponse {
	resp := OrderResponse{
		OrderID:   o.Order.ID.String(),
		Status:    string(o.Order.Status),
		CreatedAt: o.Order.CreatedAt,
		Tickets:   make([]TicketResponse, 0, len(o.Tickets)),
	}
	for _, t := range o.Tickets {
		resp.Tickets = append(resp.Tickets, TicketResponse{
			ID:        t.ID.String(),
			JourneyID: t.JourneyID,
			Cargo:     t.Cargo,
			Seat:      t.Seat,
		})
	}
	return resp
}

type CreateStationRequest struct {
	Name      string `json:"name" binding:"required"`
	Latitude  string `json:"latitude" binding:"required"`
	Longitude string `json:"longitude" binding:"required"`
}

type CreateRouteRequest struct {
	SourceID      int64  `json:"source_id" binding:"required"`
	DestinationID int64  `json:"destination_id" binding:"required"`
	Distance      string `json:"distance" binding:"required"`
}

type CreateTrainTypeRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateCargoTypeRequest struct {
	Name          string `json:"name" binding:"required"`
	SeatsPerCargo int    `json:"seats_per_cargo" binding:"required,gt=0"`
}

type CreateTrainRequest struct {
	Name        string `json:"name" binding:"required"`
	TrainTypeID int64  `json:"train_type_id" binding:"required"`
	CargoTypeID int64  `json:"cargo_type_id" binding:"required"`
	CargoCount  int    `json:"cargo_count" binding:"required,gt=0"`
}

type CreateCrewRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type CreateJourneyRequest struct {
	RouteID     int64   `json:"route_id" binding:"required"`
	TrainID     int64   `json:"train_id" binding:"required"`
	DepartureAt string  `json:"departure_at" binding:"required"`
	ArrivalAt   string  `json:"arrival_at" binding:"required"`
	CrewIDs     []int64 `json:"crew_ids"`
}

type UpdateTrainLayoutRequest struct {
	CargoTypeID int64 `json:"cargo_type_id" binding:"required"`
	CargoCount  int   `json:"cargo_count" binding:"required,gt=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ConflictResponse carries the taken tuples so the caller can re-offer
// different seats.
type ConflictResponse struct {
	Error     string      `json:"error"`
	Conflicts []SeatTuple `json:"conflicts"`
}

type CreatedResponse struct {
	ID int64 `json:"id"`
}

type SeatAvailabilityResponse struct {
	JourneyID int64 `json:"journey_id"`
	Cargo     int   `json:"cargo"`
	Seat      int   `json:"seat"`
	Available bool  `json:"available"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
