package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/yarkob/railgo/internal/domain"
	redisrepo "github.com/yarkob/railgo/internal/repository/redis"
	"github.com/yarkob/railgo/internal/service"
	"github.com/yarkob/railgo/internal/service/booking"
	"github.com/yarkob/railgo/internal/service/orders"
	"github.com/yarkob/railgo/internal/service/query"
	"github.com/yarkob/railgo/internal/service/schedule"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health + metrics
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public API
	r.GET("/journeys", handleListJourneys(svcs))
	r.GET("/journeys/:id", handleGetJourney(svcs))
	r.GET("/journeys/:id/availability", handleGetAvailability(svcs))
	r.GET("/journeys/:id/seats", handleListFreeSeats(svcs))
	r.GET("/journeys/:id/seats/:cargo/:seat", handleCheckSeat(svcs))

	r.POST("/orders", handleCreateOrder(svcs, idem))
	r.GET("/orders", handleListOrders(svcs))
	r.GET("/orders/:id", handleGetOrder(svcs))
	r.DELETE("/orders/:id", handleCancelOrder(svcs))

	// Admin-API: schedule-management write path.
	// TODO: add admin middleware
	admin := r.Group("/admin")
	{
		admin.POST("/stations", handleCreateStation(svcs))
		admin.POST("/routes", handleCreateRoute(svcs))
		admin.POST("/train-types", handleCreateTrainType(svcs))
		admin.POST("/cargo-types", handleCreateCargoType(svcs))
		admin.POST("/trains", handleCreateTrain(svcs))
		admin.PUT("/trains/:id/layout", handleUpdateTrainLayout(svcs))
		admin.POST("/crews", handleCreateCrew(svcs))
		admin.POST("/journeys", handleCreateJourney(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List journeys
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200  {array}  domain.JourneySummary
// @Router   /journeys [get]
func handleListJourneys(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 100)
		offset := parseIntDefault(c.Query("offset"), 0)

		out, err := svcs.Query.ListJourneys(c.Request.Context(), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15", true)
	}
}

// @Summary  Get journey
// @Param    id  path  int  true  "Journey ID"
// @Success  200  {object}  domain.Journey
// @Failure  404  {object}  ErrorResponse
// @Router   /journeys/{id} [get]
func handleGetJourney(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		journeyID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		j, err := svcs.Query.GetJourney(c.Request.Context(), journeyID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, j, "public, max-age=60", true)
	}
}

// @Summary  Get availability counters
// @Param    id  path  int  true  "Journey ID"
// @Success  200  {object}  domain.JourneyCounts
// @Router   /journeys/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		journeyID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		cnt, err := svcs.Query.Availability(c.Request.Context(), journeyID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, cnt, "public, max-age=15", true)
	}
}

// @Summary  List free seats
// @Param    id  path  int  true  "Journey ID"
// @Success  200  {array}  domain.Seat
// @Router   /journeys/{id}/seats [get]
func handleListFreeSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		journeyID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		seats, err := svcs.Query.AvailableSeats(c.Request.Context(), journeyID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, seats, "public, max-age=15", true)
	}
}

// @Summary  Check one seat tuple
// @Param    id     path  int  true  "Journey ID"
// @Param    cargo  path  int  true  "Cargo index (0-based)"
// @Param    seat   path  int  true  "Seat number (1-based)"
// @Success  200  {object}  SeatAvailabilityResponse
// @Router   /journeys/{id}/seats/{cargo}/{seat} [get]
func handleCheckSeat(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		journeyID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		cargo, ok := parseIntParam(c, "cargo")
		if !ok {
			return
		}
		seat, ok := parseIntParam(c, "seat")
		if !ok {
			return
		}

		available, err := svcs.Query.IsSeatAvailable(
			c.Request.Context(),
			journeyID,
			domain.Seat{Cargo: cargo, Number: seat},
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, SeatAvailabilityResponse{
			JourneyID: journeyID,
			Cargo:     cargo,
			Seat:      seat,
			Available: available,
		})
	}
}

// @Summary  Create order (idempotent)
// @Param    req body  CreateOrderRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} OrderResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ConflictResponse "seats taken / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /orders [post]
func handleCreateOrder(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(userID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		reqs := make([]booking.SeatRequest, 0, len(req.Tickets))
		for _, t := range req.Tickets {
			reqs = append(reqs, booking.SeatRequest{
				JourneyID: t.JourneyID,
				Cargo:     *t.Cargo,
				Seat:      t.Seat,
			})
		}

		rlKey := "ip:" + c.ClientIP()

		order, err := svcs.Booking.Book(c.Request.Context(), userID, reqs, rlKey)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if errors.Is(err, booking.ErrRateLimited) {
				c.Header("Retry-After", "60")
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: "rate limited"},
				)
				return
			}
			respondErr(c, err)
			return
		}

		resp := toOrderResponse(order)

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  List own orders
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200 {array} OrderResponse
// @Router   /orders [get]
func handleListOrders(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		owts, err := svcs.Orders.ListByUser(c.Request.Context(), userID, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]OrderResponse, 0, len(owts))
		for i := range owts {
			out = append(out, toOrderResponse(&owts[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Get order with tickets
// @Param    id  path  string  true  "Order ID (uuid)"
// @Success  200 {object} OrderResponse
// @Router   /orders/{id} [get]
func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid order id")
			return
		}
		o, err := svcs.Orders.GetOrderWithTickets(c.Request.Context(), userID, orderID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// @Summary  Cancel order
// @Param    id  path  string  true  "Order ID (uuid)"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already cancelled"
// @Router   /orders/{id} [delete]
func handleCancelOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		orderID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid order id")
			return
		}
		if err := svcs.Booking.Cancel(c.Request.Context(), userID, orderID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Create station
// @Param    req body  CreateStationRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/stations [post]
func handleCreateStation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateStationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		lat, err := decimal.NewFromString(req.Latitude)
		if err != nil {
			badRequest(c, "invalid latitude")
			return
		}
		long, err := decimal.NewFromString(req.Longitude)
		if err != nil {
			badRequest(c, "invalid longitude")
			return
		}
		id, err := svcs.Schedule.CreateStation(c.Request.Context(), req.Name, lat, long)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// @Summary  Create route
// @Param    req body  CreateRouteRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/routes [post]
func handleCreateRoute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		distance, err := decimal.NewFromString(req.Distance)
		if err != nil {
			badRequest(c, "invalid distance")
			return
		}
		id, err := svcs.Schedule.CreateRoute(c.Request.Context(), req.SourceID, req.DestinationID, distance)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// @Summary  Create train type
// @Param    req body  CreateTrainTypeRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/train-types [post]
func handleCreateTrainType(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTrainTypeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := svcs.Schedule.CreateTrainType(c.Request.Context(), req.Name)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// @Summary  Create cargo type
// @Param    req body  CreateCargoTypeRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/cargo-types [post]
func handleCreateCargoType(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateCargoTypeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := svcs.Schedule.CreateCargoType(c.Request.Context(), req.Name, req.SeatsPerCargo)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// @Summary  Create train
// @Param    req body  CreateTrainRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/trains [post]
func handleCreateTrain(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTrainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := svcs.Schedule.CreateTrain(
			c.Request.Context(),
			req.Name,
			req.TrainTypeID,
			req.CargoTypeID,
			req.CargoCount,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// @Summary  Update train layout (guarded)
// @Param    id  path  int  true  "Train ID"
// @Param    req body  UpdateTrainLayoutRequest true "payload"
// @Success  204
// @Failure  409 {object} ErrorResponse "sold seats outside new layout"
// @Router   /admin/trains/{id}/layout [put]
func handleUpdateTrainLayout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		trainID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req UpdateTrainLayoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Schedule.UpdateTrainLayout(
			c.Request.Context(),
			trainID,
			req.CargoTypeID,
			req.CargoCount,
		); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Create crew
// @Param    req body  CreateCrewRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/crews [post]
func handleCreateCrew(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateCrewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := svcs.Schedule.CreateCrew(c.Request.Context(), req.FirstName, req.LastName)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// @Summary  Create journey
// @Param    req body  CreateJourneyRequest true "payload"
// @Success  201 {object} CreatedResponse
// @Router   /admin/journeys [post]
func handleCreateJourney(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateJourneyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		departure, err := parseRFC3339(req.DepartureAt)
		if err != nil {
			badRequest(c, "invalid departure_at (RFC3339)")
			return
		}
		arrival, err := parseRFC3339(req.ArrivalAt)
		if err != nil {
			badRequest(c, "invalid arrival_at (RFC3339)")
			return
		}
		id, err := svcs.Schedule.CreateJourney(
			c.Request.Context(),
			req.RouteID,
			req.TrainID,
			departure,
			arrival,
			req.CrewIDs,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{ID: id})
	}
}

// --- Helpers ---

// requireUserID reads the verified identity injected by the auth
// collaborator upstream.
func requireUserID(c *gin.Context) (int64, bool) {
	s := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if s == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing user identity"})
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid user identity"})
		return 0, false
	}
	return v, true
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntParam(c *gin.Context, name string) (int, bool) {
	v, ok := parseInt64Param(c, name)
	return int(v), ok
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	// booking service
	var invalid booking.InvalidRequestError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: invalid.Error()})
		return
	}

	var conflict booking.SeatConflictError
	if errors.As(err, &conflict) {
		tuples := make([]SeatTuple, 0, len(conflict.Conflicts))
		for _, t := range conflict.Conflicts {
			tuples = append(tuples, SeatTuple{JourneyID: t.JourneyID, Cargo: t.Cargo, Seat: t.Seat})
		}
		c.JSON(http.StatusConflict, ConflictResponse{Error: "seats already taken", Conflicts: tuples})
		return
	}

	var noJourney booking.JourneyNotFoundError
	if errors.As(err, &noJourney) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: noJourney.Error()})
		return
	}

	// schedule service
	var validation schedule.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validation.Error()})
		return
	}

	switch {
	case errors.Is(err, booking.ErrOrderNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
	case errors.Is(err, booking.ErrOrderCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "order already cancelled"})
	case errors.Is(err, query.ErrJourneyNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "journey not found"})
	case errors.Is(err, schedule.ErrStationConflict),
		errors.Is(err, schedule.ErrRouteConflict),
		errors.Is(err, schedule.ErrTrainTypeConflict),
		errors.Is(err, schedule.ErrCargoTypeConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, schedule.ErrCapacityInUse):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "sold seats outside new layout"})
	case errors.Is(err, schedule.ErrReferenceNotFound),
		errors.Is(err, schedule.ErrTrainNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		// Storage failures stay distinct from the domain errors above so
		// callers can tell "seat taken" from "system unavailable".
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
