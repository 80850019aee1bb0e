package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/parqops/parking/pkg/parking"
	"go.uber.org/zap"
)

const (
	defaultPageNumber = 1
	defaultPageLimit  = 20
	maxPageLimit      = 100
)

type handler struct {
	service *parking.Service
	logger  *zap.Logger
}

type spaceView struct {
	ID                 string  `json:"id"`
	City               string  `json:"city"`
	Establishment      string  `json:"establishment"`
	Address            string  `json:"address,omitempty"`
	TotalSpaces        int     `json:"total_spaces"`
	AvailableSpaces    int     `json:"available_spaces"`
	HourlyRate         float64 `json:"hourly_rate"`
	WholeDayRate       float64 `json:"whole_day_rate"`
	AvailabilityStatus string  `json:"availability_status"`
	CreatedAt          int64   `json:"created_at"`
	UpdatedAt          int64   `json:"updated_at"`
}

type reservationView struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	SpaceID      string  `json:"space_id"`
	VehicleID    string  `json:"vehicle_id"`
	StartTime    int64   `json:"start_time"`
	EndTime      int64   `json:"end_time"`
	Type         string  `json:"reservation_type"`
	HourlyRate   float64 `json:"hourly_rate"`
	WholeDayRate float64 `json:"whole_day_rate"`
	Discount     float64 `json:"discount"`
	Tax          float64 `json:"tax"`
	TotalPrice   float64 `json:"total_price"`
	DiscountNote string  `json:"discount_note,omitempty"`
	Status       string  `json:"status"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

type paymentView struct {
	ID            string  `json:"id"`
	ReservationID string  `json:"reservation_id"`
	Method        string  `json:"method"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
	ReceiptNumber string  `json:"receipt_number"`
	CreatedAt     int64   `json:"created_at"`
}

type vehicleView struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Plate   string `json:"plate"`
	Model   string `json:"model,omitempty"`
}

func viewSpace(space parking.ParkingSpace) spaceView {
	return spaceView{
		ID:                 space.ID.String(),
		City:               space.City,
		Establishment:      space.Establishment,
		Address:            space.Address,
		TotalSpaces:        space.TotalSpaces,
		AvailableSpaces:    space.AvailableSpaces,
		HourlyRate:         space.HourlyRate,
		WholeDayRate:       space.WholeDayRate,
		AvailabilityStatus: space.Status.String(),
		CreatedAt:          space.CreatedUnixUTC,
		UpdatedAt:          space.UpdatedUnixUTC,
	}
}

func viewReservation(reservation parking.Reservation) reservationView {
	return reservationView{
		ID:           reservation.ID.String(),
		UserID:       reservation.UserID.String(),
		SpaceID:      reservation.SpaceID.String(),
		VehicleID:    reservation.VehicleID.String(),
		StartTime:    reservation.StartUnixUTC,
		EndTime:      reservation.EndUnixUTC,
		Type:         reservation.Type.String(),
		HourlyRate:   reservation.HourlyRate,
		WholeDayRate: reservation.WholeDayRate,
		Discount:     reservation.Discount,
		Tax:          reservation.Tax,
		TotalPrice:   reservation.TotalPrice,
		DiscountNote: reservation.DiscountNote,
		Status:       reservation.Status.String(),
		CreatedAt:    reservation.CreatedUnixUTC,
		UpdatedAt:    reservation.UpdatedUnixUTC,
	}
}

func viewPayment(payment parking.Payment) paymentView {
	return paymentView{
		ID:            payment.ID.String(),
		ReservationID: payment.ReservationID.String(),
		Method:        payment.Method.String(),
		Amount:        payment.Amount,
		Status:        payment.Status.String(),
		ReceiptNumber: payment.ReceiptNumber,
		CreatedAt:     payment.CreatedUnixUTC,
	}
}

func viewVehicle(vehicle parking.Vehicle) vehicleView {
	return vehicleView{
		ID:      vehicle.ID.String(),
		OwnerID: vehicle.OwnerID.String(),
		Plate:   vehicle.Plate,
		Model:   vehicle.Model,
	}
}

type createSpaceRequest struct {
	City          string  `json:"city"`
	Establishment string  `json:"establishment"`
	Address       string  `json:"address"`
	TotalSpaces   int     `json:"total_spaces"`
	HourlyRate    float64 `json:"hourly_rate"`
	WholeDayRate  float64 `json:"whole_day_rate"`
}

func (h *handler) handleCreateSpace(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	var request createSpaceRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		abortWithError(ginContext, http.StatusBadRequest, err.Error())
		return
	}
	space, err := h.service.CreateSpace(ginContext.Request.Context(), actor, parking.SpaceInput{
		City:          request.City,
		Establishment: request.Establishment,
		Address:       request.Address,
		TotalSpaces:   request.TotalSpaces,
		HourlyRate:    request.HourlyRate,
		WholeDayRate:  request.WholeDayRate,
	})
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusCreated, "parking space created", viewSpace(space))
}

type updateSpaceRequest struct {
	City          *string  `json:"city"`
	Establishment *string  `json:"establishment"`
	Address       *string  `json:"address"`
	HourlyRate    *float64 `json:"hourly_rate"`
	WholeDayRate  *float64 `json:"whole_day_rate"`
	Closed        *bool    `json:"closed"`
	TotalSpaces   *int     `json:"total_spaces"`
}

func (h *handler) handleUpdateSpace(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	spaceID, err := parking.NewSpaceID(ginContext.Param("id"))
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	var request updateSpaceRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		abortWithError(ginContext, http.StatusBadRequest, err.Error())
		return
	}

	// Capacity resizes ride the same endpoint but go through the
	// clamped resize path rather than a blind column write.
	if request.TotalSpaces != nil {
		if err := h.service.ResizeSpace(ginContext.Request.Context(), actor, spaceID, *request.TotalSpaces); err != nil {
			h.respondError(ginContext, err)
			return
		}
	}
	update := parking.SpaceUpdate{
		City:          request.City,
		Establishment: request.Establishment,
		Address:       request.Address,
		HourlyRate:    request.HourlyRate,
		WholeDayRate:  request.WholeDayRate,
		Closed:        request.Closed,
	}
	if !update.IsEmpty() {
		if err := h.service.UpdateSpace(ginContext.Request.Context(), actor, spaceID, update); err != nil {
			h.respondError(ginContext, err)
			return
		}
	}
	space, err := h.service.GetSpace(ginContext.Request.Context(), spaceID)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusOK, "parking space updated", viewSpace(space))
}

func (h *handler) handleRetireSpace(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	spaceID, err := parking.NewSpaceID(ginContext.Param("id"))
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	if err := h.service.RetireSpace(ginContext.Request.Context(), actor, spaceID); err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusOK, "parking space deleted", nil)
}

func (h *handler) handleGetSpace(ginContext *gin.Context) {
	spaceID, err := parking.NewSpaceID(ginContext.Param("id"))
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	space, err := h.service.GetSpace(ginContext.Request.Context(), spaceID)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusOK, "parking space", viewSpace(space))
}

func (h *handler) handleSearchSpaces(ginContext *gin.Context) {
	filter := parking.SpaceFilter{
		City:          ginContext.Query("city"),
		Establishment: ginContext.Query("establishment"),
		AvailableOnly: ginContext.Query("available_only") == "true",
		Page:          queryInt(ginContext, "page", defaultPageNumber),
		Limit:         queryInt(ginContext, "limit", defaultPageLimit),
	}
	result, err := h.service.SearchSpaces(ginContext.Request.Context(), filter)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	views := make([]spaceView, 0, len(result.Spaces))
	for _, space := range result.Spaces {
		views = append(views, viewSpace(space))
	}
	respondPage(ginContext, "parking spaces", views, pagination{
		Page:       result.Page,
		Limit:      result.Limit,
		TotalCount: result.TotalCount,
		PageCount:  result.PageCount,
	})
}

type createReservationRequest struct {
	SpaceID         string  `json:"space_id"`
	VehicleID       string  `json:"vehicle_id"`
	StartTime       int64   `json:"start_time"`
	EndTime         int64   `json:"end_time"`
	ReservationType string  `json:"reservation_type"`
	DiscountPercent float64 `json:"discount_percent"`
	DiscountNote    string  `json:"discount_note"`
	Metadata        string  `json:"metadata"`
}

func (h *handler) handleCreateReservation(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	var request createReservationRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		abortWithError(ginContext, http.StatusBadRequest, err.Error())
		return
	}
	spaceID, err := parking.NewSpaceID(request.SpaceID)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	vehicleID, err := parking.NewVehicleID(request.VehicleID)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	reservationType, err := parking.ParseReservationType(request.ReservationType)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	metadata, err := parking.NewMetadataJSON(request.Metadata)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	reservation, err := h.service.CreateReservation(ginContext.Request.Context(), actor, parking.BookingInput{
		SpaceID:         spaceID,
		VehicleID:       vehicleID,
		StartUnixUTC:    request.StartTime,
		EndUnixUTC:      request.EndTime,
		Type:            reservationType,
		DiscountPercent: request.DiscountPercent,
		DiscountNote:    request.DiscountNote,
		Metadata:        metadata,
	})
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusCreated, "reservation created", viewReservation(reservation))
}

func (h *handler) handleListReservations(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	page := queryInt(ginContext, "page", defaultPageNumber)
	limit := queryInt(ginContext, "limit", defaultPageLimit)
	reservations, err := h.service.ListReservations(ginContext.Request.Context(), actor, limit, (page-1)*limit)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	views := make([]reservationView, 0, len(reservations))
	for _, reservation := range reservations {
		views = append(views, viewReservation(reservation))
	}
	respond(ginContext, http.StatusOK, "reservations", views)
}

func (h *handler) handleGetReservation(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	reservationID, err := parking.NewReservationID(ginContext.Param("id"))
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	reservation, err := h.service.GetReservation(ginContext.Request.Context(), actor, reservationID)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusOK, "reservation", viewReservation(reservation))
}

type updateReservationRequest struct {
	Status string `json:"status"`
}

// handleUpdateReservation accepts exactly two target statuses. Every
// other lifecycle step is driven by payment capture or the sweeps, not
// by the client.
func (h *handler) handleUpdateReservation(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	reservationID, err := parking.NewReservationID(ginContext.Param("id"))
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	var request updateReservationRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		abortWithError(ginContext, http.StatusBadRequest, err.Error())
		return
	}
	switch parking.ReservationStatus(request.Status) {
	case parking.ReservationConfirmed:
		err = h.service.ConfirmReservation(ginContext.Request.Context(), actor, reservationID)
	case parking.ReservationCancelled:
		err = h.service.CancelReservation(ginContext.Request.Context(), actor, reservationID)
	default:
		abortWithError(ginContext, http.StatusBadRequest, "status must be confirmed or cancelled")
		return
	}
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	reservation, err := h.service.GetReservation(ginContext.Request.Context(), actor, reservationID)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusOK, "reservation updated", viewReservation(reservation))
}

func (h *handler) handleDeleteReservation(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	reservationID, err := parking.NewReservationID(ginContext.Param("id"))
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	if err := h.service.DeleteReservation(ginContext.Request.Context(), actor, reservationID); err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusOK, "reservation deleted", nil)
}

type createVehicleRequest struct {
	Plate string `json:"plate"`
	Model string `json:"model"`
}

func (h *handler) handleCreateVehicle(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	var request createVehicleRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		abortWithError(ginContext, http.StatusBadRequest, err.Error())
		return
	}
	vehicle, err := h.service.RegisterVehicle(ginContext.Request.Context(), actor, request.Plate, request.Model)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusCreated, "vehicle registered", viewVehicle(vehicle))
}

type createPaymentRequest struct {
	ReservationID string `json:"reservation_id"`
	Method        string `json:"method"`
}

func (h *handler) handleCreatePayment(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	var request createPaymentRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		abortWithError(ginContext, http.StatusBadRequest, err.Error())
		return
	}
	reservationID, err := parking.NewReservationID(request.ReservationID)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	method, err := parking.ParsePaymentMethod(request.Method)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	payment, err := h.service.CreatePayment(ginContext.Request.Context(), actor, reservationID, method)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusCreated, "payment recorded", viewPayment(payment))
}

func (h *handler) handleListPayments(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	page := queryInt(ginContext, "page", defaultPageNumber)
	limit := queryInt(ginContext, "limit", defaultPageLimit)
	payments, err := h.service.ListPayments(ginContext.Request.Context(), actor, limit, (page-1)*limit)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	views := make([]paymentView, 0, len(payments))
	for _, payment := range payments {
		views = append(views, viewPayment(payment))
	}
	respond(ginContext, http.StatusOK, "payments", views)
}

func (h *handler) handleGetReservationPayment(ginContext *gin.Context) {
	actor, ok := actorFromContext(ginContext)
	if !ok {
		abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
		return
	}
	reservationID, err := parking.NewReservationID(ginContext.Param("id"))
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	payment, err := h.service.GetPaymentForReservation(ginContext.Request.Context(), actor, reservationID)
	if err != nil {
		h.respondError(ginContext, err)
		return
	}
	respond(ginContext, http.StatusOK, "payment", viewPayment(payment))
}

func queryInt(ginContext *gin.Context, name string, fallback int) int {
	raw := ginContext.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if name == "limit" && value > maxPageLimit {
		return maxPageLimit
	}
	return value
}
