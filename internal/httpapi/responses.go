package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parqops/parking/pkg/parking"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal error"

// envelope is the success body shape shared by all endpoints.
type envelope struct {
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalCount int64 `json:"total_count"`
	PageCount  int   `json:"page_count"`
}

type errorBody struct {
	Error string `json:"error"`
}

func respond(ginContext *gin.Context, status int, message string, data interface{}) {
	ginContext.JSON(status, envelope{Message: message, Data: data})
}

func respondPage(ginContext *gin.Context, message string, data interface{}, page pagination) {
	ginContext.JSON(http.StatusOK, envelope{Message: message, Data: data, Pagination: &page})
}

// respondError maps the error onto a status code. Unmapped errors are
// persistence or programming failures: those are logged and the body
// carries a generic message instead of the internal error text.
func (h *handler) respondError(ginContext *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", ginContext.FullPath()),
			zap.Error(err))
		ginContext.JSON(status, errorBody{Error: internalErrorMessage})
		return
	}
	ginContext.JSON(status, errorBody{Error: err.Error()})
}

func abortWithError(ginContext *gin.Context, status int, message string) {
	ginContext.AbortWithStatusJSON(status, errorBody{Error: message})
}

// statusForError maps domain sentinels onto HTTP status codes. Unmapped
// errors are reported as internal failures.
func statusForError(err error) int {
	switch {
	case errors.Is(err, parking.ErrUnknownSpace),
		errors.Is(err, parking.ErrUnknownVehicle),
		errors.Is(err, parking.ErrUnknownReservation),
		errors.Is(err, parking.ErrUnknownPayment):
		return http.StatusNotFound
	case errors.Is(err, parking.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, parking.ErrPaymentExists),
		errors.Is(err, parking.ErrDuplicateReceipt),
		errors.Is(err, parking.ErrDuplicatePlate):
		return http.StatusConflict
	case errors.Is(err, parking.ErrCapacityExhausted),
		errors.Is(err, parking.ErrSpaceClosed),
		errors.Is(err, parking.ErrInvalidState),
		errors.Is(err, parking.ErrActiveReservationsExist),
		errors.Is(err, parking.ErrInvalidSpaceID),
		errors.Is(err, parking.ErrInvalidReservationID),
		errors.Is(err, parking.ErrInvalidPaymentID),
		errors.Is(err, parking.ErrInvalidVehicleID),
		errors.Is(err, parking.ErrInvalidUserID),
		errors.Is(err, parking.ErrInvalidRole),
		errors.Is(err, parking.ErrInvalidAvailabilityStatus),
		errors.Is(err, parking.ErrInvalidReservationStatus),
		errors.Is(err, parking.ErrInvalidReservationType),
		errors.Is(err, parking.ErrInvalidPaymentMethod),
		errors.Is(err, parking.ErrInvalidMetadataJSON),
		errors.Is(err, parking.ErrInvalidPricingInput),
		errors.Is(err, parking.ErrInvalidSpaceInput),
		errors.Is(err, parking.ErrInvalidBookingInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
