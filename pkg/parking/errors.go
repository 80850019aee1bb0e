package parking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the parking service.
var (
	ErrCapacityExhausted         = errors.New("capacity exhausted")
	ErrSpaceClosed               = errors.New("space closed")
	ErrInvalidState              = errors.New("invalid lifecycle state")
	ErrForbidden                 = errors.New("forbidden")
	ErrUnknownSpace              = errors.New("unknown parking space")
	ErrUnknownVehicle            = errors.New("unknown vehicle")
	ErrUnknownReservation        = errors.New("unknown reservation")
	ErrUnknownPayment            = errors.New("unknown payment")
	ErrPaymentExists             = errors.New("payment already exists for reservation")
	ErrDuplicateReceipt          = errors.New("duplicate receipt number")
	ErrDuplicatePlate            = errors.New("duplicate plate number")
	ErrActiveReservationsExist   = errors.New("active reservations exist for space")
	ErrInvalidSpaceID            = errors.New("invalid space id")
	ErrInvalidReservationID      = errors.New("invalid reservation id")
	ErrInvalidPaymentID          = errors.New("invalid payment id")
	ErrInvalidVehicleID          = errors.New("invalid vehicle id")
	ErrInvalidUserID             = errors.New("invalid user id")
	ErrInvalidRole               = errors.New("invalid role")
	ErrInvalidAvailabilityStatus = errors.New("invalid availability status")
	ErrInvalidReservationStatus  = errors.New("invalid reservation status")
	ErrInvalidReservationType    = errors.New("invalid reservation type")
	ErrInvalidPaymentMethod      = errors.New("invalid payment method")
	ErrInvalidPaymentStatus      = errors.New("invalid payment status")
	ErrInvalidMetadataJSON       = errors.New("invalid metadata json")
	ErrInvalidPricingInput       = errors.New("invalid pricing input")
	ErrInvalidSpaceInput         = errors.New("invalid space input")
	ErrInvalidBookingInput       = errors.New("invalid booking input")
	ErrInvalidServiceConfig      = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
