package parking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// CreatePayment settles a confirmed reservation: it writes a completed
// payment for the reservation's total and advances the reservation to
// paid as one atomic unit. A reservation already paid (or otherwise not
// confirmed) is rejected, so retried requests cannot settle twice.
func (service *Service) CreatePayment(ctx context.Context, actor Actor, reservationID ReservationID, method PaymentMethod) (Payment, error) {
	var created Payment
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := ParsePaymentMethod(method.String()); err != nil {
			return err
		}
		reservation, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.UserID != actor.UserID && !actor.Role.CanActOnAnyRecord() {
			return fmt.Errorf("%w: reservation belongs to another user", ErrForbidden)
		}
		if reservation.Status != ReservationConfirmed {
			return fmt.Errorf("%w: cannot settle a %s reservation", ErrInvalidState, reservation.Status)
		}
		receiptNumber, err := newReceiptNumber()
		if err != nil {
			return err
		}
		created, err = transactionStore.CreatePayment(ctx, Payment{
			ReservationID:  reservationID,
			Method:         method,
			Amount:         reservation.TotalPrice,
			Status:         PaymentCompleted,
			ReceiptNumber:  receiptNumber,
			CreatedUnixUTC: service.nowFn(),
		})
		if err != nil {
			return err
		}
		return transactionStore.UpdateReservationStatus(ctx, reservationID, ReservationConfirmed, ReservationPaid, service.nowFn())
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationSettle,
		Actor:         actor.UserID,
		ReservationID: reservationID,
		PaymentID:     created.ID,
		Amount:        created.Amount,
		Error:         operationError,
	})
	if operationError != nil {
		return Payment{}, operationError
	}
	return created, nil
}

// GetPaymentForReservation returns the settling payment, if any.
func (service *Service) GetPaymentForReservation(ctx context.Context, actor Actor, reservationID ReservationID) (Payment, error) {
	reservation, err := service.store.GetReservation(ctx, reservationID)
	if err != nil {
		return Payment{}, err
	}
	if reservation.UserID != actor.UserID && !actor.Role.CanActOnAnyRecord() {
		return Payment{}, fmt.Errorf("%w: reservation belongs to another user", ErrForbidden)
	}
	return service.store.GetPaymentByReservation(ctx, reservationID)
}

// ListPayments returns the actor's payments; admins see all.
func (service *Service) ListPayments(ctx context.Context, actor Actor, limit, offset int) ([]Payment, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	var owner *UserID
	if !actor.Role.CanActOnAnyRecord() {
		ownerID := actor.UserID
		owner = &ownerID
	}
	return service.store.ListPayments(ctx, owner, limit, offset)
}

// newReceiptNumber draws 96 bits of randomness; uniqueness is enforced by
// the store's receipt constraint.
func newReceiptNumber() (string, error) {
	var raw [12]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("receipt number: %w", err)
	}
	return receiptNumberPrefix + hex.EncodeToString(raw[:]), nil
}
