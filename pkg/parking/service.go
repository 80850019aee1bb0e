package parking

import (
	"context"
	"errors"
	"fmt"
)

// Service contains the domain logic over a Store.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateReservation prices the request, claims one capacity unit, and
// writes the pending reservation as a single unit of work. A failed claim
// creates nothing; a failed insert rolls the claim back.
func (service *Service) CreateReservation(ctx context.Context, actor Actor, input BookingInput) (Reservation, error) {
	var created Reservation
	operationError := input.Validate()
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			vehicle, err := transactionStore.GetVehicle(ctx, input.VehicleID)
			if err != nil {
				return err
			}
			if vehicle.OwnerID != actor.UserID && !actor.Role.CanActOnAnyRecord() {
				return fmt.Errorf("%w: vehicle belongs to another user", ErrForbidden)
			}
			space, err := transactionStore.GetSpace(ctx, input.SpaceID)
			if err != nil {
				return err
			}
			if space.Status == SpaceClosed {
				return ErrSpaceClosed
			}
			quote, err := ComputeQuote(input.Type, input.StartUnixUTC, input.EndUnixUTC, space.HourlyRate, space.WholeDayRate, input.DiscountPercent)
			if err != nil {
				return err
			}
			nowUnixUTC := service.nowFn()
			if err := transactionStore.ClaimSpace(ctx, input.SpaceID, nowUnixUTC); err != nil {
				return err
			}
			created, err = transactionStore.CreateReservation(ctx, Reservation{
				UserID:         vehicle.OwnerID,
				SpaceID:        input.SpaceID,
				VehicleID:      input.VehicleID,
				StartUnixUTC:   input.StartUnixUTC,
				EndUnixUTC:     input.EndUnixUTC,
				Type:           input.Type,
				HourlyRate:     space.HourlyRate,
				WholeDayRate:   space.WholeDayRate,
				Discount:       quote.DiscountAmount,
				Tax:            quote.Tax,
				TotalPrice:     quote.Total,
				DiscountNote:   input.DiscountNote,
				Metadata:       input.Metadata,
				Status:         ReservationPending,
				CreatedUnixUTC: nowUnixUTC,
				UpdatedUnixUTC: nowUnixUTC,
			})
			return err
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationBookSpace,
		Actor:         actor.UserID,
		SpaceID:       input.SpaceID,
		ReservationID: created.ID,
		Amount:        created.TotalPrice,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return created, nil
}

// ConfirmReservation advances a pending reservation to confirmed. No
// capacity effect.
func (service *Service) ConfirmReservation(ctx context.Context, actor Actor, reservationID ReservationID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if !actor.Role.CanConfirmReservations() {
			return fmt.Errorf("%w: role %s cannot confirm reservations", ErrForbidden, actor.Role)
		}
		reservation, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != ReservationPending {
			return fmt.Errorf("%w: cannot confirm a %s reservation", ErrInvalidState, reservation.Status)
		}
		return transactionStore.UpdateReservationStatus(ctx, reservationID, ReservationPending, ReservationConfirmed, service.nowFn())
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationConfirm,
		Actor:         actor.UserID,
		ReservationID: reservationID,
		Error:         operationError,
	})
	return operationError
}

// CancelReservation moves a live reservation to its terminal cancelled
// state and releases the claimed unit. A reservation already cancelled or
// completed is rejected rather than silently re-released; the observed
// upstream behaviour of releasing on every cancel request over-counted
// capacity on duplicate requests.
func (service *Service) CancelReservation(ctx context.Context, actor Actor, reservationID ReservationID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		reservation, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.UserID != actor.UserID && !actor.Role.CanActOnAnyRecord() {
			return fmt.Errorf("%w: reservation belongs to another user", ErrForbidden)
		}
		if !reservation.Status.Cancellable() {
			return fmt.Errorf("%w: cannot cancel a %s reservation", ErrInvalidState, reservation.Status)
		}
		if err := transactionStore.UpdateReservationStatus(ctx, reservationID, reservation.Status, ReservationCancelled, service.nowFn()); err != nil {
			return err
		}
		return transactionStore.ReleaseSpace(ctx, reservation.SpaceID, service.nowFn())
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationCancel,
		Actor:         actor.UserID,
		ReservationID: reservationID,
		Error:         operationError,
	})
	return operationError
}

// DeleteReservation hard-deletes a reservation, permitted only while
// pending, and releases its claimed unit in the same transaction.
func (service *Service) DeleteReservation(ctx context.Context, actor Actor, reservationID ReservationID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		reservation, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.UserID != actor.UserID && !actor.Role.CanActOnAnyRecord() {
			return fmt.Errorf("%w: reservation belongs to another user", ErrForbidden)
		}
		if reservation.Status != ReservationPending {
			return fmt.Errorf("%w: only pending reservations may be deleted", ErrInvalidState)
		}
		if err := transactionStore.DeleteReservationIfPending(ctx, reservationID); err != nil {
			return err
		}
		return transactionStore.ReleaseSpace(ctx, reservation.SpaceID, service.nowFn())
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationDelete,
		Actor:         actor.UserID,
		ReservationID: reservationID,
		Error:         operationError,
	})
	return operationError
}

// GetReservation returns a reservation the actor may see. Operators can
// view any reservation since they confirm them.
func (service *Service) GetReservation(ctx context.Context, actor Actor, reservationID ReservationID) (Reservation, error) {
	reservation, err := service.store.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	if reservation.UserID != actor.UserID && !actor.Role.CanConfirmReservations() {
		return Reservation{}, fmt.Errorf("%w: reservation belongs to another user", ErrForbidden)
	}
	return reservation, nil
}

// ListReservations returns the actor's reservations; admins see all.
func (service *Service) ListReservations(ctx context.Context, actor Actor, limit, offset int) ([]Reservation, error) {
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
	return service.store.ListReservations(ctx, owner, limit, offset)
}

// ActivateDueReservations flips paid reservations whose start time has
// arrived to active. Idempotent; meant to be driven by a scheduler.
func (service *Service) ActivateDueReservations(ctx context.Context) (int64, error) {
	count, operationError := service.store.ActivateDueReservations(ctx, service.nowFn())
	service.logOperation(ctx, OperationLog{
		Operation: operationActivateSweep,
		Count:     count,
		Error:     operationError,
	})
	return count, operationError
}

// CompleteElapsedReservations flips active reservations past their end
// time to completed. Idempotent; meant to be driven by a scheduler.
func (service *Service) CompleteElapsedReservations(ctx context.Context) (int64, error) {
	count, operationError := service.store.CompleteElapsedReservations(ctx, service.nowFn())
	service.logOperation(ctx, OperationLog{
		Operation: operationCompleteSweep,
		Count:     count,
		Error:     operationError,
	})
	return count, operationError
}

// ExpireStalePendingReservations cancels pending reservations created
// before the cutoff, releasing their claimed units one transaction at a
// time. Races with a concurrent confirm or cancel are skipped, not
// retried.
func (service *Service) ExpireStalePendingReservations(ctx context.Context, beforeUnixUTC int64) (int64, error) {
	stale, err := service.store.ListStalePendingReservations(ctx, beforeUnixUTC, expireSweepBatchSize)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationExpireSweep, Error: err})
		return 0, err
	}
	var expired int64
	for _, reservation := range stale {
		reservationID := reservation.ID
		spaceID := reservation.SpaceID
		expireError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			if err := transactionStore.UpdateReservationStatus(ctx, reservationID, ReservationPending, ReservationCancelled, service.nowFn()); err != nil {
				return err
			}
			return transactionStore.ReleaseSpace(ctx, spaceID, service.nowFn())
		})
		if expireError != nil {
			if errors.Is(expireError, ErrInvalidState) {
				continue
			}
			service.logOperation(ctx, OperationLog{Operation: operationExpireSweep, Count: expired, Error: expireError})
			return expired, expireError
		}
		expired++
	}
	service.logOperation(ctx, OperationLog{Operation: operationExpireSweep, Count: expired})
	return expired, nil
}

// RegisterVehicle records a vehicle for the owning user. Vehicle
// lifecycle otherwise belongs to the identity collaborator; this exists
// so bookings can verify ownership against the shared store.
func (service *Service) RegisterVehicle(ctx context.Context, actor Actor, plate, model string) (Vehicle, error) {
	if plate == "" {
		return Vehicle{}, fmt.Errorf("%w: plate is required", ErrInvalidBookingInput)
	}
	return service.store.CreateVehicle(ctx, Vehicle{
		OwnerID: actor.UserID,
		Plate:   plate,
		Model:   model,
	})
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
