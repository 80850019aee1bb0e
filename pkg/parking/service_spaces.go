package parking

import (
	"context"
	"fmt"
)

// CreateSpace registers a new parking space with its full capacity
// available.
func (service *Service) CreateSpace(ctx context.Context, actor Actor, input SpaceInput) (ParkingSpace, error) {
	var created ParkingSpace
	operationError := func() error {
		if !actor.Role.CanManageSpaces() {
			return fmt.Errorf("%w: role %s cannot manage spaces", ErrForbidden, actor.Role)
		}
		if err := input.Validate(); err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		var err error
		created, err = service.store.CreateSpace(ctx, ParkingSpace{
			City:            input.City,
			Establishment:   input.Establishment,
			Address:         input.Address,
			TotalSpaces:     input.TotalSpaces,
			AvailableSpaces: input.TotalSpaces,
			HourlyRate:      input.HourlyRate,
			WholeDayRate:    input.WholeDayRate,
			Status:          DeriveAvailabilityStatus(input.TotalSpaces, input.TotalSpaces, false),
			RecordState:     RecordActive,
			CreatedUnixUTC:  nowUnixUTC,
			UpdatedUnixUTC:  nowUnixUTC,
		})
		return err
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateSpace,
		Actor:     actor.UserID,
		SpaceID:   created.ID,
		Error:     operationError,
	})
	if operationError != nil {
		return ParkingSpace{}, operationError
	}
	return created, nil
}

// UpdateSpace mutates the operator-settable fields (rates, location, the
// Closed override). Capacity counters are never touched here.
func (service *Service) UpdateSpace(ctx context.Context, actor Actor, spaceID SpaceID, update SpaceUpdate) error {
	operationError := func() error {
		if !actor.Role.CanManageSpaces() {
			return fmt.Errorf("%w: role %s cannot manage spaces", ErrForbidden, actor.Role)
		}
		if update.IsEmpty() {
			return fmt.Errorf("%w: no fields to update", ErrInvalidSpaceInput)
		}
		if err := update.Validate(); err != nil {
			return err
		}
		return service.store.UpdateSpace(ctx, spaceID, update, service.nowFn())
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationUpdateSpace,
		Actor:     actor.UserID,
		SpaceID:   spaceID,
		Error:     operationError,
	})
	return operationError
}

// ResizeSpace changes total capacity; the store shifts the available
// count by the signed delta and clamps it to [0, newTotal] in one
// statement.
func (service *Service) ResizeSpace(ctx context.Context, actor Actor, spaceID SpaceID, newTotal int) error {
	operationError := func() error {
		if !actor.Role.CanManageSpaces() {
			return fmt.Errorf("%w: role %s cannot manage spaces", ErrForbidden, actor.Role)
		}
		if newTotal <= 0 {
			return fmt.Errorf("%w: total spaces must be positive", ErrInvalidSpaceInput)
		}
		return service.store.ResizeSpace(ctx, spaceID, newTotal, service.nowFn())
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationResizeSpace,
		Actor:     actor.UserID,
		SpaceID:   spaceID,
		Error:     operationError,
	})
	return operationError
}

// RetireSpace soft-deletes a space. Rejected while any reservation on it
// is still pending, confirmed, paid, or active; history is preserved, the
// row is never removed.
func (service *Service) RetireSpace(ctx context.Context, actor Actor, spaceID SpaceID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if !actor.Role.CanManageSpaces() {
			return fmt.Errorf("%w: role %s cannot manage spaces", ErrForbidden, actor.Role)
		}
		openCount, err := transactionStore.CountOpenReservations(ctx, spaceID)
		if err != nil {
			return err
		}
		if openCount > 0 {
			return fmt.Errorf("%w: %d open reservations", ErrActiveReservationsExist, openCount)
		}
		return transactionStore.MarkSpaceDeleted(ctx, spaceID, service.nowFn())
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRetireSpace,
		Actor:     actor.UserID,
		SpaceID:   spaceID,
		Error:     operationError,
	})
	return operationError
}

// SearchSpaces is the read-only availability query: case-insensitive
// substring filters, newest first, soft-deleted spaces always excluded.
func (service *Service) SearchSpaces(ctx context.Context, filter SpaceFilter) (SpacePage, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > maxSearchLimit {
		filter.Limit = defaultSearchLimit
	}
	return service.store.SearchSpaces(ctx, filter)
}

// GetSpace returns a single active space.
func (service *Service) GetSpace(ctx context.Context, spaceID SpaceID) (ParkingSpace, error) {
	return service.store.GetSpace(ctx, spaceID)
}
