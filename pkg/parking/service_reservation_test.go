package parking

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func mustBooking(test *testing.T, spaceID, vehicleID string) BookingInput {
	test.Helper()
	return BookingInput{
		SpaceID:      mustSpaceID(test, spaceID),
		VehicleID:    mustVehicleID(test, vehicleID),
		StartUnixUTC: 2000,
		EndUnixUTC:   2000 + 4*secondsPerHour,
		Type:         ReservationHourly,
		Metadata:     mustMetadata(test, "{}"),
	}
}

func TestCreateReservationClaimsOneUnit(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 10)
	seedVehicle(test, store, "vehicle-a", "driver-1", "ABC-123")
	service := mustNewService(test, store)

	reservation, err := service.CreateReservation(context.Background(), driverActor(test, "driver-1"), mustBooking(test, "space-a", "vehicle-a"))
	if err != nil {
		test.Fatalf("create reservation: %v", err)
	}
	if reservation.Status != ReservationPending {
		test.Fatalf("expected pending reservation, got %s", reservation.Status)
	}
	if reservation.TotalPrice != 220 {
		test.Fatalf("expected total 220 for 4 hours at 50, got %v", reservation.TotalPrice)
	}
	space := store.spaces["space-a"]
	if space.AvailableSpaces != 9 {
		test.Fatalf("expected 9 units left, got %d", space.AvailableSpaces)
	}
}

func TestCreateReservationSnapshotsRates(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 10)
	seedVehicle(test, store, "vehicle-a", "driver-1", "ABC-123")
	service := mustNewService(test, store)

	reservation, err := service.CreateReservation(context.Background(), driverActor(test, "driver-1"), mustBooking(test, "space-a", "vehicle-a"))
	if err != nil {
		test.Fatalf("create reservation: %v", err)
	}
	if reservation.HourlyRate != 50 || reservation.WholeDayRate != 400 {
		test.Fatalf("expected snapshotted rates 50/400, got %v/%v", reservation.HourlyRate, reservation.WholeDayRate)
	}
}

func TestCreateReservationRejectsExhaustedSpace(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 3, 0)
	seedVehicle(test, store, "vehicle-a", "driver-1", "ABC-123")
	service := mustNewService(test, store)

	_, err := service.CreateReservation(context.Background(), driverActor(test, "driver-1"), mustBooking(test, "space-a", "vehicle-a"))
	if !errors.Is(err, ErrCapacityExhausted) {
		test.Fatalf("expected ErrCapacityExhausted, got %v", err)
	}
	if len(store.reservations) != 0 {
		test.Fatalf("expected no reservation written, got %d", len(store.reservations))
	}
}

func TestCreateReservationRejectsClosedSpace(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	space := seedSpace(test, store, "space-a", 10, 10)
	space.Status = SpaceClosed
	store.spaces["space-a"] = space
	seedVehicle(test, store, "vehicle-a", "driver-1", "ABC-123")
	service := mustNewService(test, store)

	_, err := service.CreateReservation(context.Background(), driverActor(test, "driver-1"), mustBooking(test, "space-a", "vehicle-a"))
	if !errors.Is(err, ErrSpaceClosed) {
		test.Fatalf("expected ErrSpaceClosed, got %v", err)
	}
}

func TestCreateReservationAllowsLimitedSpace(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 5, 1)
	seedVehicle(test, store, "vehicle-a", "driver-1", "ABC-123")
	service := mustNewService(test, store)

	if _, err := service.CreateReservation(context.Background(), driverActor(test, "driver-1"), mustBooking(test, "space-a", "vehicle-a")); err != nil {
		test.Fatalf("limited space must remain bookable: %v", err)
	}
	if store.spaces["space-a"].Status != SpaceFull {
		test.Fatalf("expected full after last unit claimed, got %s", store.spaces["space-a"].Status)
	}
}

func TestCreateReservationRejectsForeignVehicle(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 10)
	seedVehicle(test, store, "vehicle-a", "driver-1", "ABC-123")
	service := mustNewService(test, store)

	_, err := service.CreateReservation(context.Background(), driverActor(test, "driver-2"), mustBooking(test, "space-a", "vehicle-a"))
	if !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestConcurrentBookingsNeverOversell(test *testing.T) {
	test.Parallel()
	const capacity = 3
	const attempts = 12
	store := newStubStore(test)
	seedSpace(test, store, "space-a", capacity, capacity)
	seedVehicle(test, store, "vehicle-a", "driver-1", "ABC-123")
	service := mustNewService(test, store)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.CreateReservation(context.Background(), driverActor(test, "driver-1"), mustBooking(test, "space-a", "vehicle-a"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, exhausted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrCapacityExhausted):
			exhausted++
		default:
			test.Fatalf("unexpected booking error: %v", err)
		}
	}
	if succeeded != capacity {
		test.Fatalf("expected exactly %d bookings to win, got %d", capacity, succeeded)
	}
	if exhausted != attempts-capacity {
		test.Fatalf("expected %d exhausted bookings, got %d", attempts-capacity, exhausted)
	}
	if store.spaces["space-a"].AvailableSpaces != 0 {
		test.Fatalf("expected zero units left, got %d", store.spaces["space-a"].AvailableSpaces)
	}
}

func TestConfirmReservationRequiresOperatorRole(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 9)
	seedReservation(test, store, "res-1", "driver-1", "space-a", ReservationPending)
	service := mustNewService(test, store)

	err := service.ConfirmReservation(context.Background(), driverActor(test, "driver-1"), mustReservationID(test, "res-1"))
	if !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden for driver confirm, got %v", err)
	}

	if err := service.ConfirmReservation(context.Background(), establishmentActor(test, "operator-1"), mustReservationID(test, "res-1")); err != nil {
		test.Fatalf("confirm: %v", err)
	}
	if store.reservations["res-1"].Status != ReservationConfirmed {
		test.Fatalf("expected confirmed, got %s", store.reservations["res-1"].Status)
	}
}

func TestConfirmReservationRejectsNonPending(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 9)
	seedReservation(test, store, "res-1", "driver-1", "space-a", ReservationPaid)
	service := mustNewService(test, store)

	err := service.ConfirmReservation(context.Background(), adminActor(test, "admin-1"), mustReservationID(test, "res-1"))
	if !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCancelReservationReleasesUnit(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 9)
	seedReservation(test, store, "res-1", "driver-1", "space-a", ReservationConfirmed)
	service := mustNewService(test, store)

	if err := service.CancelReservation(context.Background(), driverActor(test, "driver-1"), mustReservationID(test, "res-1")); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if store.reservations["res-1"].Status != ReservationCancelled {
		test.Fatalf("expected cancelled, got %s", store.reservations["res-1"].Status)
	}
	if store.spaces["space-a"].AvailableSpaces != 10 {
		test.Fatalf("expected unit released back to 10, got %d", store.spaces["space-a"].AvailableSpaces)
	}
}

func TestCancelReservationTwiceDoesNotDoubleRelease(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 9)
	seedReservation(test, store, "res-1", "driver-1", "space-a", ReservationConfirmed)
	service := mustNewService(test, store)
	actor := driverActor(test, "driver-1")
	reservationID := mustReservationID(test, "res-1")

	if err := service.CancelReservation(context.Background(), actor, reservationID); err != nil {
		test.Fatalf("first cancel: %v", err)
	}
	err := service.CancelReservation(context.Background(), actor, reservationID)
	if !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState on duplicate cancel, got %v", err)
	}
	if store.spaces["space-a"].AvailableSpaces != 10 {
		test.Fatalf("duplicate cancel over-counted capacity: %d", store.spaces["space-a"].AvailableSpaces)
	}
}

func TestCancelReservationRejectsForeignOwner(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 9)
	seedReservation(test, store, "res-1", "driver-1", "space-a", ReservationPending)
	service := mustNewService(test, store)

	err := service.CancelReservation(context.Background(), driverActor(test, "driver-2"), mustReservationID(test, "res-1"))
	if !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden, got %v", err)
	}

	// Admin may cancel anyone's reservation.
	if err := service.CancelReservation(context.Background(), adminActor(test, "admin-1"), mustReservationID(test, "res-1")); err != nil {
		test.Fatalf("admin cancel: %v", err)
	}
}

func TestDeleteReservationOnlyWhilePending(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 9)
	seedReservation(test, store, "res-1", "driver-1", "space-a", ReservationConfirmed)
	service := mustNewService(test, store)

	err := service.DeleteReservation(context.Background(), driverActor(test, "driver-1"), mustReservationID(test, "res-1"))
	if !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState deleting confirmed, got %v", err)
	}

	seedReservation(test, store, "res-2", "driver-1", "space-a", ReservationPending)
	if err := service.DeleteReservation(context.Background(), driverActor(test, "driver-1"), mustReservationID(test, "res-2")); err != nil {
		test.Fatalf("delete pending: %v", err)
	}
	if _, found := store.reservations["res-2"]; found {
		test.Fatalf("expected reservation removed")
	}
	if store.spaces["space-a"].AvailableSpaces != 10 {
		test.Fatalf("expected unit released, got %d", store.spaces["space-a"].AvailableSpaces)
	}
}

func TestListReservationsScopesToOwner(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 8)
	seedReservation(test, store, "res-1", "driver-1", "space-a", ReservationPending)
	seedReservation(test, store, "res-2", "driver-2", "space-a", ReservationPending)
	service := mustNewService(test, store)

	mine, err := service.ListReservations(context.Background(), driverActor(test, "driver-1"), 10, 0)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].ID.String() != "res-1" {
		test.Fatalf("expected only res-1, got %+v", mine)
	}

	all, err := service.ListReservations(context.Background(), adminActor(test, "admin-1"), 10, 0)
	if err != nil {
		test.Fatalf("admin list: %v", err)
	}
	if len(all) != 2 {
		test.Fatalf("expected admin to see 2 reservations, got %d", len(all))
	}
}

func TestGetReservationRejectsForeignOwner(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 9)
	seedReservation(test, store, "res-1", "driver-1", "space-a", ReservationPending)
	service := mustNewService(test, store)

	_, err := service.GetReservation(context.Background(), driverActor(test, "driver-2"), mustReservationID(test, "res-1"))
	if !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestLifecycleSweepsAdvanceStatuses(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 8)
	due := seedReservation(test, store, "res-due", "driver-1", "space-a", ReservationPaid)
	due.StartUnixUTC = 500
	store.reservations["res-due"] = due
	elapsed := seedReservation(test, store, "res-elapsed", "driver-1", "space-a", ReservationActive)
	elapsed.EndUnixUTC = 500
	store.reservations["res-elapsed"] = elapsed
	service := mustNewService(test, store)

	activated, err := service.ActivateDueReservations(context.Background())
	if err != nil {
		test.Fatalf("activate sweep: %v", err)
	}
	if activated != 1 || store.reservations["res-due"].Status != ReservationActive {
		test.Fatalf("expected res-due activated, count %d status %s", activated, store.reservations["res-due"].Status)
	}

	completed, err := service.CompleteElapsedReservations(context.Background())
	if err != nil {
		test.Fatalf("complete sweep: %v", err)
	}
	if completed != 1 || store.reservations["res-elapsed"].Status != ReservationCompleted {
		test.Fatalf("expected res-elapsed completed, count %d status %s", completed, store.reservations["res-elapsed"].Status)
	}
}

func TestExpireStalePendingReleasesUnits(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	seedSpace(test, store, "space-a", 10, 8)
	seedReservation(test, store, "res-stale", "driver-1", "space-a", ReservationPending)
	fresh := seedReservation(test, store, "res-fresh", "driver-1", "space-a", ReservationPending)
	fresh.CreatedUnixUTC = 5000
	store.reservations["res-fresh"] = fresh
	service := mustNewService(test, store)

	expired, err := service.ExpireStalePendingReservations(context.Background(), 1000)
	if err != nil {
		test.Fatalf("expire sweep: %v", err)
	}
	if expired != 1 {
		test.Fatalf("expected 1 expired, got %d", expired)
	}
	if store.reservations["res-stale"].Status != ReservationCancelled {
		test.Fatalf("expected stale reservation cancelled, got %s", store.reservations["res-stale"].Status)
	}
	if store.reservations["res-fresh"].Status != ReservationPending {
		test.Fatalf("fresh reservation must stay pending, got %s", store.reservations["res-fresh"].Status)
	}
	if store.spaces["space-a"].AvailableSpaces != 9 {
		test.Fatalf("expected one unit released, got %d", store.spaces["space-a"].AvailableSpaces)
	}
}

func TestRegisterVehicleRejectsDuplicatePlate(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	actor := driverActor(test, "driver-1")

	if _, err := service.RegisterVehicle(context.Background(), actor, "ABC-123", "sedan"); err != nil {
		test.Fatalf("register: %v", err)
	}
	_, err := service.RegisterVehicle(context.Background(), actor, "ABC-123", "coupe")
	if !errors.Is(err, ErrDuplicatePlate) {
		test.Fatalf("expected ErrDuplicatePlate, got %v", err)
	}
}
