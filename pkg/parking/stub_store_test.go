package parking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
)

// stubStore is an in-memory Store with the same conditional-update
// semantics as the real one.
type stubStore struct {
	mu           sync.Mutex
	spaces       map[string]ParkingSpace
	vehicles     map[string]Vehicle
	reservations map[string]Reservation
	payments     map[string]Payment
	nextID       int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		spaces:       map[string]ParkingSpace{},
		vehicles:     map[string]Vehicle{},
		reservations: map[string]Reservation{},
		payments:     map[string]Payment{},
	}
}

func (store *stubStore) generateID(prefix string) string {
	store.nextID++
	return fmt.Sprintf("%s-%d", prefix, store.nextID)
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) CreateSpace(_ context.Context, space ParkingSpace) (ParkingSpace, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if space.ID == (SpaceID{}) {
		id, err := NewSpaceID(store.generateID("space"))
		if err != nil {
			return ParkingSpace{}, err
		}
		space.ID = id
	}
	store.spaces[space.ID.String()] = space
	return space, nil
}

func (store *stubStore) GetSpace(_ context.Context, id SpaceID) (ParkingSpace, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	space, found := store.spaces[id.String()]
	if !found || space.RecordState != RecordActive {
		return ParkingSpace{}, ErrUnknownSpace
	}
	return space, nil
}

func (store *stubStore) UpdateSpace(_ context.Context, id SpaceID, update SpaceUpdate, nowUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	space, found := store.spaces[id.String()]
	if !found || space.RecordState != RecordActive {
		return ErrUnknownSpace
	}
	if update.City != nil {
		space.City = *update.City
	}
	if update.Establishment != nil {
		space.Establishment = *update.Establishment
	}
	if update.Address != nil {
		space.Address = *update.Address
	}
	if update.HourlyRate != nil {
		space.HourlyRate = *update.HourlyRate
	}
	if update.WholeDayRate != nil {
		space.WholeDayRate = *update.WholeDayRate
	}
	if update.Closed != nil {
		space.Status = DeriveAvailabilityStatus(space.TotalSpaces, space.AvailableSpaces, *update.Closed)
	}
	space.UpdatedUnixUTC = nowUnixUTC
	store.spaces[id.String()] = space
	return nil
}

func (store *stubStore) ClaimSpace(_ context.Context, id SpaceID, nowUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	space, found := store.spaces[id.String()]
	if !found || space.RecordState != RecordActive {
		return ErrUnknownSpace
	}
	if space.Status == SpaceClosed {
		return ErrSpaceClosed
	}
	if space.AvailableSpaces <= 0 {
		return ErrCapacityExhausted
	}
	space.AvailableSpaces--
	space.Status = DeriveAvailabilityStatus(space.TotalSpaces, space.AvailableSpaces, false)
	space.UpdatedUnixUTC = nowUnixUTC
	store.spaces[id.String()] = space
	return nil
}

func (store *stubStore) ReleaseSpace(_ context.Context, id SpaceID, nowUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	space, found := store.spaces[id.String()]
	if !found || space.RecordState != RecordActive {
		return ErrUnknownSpace
	}
	if space.AvailableSpaces < space.TotalSpaces {
		space.AvailableSpaces++
	}
	space.Status = DeriveAvailabilityStatus(space.TotalSpaces, space.AvailableSpaces, space.Status == SpaceClosed)
	space.UpdatedUnixUTC = nowUnixUTC
	store.spaces[id.String()] = space
	return nil
}

func (store *stubStore) ResizeSpace(_ context.Context, id SpaceID, newTotal int, nowUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	space, found := store.spaces[id.String()]
	if !found || space.RecordState != RecordActive {
		return ErrUnknownSpace
	}
	shifted := space.AvailableSpaces + newTotal - space.TotalSpaces
	if shifted < 0 {
		shifted = 0
	}
	space.TotalSpaces = newTotal
	space.AvailableSpaces = shifted
	space.Status = DeriveAvailabilityStatus(space.TotalSpaces, space.AvailableSpaces, space.Status == SpaceClosed)
	space.UpdatedUnixUTC = nowUnixUTC
	store.spaces[id.String()] = space
	return nil
}

func (store *stubStore) MarkSpaceDeleted(_ context.Context, id SpaceID, nowUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	space, found := store.spaces[id.String()]
	if !found || space.RecordState != RecordActive {
		return ErrUnknownSpace
	}
	for _, reservation := range store.reservations {
		if reservation.SpaceID == id && !reservation.Status.IsTerminal() {
			return ErrActiveReservationsExist
		}
	}
	space.RecordState = RecordDeleted
	space.UpdatedUnixUTC = nowUnixUTC
	store.spaces[id.String()] = space
	return nil
}

func (store *stubStore) SearchSpaces(_ context.Context, filter SpaceFilter) (SpacePage, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := make([]ParkingSpace, 0, len(store.spaces))
	for _, space := range store.spaces {
		if space.RecordState != RecordActive {
			continue
		}
		if filter.City != "" && !strings.Contains(strings.ToLower(space.City), strings.ToLower(filter.City)) {
			continue
		}
		if filter.Establishment != "" && !strings.Contains(strings.ToLower(space.Establishment), strings.ToLower(filter.Establishment)) {
			continue
		}
		if filter.AvailableOnly && (space.Status != SpaceAvailable || space.AvailableSpaces <= 0) {
			continue
		}
		matched = append(matched, space)
	}
	sort.Slice(matched, func(left, right int) bool {
		return matched[left].CreatedUnixUTC > matched[right].CreatedUnixUTC
	})
	totalCount := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	pageCount := int((totalCount + int64(filter.Limit) - 1) / int64(filter.Limit))
	return SpacePage{
		Spaces:     matched[start:end],
		TotalCount: totalCount,
		Page:       filter.Page,
		Limit:      filter.Limit,
		PageCount:  pageCount,
	}, nil
}

func (store *stubStore) CountOpenReservations(_ context.Context, id SpaceID) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var count int64
	for _, reservation := range store.reservations {
		if reservation.SpaceID == id && !reservation.Status.IsTerminal() {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) CreateVehicle(_ context.Context, vehicle Vehicle) (Vehicle, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, existing := range store.vehicles {
		if existing.Plate == vehicle.Plate {
			return Vehicle{}, ErrDuplicatePlate
		}
	}
	if vehicle.ID == (VehicleID{}) {
		id, err := NewVehicleID(store.generateID("vehicle"))
		if err != nil {
			return Vehicle{}, err
		}
		vehicle.ID = id
	}
	store.vehicles[vehicle.ID.String()] = vehicle
	return vehicle, nil
}

func (store *stubStore) GetVehicle(_ context.Context, id VehicleID) (Vehicle, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	vehicle, found := store.vehicles[id.String()]
	if !found {
		return Vehicle{}, ErrUnknownVehicle
	}
	return vehicle, nil
}

func (store *stubStore) CreateReservation(_ context.Context, reservation Reservation) (Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if reservation.ID == (ReservationID{}) {
		id, err := NewReservationID(store.generateID("reservation"))
		if err != nil {
			return Reservation{}, err
		}
		reservation.ID = id
	}
	store.reservations[reservation.ID.String()] = reservation
	return reservation, nil
}

func (store *stubStore) GetReservation(_ context.Context, id ReservationID) (Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	reservation, found := store.reservations[id.String()]
	if !found {
		return Reservation{}, ErrUnknownReservation
	}
	return reservation, nil
}

func (store *stubStore) ListReservations(_ context.Context, owner *UserID, limit, offset int) ([]Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := make([]Reservation, 0, len(store.reservations))
	for _, reservation := range store.reservations {
		if owner != nil && reservation.UserID != *owner {
			continue
		}
		matched = append(matched, reservation)
	}
	sort.Slice(matched, func(left, right int) bool {
		return matched[left].CreatedUnixUTC > matched[right].CreatedUnixUTC
	})
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (store *stubStore) UpdateReservationStatus(_ context.Context, id ReservationID, from, to ReservationStatus, nowUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	reservation, found := store.reservations[id.String()]
	if !found || reservation.Status != from {
		return ErrInvalidState
	}
	reservation.Status = to
	reservation.UpdatedUnixUTC = nowUnixUTC
	store.reservations[id.String()] = reservation
	return nil
}

func (store *stubStore) DeleteReservationIfPending(_ context.Context, id ReservationID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	reservation, found := store.reservations[id.String()]
	if !found || reservation.Status != ReservationPending {
		return ErrInvalidState
	}
	delete(store.reservations, id.String())
	return nil
}

func (store *stubStore) ActivateDueReservations(_ context.Context, nowUnixUTC int64) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var count int64
	for key, reservation := range store.reservations {
		if reservation.Status == ReservationPaid && reservation.StartUnixUTC <= nowUnixUTC {
			reservation.Status = ReservationActive
			reservation.UpdatedUnixUTC = nowUnixUTC
			store.reservations[key] = reservation
			count++
		}
	}
	return count, nil
}

func (store *stubStore) CompleteElapsedReservations(_ context.Context, nowUnixUTC int64) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var count int64
	for key, reservation := range store.reservations {
		if reservation.Status == ReservationActive && reservation.EndUnixUTC <= nowUnixUTC {
			reservation.Status = ReservationCompleted
			reservation.UpdatedUnixUTC = nowUnixUTC
			store.reservations[key] = reservation
			count++
		}
	}
	return count, nil
}

func (store *stubStore) ListStalePendingReservations(_ context.Context, beforeUnixUTC int64, limit int) ([]Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := make([]Reservation, 0)
	for _, reservation := range store.reservations {
		if reservation.Status == ReservationPending && reservation.CreatedUnixUTC < beforeUnixUTC {
			matched = append(matched, reservation)
		}
	}
	sort.Slice(matched, func(left, right int) bool {
		return matched[left].CreatedUnixUTC < matched[right].CreatedUnixUTC
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (store *stubStore) CreatePayment(_ context.Context, payment Payment) (Payment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, existing := range store.payments {
		if existing.ReservationID == payment.ReservationID {
			return Payment{}, ErrPaymentExists
		}
		if existing.ReceiptNumber == payment.ReceiptNumber {
			return Payment{}, ErrDuplicateReceipt
		}
	}
	if payment.ID == (PaymentID{}) {
		id, err := NewPaymentID(store.generateID("payment"))
		if err != nil {
			return Payment{}, err
		}
		payment.ID = id
	}
	store.payments[payment.ID.String()] = payment
	return payment, nil
}

func (store *stubStore) GetPaymentByReservation(_ context.Context, id ReservationID) (Payment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, payment := range store.payments {
		if payment.ReservationID == id {
			return payment, nil
		}
	}
	return Payment{}, ErrUnknownPayment
}

func (store *stubStore) ListPayments(_ context.Context, owner *UserID, limit, offset int) ([]Payment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := make([]Payment, 0, len(store.payments))
	for _, payment := range store.payments {
		if owner != nil {
			reservation, found := store.reservations[payment.ReservationID.String()]
			if !found || reservation.UserID != *owner {
				continue
			}
		}
		matched = append(matched, payment)
	}
	sort.Slice(matched, func(left, right int) bool {
		return matched[left].CreatedUnixUTC > matched[right].CreatedUnixUTC
	})
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// failingStore reports the configured error for every mutating entry
// point the logging tests exercise.
type failingStore struct {
	*stubStore
	err error
}

func newFailingStore(test *testing.T, err error) *failingStore {
	test.Helper()
	return &failingStore{stubStore: newStubStore(test), err: err}
}

func (store *failingStore) WithTx(context.Context, func(ctx context.Context, txStore Store) error) error {
	return store.err
}

func (store *failingStore) CreateVehicle(context.Context, Vehicle) (Vehicle, error) {
	return Vehicle{}, store.err
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1000 })
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

func mustSpaceID(test *testing.T, raw string) SpaceID {
	test.Helper()
	id, err := NewSpaceID(raw)
	if err != nil {
		test.Fatalf("space id %q: %v", raw, err)
	}
	return id
}

func mustReservationID(test *testing.T, raw string) ReservationID {
	test.Helper()
	id, err := NewReservationID(raw)
	if err != nil {
		test.Fatalf("reservation id %q: %v", raw, err)
	}
	return id
}

func mustVehicleID(test *testing.T, raw string) VehicleID {
	test.Helper()
	id, err := NewVehicleID(raw)
	if err != nil {
		test.Fatalf("vehicle id %q: %v", raw, err)
	}
	return id
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	id, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return id
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata %q: %v", raw, err)
	}
	return metadata
}

func driverActor(test *testing.T, userID string) Actor {
	test.Helper()
	return Actor{UserID: mustUserID(test, userID), Role: RoleDriver}
}

func establishmentActor(test *testing.T, userID string) Actor {
	test.Helper()
	return Actor{UserID: mustUserID(test, userID), Role: RoleEstablishment}
}

func adminActor(test *testing.T, userID string) Actor {
	test.Helper()
	return Actor{UserID: mustUserID(test, userID), Role: RoleAdmin}
}

// seedSpace inserts an active space directly into the stub.
func seedSpace(test *testing.T, store *stubStore, id string, total, available int) ParkingSpace {
	test.Helper()
	space := ParkingSpace{
		ID:              mustSpaceID(test, id),
		City:            "Manila",
		Establishment:   "Midtown Garage",
		Address:         "12 Rizal Ave",
		TotalSpaces:     total,
		AvailableSpaces: available,
		HourlyRate:      50,
		WholeDayRate:    400,
		Status:          DeriveAvailabilityStatus(total, available, false),
		RecordState:     RecordActive,
		CreatedUnixUTC:  900,
		UpdatedUnixUTC:  900,
	}
	store.spaces[id] = space
	return space
}

// seedVehicle inserts a vehicle owned by the given user.
func seedVehicle(test *testing.T, store *stubStore, id, ownerID, plate string) Vehicle {
	test.Helper()
	vehicle := Vehicle{
		ID:      mustVehicleID(test, id),
		OwnerID: mustUserID(test, ownerID),
		Plate:   plate,
		Model:   "hatchback",
	}
	store.vehicles[id] = vehicle
	return vehicle
}

// seedReservation inserts a reservation in the given status.
func seedReservation(test *testing.T, store *stubStore, id, userID, spaceID string, status ReservationStatus) Reservation {
	test.Helper()
	reservation := Reservation{
		ID:             mustReservationID(test, id),
		UserID:         mustUserID(test, userID),
		SpaceID:        mustSpaceID(test, spaceID),
		VehicleID:      mustVehicleID(test, "vehicle-seed"),
		StartUnixUTC:   2000,
		EndUnixUTC:     2000 + 4*secondsPerHour,
		Type:           ReservationHourly,
		HourlyRate:     50,
		WholeDayRate:   400,
		TotalPrice:     220,
		Metadata:       mustMetadata(test, "{}"),
		Status:         status,
		CreatedUnixUTC: 950,
		UpdatedUnixUTC: 950,
	}
	store.reservations[id] = reservation
	return reservation
}
