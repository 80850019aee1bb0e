package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/parqops/parking/pkg/parking"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintPaymentReceipt = "uniq_payments_receipt"
	constraintVehiclePlate       = "uniq_vehicles_plate"
	defaultMetadataJSON          = "{}"
	pgUniqueViolationCode        = "23505"
	sqliteConstraintCode         = 19
	errorOperationStore          = "store"
	errorSubjectSpace            = "space"
	errorSubjectVehicle          = "vehicle"
	errorSubjectReservation      = "reservation"
	errorSubjectPayment          = "payment"
	errorCodeCreate              = "create"
	errorCodeGet                 = "get"
	errorCodeList                = "list"
	errorCodeCount               = "count"
	errorCodeClaim               = "claim"
	errorCodeRelease             = "release"
	errorCodeResize              = "resize"
	errorCodeUpdate              = "update"
	errorCodeDelete              = "delete"
	errorCodeSweep               = "sweep"
	errorCodeDuplicate           = "duplicate"
	errorCodeInvalid             = "invalid"
)

// Status derivation lives inside the capacity statements so the stored
// column can never drift from the counters. The arithmetic mirrors
// parking.DeriveAvailabilityStatus.
const (
	claimStatusExpr = `CASE WHEN available_spaces - 1 <= 0 THEN 'full'
		WHEN (available_spaces - 1) * 5 <= total_spaces THEN 'limited'
		ELSE 'available' END`

	releaseAvailExpr = `CASE WHEN available_spaces < total_spaces THEN available_spaces + 1 ELSE available_spaces END`

	releaseStatusExpr = `CASE WHEN availability_status = 'closed' THEN 'closed'
		WHEN (CASE WHEN available_spaces < total_spaces THEN available_spaces + 1 ELSE available_spaces END) <= 0 THEN 'full'
		WHEN (CASE WHEN available_spaces < total_spaces THEN available_spaces + 1 ELSE available_spaces END) * 5 <= total_spaces THEN 'limited'
		ELSE 'available' END`

	// available_spaces <= total_spaces guarantees the shifted count never
	// exceeds the new total, so only the lower clamp is needed.
	resizeAvailExpr = `CASE WHEN available_spaces + ? - total_spaces < 0 THEN 0 ELSE available_spaces + ? - total_spaces END`

	resizeStatusExpr = `CASE WHEN availability_status = 'closed' THEN 'closed'
		WHEN available_spaces + ? - total_spaces <= 0 THEN 'full'
		WHEN (CASE WHEN available_spaces + ? - total_spaces < 0 THEN 0 ELSE available_spaces + ? - total_spaces END) * 5 <= ? THEN 'limited'
		ELSE 'available' END`

	reopenStatusExpr = `CASE WHEN available_spaces <= 0 THEN 'full'
		WHEN available_spaces * 5 <= total_spaces THEN 'limited'
		ELSE 'available' END`
)

// Store implements parking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore parking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateSpace(ctx context.Context, space parking.ParkingSpace) (parking.ParkingSpace, error) {
	model := ParkingSpace{
		SpaceID:            space.ID.String(),
		City:               space.City,
		Establishment:      space.Establishment,
		Address:            space.Address,
		TotalSpaces:        space.TotalSpaces,
		AvailableSpaces:    space.AvailableSpaces,
		HourlyRate:         space.HourlyRate,
		WholeDayRate:       space.WholeDayRate,
		AvailabilityStatus: space.Status.String(),
		RecordState:        space.RecordState.String(),
		CreatedAt:          timeOrNow(space.CreatedUnixUTC),
		UpdatedAt:          timeOrNow(space.UpdatedUnixUTC),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return parking.ParkingSpace{}, wrapStoreError(errorSubjectSpace, errorCodeCreate, err)
	}
	created, err := mapSpace(model)
	if err != nil {
		return parking.ParkingSpace{}, wrapStoreError(errorSubjectSpace, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) GetSpace(ctx context.Context, id parking.SpaceID) (parking.ParkingSpace, error) {
	var model ParkingSpace
	err := store.db.WithContext(ctx).
		Where("space_id = ? AND record_state = ?", id.String(), parking.RecordActive.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return parking.ParkingSpace{}, wrapStoreError(errorSubjectSpace, errorCodeGet, parking.ErrUnknownSpace)
		}
		return parking.ParkingSpace{}, wrapStoreError(errorSubjectSpace, errorCodeGet, err)
	}
	space, err := mapSpace(model)
	if err != nil {
		return parking.ParkingSpace{}, wrapStoreError(errorSubjectSpace, errorCodeInvalid, err)
	}
	return space, nil
}

func (store *Store) UpdateSpace(ctx context.Context, id parking.SpaceID, update parking.SpaceUpdate, nowUnixUTC int64) error {
	assignments := map[string]interface{}{
		"updated_at": time.Unix(nowUnixUTC, 0).UTC(),
	}
	if update.City != nil {
		assignments["city"] = *update.City
	}
	if update.Establishment != nil {
		assignments["establishment"] = *update.Establishment
	}
	if update.Address != nil {
		assignments["address"] = *update.Address
	}
	if update.HourlyRate != nil {
		assignments["hourly_rate"] = *update.HourlyRate
	}
	if update.WholeDayRate != nil {
		assignments["whole_day_rate"] = *update.WholeDayRate
	}
	if update.Closed != nil {
		if *update.Closed {
			assignments["availability_status"] = parking.SpaceClosed.String()
		} else {
			assignments["availability_status"] = gorm.Expr(reopenStatusExpr)
		}
	}
	result := store.db.WithContext(ctx).
		Model(&ParkingSpace{}).
		Where("space_id = ? AND record_state = ?", id.String(), parking.RecordActive.String()).
		Updates(assignments)
	if result.Error != nil {
		return wrapStoreError(errorSubjectSpace, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSpace, errorCodeUpdate, parking.ErrUnknownSpace)
	}
	return nil
}

// ClaimSpace decrements the available count by one if, and only if, the
// space is active, not closed, and has a unit left. One conditional
// statement; concurrent claimers can never drive the count negative.
func (store *Store) ClaimSpace(ctx context.Context, id parking.SpaceID, nowUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&ParkingSpace{}).
		Where("space_id = ? AND record_state = ? AND availability_status <> ? AND available_spaces > 0",
			id.String(), parking.RecordActive.String(), parking.SpaceClosed.String()).
		Updates(map[string]interface{}{
			"available_spaces":    gorm.Expr("available_spaces - 1"),
			"availability_status": gorm.Expr(claimStatusExpr),
			"updated_at":          time.Unix(nowUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSpace, errorCodeClaim, result.Error)
	}
	if result.RowsAffected == 0 {
		return store.diagnoseClaimFailure(ctx, id)
	}
	return nil
}

// diagnoseClaimFailure distinguishes why the conditional claim matched
// nothing. Purely informational; the claim itself already failed safely.
func (store *Store) diagnoseClaimFailure(ctx context.Context, id parking.SpaceID) error {
	var model ParkingSpace
	err := store.db.WithContext(ctx).
		Where("space_id = ? AND record_state = ?", id.String(), parking.RecordActive.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wrapStoreError(errorSubjectSpace, errorCodeClaim, parking.ErrUnknownSpace)
		}
		return wrapStoreError(errorSubjectSpace, errorCodeClaim, err)
	}
	if model.AvailabilityStatus == parking.SpaceClosed.String() {
		return wrapStoreError(errorSubjectSpace, errorCodeClaim, parking.ErrSpaceClosed)
	}
	return wrapStoreError(errorSubjectSpace, errorCodeClaim, parking.ErrCapacityExhausted)
}

// ReleaseSpace increments the available count by one, clamped at the
// total. A release that would exceed the total is a no-op, not an error.
func (store *Store) ReleaseSpace(ctx context.Context, id parking.SpaceID, nowUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&ParkingSpace{}).
		Where("space_id = ? AND record_state = ?", id.String(), parking.RecordActive.String()).
		Updates(map[string]interface{}{
			"available_spaces":    gorm.Expr(releaseAvailExpr),
			"availability_status": gorm.Expr(releaseStatusExpr),
			"updated_at":          time.Unix(nowUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSpace, errorCodeRelease, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSpace, errorCodeRelease, parking.ErrUnknownSpace)
	}
	return nil
}

// ResizeSpace sets the new total and shifts the available count by the
// signed delta, clamped to [0, newTotal], in one statement.
func (store *Store) ResizeSpace(ctx context.Context, id parking.SpaceID, newTotal int, nowUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&ParkingSpace{}).
		Where("space_id = ? AND record_state = ?", id.String(), parking.RecordActive.String()).
		Updates(map[string]interface{}{
			"total_spaces":        newTotal,
			"available_spaces":    gorm.Expr(resizeAvailExpr, newTotal, newTotal),
			"availability_status": gorm.Expr(resizeStatusExpr, newTotal, newTotal, newTotal, newTotal),
			"updated_at":          time.Unix(nowUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSpace, errorCodeResize, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSpace, errorCodeResize, parking.ErrUnknownSpace)
	}
	return nil
}

// MarkSpaceDeleted soft-deletes the space in one conditional statement.
// The NOT EXISTS guard makes the retire safe against a booking that
// commits after the caller's open-reservation check.
func (store *Store) MarkSpaceDeleted(ctx context.Context, id parking.SpaceID, nowUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&ParkingSpace{}).
		Where("space_id = ? AND record_state = ?", id.String(), parking.RecordActive.String()).
		Where("NOT EXISTS (SELECT 1 FROM reservations WHERE reservations.space_id = parking_spaces.space_id AND reservations.status IN ?)", openReservationStatuses()).
		Updates(map[string]interface{}{
			"record_state": parking.RecordDeleted.String(),
			"updated_at":   time.Unix(nowUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSpace, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return store.diagnoseRetireFailure(ctx, id)
	}
	return nil
}

// diagnoseRetireFailure distinguishes why the conditional soft-delete
// matched nothing.
func (store *Store) diagnoseRetireFailure(ctx context.Context, id parking.SpaceID) error {
	var model ParkingSpace
	err := store.db.WithContext(ctx).
		Where("space_id = ? AND record_state = ?", id.String(), parking.RecordActive.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wrapStoreError(errorSubjectSpace, errorCodeDelete, parking.ErrUnknownSpace)
		}
		return wrapStoreError(errorSubjectSpace, errorCodeDelete, err)
	}
	return wrapStoreError(errorSubjectSpace, errorCodeDelete, parking.ErrActiveReservationsExist)
}

func (store *Store) SearchSpaces(ctx context.Context, filter parking.SpaceFilter) (parking.SpacePage, error) {
	query := store.db.WithContext(ctx).
		Model(&ParkingSpace{}).
		Where("record_state = ?", parking.RecordActive.String())
	if filter.City != "" {
		query = query.Where("LOWER(city) LIKE ?", "%"+strings.ToLower(filter.City)+"%")
	}
	if filter.Establishment != "" {
		query = query.Where("LOWER(establishment) LIKE ?", "%"+strings.ToLower(filter.Establishment)+"%")
	}
	if filter.AvailableOnly {
		query = query.Where("availability_status = ? AND available_spaces > 0", parking.SpaceAvailable.String())
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return parking.SpacePage{}, wrapStoreError(errorSubjectSpace, errorCodeCount, err)
	}

	var rows []ParkingSpace
	err := query.
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit).
		Find(&rows).Error
	if err != nil {
		return parking.SpacePage{}, wrapStoreError(errorSubjectSpace, errorCodeList, err)
	}

	spaces := make([]parking.ParkingSpace, 0, len(rows))
	for _, row := range rows {
		space, err := mapSpace(row)
		if err != nil {
			return parking.SpacePage{}, wrapStoreError(errorSubjectSpace, errorCodeInvalid, err)
		}
		spaces = append(spaces, space)
	}
	pageCount := int((totalCount + int64(filter.Limit) - 1) / int64(filter.Limit))
	return parking.SpacePage{
		Spaces:     spaces,
		TotalCount: totalCount,
		Page:       filter.Page,
		Limit:      filter.Limit,
		PageCount:  pageCount,
	}, nil
}

func (store *Store) CountOpenReservations(ctx context.Context, id parking.SpaceID) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("space_id = ? AND status IN ?", id.String(), openReservationStatuses()).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) CreateVehicle(ctx context.Context, vehicle parking.Vehicle) (parking.Vehicle, error) {
	model := Vehicle{
		VehicleID: vehicle.ID.String(),
		OwnerID:   vehicle.OwnerID.String(),
		Plate:     vehicle.Plate,
		Model:     vehicle.Model,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if _, conflict := uniqueViolation(err); conflict {
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeDuplicate, parking.ErrDuplicatePlate)
	}
	if err != nil {
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeCreate, err)
	}
	created, err := mapVehicle(model)
	if err != nil {
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) GetVehicle(ctx context.Context, id parking.VehicleID) (parking.Vehicle, error) {
	var model Vehicle
	err := store.db.WithContext(ctx).Where("vehicle_id = ?", id.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeGet, parking.ErrUnknownVehicle)
		}
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeGet, err)
	}
	vehicle, err := mapVehicle(model)
	if err != nil {
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeInvalid, err)
	}
	return vehicle, nil
}

func (store *Store) CreateReservation(ctx context.Context, reservation parking.Reservation) (parking.Reservation, error) {
	model := Reservation{
		ReservationID:   reservation.ID.String(),
		UserID:          reservation.UserID.String(),
		SpaceID:         reservation.SpaceID.String(),
		VehicleID:       reservation.VehicleID.String(),
		StartTime:       time.Unix(reservation.StartUnixUTC, 0).UTC(),
		EndTime:         time.Unix(reservation.EndUnixUTC, 0).UTC(),
		ReservationType: reservation.Type.String(),
		HourlyRate:      reservation.HourlyRate,
		WholeDayRate:    reservation.WholeDayRate,
		Discount:        reservation.Discount,
		Tax:             reservation.Tax,
		TotalPrice:      reservation.TotalPrice,
		DiscountNote:    reservation.DiscountNote,
		Metadata:        datatypesJSON(reservation.Metadata.String()),
		Status:          reservation.Status.String(),
		CreatedAt:       timeOrNow(reservation.CreatedUnixUTC),
		UpdatedAt:       timeOrNow(reservation.UpdatedUnixUTC),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return parking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeCreate, err)
	}
	created, err := mapReservation(model)
	if err != nil {
		return parking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) GetReservation(ctx context.Context, id parking.ReservationID) (parking.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).Where("reservation_id = ?", id.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return parking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, parking.ErrUnknownReservation)
		}
		return parking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, err)
	}
	reservation, err := mapReservation(model)
	if err != nil {
		return parking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

func (store *Store) ListReservations(ctx context.Context, owner *parking.UserID, limit, offset int) ([]parking.Reservation, error) {
	query := store.db.WithContext(ctx).Model(&Reservation{})
	if owner != nil {
		query = query.Where("user_id = ?", owner.String())
	}
	var rows []Reservation
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	reservations := make([]parking.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

// UpdateReservationStatus advances the lifecycle only when the stored
// status still matches the expected one; a raced transition affects zero
// rows and is reported as an invalid state.
func (store *Store) UpdateReservationStatus(ctx context.Context, id parking.ReservationID, from, to parking.ReservationStatus, nowUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("reservation_id = ? AND status = ?", id.String(), from.String()).
		Updates(map[string]interface{}{
			"status":     to.String(),
			"updated_at": time.Unix(nowUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, parking.ErrInvalidState)
	}
	return nil
}

func (store *Store) DeleteReservationIfPending(ctx context.Context, id parking.ReservationID) error {
	result := store.db.WithContext(ctx).
		Where("reservation_id = ? AND status = ?", id.String(), parking.ReservationPending.String()).
		Delete(&Reservation{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeDelete, parking.ErrInvalidState)
	}
	return nil
}

func (store *Store) ActivateDueReservations(ctx context.Context, nowUnixUTC int64) (int64, error) {
	now := time.Unix(nowUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("status = ? AND start_time <= ?", parking.ReservationPaid.String(), now).
		Updates(map[string]interface{}{
			"status":     parking.ReservationActive.String(),
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeSweep, result.Error)
	}
	return result.RowsAffected, nil
}

func (store *Store) CompleteElapsedReservations(ctx context.Context, nowUnixUTC int64) (int64, error) {
	now := time.Unix(nowUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("status = ? AND end_time <= ?", parking.ReservationActive.String(), now).
		Updates(map[string]interface{}{
			"status":     parking.ReservationCompleted.String(),
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeSweep, result.Error)
	}
	return result.RowsAffected, nil
}

func (store *Store) ListStalePendingReservations(ctx context.Context, beforeUnixUTC int64, limit int) ([]parking.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", parking.ReservationPending.String(), time.Unix(beforeUnixUTC, 0).UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	reservations := make([]parking.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func (store *Store) CreatePayment(ctx context.Context, payment parking.Payment) (parking.Payment, error) {
	model := Payment{
		PaymentID:     payment.ID.String(),
		ReservationID: payment.ReservationID.String(),
		Method:        payment.Method.String(),
		Amount:        payment.Amount,
		Status:        payment.Status.String(),
		ReceiptNumber: payment.ReceiptNumber,
		CreatedAt:     timeOrNow(payment.CreatedUnixUTC),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if constraint, conflict := uniqueViolation(err); conflict {
		if constraint == constraintPaymentReceipt {
			return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeDuplicate, parking.ErrDuplicateReceipt)
		}
		return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeDuplicate, parking.ErrPaymentExists)
	}
	if err != nil {
		return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeCreate, err)
	}
	created, err := mapPayment(model)
	if err != nil {
		return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) GetPaymentByReservation(ctx context.Context, id parking.ReservationID) (parking.Payment, error) {
	var model Payment
	err := store.db.WithContext(ctx).Where("reservation_id = ?", id.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, parking.ErrUnknownPayment)
		}
		return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	payment, err := mapPayment(model)
	if err != nil {
		return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return payment, nil
}

func (store *Store) ListPayments(ctx context.Context, owner *parking.UserID, limit, offset int) ([]parking.Payment, error) {
	query := store.db.WithContext(ctx).Model(&Payment{})
	if owner != nil {
		query = query.
			Joins("JOIN reservations ON reservations.reservation_id = payments.reservation_id").
			Where("reservations.user_id = ?", owner.String())
	}
	var rows []Payment
	err := query.Order("payments.created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPayment, errorCodeList, err)
	}
	payments := make([]parking.Payment, 0, len(rows))
	for _, row := range rows {
		payment, err := mapPayment(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return parking.WrapError(errorOperationStore, subject, code, err)
}

func openReservationStatuses() []string {
	return []string{
		parking.ReservationPending.String(),
		parking.ReservationConfirmed.String(),
		parking.ReservationPaid.String(),
		parking.ReservationActive.String(),
	}
}

func mapSpace(row ParkingSpace) (parking.ParkingSpace, error) {
	spaceID, err := parking.NewSpaceID(row.SpaceID)
	if err != nil {
		return parking.ParkingSpace{}, err
	}
	status, err := parking.ParseAvailabilityStatus(row.AvailabilityStatus)
	if err != nil {
		return parking.ParkingSpace{}, err
	}
	recordState, err := parking.ParseRecordState(row.RecordState)
	if err != nil {
		return parking.ParkingSpace{}, err
	}
	return parking.ParkingSpace{
		ID:              spaceID,
		City:            row.City,
		Establishment:   row.Establishment,
		Address:         row.Address,
		TotalSpaces:     row.TotalSpaces,
		AvailableSpaces: row.AvailableSpaces,
		HourlyRate:      row.HourlyRate,
		WholeDayRate:    row.WholeDayRate,
		Status:          status,
		RecordState:     recordState,
		CreatedUnixUTC:  row.CreatedAt.Unix(),
		UpdatedUnixUTC:  row.UpdatedAt.Unix(),
	}, nil
}

func mapVehicle(row Vehicle) (parking.Vehicle, error) {
	vehicleID, err := parking.NewVehicleID(row.VehicleID)
	if err != nil {
		return parking.Vehicle{}, err
	}
	ownerID, err := parking.NewUserID(row.OwnerID)
	if err != nil {
		return parking.Vehicle{}, err
	}
	return parking.Vehicle{
		ID:      vehicleID,
		OwnerID: ownerID,
		Plate:   row.Plate,
		Model:   row.Model,
	}, nil
}

func mapReservation(row Reservation) (parking.Reservation, error) {
	reservationID, err := parking.NewReservationID(row.ReservationID)
	if err != nil {
		return parking.Reservation{}, err
	}
	userID, err := parking.NewUserID(row.UserID)
	if err != nil {
		return parking.Reservation{}, err
	}
	spaceID, err := parking.NewSpaceID(row.SpaceID)
	if err != nil {
		return parking.Reservation{}, err
	}
	vehicleID, err := parking.NewVehicleID(row.VehicleID)
	if err != nil {
		return parking.Reservation{}, err
	}
	reservationType, err := parking.ParseReservationType(row.ReservationType)
	if err != nil {
		return parking.Reservation{}, err
	}
	status, err := parking.ParseReservationStatus(row.Status)
	if err != nil {
		return parking.Reservation{}, err
	}
	metadata, err := parking.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return parking.Reservation{}, err
	}
	return parking.Reservation{
		ID:             reservationID,
		UserID:         userID,
		SpaceID:        spaceID,
		VehicleID:      vehicleID,
		StartUnixUTC:   row.StartTime.Unix(),
		EndUnixUTC:     row.EndTime.Unix(),
		Type:           reservationType,
		HourlyRate:     row.HourlyRate,
		WholeDayRate:   row.WholeDayRate,
		Discount:       row.Discount,
		Tax:            row.Tax,
		TotalPrice:     row.TotalPrice,
		DiscountNote:   row.DiscountNote,
		Metadata:       metadata,
		Status:         status,
		CreatedUnixUTC: row.CreatedAt.Unix(),
		UpdatedUnixUTC: row.UpdatedAt.Unix(),
	}, nil
}

func mapPayment(row Payment) (parking.Payment, error) {
	paymentID, err := parking.NewPaymentID(row.PaymentID)
	if err != nil {
		return parking.Payment{}, err
	}
	reservationID, err := parking.NewReservationID(row.ReservationID)
	if err != nil {
		return parking.Payment{}, err
	}
	method, err := parking.ParsePaymentMethod(row.Method)
	if err != nil {
		return parking.Payment{}, err
	}
	status, err := parking.ParsePaymentStatus(row.Status)
	if err != nil {
		return parking.Payment{}, err
	}
	return parking.Payment{
		ID:             paymentID,
		ReservationID:  reservationID,
		Method:         method,
		Amount:         row.Amount,
		Status:         status,
		ReceiptNumber:  row.ReceiptNumber,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func timeOrNow(unixUTC int64) time.Time {
	if unixUTC == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unixUTC, 0).UTC()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName, pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return "", sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return "", false
}
