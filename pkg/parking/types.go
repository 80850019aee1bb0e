package parking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SpaceID identifies a parking space.
type SpaceID struct {
	value string
}

// ReservationID identifies a reservation.
type ReservationID struct {
	value string
}

// PaymentID identifies a payment record.
type PaymentID struct {
	value string
}

// VehicleID identifies a registered vehicle.
type VehicleID struct {
	value string
}

// UserID identifies the owner of a vehicle or reservation.
type UserID struct {
	value string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewSpaceID validates and normalizes a space id.
func NewSpaceID(raw string) (SpaceID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SpaceID{}, fmt.Errorf("%w: empty value", ErrInvalidSpaceID)
	}
	return SpaceID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id SpaceID) String() string {
	return id.value
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReservationID{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	return ReservationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// NewPaymentID validates and normalizes a payment id.
func NewPaymentID(raw string) (PaymentID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PaymentID{}, fmt.Errorf("%w: empty value", ErrInvalidPaymentID)
	}
	return PaymentID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PaymentID) String() string {
	return id.value
}

// NewVehicleID validates and normalizes a vehicle id.
func NewVehicleID(raw string) (VehicleID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return VehicleID{}, fmt.Errorf("%w: empty value", ErrInvalidVehicleID)
	}
	return VehicleID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id VehicleID) String() string {
	return id.value
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// AvailabilityStatus describes how bookable a space currently is.
type AvailabilityStatus string

const (
	SpaceAvailable AvailabilityStatus = "available"
	SpaceLimited   AvailabilityStatus = "limited"
	SpaceFull      AvailabilityStatus = "full"
	SpaceClosed    AvailabilityStatus = "closed"
)

// ParseAvailabilityStatus validates a raw availability status.
func ParseAvailabilityStatus(raw string) (AvailabilityStatus, error) {
	switch AvailabilityStatus(raw) {
	case SpaceAvailable, SpaceLimited, SpaceFull, SpaceClosed:
		return AvailabilityStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAvailabilityStatus, raw)
}

// String returns the stored representation.
func (status AvailabilityStatus) String() string {
	return string(status)
}

// RecordState is the explicit soft-delete lifecycle tag on a space.
type RecordState string

const (
	RecordActive  RecordState = "active"
	RecordDeleted RecordState = "deleted"
)

// ParseRecordState validates a raw record state.
func ParseRecordState(raw string) (RecordState, error) {
	switch RecordState(raw) {
	case RecordActive, RecordDeleted:
		return RecordState(raw), nil
	}
	return "", fmt.Errorf("%w: unknown record state %q", ErrInvalidSpaceInput, raw)
}

// String returns the stored representation.
func (state RecordState) String() string {
	return string(state)
}

// ReservationStatus defines the reservation lifecycle.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationPaid      ReservationStatus = "paid"
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// ParseReservationStatus validates a raw reservation status.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	switch ReservationStatus(raw) {
	case ReservationPending, ReservationConfirmed, ReservationPaid,
		ReservationActive, ReservationCompleted, ReservationCancelled:
		return ReservationStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReservationStatus, raw)
}

// String returns the stored representation.
func (status ReservationStatus) String() string {
	return string(status)
}

// IsTerminal reports whether no further transition is legal.
func (status ReservationStatus) IsTerminal() bool {
	return status == ReservationCompleted || status == ReservationCancelled
}

// Cancellable reports whether the reservation may still be cancelled.
func (status ReservationStatus) Cancellable() bool {
	switch status {
	case ReservationPending, ReservationConfirmed, ReservationPaid, ReservationActive:
		return true
	}
	return false
}

// ReservationType selects the applicable rate.
type ReservationType string

const (
	ReservationHourly   ReservationType = "hourly"
	ReservationWholeDay ReservationType = "whole_day"
)

// ParseReservationType validates a raw reservation type.
func ParseReservationType(raw string) (ReservationType, error) {
	switch ReservationType(raw) {
	case ReservationHourly, ReservationWholeDay:
		return ReservationType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReservationType, raw)
}

// String returns the stored representation.
func (reservationType ReservationType) String() string {
	return string(reservationType)
}

// PaymentMethod is the closed set of accepted settlement channels.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentEWallet PaymentMethod = "e_wallet"
)

// ParsePaymentMethod validates a raw payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(raw) {
	case PaymentCash, PaymentCard, PaymentEWallet:
		return PaymentMethod(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, raw)
}

// String returns the stored representation.
func (method PaymentMethod) String() string {
	return string(method)
}

// PaymentStatus defines the payment lifecycle.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// ParsePaymentStatus validates a raw payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch PaymentStatus(raw) {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return PaymentStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, raw)
}

// String returns the stored representation.
func (status PaymentStatus) String() string {
	return string(status)
}

// Role is the closed set of caller capabilities.
type Role string

const (
	RoleDriver        Role = "driver"
	RoleEstablishment Role = "establishment"
	RoleAdmin         Role = "admin"
)

// ParseRole validates a raw role.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleDriver, RoleEstablishment, RoleAdmin:
		return Role(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// String returns the stored representation.
func (role Role) String() string {
	return string(role)
}

// CanManageSpaces reports whether the role may create, mutate, or retire spaces.
func (role Role) CanManageSpaces() bool {
	return role == RoleEstablishment || role == RoleAdmin
}

// CanConfirmReservations reports whether the role may confirm pending bookings.
func (role Role) CanConfirmReservations() bool {
	return role == RoleEstablishment || role == RoleAdmin
}

// CanActOnAnyRecord reports whether ownership checks are bypassed.
func (role Role) CanActOnAnyRecord() bool {
	return role == RoleAdmin
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID UserID
	Role   Role
}

// ParkingSpace is the capacity-bearing record owned by an establishment.
type ParkingSpace struct {
	ID              SpaceID
	City            string
	Establishment   string
	Address         string
	TotalSpaces     int
	AvailableSpaces int
	HourlyRate      float64
	WholeDayRate    float64
	Status          AvailabilityStatus
	RecordState     RecordState
	CreatedUnixUTC  int64
	UpdatedUnixUTC  int64
}

// Vehicle is a driver-owned vehicle referenced by reservations.
type Vehicle struct {
	ID      VehicleID
	OwnerID UserID
	Plate   string
	Model   string
}

// Reservation is one claimed capacity unit with its priced lifecycle record.
type Reservation struct {
	ID             ReservationID
	UserID         UserID
	SpaceID        SpaceID
	VehicleID      VehicleID
	StartUnixUTC   int64
	EndUnixUTC     int64
	Type           ReservationType
	HourlyRate     float64
	WholeDayRate   float64
	Discount       float64
	Tax            float64
	TotalPrice     float64
	DiscountNote   string
	Metadata       MetadataJSON
	Status         ReservationStatus
	CreatedUnixUTC int64
	UpdatedUnixUTC int64
}

// Payment settles exactly one reservation.
type Payment struct {
	ID             PaymentID
	ReservationID  ReservationID
	Method         PaymentMethod
	Amount         float64
	Status         PaymentStatus
	ReceiptNumber  string
	CreatedUnixUTC int64
}

// Quote is the deterministic price breakdown for a booking request.
type Quote struct {
	DurationHours  int
	Days           int
	Base           float64
	DiscountAmount float64
	Tax            float64
	Total          float64
}

// SpaceInput carries the fields an establishment sets when creating a space.
type SpaceInput struct {
	City          string
	Establishment string
	Address       string
	TotalSpaces   int
	HourlyRate    float64
	WholeDayRate  float64
}

// Validate rejects malformed space inputs before the ledger is touched.
func (input SpaceInput) Validate() error {
	if strings.TrimSpace(input.City) == "" {
		return fmt.Errorf("%w: city is required", ErrInvalidSpaceInput)
	}
	if strings.TrimSpace(input.Establishment) == "" {
		return fmt.Errorf("%w: establishment is required", ErrInvalidSpaceInput)
	}
	if input.TotalSpaces <= 0 {
		return fmt.Errorf("%w: total spaces must be positive", ErrInvalidSpaceInput)
	}
	if input.HourlyRate <= 0 || input.WholeDayRate <= 0 {
		return fmt.Errorf("%w: rates must be positive", ErrInvalidSpaceInput)
	}
	return nil
}

// SpaceUpdate carries the operator-mutable fields; nil fields stay untouched.
type SpaceUpdate struct {
	City          *string
	Establishment *string
	Address       *string
	HourlyRate    *float64
	WholeDayRate  *float64
	Closed        *bool
}

// Validate rejects malformed space updates.
func (update SpaceUpdate) Validate() error {
	if update.HourlyRate != nil && *update.HourlyRate <= 0 {
		return fmt.Errorf("%w: hourly rate must be positive", ErrInvalidSpaceInput)
	}
	if update.WholeDayRate != nil && *update.WholeDayRate <= 0 {
		return fmt.Errorf("%w: whole day rate must be positive", ErrInvalidSpaceInput)
	}
	if update.City != nil && strings.TrimSpace(*update.City) == "" {
		return fmt.Errorf("%w: city cannot be blank", ErrInvalidSpaceInput)
	}
	if update.Establishment != nil && strings.TrimSpace(*update.Establishment) == "" {
		return fmt.Errorf("%w: establishment cannot be blank", ErrInvalidSpaceInput)
	}
	return nil
}

// IsEmpty reports whether the update changes nothing.
func (update SpaceUpdate) IsEmpty() bool {
	return update.City == nil && update.Establishment == nil && update.Address == nil &&
		update.HourlyRate == nil && update.WholeDayRate == nil && update.Closed == nil
}

// BookingInput carries a driver's booking request.
type BookingInput struct {
	SpaceID         SpaceID
	VehicleID       VehicleID
	StartUnixUTC    int64
	EndUnixUTC      int64
	Type            ReservationType
	DiscountPercent float64
	DiscountNote    string
	Metadata        MetadataJSON
}

// Validate rejects malformed booking requests.
func (input BookingInput) Validate() error {
	if input.SpaceID == (SpaceID{}) {
		return fmt.Errorf("%w: space id is required", ErrInvalidBookingInput)
	}
	if input.VehicleID == (VehicleID{}) {
		return fmt.Errorf("%w: vehicle id is required", ErrInvalidBookingInput)
	}
	if input.EndUnixUTC <= input.StartUnixUTC {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidBookingInput)
	}
	if _, err := ParseReservationType(input.Type.String()); err != nil {
		return err
	}
	if input.DiscountPercent < 0 || input.DiscountPercent > 100 {
		return fmt.Errorf("%w: discount percent must be within [0,100]", ErrInvalidBookingInput)
	}
	return nil
}

// SpaceFilter narrows an availability search.
type SpaceFilter struct {
	City          string
	Establishment string
	AvailableOnly bool
	Page          int
	Limit         int
}

// SpacePage is one page of an availability search plus pagination metadata.
type SpacePage struct {
	Spaces     []ParkingSpace
	TotalCount int64
	Page       int
	Limit      int
	PageCount  int
}

// Store is the persistence contract used by Service. All capacity
// mutations must be conditional single-statement updates.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateSpace(ctx context.Context, space ParkingSpace) (ParkingSpace, error)
	GetSpace(ctx context.Context, id SpaceID) (ParkingSpace, error)
	UpdateSpace(ctx context.Context, id SpaceID, update SpaceUpdate, nowUnixUTC int64) error
	ClaimSpace(ctx context.Context, id SpaceID, nowUnixUTC int64) error
	ReleaseSpace(ctx context.Context, id SpaceID, nowUnixUTC int64) error
	ResizeSpace(ctx context.Context, id SpaceID, newTotal int, nowUnixUTC int64) error
	MarkSpaceDeleted(ctx context.Context, id SpaceID, nowUnixUTC int64) error
	SearchSpaces(ctx context.Context, filter SpaceFilter) (SpacePage, error)
	CountOpenReservations(ctx context.Context, id SpaceID) (int64, error)

	CreateVehicle(ctx context.Context, vehicle Vehicle) (Vehicle, error)
	GetVehicle(ctx context.Context, id VehicleID) (Vehicle, error)

	CreateReservation(ctx context.Context, reservation Reservation) (Reservation, error)
	GetReservation(ctx context.Context, id ReservationID) (Reservation, error)
	ListReservations(ctx context.Context, owner *UserID, limit, offset int) ([]Reservation, error)
	UpdateReservationStatus(ctx context.Context, id ReservationID, from, to ReservationStatus, nowUnixUTC int64) error
	DeleteReservationIfPending(ctx context.Context, id ReservationID) error
	ActivateDueReservations(ctx context.Context, nowUnixUTC int64) (int64, error)
	CompleteElapsedReservations(ctx context.Context, nowUnixUTC int64) (int64, error)
	ListStalePendingReservations(ctx context.Context, beforeUnixUTC int64, limit int) ([]Reservation, error)

	CreatePayment(ctx context.Context, payment Payment) (Payment, error)
	GetPaymentByReservation(ctx context.Context, id ReservationID) (Payment, error)
	ListPayments(ctx context.Context, owner *UserID, limit, offset int) ([]Payment, error)
}
