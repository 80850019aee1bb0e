package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ParkingSpace mirrors the parking_spaces table. The availability_status
// column is recomputed inside every capacity-mutating statement so it
// never drifts from the counters.
type ParkingSpace struct {
	SpaceID            string    `gorm:"type:uuid;primaryKey"`
	City               string    `gorm:"not null;index"`
	Establishment      string    `gorm:"not null;index"`
	Address            string    `gorm:""`
	TotalSpaces        int       `gorm:"not null"`
	AvailableSpaces    int       `gorm:"not null"`
	HourlyRate         float64   `gorm:"not null"`
	WholeDayRate       float64   `gorm:"not null"`
	AvailabilityStatus string    `gorm:"not null;index"`
	RecordState        string    `gorm:"not null;index"`
	CreatedAt          time.Time `gorm:"not null;index"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (ParkingSpace) TableName() string { return "parking_spaces" }

func (space *ParkingSpace) BeforeCreate(tx *gorm.DB) error {
	if space.SpaceID == "" {
		space.SpaceID = uuid.NewString()
	}
	return nil
}

// Vehicle mirrors the vehicles table.
type Vehicle struct {
	VehicleID string    `gorm:"type:uuid;primaryKey"`
	OwnerID   string    `gorm:"not null;index"`
	Plate     string    `gorm:"not null;uniqueIndex:uniq_vehicles_plate"`
	Model     string    `gorm:""`
	CreatedAt time.Time `gorm:"not null"`
}

func (Vehicle) TableName() string { return "vehicles" }

func (vehicle *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if vehicle.VehicleID == "" {
		vehicle.VehicleID = uuid.NewString()
	}
	return nil
}

// Reservation mirrors the reservations table. Rates are snapshotted at
// creation and immune to later space rate changes.
type Reservation struct {
	ReservationID   string         `gorm:"type:uuid;primaryKey"`
	UserID          string         `gorm:"not null;index"`
	SpaceID         string         `gorm:"type:uuid;not null;index:idx_reservations_space_status,priority:1"`
	VehicleID       string         `gorm:"type:uuid;not null"`
	StartTime       time.Time      `gorm:"not null;index"`
	EndTime         time.Time      `gorm:"not null;index"`
	ReservationType string         `gorm:"not null"`
	HourlyRate      float64        `gorm:"not null"`
	WholeDayRate    float64        `gorm:"not null"`
	Discount        float64        `gorm:"not null"`
	Tax             float64        `gorm:"not null"`
	TotalPrice      float64        `gorm:"not null"`
	DiscountNote    string         `gorm:""`
	Metadata        datatypes.JSON `gorm:"type:jsonb;not null"`
	Status          string         `gorm:"not null;index:idx_reservations_space_status,priority:2"`
	CreatedAt       time.Time      `gorm:"not null;index"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

func (reservation *Reservation) BeforeCreate(tx *gorm.DB) error {
	if reservation.ReservationID == "" {
		reservation.ReservationID = uuid.NewString()
	}
	return nil
}

// Payment mirrors the payments table. The unique reservation index
// enforces the one-payment-per-reservation cardinality.
type Payment struct {
	PaymentID     string    `gorm:"type:uuid;primaryKey"`
	ReservationID string    `gorm:"type:uuid;not null;uniqueIndex:uniq_payments_reservation"`
	Method        string    `gorm:"not null"`
	Amount        float64   `gorm:"not null"`
	Status        string    `gorm:"not null"`
	ReceiptNumber string    `gorm:"not null;uniqueIndex:uniq_payments_receipt"`
	CreatedAt     time.Time `gorm:"not null;index"`
}

func (Payment) TableName() string { return "payments" }

func (payment *Payment) BeforeCreate(tx *gorm.DB) error {
	if payment.PaymentID == "" {
		payment.PaymentID = uuid.NewString()
	}
	return nil
}

// Migrate creates or updates the schema for every table the store owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ParkingSpace{}, &Vehicle{}, &Reservation{}, &Payment{})
}
