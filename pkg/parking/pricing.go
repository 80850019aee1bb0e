package parking

import (
	"fmt"
	"math"
)

// ComputeQuote prices a booking deterministically: billed hours are the
// ceiling of the requested window, whole-day bookings bill ceil(hours/24)
// days, the 10% tax applies to the discounted base, and currency rounding
// happens once, at the total.
func ComputeQuote(reservationType ReservationType, startUnixUTC, endUnixUTC int64, hourlyRate, wholeDayRate, discountPercent float64) (Quote, error) {
	if endUnixUTC <= startUnixUTC {
		return Quote{}, fmt.Errorf("%w: end time must be after start time", ErrInvalidPricingInput)
	}
	if hourlyRate <= 0 || wholeDayRate <= 0 {
		return Quote{}, fmt.Errorf("%w: rates must be positive", ErrInvalidPricingInput)
	}
	if discountPercent < 0 || discountPercent > 100 {
		return Quote{}, fmt.Errorf("%w: discount percent must be within [0,100]", ErrInvalidPricingInput)
	}

	durationHours := ceilDiv(endUnixUTC-startUnixUTC, secondsPerHour)

	var base float64
	var days int64
	switch reservationType {
	case ReservationHourly:
		base = float64(durationHours) * hourlyRate
	case ReservationWholeDay:
		days = ceilDiv(durationHours, hoursPerDay)
		base = float64(days) * wholeDayRate
	default:
		return Quote{}, fmt.Errorf("%w: %q", ErrInvalidReservationType, reservationType)
	}

	discountAmount := base * discountPercent / 100
	tax := (base - discountAmount) * taxRate
	total := roundToCents(base - discountAmount + tax)

	return Quote{
		DurationHours:  int(durationHours),
		Days:           int(days),
		Base:           base,
		DiscountAmount: discountAmount,
		Tax:            tax,
		Total:          total,
	}, nil
}

func ceilDiv(numerator, denominator int64) int64 {
	return (numerator + denominator - 1) / denominator
}

func roundToCents(value float64) float64 {
	return math.Round(value*100) / 100
}
