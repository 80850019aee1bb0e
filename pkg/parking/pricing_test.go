package parking

import (
	"errors"
	"math"
	"testing"
)

func TestComputeQuoteHourly(test *testing.T) {
	test.Parallel()
	start := int64(0)
	end := int64(4 * secondsPerHour)

	quote, err := ComputeQuote(ReservationHourly, start, end, 50, 400, 0)
	if err != nil {
		test.Fatalf("quote: %v", err)
	}
	if quote.DurationHours != 4 {
		test.Fatalf("expected 4 billed hours, got %d", quote.DurationHours)
	}
	if quote.Base != 200 {
		test.Fatalf("expected base 200, got %v", quote.Base)
	}
	if quote.Tax != 20 {
		test.Fatalf("expected tax 20, got %v", quote.Tax)
	}
	if quote.Total != 220 {
		test.Fatalf("expected total 220, got %v", quote.Total)
	}
}

func TestComputeQuoteRoundsPartialHoursUp(test *testing.T) {
	test.Parallel()
	quote, err := ComputeQuote(ReservationHourly, 0, secondsPerHour+1, 50, 400, 0)
	if err != nil {
		test.Fatalf("quote: %v", err)
	}
	if quote.DurationHours != 2 {
		test.Fatalf("expected partial hour billed as 2, got %d", quote.DurationHours)
	}
}

func TestComputeQuoteWholeDayBillsCeilingDays(test *testing.T) {
	test.Parallel()
	quote, err := ComputeQuote(ReservationWholeDay, 0, 30*secondsPerHour, 50, 400, 0)
	if err != nil {
		test.Fatalf("quote: %v", err)
	}
	if quote.Days != 2 {
		test.Fatalf("expected 30 hours billed as 2 days, got %d", quote.Days)
	}
	if quote.Base != 800 {
		test.Fatalf("expected base 800, got %v", quote.Base)
	}
	if quote.Total != 880 {
		test.Fatalf("expected total 880, got %v", quote.Total)
	}
}

func TestComputeQuoteAppliesDiscountBeforeTax(test *testing.T) {
	test.Parallel()
	quote, err := ComputeQuote(ReservationHourly, 0, 4*secondsPerHour, 50, 400, 10)
	if err != nil {
		test.Fatalf("quote: %v", err)
	}
	if quote.DiscountAmount != 20 {
		test.Fatalf("expected discount 20, got %v", quote.DiscountAmount)
	}
	if quote.Tax != 18 {
		test.Fatalf("expected tax on discounted base 18, got %v", quote.Tax)
	}
	if quote.Total != 198 {
		test.Fatalf("expected total 198, got %v", quote.Total)
	}
}

func TestComputeQuoteRoundsOnceAtTotal(test *testing.T) {
	test.Parallel()
	quote, err := ComputeQuote(ReservationHourly, 0, secondsPerHour, 33.335, 400, 0)
	if err != nil {
		test.Fatalf("quote: %v", err)
	}
	expected := math.Round(33.335*1.10*100) / 100
	if quote.Total != expected {
		test.Fatalf("expected total %v, got %v", expected, quote.Total)
	}
}

func TestComputeQuoteRejectsInvalidInput(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name            string
		reservationType ReservationType
		start, end      int64
		hourly, daily   float64
		discount        float64
	}{
		{"inverted window", ReservationHourly, 100, 100, 50, 400, 0},
		{"zero hourly rate", ReservationHourly, 0, secondsPerHour, 0, 400, 0},
		{"negative discount", ReservationHourly, 0, secondsPerHour, 50, 400, -1},
		{"discount above full", ReservationHourly, 0, secondsPerHour, 50, 400, 101},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := ComputeQuote(testCase.reservationType, testCase.start, testCase.end, testCase.hourly, testCase.daily, testCase.discount)
			if !errors.Is(err, ErrInvalidPricingInput) {
				test.Fatalf("expected ErrInvalidPricingInput, got %v", err)
			}
		})
	}
}

func TestComputeQuoteRejectsUnknownType(test *testing.T) {
	test.Parallel()
	_, err := ComputeQuote(ReservationType("weekly"), 0, secondsPerHour, 50, 400, 0)
	if !errors.Is(err, ErrInvalidReservationType) {
		test.Fatalf("expected ErrInvalidReservationType, got %v", err)
	}
}
