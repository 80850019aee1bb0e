package parking

// DeriveAvailabilityStatus computes the display status from the counters.
// An explicit Closed override always wins; otherwise a space with no
// remaining units is Full and a space at or below 20% remaining is
// Limited. The store replicates this derivation inside every capacity
// mutation so the stored column never drifts from the counts.
func DeriveAvailabilityStatus(totalSpaces, availableSpaces int, closed bool) AvailabilityStatus {
	if closed {
		return SpaceClosed
	}
	if availableSpaces <= 0 {
		return SpaceFull
	}
	if availableSpaces*limitedStatusNumerator <= totalSpaces {
		return SpaceLimited
	}
	return SpaceAvailable
}
