package priceref

import "errors"

var (
	errZeroPrice = errors.New("priceref: upstream returned zero price")

	// ErrStalePrice is returned by Validate when the reference deviates from
	// the pool median by more than the configured safety ratio.
	ErrStalePrice = errors.New("priceref: reference price outlier vs pool median")
)

// Validate rejects a reference price that differs from the median pool
// spot price by more than safetyRatio (e.g. 0.05 for 5%).
func Validate(reference, poolMedian, safetyRatio float64) error {
	if poolMedian == 0 {
		return nil
	}
	deviation := (reference - poolMedian) / poolMedian
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > safetyRatio {
		return ErrStalePrice
	}
	return nil
}
