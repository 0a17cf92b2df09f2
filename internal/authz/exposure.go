package authz

import (
	"math/bits"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// Delta sums the constituent parts of a value-moving action. Overflow of the
// sum fails before any comparison with the cap.
func Delta(parts ...uint64) (uint64, error) {
	var total uint64
	for _, p := range parts {
		sum, carry := bits.Add64(total, p, 0)
		if carry != 0 {
			return 0, domain.ErrOverflow
		}
		total = sum
	}
	return total, nil
}

// Accumulate returns the spend after admitting parts against the cap.
// Spend only ever grows; value returned to the owner is not netted.
func Accumulate(spend, exposureCap uint64, parts ...uint64) (uint64, error) {
	delta, err := Delta(parts...)
	if err != nil {
		return 0, err
	}
	next, carry := bits.Add64(spend, delta, 0)
	if carry != 0 {
		return 0, domain.ErrOverflow
	}
	if next > exposureCap {
		return 0, domain.ErrExposureLimitExceeded
	}
	return next, nil
}
