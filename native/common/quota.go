package common

import (
	"errors"
	"math/big"
)

var (
	ErrBudgetExceeded = errors.New("budget exceeded")
	ErrBudgetInvalid  = errors.New("budget amount invalid")
)

// AddWithinBudget returns used+add when the sum stays within the inclusive
// threshold. A sum exactly equal to the threshold succeeds; anything above it
// returns ErrBudgetExceeded with the stored usage untouched. Nil inputs are
// treated as zero except add, which must be non-negative.
func AddWithinBudget(threshold, used, add *big.Int) (*big.Int, error) {
	if add == nil || add.Sign() < 0 {
		return nil, ErrBudgetInvalid
	}
	if threshold == nil {
		threshold = big.NewInt(0)
	}
	if used == nil {
		used = big.NewInt(0)
	}
	next := new(big.Int).Add(used, add)
	if next.Cmp(threshold) > 0 {
		return nil, ErrBudgetExceeded
	}
	return next, nil
}

// Remaining reports the headroom left under the inclusive threshold. Usage
// above the threshold (possible after an admin lowered it mid-epoch) clamps to
// zero rather than going negative.
func Remaining(threshold, used *big.Int) *big.Int {
	if threshold == nil {
		threshold = big.NewInt(0)
	}
	if used == nil {
		used = big.NewInt(0)
	}
	remaining := new(big.Int).Sub(threshold, used)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}
