package gateway

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "unigate/native/common"
)

// epochRecord is the stored form of the epoch duration parameter.
type epochRecord struct {
	Seconds uint64
}

// RateReservation is the pending outcome of a successful rate-limit
// evaluation, applied by Commit after the rest of the admission succeeds.
type RateReservation struct {
	token     common.Address
	epochID   uint64
	usedAfter *big.Int
	tracked   bool
}

// TokenUsage reports a token's consumption inside the current epoch.
type TokenUsage struct {
	Token     common.Address
	EpochID   uint64
	Threshold *big.Int
	Used      *big.Int
	Remaining *big.Int
}

// Copy returns a deep copy to shield callers from accidental mutation.
func (u *TokenUsage) Copy() *TokenUsage {
	if u == nil {
		return nil
	}
	clone := &TokenUsage{Token: u.Token, EpochID: u.EpochID}
	if u.Threshold != nil {
		clone.Threshold = new(big.Int).Set(u.Threshold)
	}
	if u.Used != nil {
		clone.Used = new(big.Int).Set(u.Used)
	}
	if u.Remaining != nil {
		clone.Remaining = new(big.Int).Set(u.Remaining)
	}
	return clone
}

// RateLimiter enforces per-token funds budgets over fixed wall-clock epochs.
// Buckets are keyed by (token, epochId), so rolling into a new epoch starts
// from a fresh zero bucket without touching prior ones.
type RateLimiter struct {
	store Storage
	clock func() time.Time
}

// NewRateLimiter constructs a limiter backed by the provided storage adapter.
func NewRateLimiter(store Storage) *RateLimiter {
	return &RateLimiter{store: store, clock: time.Now}
}

// SetClock overrides the time source, enabling deterministic unit tests.
func (rl *RateLimiter) SetClock(clock func() time.Time) {
	if rl == nil || clock == nil {
		return
	}
	rl.clock = clock
}

// Evaluate checks whether admitting amount for token stays within the current
// epoch's budget. A token without a configured threshold is unsupported; a
// missing or zero epoch duration is a configuration fault and blocks the
// operation outright.
func (rl *RateLimiter) Evaluate(token common.Address, amount *big.Int) (*RateReservation, error) {
	if rl == nil {
		return nil, fmt.Errorf("rate limiter not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	threshold, err := rl.threshold(token)
	if err != nil {
		return nil, err
	}
	epochID, err := rl.currentEpoch()
	if err != nil {
		return nil, err
	}
	used, err := loadAmount(rl.store, rateBucketKey(token, epochID))
	if err != nil {
		return nil, err
	}
	usedAfter, err := nativecommon.AddWithinBudget(threshold, used, amount)
	if err != nil {
		if errors.Is(err, nativecommon.ErrBudgetExceeded) {
			return nil, ErrRateLimitExceeded
		}
		return nil, err
	}
	return &RateReservation{token: token, epochID: epochID, usedAfter: usedAfter, tracked: true}, nil
}

// Commit records a previously evaluated reservation against its epoch bucket.
func (rl *RateLimiter) Commit(reservation *RateReservation) error {
	if rl == nil {
		return fmt.Errorf("rate limiter not initialised")
	}
	if reservation == nil || !reservation.tracked {
		return nil
	}
	record := amountRecord{Amount: reservation.usedAfter.String()}
	return rl.store.KVPut(rateBucketKey(reservation.token, reservation.epochID), record)
}

// Usage retrieves the current epoch counters for the provided token without
// consuming budget.
func (rl *RateLimiter) Usage(token common.Address) (*TokenUsage, error) {
	if rl == nil {
		return nil, fmt.Errorf("rate limiter not initialised")
	}
	threshold, err := rl.threshold(token)
	if err != nil {
		return nil, err
	}
	epochID, err := rl.currentEpoch()
	if err != nil {
		return nil, err
	}
	used, err := loadAmount(rl.store, rateBucketKey(token, epochID))
	if err != nil {
		return nil, err
	}
	return &TokenUsage{
		Token:     token,
		EpochID:   epochID,
		Threshold: threshold,
		Used:      used,
		Remaining: nativecommon.Remaining(threshold, used),
	}, nil
}

func (rl *RateLimiter) threshold(token common.Address) (*big.Int, error) {
	threshold, err := loadAmount(rl.store, rateThresholdKey(token))
	if err != nil {
		return nil, err
	}
	if threshold.Sign() == 0 {
		return nil, ErrNotSupported
	}
	return threshold, nil
}

func (rl *RateLimiter) currentEpoch() (uint64, error) {
	var record epochRecord
	ok, err := rl.store.KVGet(epochDurationKey, &record)
	if err != nil {
		return 0, err
	}
	if !ok || record.Seconds == 0 {
		return 0, ErrInvalidData
	}
	return uint64(rl.clock().UTC().Unix()) / record.Seconds, nil
}
