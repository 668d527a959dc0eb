package gateway

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"unigate/native/common"
)

// CapConfig carries the USD admission bounds. MinTxUSD and MaxTxUSD bound a
// single execution-fee leg inclusively; BlockUSDCap bounds the cumulative USD
// admitted in one slot, with zero disabling the slot check. All values are
// 1e18-scaled USD.
type CapConfig struct {
	MinTxUSD    *big.Int
	MaxTxUSD    *big.Int
	BlockUSDCap *big.Int
	MaxQuoteAge time.Duration
}

// Copy returns a deep copy of the configuration.
func (c CapConfig) Copy() CapConfig {
	clone := CapConfig{MaxQuoteAge: c.MaxQuoteAge}
	if c.MinTxUSD != nil {
		clone.MinTxUSD = new(big.Int).Set(c.MinTxUSD)
	}
	if c.MaxTxUSD != nil {
		clone.MaxTxUSD = new(big.Int).Set(c.MaxTxUSD)
	}
	if c.BlockUSDCap != nil {
		clone.BlockUSDCap = new(big.Int).Set(c.BlockUSDCap)
	}
	return clone
}

// CapReservation is the pending outcome of a successful cap evaluation. It is
// applied by Commit only after every other admission check and the fund
// movement succeed, so a rejected transaction never consumes slot budget.
type CapReservation struct {
	slot      uint64
	usd       *big.Int
	usedAfter *big.Int
	tracked   bool
}

// USDValue returns the evaluated leg's USD value.
func (r *CapReservation) USDValue() *big.Int {
	if r == nil || r.usd == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(r.usd)
}

// CapEnforcer converts execution-fee legs to USD through the oracle and
// enforces the per-transaction and per-slot bounds against storage-backed slot
// buckets.
type CapEnforcer struct {
	store  Storage
	oracle PriceOracle
	clock  func() time.Time
	slot   func() uint64
}

// NewCapEnforcer constructs an enforcer over the provided storage and oracle.
// The slot source defaults to unix seconds; block-native deployments override
// it with the real block number.
func NewCapEnforcer(store Storage, oracle PriceOracle) *CapEnforcer {
	enforcer := &CapEnforcer{store: store, oracle: oracle, clock: time.Now}
	enforcer.slot = func() uint64 { return uint64(enforcer.clock().Unix()) }
	return enforcer
}

// SetClock overrides the time source, enabling deterministic unit tests.
func (ce *CapEnforcer) SetClock(clock func() time.Time) {
	if ce == nil || clock == nil {
		return
	}
	ce.clock = clock
}

// SetSlotSource overrides the slot binding.
func (ce *CapEnforcer) SetSlotSource(slot func() uint64) {
	if ce == nil || slot == nil {
		return
	}
	ce.slot = slot
}

// Evaluate converts the amount to USD at the current quote and checks it
// against the configured bounds without recording anything. The returned
// reservation must be handed back to Commit once the surrounding transaction
// is otherwise fully admitted.
func (ce *CapEnforcer) Evaluate(amount *big.Int, cfg CapConfig) (*CapReservation, error) {
	if ce == nil {
		return nil, fmt.Errorf("cap enforcer not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	quote, err := ce.freshQuote(cfg.MaxQuoteAge)
	if err != nil {
		return nil, err
	}
	usd, err := usdValue(amount, quote)
	if err != nil {
		return nil, err
	}
	if cfg.MinTxUSD != nil && cfg.MinTxUSD.Sign() > 0 && usd.Cmp(cfg.MinTxUSD) < 0 {
		return nil, ErrInvalidAmount
	}
	if cfg.MaxTxUSD != nil && cfg.MaxTxUSD.Sign() > 0 && usd.Cmp(cfg.MaxTxUSD) > 0 {
		return nil, ErrInvalidAmount
	}
	reservation := &CapReservation{usd: usd}
	if cfg.BlockUSDCap == nil || cfg.BlockUSDCap.Sign() == 0 {
		return reservation, nil
	}
	slot := ce.slot()
	used, err := loadAmount(ce.store, blockCapKey(slot))
	if err != nil {
		return nil, err
	}
	usedAfter, err := common.AddWithinBudget(cfg.BlockUSDCap, used, usd)
	if err != nil {
		if errors.Is(err, common.ErrBudgetExceeded) {
			return nil, ErrBlockCapExceeded
		}
		return nil, err
	}
	reservation.slot = slot
	reservation.usedAfter = usedAfter
	reservation.tracked = true
	return reservation, nil
}

// Commit records a previously evaluated reservation against its slot bucket.
func (ce *CapEnforcer) Commit(reservation *CapReservation) error {
	if ce == nil {
		return fmt.Errorf("cap enforcer not initialised")
	}
	if reservation == nil || !reservation.tracked {
		return nil
	}
	record := amountRecord{Amount: reservation.usedAfter.String()}
	return ce.store.KVPut(blockCapKey(reservation.slot), record)
}

// SlotUsage reports the cumulative USD admitted in the current slot.
func (ce *CapEnforcer) SlotUsage() (uint64, *big.Int, error) {
	if ce == nil {
		return 0, nil, fmt.Errorf("cap enforcer not initialised")
	}
	slot := ce.slot()
	used, err := loadAmount(ce.store, blockCapKey(slot))
	if err != nil {
		return 0, nil, err
	}
	return slot, used, nil
}

func (ce *CapEnforcer) freshQuote(maxAge time.Duration) (PriceQuote, error) {
	if ce.oracle == nil {
		return PriceQuote{}, ErrInvalidPrice
	}
	quote, err := ce.oracle.NativePrice()
	if err != nil {
		return PriceQuote{}, err
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return PriceQuote{}, ErrInvalidPrice
	}
	if maxAge > 0 {
		now := ce.clock().UTC()
		if quote.UpdatedAt.IsZero() || now.Sub(quote.UpdatedAt) > maxAge {
			return PriceQuote{}, ErrStalePrice
		}
	}
	return quote, nil
}

// amountRecord is the stored form of an accumulated big integer counter.
type amountRecord struct {
	Amount string
}

func loadAmount(store Storage, key []byte) (*big.Int, error) {
	var record amountRecord
	ok, err := store.KVGet(key, &record)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(record.Amount) == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(record.Amount), 10)
	if !ok {
		return nil, fmt.Errorf("gateway: corrupted counter record %q", record.Amount)
	}
	return value, nil
}
