package gateway

import (
	"math/big"
	"sync"
	"time"
)

// PriceQuote captures the native asset's USD price as reported by an oracle.
// Price is an integer scaled by 10^Decimals; UpdatedAt is the oracle-reported
// observation time used for the staleness guard.
type PriceQuote struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Decimals: q.Decimals, UpdatedAt: q.UpdatedAt}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// PriceOracle resolves the current native-asset USD quote. Implementations are
// external collaborators; the core only reads from them.
type PriceOracle interface {
	NativePrice() (PriceQuote, error)
}

// StaticOracle serves an operator-set quote. It backs deterministic tests and
// fixed-price development deployments.
type StaticOracle struct {
	mu    sync.RWMutex
	quote PriceQuote
}

// NewStaticOracle constructs an oracle pre-loaded with the supplied quote.
func NewStaticOracle(quote PriceQuote) *StaticOracle {
	return &StaticOracle{quote: quote.Clone()}
}

// SetQuote replaces the served quote.
func (o *StaticOracle) SetQuote(quote PriceQuote) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.quote = quote.Clone()
	o.mu.Unlock()
}

// NativePrice implements PriceOracle.
func (o *StaticOracle) NativePrice() (PriceQuote, error) {
	if o == nil {
		return PriceQuote{}, ErrInvalidPrice
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.quote.Price == nil || o.quote.Price.Sign() <= 0 {
		return PriceQuote{}, ErrInvalidPrice
	}
	return o.quote.Clone(), nil
}

// nativeDecimals is the base-unit precision of the native asset and of the
// 1e18-scaled USD fixed point used by the cap checks.
const nativeDecimals = 18

var nativeUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(nativeDecimals), nil)

// usdValue converts a native base-unit amount to a 1e18-scaled USD value at
// the quote's precision, rounding down. Rounding never favours the caller on
// a cap check.
func usdValue(amount *big.Int, quote PriceQuote) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(quote.Decimals)), nil)
	usd := new(big.Int).Mul(amount, quote.Price)
	return usd.Quo(usd, scale), nil
}
