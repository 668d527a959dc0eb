package gateway

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

type mockStorage struct {
	kv    map[string][]byte
	lists map[string][][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{kv: make(map[string][]byte), lists: make(map[string][][]byte)}
}

func (m *mockStorage) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = encoded
	return nil
}

func (m *mockStorage) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockStorage) KVAppend(key []byte, value []byte) error {
	k := string(key)
	m.lists[k] = append(m.lists[k], append([]byte(nil), value...))
	return nil
}

func (m *mockStorage) KVGetList(key []byte, out *[][]byte) error {
	entries := m.lists[string(key)]
	copied := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		copied = append(copied, append([]byte(nil), entry...))
	}
	*out = copied
	return nil
}

// usd converts whole dollars into the 1e18-scaled representation.
func usd(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), nativeUnit)
}

// native converts whole native units into base units.
func native(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), nativeUnit)
}

func dollarQuote(at time.Time) PriceQuote {
	return PriceQuote{Price: new(big.Int).Set(nativeUnit), Decimals: nativeDecimals, UpdatedAt: at}
}

func newTestEnforcer(t *testing.T, quote PriceQuote, now time.Time) (*CapEnforcer, *mockStorage) {
	t.Helper()
	store := newMockStorage()
	enforcer := NewCapEnforcer(store, NewStaticOracle(quote))
	enforcer.SetClock(func() time.Time { return now })
	enforcer.SetSlotSource(func() uint64 { return 42 })
	return enforcer, store
}

func TestCapBoundsInclusive(t *testing.T) {
	now := time.Unix(1700000000, 0)
	enforcer, _ := newTestEnforcer(t, dollarQuote(now), now)
	cfg := CapConfig{MinTxUSD: usd(2), MaxTxUSD: usd(10)}

	if _, err := enforcer.Evaluate(native(1), cfg); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("below minimum should fail, got %v", err)
	}
	if _, err := enforcer.Evaluate(native(2), cfg); err != nil {
		t.Fatalf("exact minimum should pass: %v", err)
	}
	if _, err := enforcer.Evaluate(native(10), cfg); err != nil {
		t.Fatalf("exact maximum should pass: %v", err)
	}
	if _, err := enforcer.Evaluate(native(11), cfg); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("above maximum should fail, got %v", err)
	}
}

func TestCapZeroBoundsDisabled(t *testing.T) {
	now := time.Unix(1700000000, 0)
	enforcer, _ := newTestEnforcer(t, dollarQuote(now), now)

	if _, err := enforcer.Evaluate(native(1000000), CapConfig{}); err != nil {
		t.Fatalf("unbounded config should pass: %v", err)
	}
}

func TestBlockCapScenario(t *testing.T) {
	now := time.Unix(1700000000, 0)
	enforcer, _ := newTestEnforcer(t, dollarQuote(now), now)
	cfg := CapConfig{BlockUSDCap: usd(10)}

	first, err := enforcer.Evaluate(native(6), cfg)
	if err != nil {
		t.Fatalf("first admission: %v", err)
	}
	if err := enforcer.Commit(first); err != nil {
		t.Fatalf("commit first: %v", err)
	}

	if _, err := enforcer.Evaluate(native(5), cfg); !errors.Is(err, ErrBlockCapExceeded) {
		t.Fatalf("6+5 over a $10 cap should fail, got %v", err)
	}
	// The failed evaluation consumed nothing.
	if _, err := enforcer.Evaluate(native(5), cfg); !errors.Is(err, ErrBlockCapExceeded) {
		t.Fatalf("repeat failure should be identical, got %v", err)
	}

	third, err := enforcer.Evaluate(native(4), cfg)
	if err != nil {
		t.Fatalf("6+4 fills the cap exactly: %v", err)
	}
	if err := enforcer.Commit(third); err != nil {
		t.Fatalf("commit third: %v", err)
	}

	if _, err := enforcer.Evaluate(native(1), cfg); !errors.Is(err, ErrBlockCapExceeded) {
		t.Fatalf("cap is full, got %v", err)
	}
}

func TestBlockCapResetsPerSlot(t *testing.T) {
	now := time.Unix(1700000000, 0)
	enforcer, _ := newTestEnforcer(t, dollarQuote(now), now)
	cfg := CapConfig{BlockUSDCap: usd(10)}

	slot := uint64(42)
	enforcer.SetSlotSource(func() uint64 { return slot })

	first, err := enforcer.Evaluate(native(10), cfg)
	if err != nil {
		t.Fatalf("fill the slot: %v", err)
	}
	if err := enforcer.Commit(first); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := enforcer.Evaluate(native(1), cfg); !errors.Is(err, ErrBlockCapExceeded) {
		t.Fatalf("slot full, got %v", err)
	}

	slot = 43
	if _, err := enforcer.Evaluate(native(10), cfg); err != nil {
		t.Fatalf("new slot has a fresh budget: %v", err)
	}
}

func TestBlockCapDisabledByZero(t *testing.T) {
	now := time.Unix(1700000000, 0)
	enforcer, _ := newTestEnforcer(t, dollarQuote(now), now)

	reservation, err := enforcer.Evaluate(native(1000), CapConfig{BlockUSDCap: big.NewInt(0)})
	if err != nil {
		t.Fatalf("zero cap disables slot tracking: %v", err)
	}
	if err := enforcer.Commit(reservation); err != nil {
		t.Fatalf("commit of untracked reservation: %v", err)
	}
	if _, slotUsed, err := enforcer.SlotUsage(); err != nil || slotUsed.Sign() != 0 {
		t.Fatalf("expected untouched slot usage, got %s (%v)", slotUsed, err)
	}
}

func TestCapStalePriceRejected(t *testing.T) {
	now := time.Unix(1700000000, 0)
	quote := dollarQuote(now.Add(-2 * time.Hour))
	enforcer, _ := newTestEnforcer(t, quote, now)
	cfg := CapConfig{MinTxUSD: usd(1), MaxTxUSD: usd(10), MaxQuoteAge: time.Hour}

	if _, err := enforcer.Evaluate(native(2), cfg); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}
}

func TestCapInvalidPriceRejected(t *testing.T) {
	now := time.Unix(1700000000, 0)
	enforcer, _ := newTestEnforcer(t, PriceQuote{Price: big.NewInt(0), Decimals: nativeDecimals, UpdatedAt: now}, now)

	if _, err := enforcer.Evaluate(native(2), CapConfig{}); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
}

func TestUSDConversionRoundsDown(t *testing.T) {
	// A dust amount converts to less than the smallest representable USD
	// value; the conversion truncates instead of rounding up.
	quote := PriceQuote{Price: big.NewInt(1), Decimals: 18}
	value, err := usdValue(big.NewInt(3), quote)
	if err != nil {
		t.Fatalf("usdValue: %v", err)
	}
	if value.Sign() != 0 {
		t.Fatalf("expected truncation to zero, got %s", value)
	}
}
