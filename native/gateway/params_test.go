package gateway

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestSetCapsUSDValidatesRange(t *testing.T) {
	params := NewParamStore(newMockStorage())

	if err := params.SetCapsUSD(usd(10), usd(5)); !errors.Is(err, ErrInvalidCapRange) {
		t.Fatalf("min above max, got %v", err)
	}
	if err := params.SetCapsUSD(nil, usd(5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil minimum, got %v", err)
	}
	if err := params.SetCapsUSD(usd(1), usd(5)); err != nil {
		t.Fatalf("valid range: %v", err)
	}

	minTx, maxTx, err := params.CapsUSD()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if minTx.Cmp(usd(1)) != 0 || maxTx.Cmp(usd(5)) != 0 {
		t.Fatalf("unexpected bounds: min=%s max=%s", minTx, maxTx)
	}
}

func TestSetTokenThresholdsValidation(t *testing.T) {
	params := NewParamStore(newMockStorage())

	err := params.SetTokenThresholds([]common.Address{testToken}, []*big.Int{big.NewInt(1), big.NewInt(2)})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("length mismatch, got %v", err)
	}
	err = params.SetTokenThresholds([]common.Address{testToken}, []*big.Int{big.NewInt(-1)})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative threshold, got %v", err)
	}

	// The zero address keys the native asset's own budget.
	if err := params.SetTokenThresholds([]common.Address{NativeToken}, []*big.Int{big.NewInt(7)}); err != nil {
		t.Fatalf("native threshold: %v", err)
	}
	threshold, err := params.TokenThreshold(NativeToken)
	if err != nil || threshold.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("native threshold read back: %s (%v)", threshold, err)
	}

	// Zero threshold is valid and withdraws support.
	if err := params.SetTokenThresholds([]common.Address{testToken}, []*big.Int{big.NewInt(0)}); err != nil {
		t.Fatalf("zero threshold: %v", err)
	}
	threshold, err = params.TokenThreshold(testToken)
	if err != nil || threshold.Sign() != 0 {
		t.Fatalf("expected zero threshold, got %s (%v)", threshold, err)
	}
}

func TestSetEpochDurationRejectsZero(t *testing.T) {
	params := NewParamStore(newMockStorage())

	if err := params.SetEpochDuration(0); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("zero epoch, got %v", err)
	}
	if err := params.SetEpochDuration(21600); err != nil {
		t.Fatalf("valid epoch: %v", err)
	}
	seconds, err := params.EpochDuration()
	if err != nil || seconds != 21600 {
		t.Fatalf("read back: %d (%v)", seconds, err)
	}
}

func TestPauseRoundTrip(t *testing.T) {
	params := NewParamStore(newMockStorage())

	paused, err := params.Paused()
	if err != nil || paused {
		t.Fatalf("fresh store must be unpaused: %v (%v)", paused, err)
	}
	if err := params.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused, _ = params.Paused(); !paused {
		t.Fatalf("pause did not stick")
	}
	if err := params.Unpause(); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if paused, _ = params.Paused(); paused {
		t.Fatalf("unpause did not stick")
	}
}

func TestConfigParameters(t *testing.T) {
	cfg := Config{
		MinTxUSD:           "1e18",
		MaxTxUSD:           "1_000e18",
		BlockUSDCap:        "10000e18",
		EpochSeconds:       21600,
		MaxQuoteAgeSeconds: 300,
		Tokens: []TokenConfig{
			{Address: testToken.Hex(), Threshold: "100e18"},
		},
	}
	params, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	if params.MinTxUSD.Cmp(usd(1)) != 0 || params.MaxTxUSD.Cmp(usd(1000)) != 0 {
		t.Fatalf("unexpected bounds: min=%s max=%s", params.MinTxUSD, params.MaxTxUSD)
	}
	if params.EpochSeconds != 21600 || params.MaxQuoteAge != 5*time.Minute {
		t.Fatalf("unexpected timing: epoch=%d age=%s", params.EpochSeconds, params.MaxQuoteAge)
	}
	if threshold := params.Thresholds[testToken]; threshold == nil || threshold.Cmp(native(100)) != 0 {
		t.Fatalf("unexpected threshold: %v", threshold)
	}
}

func TestConfigParametersRejectsBadValues(t *testing.T) {
	if _, err := (Config{MinTxUSD: "-5"}).Parameters(); err == nil {
		t.Fatalf("negative amount accepted")
	}
	if _, err := (Config{MinTxUSD: "10", MaxTxUSD: "5"}).Parameters(); !errors.Is(err, ErrInvalidCapRange) {
		t.Fatalf("inverted range, got %v", err)
	}
	if _, err := (Config{Tokens: []TokenConfig{{Address: "nonsense", Threshold: "1"}}}).Parameters(); err == nil {
		t.Fatalf("bad address accepted")
	}
}

func TestConfigParametersAcceptsNativeSentinel(t *testing.T) {
	cfg := Config{Tokens: []TokenConfig{{Address: NativeToken.Hex(), Threshold: "5e18"}}}
	params, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	if threshold := params.Thresholds[NativeToken]; threshold == nil || threshold.Cmp(native(5)) != 0 {
		t.Fatalf("unexpected native threshold: %v", threshold)
	}
}

func TestApplyBootstrapsStore(t *testing.T) {
	store := newMockStorage()
	params := NewParamStore(store)
	cfg := Config{
		MinTxUSD:     "1e18",
		MaxTxUSD:     "100e18",
		BlockUSDCap:  "500e18",
		EpochSeconds: 3600,
		Tokens:       []TokenConfig{{Address: testToken.Hex(), Threshold: "50e18"}},
	}
	parsed, err := cfg.Parameters()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	if err := params.Apply(parsed); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if seconds, _ := params.EpochDuration(); seconds != 3600 {
		t.Fatalf("epoch not applied: %d", seconds)
	}
	if blockCap, _ := params.BlockUSDCap(); blockCap.Cmp(usd(500)) != 0 {
		t.Fatalf("block cap not applied: %s", blockCap)
	}
	if threshold, _ := params.TokenThreshold(testToken); threshold.Cmp(native(50)) != 0 {
		t.Fatalf("threshold not applied: %s", threshold)
	}
}
