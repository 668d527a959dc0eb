package gateway

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"unigate/core/events"
)

type capsRecord struct {
	MinTxUSD string
	MaxTxUSD string
}

type pausedRecord struct {
	Paused bool
}

// ParamStore persists the operator-tunable gateway parameters and emits an
// audit event for every mutation. Role separation between the admin and the
// pauser happens at the service authentication boundary; the store itself only
// validates values.
type ParamStore struct {
	store   Storage
	emitter events.Emitter
}

// NewParamStore constructs a parameter store over the provided storage adapter.
func NewParamStore(store Storage) *ParamStore {
	return &ParamStore{store: store, emitter: events.NoopEmitter{}}
}

// SetEmitter wires an event sink. A nil emitter restores the noop default.
func (ps *ParamStore) SetEmitter(emitter events.Emitter) {
	if ps == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	ps.emitter = emitter
}

// SetCapsUSD stores the inclusive per-transaction USD bounds. A minimum above
// the maximum is rejected outright.
func (ps *ParamStore) SetCapsUSD(minTx, maxTx *big.Int) error {
	if ps == nil {
		return fmt.Errorf("param store not initialised")
	}
	if minTx == nil || maxTx == nil || minTx.Sign() < 0 || maxTx.Sign() < 0 {
		return ErrInvalidAmount
	}
	if minTx.Cmp(maxTx) > 0 {
		return ErrInvalidCapRange
	}
	record := capsRecord{MinTxUSD: minTx.String(), MaxTxUSD: maxTx.String()}
	if err := ps.store.KVPut(capsConfigKey, record); err != nil {
		return err
	}
	ps.emitter.Emit(events.CapsUpdated{
		MinTxUSD: new(big.Int).Set(minTx),
		MaxTxUSD: new(big.Int).Set(maxTx),
	})
	return nil
}

// CapsUSD returns the stored per-transaction bounds, zero when unset.
func (ps *ParamStore) CapsUSD() (*big.Int, *big.Int, error) {
	if ps == nil {
		return nil, nil, fmt.Errorf("param store not initialised")
	}
	var record capsRecord
	ok, err := ps.store.KVGet(capsConfigKey, &record)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return big.NewInt(0), big.NewInt(0), nil
	}
	minTx, err := parseStoredAmount(record.MinTxUSD)
	if err != nil {
		return nil, nil, err
	}
	maxTx, err := parseStoredAmount(record.MaxTxUSD)
	if err != nil {
		return nil, nil, err
	}
	return minTx, maxTx, nil
}

// SetBlockUSDCap stores the per-slot cumulative USD budget. Zero disables the
// slot check.
func (ps *ParamStore) SetBlockUSDCap(value *big.Int) error {
	if ps == nil {
		return fmt.Errorf("param store not initialised")
	}
	if value == nil || value.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := ps.store.KVPut(blockCapConfigKey, amountRecord{Amount: value.String()}); err != nil {
		return err
	}
	ps.emitter.Emit(events.BlockCapUpdated{BlockUSDCap: new(big.Int).Set(value)})
	return nil
}

// BlockUSDCap returns the stored per-slot budget, zero when unset.
func (ps *ParamStore) BlockUSDCap() (*big.Int, error) {
	if ps == nil {
		return nil, fmt.Errorf("param store not initialised")
	}
	return loadAmount(ps.store, blockCapConfigKey)
}

// SetEpochDuration stores the rate-limit epoch length. Zero is rejected here
// as well as at evaluation time; the limiter must never silently run without
// a window.
func (ps *ParamStore) SetEpochDuration(seconds uint64) error {
	if ps == nil {
		return fmt.Errorf("param store not initialised")
	}
	if seconds == 0 {
		return ErrInvalidData
	}
	if err := ps.store.KVPut(epochDurationKey, epochRecord{Seconds: seconds}); err != nil {
		return err
	}
	ps.emitter.Emit(events.EpochDurationUpdated{EpochSeconds: seconds})
	return nil
}

// EpochDuration returns the stored epoch length in seconds, zero when unset.
func (ps *ParamStore) EpochDuration() (uint64, error) {
	if ps == nil {
		return 0, fmt.Errorf("param store not initialised")
	}
	var record epochRecord
	ok, err := ps.store.KVGet(epochDurationKey, &record)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return record.Seconds, nil
}

// SetTokenThresholds stores per-token epoch budgets from paired slices. The
// zero address keys the native asset's budget; a zero threshold withdraws
// support for the token. The whole batch is validated before any entry is
// written.
func (ps *ParamStore) SetTokenThresholds(tokens []common.Address, thresholds []*big.Int) error {
	if ps == nil {
		return fmt.Errorf("param store not initialised")
	}
	if len(tokens) == 0 || len(tokens) != len(thresholds) {
		return ErrInvalidInput
	}
	for i := range tokens {
		if thresholds[i] == nil || thresholds[i].Sign() < 0 {
			return ErrInvalidAmount
		}
	}
	for i, token := range tokens {
		record := amountRecord{Amount: thresholds[i].String()}
		if err := ps.store.KVPut(rateThresholdKey(token), record); err != nil {
			return err
		}
		ps.emitter.Emit(events.TokenLimitUpdated{
			Token:     token,
			Threshold: new(big.Int).Set(thresholds[i]),
		})
	}
	return nil
}

// TokenThreshold returns the stored epoch budget for the token, zero when the
// token is unsupported.
func (ps *ParamStore) TokenThreshold(token common.Address) (*big.Int, error) {
	if ps == nil {
		return nil, fmt.Errorf("param store not initialised")
	}
	return loadAmount(ps.store, rateThresholdKey(token))
}

// Pause switches admission off. Settlement and configuration stay available.
func (ps *ParamStore) Pause() error {
	if ps == nil {
		return fmt.Errorf("param store not initialised")
	}
	if err := ps.store.KVPut(pausedKey, pausedRecord{Paused: true}); err != nil {
		return err
	}
	ps.emitter.Emit(events.Paused{})
	return nil
}

// Unpause switches admission back on.
func (ps *ParamStore) Unpause() error {
	if ps == nil {
		return fmt.Errorf("param store not initialised")
	}
	if err := ps.store.KVPut(pausedKey, pausedRecord{Paused: false}); err != nil {
		return err
	}
	ps.emitter.Emit(events.Unpaused{})
	return nil
}

// Paused reports the admission switch state.
func (ps *ParamStore) Paused() (bool, error) {
	if ps == nil {
		return false, fmt.Errorf("param store not initialised")
	}
	var record pausedRecord
	ok, err := ps.store.KVGet(pausedKey, &record)
	if err != nil {
		return false, err
	}
	return ok && record.Paused, nil
}

// Config captures the bootstrap gateway parameters parsed from configuration.
// Amounts are decimal strings to keep 1e18-scaled values readable in TOML.
type Config struct {
	MinTxUSD           string        `toml:"MinTxUSD"`
	MaxTxUSD           string        `toml:"MaxTxUSD"`
	BlockUSDCap        string        `toml:"BlockUSDCap"`
	EpochSeconds       int64         `toml:"EpochSeconds"`
	MaxQuoteAgeSeconds int64         `toml:"MaxQuoteAgeSeconds"`
	Tokens             []TokenConfig `toml:"Tokens"`
}

// TokenConfig pairs a token address with its epoch budget.
type TokenConfig struct {
	Address   string `toml:"Address"`
	Threshold string `toml:"Threshold"`
}

// Parameters holds the runtime-ready interpretation of Config.
type Parameters struct {
	MinTxUSD     *big.Int
	MaxTxUSD     *big.Int
	BlockUSDCap  *big.Int
	EpochSeconds uint64
	MaxQuoteAge  time.Duration
	Thresholds   map[common.Address]*big.Int
}

// Normalise trims whitespace and clamps negative durations on a defensive copy.
func (c Config) Normalise() Config {
	cfg := Config{
		MinTxUSD:           strings.TrimSpace(c.MinTxUSD),
		MaxTxUSD:           strings.TrimSpace(c.MaxTxUSD),
		BlockUSDCap:        strings.TrimSpace(c.BlockUSDCap),
		EpochSeconds:       c.EpochSeconds,
		MaxQuoteAgeSeconds: c.MaxQuoteAgeSeconds,
	}
	if cfg.EpochSeconds < 0 {
		cfg.EpochSeconds = 0
	}
	if cfg.MaxQuoteAgeSeconds < 0 {
		cfg.MaxQuoteAgeSeconds = 0
	}
	for _, token := range c.Tokens {
		cfg.Tokens = append(cfg.Tokens, TokenConfig{
			Address:   strings.TrimSpace(token.Address),
			Threshold: strings.TrimSpace(token.Threshold),
		})
	}
	return cfg
}

// Parameters converts the textual configuration into runtime values.
func (c Config) Parameters() (Parameters, error) {
	normalized := c.Normalise()
	params := Parameters{Thresholds: make(map[common.Address]*big.Int)}
	var err error
	if params.MinTxUSD, err = parseAmount(normalized.MinTxUSD); err != nil {
		return params, fmt.Errorf("gateway: invalid MinTxUSD: %w", err)
	}
	if params.MaxTxUSD, err = parseAmount(normalized.MaxTxUSD); err != nil {
		return params, fmt.Errorf("gateway: invalid MaxTxUSD: %w", err)
	}
	if params.MinTxUSD.Cmp(params.MaxTxUSD) > 0 && params.MaxTxUSD.Sign() > 0 {
		return params, ErrInvalidCapRange
	}
	if params.BlockUSDCap, err = parseAmount(normalized.BlockUSDCap); err != nil {
		return params, fmt.Errorf("gateway: invalid BlockUSDCap: %w", err)
	}
	if normalized.EpochSeconds > 0 {
		params.EpochSeconds = uint64(normalized.EpochSeconds)
	}
	if normalized.MaxQuoteAgeSeconds > 0 {
		params.MaxQuoteAge = time.Duration(normalized.MaxQuoteAgeSeconds) * time.Second
	}
	for _, token := range normalized.Tokens {
		if !common.IsHexAddress(token.Address) {
			return params, fmt.Errorf("gateway: invalid token address %q", token.Address)
		}
		// The zero address is a valid entry: it budgets the native asset.
		addr := common.HexToAddress(token.Address)
		threshold, err := parseAmount(token.Threshold)
		if err != nil {
			return params, fmt.Errorf("gateway: invalid threshold for %s: %w", token.Address, err)
		}
		params.Thresholds[addr] = threshold
	}
	return params, nil
}

// Apply writes the bootstrap parameters through the store's validated setters.
// Zero-valued sections are skipped so a partial config never clobbers values
// set by a previous run.
func (ps *ParamStore) Apply(params Parameters) error {
	if ps == nil {
		return fmt.Errorf("param store not initialised")
	}
	if params.MinTxUSD != nil && params.MaxTxUSD != nil && params.MaxTxUSD.Sign() > 0 {
		if err := ps.SetCapsUSD(params.MinTxUSD, params.MaxTxUSD); err != nil {
			return err
		}
	}
	if params.BlockUSDCap != nil && params.BlockUSDCap.Sign() > 0 {
		if err := ps.SetBlockUSDCap(params.BlockUSDCap); err != nil {
			return err
		}
	}
	if params.EpochSeconds > 0 {
		if err := ps.SetEpochDuration(params.EpochSeconds); err != nil {
			return err
		}
	}
	if len(params.Thresholds) > 0 {
		tokens := make([]common.Address, 0, len(params.Thresholds))
		thresholds := make([]*big.Int, 0, len(params.Thresholds))
		for token, threshold := range params.Thresholds {
			tokens = append(tokens, token)
			thresholds = append(thresholds, threshold)
		}
		if err := ps.SetTokenThresholds(tokens, thresholds); err != nil {
			return err
		}
	}
	return nil
}

// parseAmount accepts decimal strings with optional underscores and scientific
// notation, rejecting negatives and fractional results.
func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	normalized := trimmed
	var exponent int64
	if idx := strings.IndexAny(normalized, "eE"); idx != -1 {
		expPart := strings.TrimSpace(normalized[idx+1:])
		if expPart == "" {
			return nil, fmt.Errorf("invalid scientific notation")
		}
		expValue, err := strconv.ParseInt(expPart, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid scientific notation")
		}
		exponent = expValue
		normalized = strings.TrimSpace(normalized[:idx])
	}
	normalized = strings.TrimPrefix(normalized, "+")
	if strings.HasPrefix(normalized, "-") {
		return nil, fmt.Errorf("amount must not be negative")
	}
	parts := strings.Split(normalized, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount format")
	}
	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}
	digits := integerPart + fractionalPart
	if digits == "" {
		return big.NewInt(0), nil
	}
	if !isDigits(digits) {
		return nil, fmt.Errorf("invalid amount format")
	}
	fracLen := len(fractionalPart)
	for fracLen > 0 && len(digits) > 0 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		fracLen--
	}
	digits = strings.TrimLeft(digits, "0")
	totalExponent := exponent - int64(fracLen)
	if totalExponent < 0 {
		return nil, fmt.Errorf("amount must be an integer")
	}
	if digits == "" {
		digits = "0"
	}
	if totalExponent > 0 {
		digits += strings.Repeat("0", int(totalExponent))
	}
	amount := new(big.Int)
	if _, ok := amount.SetString(digits, 10); !ok {
		return nil, fmt.Errorf("invalid amount value")
	}
	return amount, nil
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseStoredAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("gateway: corrupted amount record %q", value)
	}
	return amount, nil
}
