package gateway

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"unigate/core/events"
	nativecommon "unigate/native/common"
)

// moduleName identifies the gateway in pause guards.
const moduleName = "gateway"

// AdmissionResult is the outcome of a successful admission: the classification
// plus the audit records emitted for it. A split execution-fee leg produces
// two records, the fee record first.
type AdmissionResult struct {
	Classification *ClassifiedTransaction
	Records        []*AuditRecord
	FeeUSD         *big.Int
}

// Engine is the admission facade. It owns classification, cap enforcement,
// rate limiting and the deposit side of fund movement, and guarantees that a
// rejected transaction leaves no counter, balance or event behind. Checks run
// fee leg first, then funds leg; commits happen only after both legs pass and
// the deposits succeed.
type Engine struct {
	mu          sync.Mutex
	params      *ParamStore
	caps        *CapEnforcer
	limiter     *RateLimiter
	mover       FundMover
	emitter     events.Emitter
	maxQuoteAge time.Duration
}

// NewEngine constructs the facade and its sub-engines over shared storage.
func NewEngine(store Storage, oracle PriceOracle, mover FundMover) *Engine {
	return &Engine{
		params:  NewParamStore(store),
		caps:    NewCapEnforcer(store, oracle),
		limiter: NewRateLimiter(store),
		mover:   mover,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter wires an event sink into the facade and the parameter store. A
// nil emitter restores the noop default.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
	e.params.SetEmitter(emitter)
}

// SetClock overrides the time source of every sub-engine.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.caps.SetClock(clock)
	e.limiter.SetClock(clock)
}

// SetSlotSource overrides the block-slot binding of the cap enforcer.
func (e *Engine) SetSlotSource(slot func() uint64) {
	if e == nil {
		return
	}
	e.caps.SetSlotSource(slot)
}

// SetMaxQuoteAge bounds oracle quote staleness for cap checks and top-ups.
// Zero disables the staleness guard.
func (e *Engine) SetMaxQuoteAge(age time.Duration) {
	if e == nil || age < 0 {
		return
	}
	e.maxQuoteAge = age
}

// Params exposes the operator parameter surface.
func (e *Engine) Params() *ParamStore {
	if e == nil {
		return nil
	}
	return e.params
}

// Limiter exposes the read side of the rate limiter.
func (e *Engine) Limiter() *RateLimiter {
	if e == nil {
		return nil
	}
	return e.limiter
}

// Caps exposes the read side of the cap enforcer.
func (e *Engine) Caps() *CapEnforcer {
	if e == nil {
		return nil
	}
	return e.caps
}

// IsPaused implements nativecommon.PauseView over the stored switch. Storage
// errors read as paused; admission must fail closed.
func (e *Engine) IsPaused(module string) bool {
	if e == nil || module != moduleName {
		return false
	}
	paused, err := e.params.Paused()
	if err != nil {
		return true
	}
	return paused
}

// SendUniversalTx admits one cross-chain transaction: classify, enforce the
// execution-fee caps, enforce the funds rate limit, move value into custody,
// then commit the consumed budgets and emit audit records. Any failure before
// the commits leaves all counters and balances untouched.
func (e *Engine) SendUniversalTx(req *TransactionRequest) (*AdmissionResult, error) {
	if e == nil {
		return nil, fmt.Errorf("gateway engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := nativecommon.Guard(e, moduleName); err != nil {
		return nil, ErrPaused
	}

	cls, err := Classify(req)
	if err != nil {
		return nil, err
	}

	feeLeg := cls.FeeAmount != nil && cls.FeeAmount.Sign() > 0

	var capRes *CapReservation
	feeUSD := big.NewInt(0)
	if feeLeg {
		cfg, err := e.capConfig()
		if err != nil {
			return nil, err
		}
		capRes, err = e.caps.Evaluate(cls.FeeAmount, cfg)
		if err != nil {
			return nil, err
		}
		feeUSD = capRes.USDValue()
	}

	var rateRes *RateReservation
	if cls.HasFundsLeg() {
		rateRes, err = e.limiter.Evaluate(cls.Token, cls.FundsAmount)
		if err != nil {
			return nil, err
		}
	}

	if feeLeg {
		if err := e.mover.Deposit(NativeToken, req.Sender, cls.FeeAmount); err != nil {
			return nil, err
		}
	}
	if cls.HasFundsLeg() {
		if err := e.mover.Deposit(cls.Token, req.Sender, cls.FundsAmount); err != nil {
			// The fee leg is already in custody; hand it back so the rejected
			// transaction leaves no balance behind.
			if feeLeg {
				if refundErr := e.mover.Release(NativeToken, req.Sender, cls.FeeAmount); refundErr != nil {
					return nil, fmt.Errorf("funds deposit: %w (fee refund failed: %v)", err, refundErr)
				}
			}
			return nil, err
		}
	}

	if err := e.caps.Commit(capRes); err != nil {
		return nil, err
	}
	if err := e.limiter.Commit(rateRes); err != nil {
		return nil, err
	}

	records := buildAuditRecords(req, cls)
	for _, record := range records {
		e.emitter.Emit(events.UniversalTx{
			Sender:          record.Sender,
			Recipient:       record.Recipient,
			Token:           record.Token,
			Amount:          new(big.Int).Set(record.Amount),
			Payload:         append([]byte{}, record.Payload...),
			RevertRecipient: record.Revert.FundRecipient,
			RevertContext:   append([]byte{}, record.Revert.RevertContext...),
			TxType:          string(record.Type),
			SignatureData:   append([]byte{}, record.SignatureData...),
		})
	}

	return &AdmissionResult{Classification: cls, Records: records, FeeUSD: feeUSD}, nil
}

// AddFunds is the legacy native top-up route. It requires a positive amount
// and a fresh oracle quote, bypasses cap and rate enforcement, and reports the
// USD equivalent at the quote's precision.
func (e *Engine) AddFunds(sender common.Address, amount *big.Int, txHash common.Hash) (*big.Int, error) {
	if e == nil {
		return nil, fmt.Errorf("gateway engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := nativecommon.Guard(e, moduleName); err != nil {
		return nil, ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	quote, err := e.caps.freshQuote(e.maxQuoteAge)
	if err != nil {
		return nil, err
	}
	usd, err := usdValue(amount, quote)
	if err != nil {
		return nil, err
	}
	if err := e.mover.Deposit(NativeToken, sender, amount); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.FundsAdded{
		Sender:        sender,
		Amount:        new(big.Int).Set(amount),
		USDValue:      new(big.Int).Set(usd),
		PriceDecimals: quote.Decimals,
		TxHash:        txHash,
	})
	return usd, nil
}

// Price returns the oracle quote together with a staleness verdict under the
// configured bound. Operator tooling only; admission re-reads the oracle.
func (e *Engine) Price() (PriceQuote, bool, error) {
	if e == nil {
		return PriceQuote{}, false, fmt.Errorf("gateway engine not initialised")
	}
	quote, err := e.caps.freshQuote(0)
	if err != nil {
		return PriceQuote{}, false, err
	}
	stale := false
	if e.maxQuoteAge > 0 {
		now := e.caps.clock().UTC()
		stale = quote.UpdatedAt.IsZero() || now.Sub(quote.UpdatedAt) > e.maxQuoteAge
	}
	return quote, stale, nil
}

func (e *Engine) capConfig() (CapConfig, error) {
	minTx, maxTx, err := e.params.CapsUSD()
	if err != nil {
		return CapConfig{}, err
	}
	blockCap, err := e.params.BlockUSDCap()
	if err != nil {
		return CapConfig{}, err
	}
	return CapConfig{
		MinTxUSD:    minTx,
		MaxTxUSD:    maxTx,
		BlockUSDCap: blockCap,
		MaxQuoteAge: e.maxQuoteAge,
	}, nil
}

// buildAuditRecords derives the per-leg audit records. A funds-bearing
// transaction with a non-zero fee leg splits into a native fee record with no
// payload followed by the funds record carrying the payload.
func buildAuditRecords(req *TransactionRequest, cls *ClassifiedTransaction) []*AuditRecord {
	split := cls.HasFundsLeg() && cls.FeeAmount != nil && cls.FeeAmount.Sign() > 0
	records := make([]*AuditRecord, 0, 2)
	if split {
		records = append(records, &AuditRecord{
			Sender:        req.Sender,
			Recipient:     common.Address{},
			Token:         NativeToken,
			Amount:        new(big.Int).Set(cls.FeeAmount),
			Revert:        RevertInstructions{FundRecipient: req.Revert.FundRecipient, RevertContext: append([]byte{}, req.Revert.RevertContext...)},
			Type:          TxTypeFee,
			SignatureData: append([]byte{}, req.SignatureData...),
		})
	}
	primary := &AuditRecord{
		Sender:        req.Sender,
		Recipient:     req.Recipient,
		Token:         cls.Token,
		Payload:       append([]byte{}, req.Payload...),
		Revert:        RevertInstructions{FundRecipient: req.Revert.FundRecipient, RevertContext: append([]byte{}, req.Revert.RevertContext...)},
		Type:          cls.Type,
		SignatureData: append([]byte{}, req.SignatureData...),
	}
	if cls.HasFundsLeg() {
		primary.Amount = new(big.Int).Set(cls.FundsAmount)
	} else {
		primary.Amount = new(big.Int).Set(cls.FeeAmount)
	}
	return append(records, primary)
}
