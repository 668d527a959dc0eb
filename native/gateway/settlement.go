package gateway

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"unigate/core/events"
)

// SettlementRequest identifies a bridged transaction being credited or
// refunded by the custodian. TxID is the 32-byte cross-chain identifier that
// keys the at-most-once guarantee; Revert names where funds go should the
// settlement itself have to be unwound downstream.
type SettlementRequest struct {
	TxID      common.Hash
	Token     common.Address
	Recipient common.Address
	Amount    *big.Int
	Payload   []byte
	Revert    RevertInstructions
}

// Copy returns a deep copy of the request.
func (r *SettlementRequest) Copy() *SettlementRequest {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	clone.Payload = append([]byte{}, r.Payload...)
	clone.Revert.RevertContext = append([]byte{}, r.Revert.RevertContext...)
	return &clone
}

// SettlementRecord is the durable outcome of a settlement. Records are never
// removed, so a txID can settle exactly once for the lifetime of the store.
type SettlementRecord struct {
	TxID      common.Hash
	Token     common.Address
	Recipient common.Address
	Amount    *big.Int
	Executed  bool
	SettledAt time.Time
}

// Copy returns a deep copy of the record.
func (r *SettlementRecord) Copy() *SettlementRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	return &clone
}

type storedSettlement struct {
	TxID      []byte
	Token     []byte
	Recipient []byte
	Amount    string
	Executed  bool
	SettledAt uint64
}

// SettlementLedger applies custodian settlements at most once per txID. Calls
// are serialised by an internal mutex; the replay check, fund release and
// record write happen under the same critical section so a txID can never
// settle twice, and a failed release leaves no record behind.
type SettlementLedger struct {
	mu      sync.Mutex
	store   Storage
	mover   FundMover
	emitter events.Emitter
	clock   func() time.Time
}

// NewSettlementLedger constructs a ledger over the provided storage and fund
// mover.
func NewSettlementLedger(store Storage, mover FundMover) *SettlementLedger {
	return &SettlementLedger{store: store, mover: mover, emitter: events.NoopEmitter{}, clock: time.Now}
}

// SetEmitter wires an event sink. A nil emitter restores the noop default.
func (sl *SettlementLedger) SetEmitter(emitter events.Emitter) {
	if sl == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	sl.emitter = emitter
}

// SetClock overrides the time source, enabling deterministic unit tests.
func (sl *SettlementLedger) SetClock(clock func() time.Time) {
	if sl == nil || clock == nil {
		return
	}
	sl.clock = clock
}

// SettleFunds releases the bridged funds to the recipient without an
// execution leg.
func (sl *SettlementLedger) SettleFunds(req SettlementRequest) (*SettlementRecord, error) {
	return sl.settle(req, false)
}

// SettleAndExecute releases the bridged funds and records the payload for
// downstream execution. The at-most-once guarantee is identical to
// SettleFunds.
func (sl *SettlementLedger) SettleAndExecute(req SettlementRequest) (*SettlementRecord, error) {
	return sl.settle(req, true)
}

func (sl *SettlementLedger) settle(req SettlementRequest, execute bool) (*SettlementRecord, error) {
	if sl == nil {
		return nil, fmt.Errorf("settlement ledger not initialised")
	}
	if req.TxID == (common.Hash{}) {
		return nil, ErrInvalidData
	}
	if req.Recipient == (common.Address{}) {
		return nil, ErrInvalidRecipient
	}
	if req.Revert.FundRecipient == (common.Address{}) {
		return nil, ErrInvalidRecipient
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if execute && len(req.Payload) == 0 {
		return nil, ErrInvalidData
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	settled, err := sl.isSettled(req.TxID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, ErrPayloadExecuted
	}
	if err := sl.mover.Release(req.Token, req.Recipient, req.Amount); err != nil {
		return nil, err
	}
	now := sl.clock().UTC()
	stored := storedSettlement{
		TxID:      append([]byte{}, req.TxID[:]...),
		Token:     append([]byte{}, req.Token[:]...),
		Recipient: append([]byte{}, req.Recipient[:]...),
		Amount:    req.Amount.String(),
		Executed:  execute,
		SettledAt: uint64(now.Unix()),
	}
	if err := sl.store.KVPut(settledRecordKey(req.TxID), stored); err != nil {
		// The funds already left custody but the replay slot is not consumed,
		// so a retry would pay again. Put them back before surfacing the error.
		if restoreErr := sl.mover.Deposit(req.Token, req.Recipient, req.Amount); restoreErr != nil {
			return nil, fmt.Errorf("record settlement: %w (custody restore failed: %v)", err, restoreErr)
		}
		return nil, err
	}
	if err := sl.store.KVAppend(settledIndexKey, req.TxID[:]); err != nil {
		return nil, err
	}

	op := "settle_funds"
	if execute {
		op = "settle_and_execute"
	}
	sl.emitter.Emit(events.Settled{
		TxID:            req.TxID,
		Recipient:       req.Recipient,
		Token:           req.Token,
		Amount:          new(big.Int).Set(req.Amount),
		Payload:         append([]byte{}, req.Payload...),
		RevertRecipient: req.Revert.FundRecipient,
		RevertContext:   append([]byte{}, req.Revert.RevertContext...),
		Op:              op,
	})

	return &SettlementRecord{
		TxID:      req.TxID,
		Token:     req.Token,
		Recipient: req.Recipient,
		Amount:    new(big.Int).Set(req.Amount),
		Executed:  execute,
		SettledAt: now,
	}, nil
}

// Settled reports whether the txID has already been applied.
func (sl *SettlementLedger) Settled(txID common.Hash) (bool, error) {
	if sl == nil {
		return false, fmt.Errorf("settlement ledger not initialised")
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.isSettled(txID)
}

// Record retrieves the stored settlement outcome for the txID, if any.
func (sl *SettlementLedger) Record(txID common.Hash) (*SettlementRecord, bool, error) {
	if sl == nil {
		return nil, false, fmt.Errorf("settlement ledger not initialised")
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	var stored storedSettlement
	ok, err := sl.store.KVGet(settledRecordKey(txID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	amount, ok := new(big.Int).SetString(stored.Amount, 10)
	if !ok {
		return nil, false, fmt.Errorf("gateway: corrupted settlement record for %s", txID.Hex())
	}
	record := &SettlementRecord{
		TxID:      txID,
		Token:     common.BytesToAddress(stored.Token),
		Recipient: common.BytesToAddress(stored.Recipient),
		Amount:    amount,
		Executed:  stored.Executed,
		SettledAt: time.Unix(int64(stored.SettledAt), 0).UTC(),
	}
	return record, true, nil
}

// SettledIDs lists every settled txID in application order.
func (sl *SettlementLedger) SettledIDs() ([]common.Hash, error) {
	if sl == nil {
		return nil, fmt.Errorf("settlement ledger not initialised")
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	var raw [][]byte
	if err := sl.store.KVGetList(settledIndexKey, &raw); err != nil {
		return nil, err
	}
	ids := make([]common.Hash, 0, len(raw))
	for _, entry := range raw {
		ids = append(ids, common.BytesToHash(entry))
	}
	return ids, nil
}

func (sl *SettlementLedger) isSettled(txID common.Hash) (bool, error) {
	var stored storedSettlement
	return sl.store.KVGet(settledRecordKey(txID), &stored)
}
