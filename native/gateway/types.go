package gateway

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel token identifier for the chain's native asset.
var NativeToken = common.Address{}

// TxType enumerates the transaction kinds the classifier can produce.
type TxType string

const (
	// TxTypeFee funds the caller's cross-chain execution balance only.
	TxTypeFee TxType = "fee"
	// TxTypeFeeAndPayload funds execution and carries a payload; a zero fee
	// amount is a payload-only credit.
	TxTypeFeeAndPayload TxType = "fee_and_payload"
	// TxTypeFunds bridges a token with no payload.
	TxTypeFunds TxType = "funds"
	// TxTypeFundsAndPayload bridges a token and carries a payload, optionally
	// batching an execution-fee leg.
	TxTypeFundsAndPayload TxType = "funds_and_payload"
)

// RevertInstructions describe where funds return if the bridged transaction
// fails downstream. FundRecipient must never be the zero sentinel.
type RevertInstructions struct {
	FundRecipient common.Address
	RevertContext []byte
}

// TransactionRequest is the universal admission input. Amount is the bridged
// funds quantity (zero when absent) and NativeValue the attached native asset,
// mirroring msg.value semantics. SignatureData passes through unmodified and
// is never inspected by the core.
type TransactionRequest struct {
	Sender        common.Address
	Recipient     common.Address
	Token         common.Address
	Amount        *big.Int
	Payload       []byte
	NativeValue   *big.Int
	Revert        RevertInstructions
	SignatureData []byte
}

// Copy returns a deep copy so callers cannot mutate a request after admission.
func (r *TransactionRequest) Copy() *TransactionRequest {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	if r.NativeValue != nil {
		clone.NativeValue = new(big.Int).Set(r.NativeValue)
	}
	clone.Payload = append([]byte{}, r.Payload...)
	clone.SignatureData = append([]byte{}, r.SignatureData...)
	clone.Revert.RevertContext = append([]byte{}, r.Revert.RevertContext...)
	return &clone
}

// ClassifiedTransaction is the classifier output: exactly one kind plus the
// concrete leg amounts derived from the request. FeeAmount is the
// execution-fee leg (zero when absent); FundsAmount and Token describe the
// funds leg for the funds-bearing kinds.
type ClassifiedTransaction struct {
	Type        TxType
	Token       common.Address
	FeeAmount   *big.Int
	FundsAmount *big.Int
}

// Copy returns a deep copy of the classification result.
func (c *ClassifiedTransaction) Copy() *ClassifiedTransaction {
	if c == nil {
		return nil
	}
	clone := *c
	if c.FeeAmount != nil {
		clone.FeeAmount = new(big.Int).Set(c.FeeAmount)
	}
	if c.FundsAmount != nil {
		clone.FundsAmount = new(big.Int).Set(c.FundsAmount)
	}
	return &clone
}

// HasFundsLeg reports whether the classification carries a bridged-funds leg.
func (c *ClassifiedTransaction) HasFundsLeg() bool {
	if c == nil {
		return false
	}
	return c.Type == TxTypeFunds || c.Type == TxTypeFundsAndPayload
}

// AuditRecord is emitted once per admitted leg. The execution-fee leg of a
// split transaction carries an empty payload and the zero recipient; the funds
// leg carries the full payload and the caller-intended recipient.
type AuditRecord struct {
	Sender        common.Address
	Recipient     common.Address
	Token         common.Address
	Amount        *big.Int
	Payload       []byte
	Revert        RevertInstructions
	Type          TxType
	SignatureData []byte
}

// Copy returns a deep copy of the audit record.
func (a *AuditRecord) Copy() *AuditRecord {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Amount != nil {
		clone.Amount = new(big.Int).Set(a.Amount)
	}
	clone.Payload = append([]byte{}, a.Payload...)
	clone.SignatureData = append([]byte{}, a.SignatureData...)
	clone.Revert.RevertContext = append([]byte{}, a.Revert.RevertContext...)
	return &clone
}
