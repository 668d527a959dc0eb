package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"unigate/core/types"
)

const (
	// TypeUniversalTx is emitted once per admitted transaction leg.
	TypeUniversalTx = "gateway.universal_tx"
	// TypeFundsAdded is emitted by the legacy native top-up route.
	TypeFundsAdded = "gateway.funds_added"
	// TypeSettled is emitted when the custodian credits or refunds a bridged transaction.
	TypeSettled = "gateway.settled"
	// TypeCapsUpdated is emitted when the per-transaction USD bounds change.
	TypeCapsUpdated = "gateway.caps_updated"
	// TypeBlockCapUpdated is emitted when the per-slot USD budget changes.
	TypeBlockCapUpdated = "gateway.block_cap_updated"
	// TypeEpochDurationUpdated is emitted when the rate-limit epoch length changes.
	TypeEpochDurationUpdated = "gateway.epoch_duration_updated"
	// TypeTokenLimitUpdated is emitted per token when thresholds are reconfigured.
	TypeTokenLimitUpdated = "gateway.token_limit_updated"
	// TypePaused and TypeUnpaused track the admission switch.
	TypePaused   = "gateway.paused"
	TypeUnpaused = "gateway.unpaused"
)

// UniversalTx is the audit record for one admitted leg. Amount carries the
// leg's quantity; the execution-fee leg of a split transaction emits its own
// record with an empty payload and zero recipient.
type UniversalTx struct {
	Sender          common.Address
	Recipient       common.Address
	Token           common.Address
	Amount          *big.Int
	Payload         []byte
	RevertRecipient common.Address
	RevertContext   []byte
	TxType          string
	SignatureData   []byte
}

func (UniversalTx) EventType() string { return TypeUniversalTx }

func (e UniversalTx) Event() *types.Event {
	return &types.Event{
		Type: TypeUniversalTx,
		Attributes: map[string]string{
			"sender":          e.Sender.Hex(),
			"recipient":       e.Recipient.Hex(),
			"token":           e.Token.Hex(),
			"amount":          amountString(e.Amount),
			"payload":         hex.EncodeToString(e.Payload),
			"revertRecipient": e.RevertRecipient.Hex(),
			"revertContext":   hex.EncodeToString(e.RevertContext),
			"txType":          strings.TrimSpace(e.TxType),
			"signatureData":   hex.EncodeToString(e.SignatureData),
		},
	}
}

// FundsAdded mirrors the legacy top-up event including the USD equivalent at
// the oracle's native precision.
type FundsAdded struct {
	Sender        common.Address
	Amount        *big.Int
	USDValue      *big.Int
	PriceDecimals uint8
	TxHash        common.Hash
}

func (FundsAdded) EventType() string { return TypeFundsAdded }

func (e FundsAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeFundsAdded,
		Attributes: map[string]string{
			"sender":        e.Sender.Hex(),
			"amount":        amountString(e.Amount),
			"usdValue":      amountString(e.USDValue),
			"priceDecimals": strconv.FormatUint(uint64(e.PriceDecimals), 10),
			"txHash":        e.TxHash.Hex(),
		},
	}
}

// Settled records an at-most-once settlement keyed by txID. The revert fields
// are carried verbatim from the settlement call.
type Settled struct {
	TxID            common.Hash
	Recipient       common.Address
	Token           common.Address
	Amount          *big.Int
	Payload         []byte
	RevertRecipient common.Address
	RevertContext   []byte
	Op              string
}

func (Settled) EventType() string { return TypeSettled }

func (e Settled) Event() *types.Event {
	return &types.Event{
		Type: TypeSettled,
		Attributes: map[string]string{
			"txId":            e.TxID.Hex(),
			"recipient":       e.Recipient.Hex(),
			"token":           e.Token.Hex(),
			"amount":          amountString(e.Amount),
			"payload":         hex.EncodeToString(e.Payload),
			"revertRecipient": e.RevertRecipient.Hex(),
			"revertContext":   hex.EncodeToString(e.RevertContext),
			"op":              strings.TrimSpace(e.Op),
		},
	}
}

// CapsUpdated reports the new inclusive per-transaction USD bounds.
type CapsUpdated struct {
	MinTxUSD *big.Int
	MaxTxUSD *big.Int
}

func (CapsUpdated) EventType() string { return TypeCapsUpdated }

func (e CapsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeCapsUpdated,
		Attributes: map[string]string{
			"minTxUsd": amountString(e.MinTxUSD),
			"maxTxUsd": amountString(e.MaxTxUSD),
		},
	}
}

// BlockCapUpdated reports the new per-slot USD budget (zero disables it).
type BlockCapUpdated struct {
	BlockUSDCap *big.Int
}

func (BlockCapUpdated) EventType() string { return TypeBlockCapUpdated }

func (e BlockCapUpdated) Event() *types.Event {
	return &types.Event{
		Type:       TypeBlockCapUpdated,
		Attributes: map[string]string{"blockUsdCap": amountString(e.BlockUSDCap)},
	}
}

// EpochDurationUpdated reports the new rate-limit epoch length in seconds.
type EpochDurationUpdated struct {
	EpochSeconds uint64
}

func (EpochDurationUpdated) EventType() string { return TypeEpochDurationUpdated }

func (e EpochDurationUpdated) Event() *types.Event {
	return &types.Event{
		Type:       TypeEpochDurationUpdated,
		Attributes: map[string]string{"epochSeconds": strconv.FormatUint(e.EpochSeconds, 10)},
	}
}

// TokenLimitUpdated reports a per-token rate-limit threshold change.
type TokenLimitUpdated struct {
	Token     common.Address
	Threshold *big.Int
}

func (TokenLimitUpdated) EventType() string { return TypeTokenLimitUpdated }

func (e TokenLimitUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenLimitUpdated,
		Attributes: map[string]string{
			"token":     e.Token.Hex(),
			"threshold": amountString(e.Threshold),
		},
	}
}

// Paused marks admission being switched off; settlement and configuration
// remain available.
type Paused struct{}

func (Paused) EventType() string { return TypePaused }

// Unpaused marks admission being switched back on.
type Unpaused struct{}

func (Unpaused) EventType() string { return TypeUnpaused }

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
