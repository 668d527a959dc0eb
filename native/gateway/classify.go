package gateway

import "math/big"

// requestShape captures the four booleans that fully determine a request's
// kind. Recipient and signature data never participate, so classification is
// invariant under changing them.
type requestShape struct {
	hasPayload     bool
	hasFunds       bool
	fundsIsNative  bool
	hasNativeValue bool
}

func shapeOf(req *TransactionRequest) requestShape {
	return requestShape{
		hasPayload:     len(req.Payload) > 0,
		hasFunds:       req.Amount != nil && req.Amount.Sign() > 0,
		fundsIsNative:  req.Token == NativeToken,
		hasNativeValue: req.NativeValue != nil && req.NativeValue.Sign() > 0,
	}
}

// Classify maps a request to exactly one transaction kind or a deterministic
// rejection, then applies the recipient-shape rules. Every combination of the
// derived shape booleans is handled explicitly; there is no fall-through.
func Classify(req *TransactionRequest) (*ClassifiedTransaction, error) {
	if req == nil {
		return nil, ErrInvalidInput
	}
	if req.Revert.FundRecipient == (NativeToken) {
		return nil, ErrInvalidRecipient
	}
	if (req.Amount != nil && req.Amount.Sign() < 0) || (req.NativeValue != nil && req.NativeValue.Sign() < 0) {
		return nil, ErrInvalidAmount
	}

	cls, err := classifyShape(req)
	if err != nil {
		return nil, err
	}
	if cls.HasFundsLeg() && req.Recipient != (NativeToken) {
		// Funds always credit the caller's own cross-chain account; a third
		// party recipient is rejected outright.
		return nil, ErrInvalidRecipient
	}
	return cls, nil
}

func classifyShape(req *TransactionRequest) (*ClassifiedTransaction, error) {
	shape := shapeOf(req)
	nativeValue := big.NewInt(0)
	if req.NativeValue != nil {
		nativeValue = new(big.Int).Set(req.NativeValue)
	}
	amount := big.NewInt(0)
	if req.Amount != nil {
		amount = new(big.Int).Set(req.Amount)
	}

	switch {
	case !shape.hasFunds && !shape.hasPayload:
		if !shape.hasNativeValue {
			// No payload, no funds, no value: nothing to admit.
			return nil, ErrInvalidInput
		}
		return &ClassifiedTransaction{
			Type:        TxTypeFee,
			Token:       NativeToken,
			FeeAmount:   nativeValue,
			FundsAmount: big.NewInt(0),
		}, nil

	case !shape.hasFunds && shape.hasPayload:
		// Zero value is allowed: a payload-only credit executes against the
		// caller's existing execution balance.
		return &ClassifiedTransaction{
			Type:        TxTypeFeeAndPayload,
			Token:       NativeToken,
			FeeAmount:   nativeValue,
			FundsAmount: big.NewInt(0),
		}, nil

	case shape.hasFunds && !shape.hasPayload:
		if shape.fundsIsNative {
			if nativeValue.Cmp(amount) != 0 {
				return nil, ErrInvalidAmount
			}
			return &ClassifiedTransaction{
				Type:        TxTypeFunds,
				Token:       NativeToken,
				FeeAmount:   big.NewInt(0),
				FundsAmount: amount,
			}, nil
		}
		if shape.hasNativeValue {
			return nil, ErrInvalidInput
		}
		return &ClassifiedTransaction{
			Type:        TxTypeFunds,
			Token:       req.Token,
			FeeAmount:   big.NewInt(0),
			FundsAmount: amount,
		}, nil

	default: // hasFunds && hasPayload
		if shape.fundsIsNative {
			if !shape.hasNativeValue {
				// Native funds require matching attached value.
				return nil, ErrInvalidInput
			}
			if nativeValue.Cmp(amount) < 0 {
				return nil, ErrInvalidAmount
			}
			// Any surplus attached value tops up the execution-fee leg.
			fee := new(big.Int).Sub(nativeValue, amount)
			return &ClassifiedTransaction{
				Type:        TxTypeFundsAndPayload,
				Token:       NativeToken,
				FeeAmount:   fee,
				FundsAmount: amount,
			}, nil
		}
		// Token funds: the whole attached value, if any, is the fee leg.
		return &ClassifiedTransaction{
			Type:        TxTypeFundsAndPayload,
			Token:       req.Token,
			FeeAmount:   nativeValue,
			FundsAmount: amount,
		}, nil
	}
}
