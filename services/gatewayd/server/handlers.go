package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"unigate/native/gateway"
	"unigate/observability/logging"
)

type transactionPayload struct {
	Sender          string        `json:"sender"`
	Recipient       string        `json:"recipient"`
	Token           string        `json:"token"`
	Amount          string        `json:"amount"`
	NativeValue     string        `json:"nativeValue"`
	Payload         hexutil.Bytes `json:"payload"`
	RevertRecipient string        `json:"revertRecipient"`
	RevertContext   hexutil.Bytes `json:"revertContext"`
	SignatureData   hexutil.Bytes `json:"signatureData"`
}

type auditRecordPayload struct {
	Sender        string        `json:"sender"`
	Recipient     string        `json:"recipient"`
	Token         string        `json:"token"`
	Amount        string        `json:"amount"`
	Payload       hexutil.Bytes `json:"payload"`
	TxType        string        `json:"txType"`
	SignatureData hexutil.Bytes `json:"signatureData"`
}

type transactionResponse struct {
	TxType      string               `json:"txType"`
	Token       string               `json:"token"`
	FeeAmount   string               `json:"feeAmount"`
	FundsAmount string               `json:"fundsAmount"`
	FeeUSD      string               `json:"feeUsd"`
	Records     []auditRecordPayload `json:"records"`
}

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	var payload transactionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, gateway.ErrInvalidInput)
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.engine.SendUniversalTx(req)
	if err != nil {
		s.logger.Warn("transaction rejected",
			"requestId", requestID,
			"reason", errorKind(err),
			logging.MaskField("sender", payload.Sender),
		)
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveAdmission(string(result.Classification.Type))
	s.logger.Info("transaction admitted",
		"requestId", requestID,
		"txType", string(result.Classification.Type),
		"token", result.Classification.Token.Hex(),
	)

	records := make([]auditRecordPayload, 0, len(result.Records))
	for _, record := range result.Records {
		records = append(records, auditRecordPayload{
			Sender:        record.Sender.Hex(),
			Recipient:     record.Recipient.Hex(),
			Token:         record.Token.Hex(),
			Amount:        record.Amount.String(),
			Payload:       hexutil.Bytes(record.Payload),
			TxType:        string(record.Type),
			SignatureData: hexutil.Bytes(record.SignatureData),
		})
	}
	writeJSON(w, http.StatusOK, transactionResponse{
		TxType:      string(result.Classification.Type),
		Token:       result.Classification.Token.Hex(),
		FeeAmount:   result.Classification.FeeAmount.String(),
		FundsAmount: result.Classification.FundsAmount.String(),
		FeeUSD:      result.FeeUSD.String(),
		Records:     records,
	})
}

func (p transactionPayload) toRequest() (*gateway.TransactionRequest, error) {
	sender, err := parseAddress(p.Sender)
	if err != nil {
		return nil, err
	}
	recipient, err := parseAddress(p.Recipient)
	if err != nil {
		return nil, err
	}
	token, err := parseAddress(p.Token)
	if err != nil {
		return nil, err
	}
	revertRecipient, err := parseAddress(p.RevertRecipient)
	if err != nil {
		return nil, err
	}
	amount, err := parseOptionalAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	nativeValue, err := parseOptionalAmount(p.NativeValue)
	if err != nil {
		return nil, err
	}
	return &gateway.TransactionRequest{
		Sender:      sender,
		Recipient:   recipient,
		Token:       token,
		Amount:      amount,
		Payload:     []byte(p.Payload),
		NativeValue: nativeValue,
		Revert: gateway.RevertInstructions{
			FundRecipient: revertRecipient,
			RevertContext: []byte(p.RevertContext),
		},
		SignatureData: []byte(p.SignatureData),
	}, nil
}

type addFundsPayload struct {
	Sender string `json:"sender"`
	Amount string `json:"amount"`
	TxHash string `json:"txHash"`
}

func (s *Server) handleAddFunds(w http.ResponseWriter, r *http.Request) {
	var payload addFundsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, gateway.ErrInvalidInput)
		return
	}
	sender, err := parseAddress(payload.Sender)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseOptionalAmount(payload.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var txHash common.Hash
	if trimmed := strings.TrimSpace(payload.TxHash); trimmed != "" {
		decoded, err := hexutil.Decode(trimmed)
		if err != nil || len(decoded) != common.HashLength {
			s.writeError(w, gateway.ErrInvalidData)
			return
		}
		txHash = common.BytesToHash(decoded)
	}

	usdValue, err := s.engine.AddFunds(sender, amount, txHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveFundsAdded()
	writeJSON(w, http.StatusOK, map[string]string{
		"usdValue": usdValue.String(),
		"txHash":   txHash.Hex(),
	})
}

type settlementPayload struct {
	TxID            string        `json:"txId"`
	Token           string        `json:"token"`
	Recipient       string        `json:"recipient"`
	Amount          string        `json:"amount"`
	Payload         hexutil.Bytes `json:"payload"`
	RevertRecipient string        `json:"revertRecipient"`
	RevertContext   hexutil.Bytes `json:"revertContext"`
}

func (s *Server) handleSettleFunds(w http.ResponseWriter, r *http.Request) {
	s.handleSettlement(w, r, false)
}

func (s *Server) handleSettleAndExecute(w http.ResponseWriter, r *http.Request) {
	s.handleSettlement(w, r, true)
}

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request, execute bool) {
	var payload settlementPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, gateway.ErrInvalidInput)
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		s.writeError(w, err)
		return
	}

	var record *gateway.SettlementRecord
	if execute {
		record, err = s.ledger.SettleAndExecute(req)
	} else {
		record, err = s.ledger.SettleFunds(req)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	op := "settle_funds"
	if execute {
		op = "settle_and_execute"
	}
	s.metrics.ObserveSettlement(op)
	s.logger.Info("settlement applied", "op", op, "txId", record.TxID.Hex())
	writeJSON(w, http.StatusOK, map[string]any{
		"txId":      record.TxID.Hex(),
		"token":     record.Token.Hex(),
		"recipient": record.Recipient.Hex(),
		"amount":    record.Amount.String(),
		"executed":  record.Executed,
		"settledAt": record.SettledAt.Unix(),
	})
}

func (p settlementPayload) toRequest() (gateway.SettlementRequest, error) {
	var req gateway.SettlementRequest
	trimmed := strings.TrimSpace(p.TxID)
	if trimmed == "" {
		return req, gateway.ErrInvalidData
	}
	decoded, err := hexutil.Decode(trimmed)
	if err != nil || len(decoded) != common.HashLength {
		return req, gateway.ErrInvalidData
	}
	token, err := parseAddress(p.Token)
	if err != nil {
		return req, err
	}
	recipient, err := parseAddress(p.Recipient)
	if err != nil {
		return req, err
	}
	amount, err := parseOptionalAmount(p.Amount)
	if err != nil {
		return req, err
	}
	revertRecipient, err := parseAddress(p.RevertRecipient)
	if err != nil {
		return req, err
	}
	return gateway.SettlementRequest{
		TxID:      common.BytesToHash(decoded),
		Token:     token,
		Recipient: recipient,
		Amount:    amount,
		Payload:   []byte(p.Payload),
		Revert: gateway.RevertInstructions{
			FundRecipient: revertRecipient,
			RevertContext: []byte(p.RevertContext),
		},
	}, nil
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress(chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	usage, err := s.engine.Limiter().Usage(token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     usage.Token.Hex(),
		"epochId":   usage.EpochID,
		"threshold": usage.Threshold.String(),
		"used":      usage.Used.String(),
		"remaining": usage.Remaining.String(),
	})
}

func (s *Server) handleCaps(w http.ResponseWriter, r *http.Request) {
	params := s.engine.Params()
	minTx, maxTx, err := params.CapsUSD()
	if err != nil {
		s.writeError(w, err)
		return
	}
	blockCap, err := params.BlockUSDCap()
	if err != nil {
		s.writeError(w, err)
		return
	}
	epoch, err := params.EpochDuration()
	if err != nil {
		s.writeError(w, err)
		return
	}
	paused, err := params.Paused()
	if err != nil {
		s.writeError(w, err)
		return
	}
	slot, used, err := s.engine.Caps().SlotUsage()
	if err != nil {
		s.writeError(w, err)
		return
	}
	usedFloat, _ := new(big.Float).SetInt(used).Float64()
	s.metrics.SetSlotUsage(usedFloat)
	writeJSON(w, http.StatusOK, map[string]any{
		"minTxUsd":     minTx.String(),
		"maxTxUsd":     maxTx.String(),
		"blockUsdCap":  blockCap.String(),
		"epochSeconds": epoch,
		"paused":       paused,
		"slot":         slot,
		"slotUsdUsed":  used.String(),
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	quote, stale, err := s.engine.Price()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"price":     quote.Price.String(),
		"decimals":  quote.Decimals,
		"updatedAt": quote.UpdatedAt.Unix(),
		"stale":     stale,
	})
}

func (s *Server) handleSetCaps(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MinTxUSD string `json:"minTxUsd"`
		MaxTxUSD string `json:"maxTxUsd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, gateway.ErrInvalidInput)
		return
	}
	minTx, err := parseOptionalAmount(payload.MinTxUSD)
	if err != nil {
		s.writeError(w, err)
		return
	}
	maxTx, err := parseOptionalAmount(payload.MaxTxUSD)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if minTx == nil {
		minTx = big.NewInt(0)
	}
	if maxTx == nil {
		maxTx = big.NewInt(0)
	}
	if err := s.engine.Params().SetCapsUSD(minTx, maxTx); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveAdminOp("set_caps")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetBlockCap(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BlockUSDCap string `json:"blockUsdCap"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, gateway.ErrInvalidInput)
		return
	}
	value, err := parseOptionalAmount(payload.BlockUSDCap)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if value == nil {
		value = big.NewInt(0)
	}
	if err := s.engine.Params().SetBlockUSDCap(value); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveAdminOp("set_block_cap")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetEpoch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		EpochSeconds uint64 `json:"epochSeconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, gateway.ErrInvalidInput)
		return
	}
	if err := s.engine.Params().SetEpochDuration(payload.EpochSeconds); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveAdminOp("set_epoch")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Tokens []struct {
			Address   string `json:"address"`
			Threshold string `json:"threshold"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, gateway.ErrInvalidInput)
		return
	}
	tokens := make([]common.Address, 0, len(payload.Tokens))
	thresholds := make([]*big.Int, 0, len(payload.Tokens))
	for _, entry := range payload.Tokens {
		token, err := parseAddress(entry.Address)
		if err != nil {
			s.writeError(w, err)
			return
		}
		threshold, err := parseOptionalAmount(entry.Threshold)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if threshold == nil {
			threshold = big.NewInt(0)
		}
		tokens = append(tokens, token)
		thresholds = append(thresholds, threshold)
	}
	if err := s.engine.Params().SetTokenThresholds(tokens, thresholds); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveAdminOp("set_thresholds")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Params().Pause(); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveAdminOp("pause")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Params().Unpause(); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveAdminOp("unpause")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, gateway.ErrInvalidInput
	}
	return common.HexToAddress(trimmed), nil
}

func parseOptionalAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, gateway.ErrInvalidAmount
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := errorKind(err)
	s.metrics.ObserveRejection(kind)
	writeJSON(w, errorStatus(err), map[string]string{
		"error":   kind,
		"message": err.Error(),
	})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, gateway.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, gateway.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, gateway.ErrInvalidRecipient):
		return "invalid_recipient"
	case errors.Is(err, gateway.ErrNotSupported):
		return "not_supported"
	case errors.Is(err, gateway.ErrRateLimitExceeded):
		return "rate_limit_exceeded"
	case errors.Is(err, gateway.ErrBlockCapExceeded):
		return "block_cap_limit_exceeded"
	case errors.Is(err, gateway.ErrPayloadExecuted):
		return "payload_executed"
	case errors.Is(err, gateway.ErrInvalidData):
		return "invalid_data"
	case errors.Is(err, gateway.ErrZeroAddress):
		return "zero_address"
	case errors.Is(err, gateway.ErrInvalidCapRange):
		return "invalid_cap_range"
	case errors.Is(err, gateway.ErrPaused):
		return "paused"
	case errors.Is(err, gateway.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, gateway.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, gateway.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "internal"
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrRateLimitExceeded),
		errors.Is(err, gateway.ErrBlockCapExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, gateway.ErrPayloadExecuted),
		errors.Is(err, gateway.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrNotSupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gateway.ErrPaused),
		errors.Is(err, gateway.ErrStalePrice),
		errors.Is(err, gateway.ErrInvalidPrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrInvalidInput),
		errors.Is(err, gateway.ErrInvalidAmount),
		errors.Is(err, gateway.ErrInvalidRecipient),
		errors.Is(err, gateway.ErrInvalidData),
		errors.Is(err, gateway.ErrZeroAddress),
		errors.Is(err, gateway.ErrInvalidCapRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
