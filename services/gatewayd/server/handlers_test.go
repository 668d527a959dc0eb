package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"unigate/core/state"
	"unigate/native/gateway"
	"unigate/storage"
)

const (
	adminToken     = "admin-secret"
	pauserToken    = "pauser-secret"
	custodianToken = "custodian-secret"
)

var (
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	senderHex = "0x00000000000000000000000000000000000000b1"
	revertHex = "0x00000000000000000000000000000000000000d3"
)

func dollars(units int64) *big.Int {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(units), unit)
}

func newTestServer(t *testing.T) (*Server, *gateway.Vault) {
	t.Helper()
	store := state.NewManager(storage.NewMemDB())
	now := time.Unix(1700000000, 0)
	oracle := gateway.NewStaticOracle(gateway.PriceQuote{
		Price:     dollars(1),
		Decimals:  18,
		UpdatedAt: now,
	})
	vault := gateway.NewVault(store)
	engine := gateway.NewEngine(store, oracle, vault)
	engine.SetClock(func() time.Time { return now })
	engine.SetSlotSource(func() uint64 { return 42 })
	ledger := gateway.NewSettlementLedger(store, vault)
	ledger.SetClock(func() time.Time { return now })

	params := engine.Params()
	require.NoError(t, params.SetCapsUSD(big.NewInt(0), dollars(1000)))
	require.NoError(t, params.SetEpochDuration(3600))
	thresholds := []common.Address{gateway.NativeToken, tokenAddr}
	require.NoError(t, params.SetTokenThresholds(thresholds, []*big.Int{dollars(1000), dollars(100)}))

	auth, err := NewAuthenticator(AuthConfig{
		AdminToken:     adminToken,
		PauserToken:    pauserToken,
		CustodianToken: custodianToken,
	})
	require.NoError(t, err)

	srv, err := New(Config{
		ListenAddress: ":0",
		RateLimit:     RateLimit{RequestsPerMinute: 6000, Burst: 100},
		TLS:           TLSConfig{Disabled: true},
	}, engine, ledger, auth, slog.Default())
	require.NoError(t, err)
	return srv, vault
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestSendTransactionFeeOnly(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/transactions", "", map[string]any{
		"sender":          senderHex,
		"recipient":       revertHex,
		"nativeValue":     dollars(5).String(),
		"revertRecipient": revertHex,
	})
	require.Equal(t, http.StatusOK, res.Code)
	require.NotEmpty(t, res.Header().Get("X-Request-Id"))

	var body struct {
		TxType  string `json:"txType"`
		FeeUSD  string `json:"feeUsd"`
		Records []struct {
			TxType string `json:"txType"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "fee", body.TxType)
	require.Equal(t, dollars(5).String(), body.FeeUSD)
	require.Len(t, body.Records, 1)
}

func TestSendTransactionSplitRecords(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/transactions", "", map[string]any{
		"sender":          senderHex,
		"amount":          dollars(3).String(),
		"nativeValue":     dollars(5).String(),
		"payload":         "0xaabb",
		"revertRecipient": revertHex,
	})
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		TxType  string `json:"txType"`
		Records []struct {
			TxType string `json:"txType"`
			Amount string `json:"amount"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "funds_and_payload", body.TxType)
	require.Len(t, body.Records, 2)
	require.Equal(t, "fee", body.Records[0].TxType)
	require.Equal(t, dollars(2).String(), body.Records[0].Amount)
}

func TestSendTransactionRateLimited(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/transactions", "", map[string]any{
		"sender":          senderHex,
		"token":           tokenAddr.Hex(),
		"amount":          dollars(150).String(),
		"revertRecipient": revertHex,
	})
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "rate_limit_exceeded", body["error"])
}

func TestSendTransactionInvalidPayloadRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/transactions", "", map[string]any{
		"sender":          senderHex,
		"revertRecipient": revertHex,
	})
	require.Equal(t, http.StatusBadRequest, res.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "invalid_input", body["error"])
}

func TestSettlementRequiresCustodian(t *testing.T) {
	srv, vault := newTestServer(t)
	handler := srv.Handler()
	require.NoError(t, vault.Deposit(tokenAddr, common.HexToAddress(senderHex), dollars(50)))

	payload := map[string]any{
		"txId":            common.Hash{9}.Hex(),
		"token":           tokenAddr.Hex(),
		"recipient":       revertHex,
		"amount":          dollars(40).String(),
		"revertRecipient": revertHex,
	}

	res := doJSON(t, handler, http.MethodPost, "/v1/settlements/funds", "", payload)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = doJSON(t, handler, http.MethodPost, "/v1/settlements/funds", adminToken, payload)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = doJSON(t, handler, http.MethodPost, "/v1/settlements/funds", custodianToken, payload)
	require.Equal(t, http.StatusOK, res.Code)

	// Replay of the same txID conflicts.
	res = doJSON(t, handler, http.MethodPost, "/v1/settlements/funds", custodianToken, payload)
	require.Equal(t, http.StatusConflict, res.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "payload_executed", body["error"])
}

func TestSettlementRequiresRevertRecipient(t *testing.T) {
	srv, vault := newTestServer(t)
	handler := srv.Handler()
	require.NoError(t, vault.Deposit(tokenAddr, common.HexToAddress(senderHex), dollars(50)))

	payload := map[string]any{
		"txId":      common.Hash{10}.Hex(),
		"token":     tokenAddr.Hex(),
		"recipient": revertHex,
		"amount":    dollars(40).String(),
	}
	res := doJSON(t, handler, http.MethodPost, "/v1/settlements/funds", custodianToken, payload)
	require.Equal(t, http.StatusBadRequest, res.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "invalid_recipient", body["error"])

	// Nothing was released without the revert instruction.
	balance, err := vault.Balance(tokenAddr)
	require.NoError(t, err)
	require.Equal(t, dollars(50).String(), balance.String())
}

func TestAdminCapsValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	payload := map[string]any{"minTxUsd": dollars(10).String(), "maxTxUsd": dollars(5).String()}
	res := doJSON(t, handler, http.MethodPost, "/v1/admin/caps", adminToken, payload)
	require.Equal(t, http.StatusBadRequest, res.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "invalid_cap_range", body["error"])

	payload = map[string]any{"minTxUsd": dollars(1).String(), "maxTxUsd": dollars(5).String()}
	res = doJSON(t, handler, http.MethodPost, "/v1/admin/caps", adminToken, payload)
	require.Equal(t, http.StatusNoContent, res.Code)

	// The pauser token must not reach configuration endpoints.
	res = doJSON(t, handler, http.MethodPost, "/v1/admin/caps", pauserToken, payload)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestPausePolicyOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/admin/pause", pauserToken, nil)
	require.Equal(t, http.StatusNoContent, res.Code)

	res = doJSON(t, handler, http.MethodPost, "/v1/transactions", "", map[string]any{
		"sender":          senderHex,
		"nativeValue":     dollars(1).String(),
		"revertRecipient": revertHex,
	})
	require.Equal(t, http.StatusServiceUnavailable, res.Code)

	// Configuration stays available while paused.
	res = doJSON(t, handler, http.MethodPost, "/v1/admin/epoch", adminToken, map[string]any{"epochSeconds": 7200})
	require.Equal(t, http.StatusNoContent, res.Code)

	res = doJSON(t, handler, http.MethodPost, "/v1/admin/unpause", pauserToken, nil)
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestLimitsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/transactions", "", map[string]any{
		"sender":          senderHex,
		"token":           tokenAddr.Hex(),
		"amount":          dollars(75).String(),
		"revertRecipient": revertHex,
	})
	require.Equal(t, http.StatusOK, res.Code)

	res = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/v1/limits/%s", tokenAddr.Hex()), "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Used      string `json:"used"`
		Remaining string `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, dollars(75).String(), body.Used)
	require.Equal(t, dollars(25).String(), body.Remaining)
}

func TestCapsAndPriceEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	res := doJSON(t, handler, http.MethodGet, "/v1/caps", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var caps struct {
		MaxTxUSD     string `json:"maxTxUsd"`
		EpochSeconds uint64 `json:"epochSeconds"`
		Paused       bool   `json:"paused"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &caps))
	require.Equal(t, dollars(1000).String(), caps.MaxTxUSD)
	require.Equal(t, uint64(3600), caps.EpochSeconds)
	require.False(t, caps.Paused)

	res = doJSON(t, handler, http.MethodGet, "/v1/price", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var price struct {
		Price string `json:"price"`
		Stale bool   `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &price))
	require.Equal(t, dollars(1).String(), price.Price)
	require.False(t, price.Stale)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	res := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
}
