package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinvault/coinvault/internal/domain"
	"github.com/coinvault/coinvault/internal/logging"
	"github.com/coinvault/coinvault/internal/service"
	"github.com/coinvault/coinvault/internal/store"
)

func newTestServer(t *testing.T) (*store.Memory, *mux.Router) {
	t.Helper()
	m := store.NewMemory()
	logger := logging.Discard()
	handler := NewHandler(service.NewTransferService(m, logger), service.NewQueryService(m), logger)

	r := mux.NewRouter()
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")
	handler.Register(r.PathPrefix("/api/v1").Subrouter())
	return m, r
}

func doTransfer(r *mux.Router, flow string, body interface{}, key string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest("POST", "/api/v1/transfers/"+flow, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSpendEndpoint(t *testing.T) {
	m, r := newTestServer(t)
	m.AddTreasuryWallet("GOLD_COINS", 1_000_000)
	m.AddWallet(100, "GOLD_COINS", 1_000)

	body := map[string]interface{}{"owner_id": 100, "asset_code": "GOLD_COINS", "amount": 200}

	rec := doTransfer(r, "spend", body, "k1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result domain.TransferResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(200), result.Amount)
	assert.Equal(t, int64(800), result.SourceBalance)
	assert.NotEmpty(t, result.TransactionID)
	assert.Equal(t, "/api/v1/transactions/"+result.TransactionID, rec.Header().Get("Location"))

	// Replay with the same key: 200 with a byte-identical body.
	replay := doTransfer(r, "spend", body, "k1")
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, rec.Body.String(), replay.Body.String())

	bal, _ := m.WalletBalance(result.SourceWalletID)
	assert.Equal(t, int64(800), bal)
}

func TestTransferEndpointErrors(t *testing.T) {
	m, r := newTestServer(t)
	m.AddTreasuryWallet("GOLD_COINS", 1_000_000)
	m.AddWallet(100, "GOLD_COINS", 100)

	valid := map[string]interface{}{"owner_id": 100, "asset_code": "GOLD_COINS", "amount": 50}

	rec := doTransfer(r, "spend", valid, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing idempotency key")

	rec = doTransfer(r, "spend", `{not-json`, "k1")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "malformed body")

	rec = doTransfer(r, "spend", map[string]interface{}{"owner_id": 100, "asset_code": "GOLD_COINS", "amount": 0}, "k2")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "zero amount")

	rec = doTransfer(r, "spend", map[string]interface{}{"owner_id": 999, "asset_code": "GOLD_COINS", "amount": 50}, "k3")
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown owner")

	rec = doTransfer(r, "spend", map[string]interface{}{"owner_id": 100, "asset_code": "GOLD_COINS", "amount": 500}, "k4")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "insufficient balance")

	rec = doTransfer(r, "deposit", map[string]interface{}{"owner_id": 100, "asset_code": "GEM_SHARDS", "amount": 50}, "k5")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no wallet for asset")
}

func TestTreasuryMissingEndpoint(t *testing.T) {
	m, r := newTestServer(t)
	m.AddWallet(100, "GOLD_COINS", 100)

	rec := doTransfer(r, "spend", map[string]interface{}{"owner_id": 100, "asset_code": "GOLD_COINS", "amount": 50}, "k1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBalanceEndpoints(t *testing.T) {
	m, r := newTestServer(t)
	m.AddTreasuryWallet("GOLD_COINS", 1_000)
	m.AddWallet(100, "GOLD_COINS", 750)
	m.AddWallet(100, "GEM_SHARDS", 20)

	req := httptest.NewRequest("GET", "/api/v1/owners/100/balances/GOLD_COINS", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var bal domain.Balance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, int64(750), bal.Amount)

	req = httptest.NewRequest("GET", "/api/v1/owners/100/balances", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var all []domain.Balance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	req = httptest.NewRequest("GET", "/api/v1/owners/100/balances/UNKNOWN", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest("GET", "/api/v1/owners/abc/balances", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	m, r := newTestServer(t)
	m.AddTreasuryWallet("GOLD_COINS", 1_000_000)
	m.AddWallet(100, "GOLD_COINS", 0)

	for i := 0; i < 3; i++ {
		body := map[string]interface{}{"owner_id": 100, "asset_code": "GOLD_COINS", "amount": 10 + i}
		rec := doTransfer(r, "deposit", body, fmt.Sprintf("h-%d", i))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/owners/100/history?asset=GOLD_COINS&limit=2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []domain.LedgerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(12), entries[0].Amount, "newest first")
	assert.Equal(t, int64(11), entries[1].Amount)
}

func TestTransactionEndpoint(t *testing.T) {
	m, r := newTestServer(t)
	m.AddTreasuryWallet("GOLD_COINS", 1_000_000)
	m.AddWallet(100, "GOLD_COINS", 0)

	rec := doTransfer(r, "bonus", map[string]interface{}{"owner_id": 100, "asset_code": "GOLD_COINS", "amount": 30}, "b-1")
	require.Equal(t, http.StatusCreated, rec.Code)

	var result domain.TransferResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	req := httptest.NewRequest("GET", "/api/v1/transactions/"+result.TransactionID, nil)
	lookup := httptest.NewRecorder()
	r.ServeHTTP(lookup, req)
	require.Equal(t, http.StatusOK, lookup.Code)

	var entries []domain.LedgerEntry
	require.NoError(t, json.Unmarshal(lookup.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	req = httptest.NewRequest("GET", "/api/v1/transactions/missing", nil)
	missing := httptest.NewRecorder()
	r.ServeHTTP(missing, req)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestHealthEndpoint(t *testing.T) {
	_, r := newTestServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
