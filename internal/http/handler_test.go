package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/creditmeter/internal/catalog"
	"github.com/davidbz/creditmeter/internal/credits"
	credithttp "github.com/davidbz/creditmeter/internal/http"
	"github.com/davidbz/creditmeter/internal/ledger/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, map[string]interface{}) {}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.New(catalog.Meta{
		Currency:          "EUR",
		CurrencyPerCredit: dec("0.026"),
		RoundingStep:      dec("0.5"),
		InitialCredits:    dec("500"),
	}, []catalog.Spec{
		{Key: "free_chat", Unit: "request", Unmetered: true},
		{Key: "flat_image", DisplayName: "Flat Image", Unit: "image", FlatRate: dec("1.54")},
		{Key: "variant_video", Unit: "second", Variants: []catalog.VariantRate{
			{Name: "without_audio", Rate: dec("7.69")},
			{Name: "with_audio", Rate: dec("15.38")},
		}},
	})
	require.NoError(t, err)
	return cat
}

func newTestHandler(t *testing.T) *credithttp.Handler {
	t.Helper()

	led := memory.New()
	require.NoError(t, led.Provision(context.Background(), "acct-1", dec("10")))

	service := credits.NewService(testCatalog(t), led, noopPublisher{})
	return credithttp.NewHandler(service)
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestHandleDeduct_ChargesAndReturnsBalance(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler.HandleDeduct, "/v1/credits/deduct", map[string]interface{}{
		"account_id": "acct-1",
		"operation":  "flat_image",
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		CreditsCharged   string `json:"credits_charged"`
		BalanceRemaining string `json:"balance_remaining"`
		TotalConsumed    string `json:"total_consumed"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "2", resp.CreditsCharged)
	require.Equal(t, "8", resp.BalanceRemaining)
	require.Equal(t, "2", resp.TotalConsumed)
}

func TestHandleDeduct_DefaultsToOneUnit(t *testing.T) {
	handler := newTestHandler(t)

	// No units field: same charge as an explicit 1.
	w := postJSON(t, handler.HandleDeduct, "/v1/credits/deduct", map[string]interface{}{
		"account_id": "acct-1",
		"operation":  "flat_image",
		"units":      1,
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleDeduct_UnmeteredChargesNothing(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler.HandleDeduct, "/v1/credits/deduct", map[string]interface{}{
		"account_id": "acct-1",
		"operation":  "free_chat",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		CreditsCharged   string `json:"credits_charged"`
		BalanceRemaining string `json:"balance_remaining"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "0", resp.CreditsCharged)
	require.Equal(t, "10", resp.BalanceRemaining)
}

func TestHandleDeduct_InsufficientCredits(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler.HandleDeduct, "/v1/credits/deduct", map[string]interface{}{
		"account_id": "acct-1",
		"operation":  "variant_video",
		"units":      8,
		"variant":    "with_audio",
	})

	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "insufficient credits", resp.Error)
}

func TestHandleDeduct_UnknownOperation(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler.HandleDeduct, "/v1/credits/deduct", map[string]interface{}{
		"account_id": "acct-1",
		"operation":  "no_such_op",
	})

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeduct_UnknownVariant(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler.HandleDeduct, "/v1/credits/deduct", map[string]interface{}{
		"account_id": "acct-1",
		"operation":  "variant_video",
		"variant":    "8k",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDeduct_UnknownAccount(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler.HandleDeduct, "/v1/credits/deduct", map[string]interface{}{
		"account_id": "ghost",
		"operation":  "flat_image",
	})

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeduct_MissingFields(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler.HandleDeduct, "/v1/credits/deduct", map[string]interface{}{
		"operation": "flat_image",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, handler.HandleDeduct, "/v1/credits/deduct", map[string]interface{}{
		"account_id": "acct-1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDeduct_InvalidJSON(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/credits/deduct", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	handler.HandleDeduct(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDeduct_MethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/credits/deduct", nil)
	w := httptest.NewRecorder()
	handler.HandleDeduct(w, req)

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleBalance(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/credits/balance?account_id=acct-1", nil)
	w := httptest.NewRecorder()
	handler.HandleBalance(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccountID     string `json:"account_id"`
		Balance       string `json:"balance"`
		TotalConsumed string `json:"total_consumed"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "acct-1", resp.AccountID)
	require.Equal(t, "10", resp.Balance)
	require.Equal(t, "0", resp.TotalConsumed)
}

func TestHandleBalance_MissingAccountID(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/credits/balance", nil)
	w := httptest.NewRecorder()
	handler.HandleBalance(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBalance_UnknownAccount(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/credits/balance?account_id=ghost", nil)
	w := httptest.NewRecorder()
	handler.HandleBalance(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCreateAccount(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler.HandleCreateAccount, "/v1/accounts", map[string]interface{}{
		"account_id": "acct-2",
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		AccountID string `json:"account_id"`
		Balance   string `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "acct-2", resp.AccountID)
	require.Equal(t, "500", resp.Balance)
}

func TestHandleCreateAccount_Duplicate(t *testing.T) {
	handler := newTestHandler(t)

	w := postJSON(t, handler.HandleCreateAccount, "/v1/accounts", map[string]interface{}{
		"account_id": "acct-1",
	})

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleCatalog(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
	w := httptest.NewRecorder()
	handler.HandleCatalog(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Operations []struct {
			Key  string `json:"key"`
			Mode string `json:"pricing_mode"`
		} `json:"operations"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Operations, 3)
	require.Equal(t, "flat_image", resp.Operations[0].Key)
	require.Equal(t, "flat", resp.Operations[0].Mode)
	require.Equal(t, "free_chat", resp.Operations[1].Key)
	require.Equal(t, "unmetered", resp.Operations[1].Mode)
}

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.HandleHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, "healthy", response["status"])
}
