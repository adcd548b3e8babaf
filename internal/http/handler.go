package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidbz/creditmeter/internal/credits"
	"github.com/davidbz/creditmeter/internal/ledger"
	"github.com/davidbz/creditmeter/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	service *credits.Service
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(service *credits.Service) *Handler {
	return &Handler{
		service: service,
	}
}

type deductRequest struct {
	AccountID    string   `json:"account_id"`
	Operation    string   `json:"operation"`
	Units        *float64 `json:"units,omitempty"`
	Variant      string   `json:"variant,omitempty"`
	Megapixels   *float64 `json:"megapixels,omitempty"`
	InputTokens  int64    `json:"input_tokens,omitempty"`
	OutputTokens int64    `json:"output_tokens,omitempty"`
}

type deductResponse struct {
	CreditsCharged   decimal.Decimal `json:"credits_charged"`
	BalanceRemaining decimal.Decimal `json:"balance_remaining"`
	TotalConsumed    decimal.Decimal `json:"total_consumed"`
}

type balanceResponse struct {
	AccountID     string          `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	TotalConsumed decimal.Decimal `json:"total_consumed"`
}

type createAccountRequest struct {
	AccountID string `json:"account_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleDeduct processes deduction requests.
func (h *Handler) HandleDeduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req deductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if req.Operation == "" {
		writeError(w, http.StatusBadRequest, "operation is required")
		return
	}

	// Inject billing identifiers into context for downstream logging.
	ctx = observability.WithAccountID(ctx, req.AccountID)
	ctx = observability.WithOperation(ctx, req.Operation)

	units := decimal.NewFromInt(1)
	if req.Units != nil {
		units = decimal.NewFromFloat(*req.Units)
	}

	usage := credits.Usage{
		Units:        units,
		Variant:      req.Variant,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
	}
	if req.Megapixels != nil {
		size := decimal.NewFromFloat(*req.Megapixels)
		usage.SizeMetric = &size
	}

	logger := observability.FromContext(ctx)
	logger.Info("deduction request received",
		zap.String("operation", req.Operation),
		zap.String("units", units.String()),
		zap.String("variant", req.Variant),
	)

	result, err := h.service.Deduct(ctx, credits.DeductionRequest{
		AccountID: req.AccountID,
		Operation: req.Operation,
		Usage:     usage,
	})
	if err != nil {
		h.writeDeductError(w, logger, err)
		return
	}

	logger.Info("deduction committed",
		zap.String("credits_charged", result.Charged.String()),
		zap.String("balance_remaining", result.Balance.String()),
	)

	writeJSON(w, http.StatusOK, deductResponse{
		CreditsCharged:   result.Charged,
		BalanceRemaining: result.Balance,
		TotalConsumed:    result.TotalConsumed,
	})
}

// writeDeductError maps the engine's typed failures onto HTTP statuses.
// Insufficient funds keeps its own status so callers can surface a
// payment-required signal; storage faults stay generic server errors.
func (h *Handler) writeDeductError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
	case errors.Is(err, credits.ErrUnknownOperation):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, credits.ErrInvalidVariant), errors.Is(err, credits.ErrInvalidUsage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Error("deduction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// HandleBalance returns an account's balance and lifetime consumption.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	ctx = observability.WithAccountID(ctx, accountID)

	snap, err := h.service.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		observability.FromContext(ctx).Error("balance read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		AccountID:     accountID,
		Balance:       snap.Balance,
		TotalConsumed: snap.TotalConsumed,
	})
}

// HandleCreateAccount provisions an account with the initial credit grant.
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	ctx = observability.WithAccountID(ctx, req.AccountID)

	snap, err := h.service.CreateAccount(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		observability.FromContext(ctx).Error("account provisioning failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, balanceResponse{
		AccountID:     req.AccountID,
		Balance:       snap.Balance,
		TotalConsumed: snap.TotalConsumed,
	})
}

// HandleCatalog lists the priced operations.
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type entry struct {
		Key         string `json:"key"`
		DisplayName string `json:"display_name,omitempty"`
		Unit        string `json:"unit"`
		Mode        string `json:"pricing_mode"`
	}

	ops := h.service.Catalog().List()
	entries := make([]entry, 0, len(ops))
	for _, op := range ops {
		entries = append(entries, entry{
			Key:         op.Key,
			DisplayName: op.DisplayName,
			Unit:        op.Unit,
			Mode:        op.Mode.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"operations": entries})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Status already written, nothing left to do.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
