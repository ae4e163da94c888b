package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/credits"
)

// CreditsHandler translates the credits HTTP surface onto the ledger. Each
// route is a thin adapter: the ledger owns all invariants.
type CreditsHandler struct {
	ledger *credits.Ledger
	logger *slog.Logger
}

// NewCreditsHandler builds the credits API router.
func NewCreditsHandler(ledger *credits.Ledger, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &CreditsHandler{ledger: ledger, logger: logger}

	r := chi.NewRouter()
	r.Get("/tiers", h.listTiers)
	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Get("/balance", h.getBalance)
		r.Get("/check", h.checkCredits)
		r.Post("/deduct", h.deductCredit)
		r.Post("/claim", h.claimMonthly)
		r.Get("/transactions", h.listTransactions)
		r.Get("/subscriptions", h.listSubscriptions)
		r.Post("/subscriptions", h.purchaseSubscription)
	})
	return r
}

func (h *CreditsHandler) listTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, credits.AllTiers())
}

func (h *CreditsHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	info, err := h.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		h.serverError(w, "failed to read balance", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *CreditsHandler) checkCredits(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	check, err := h.ledger.HasCredits(r.Context(), accountID)
	if err != nil {
		h.serverError(w, "failed to check credits", err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

type deductRequest struct {
	ServiceID   string `json:"serviceId"`
	Description string `json:"description"`
}

func (h *CreditsHandler) deductCredit(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var body deductRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, gate.KindValidationError, "invalid request body")
			return
		}
	}

	result, err := h.ledger.DeductCredit(r.Context(), accountID, body.ServiceID, body.Description)
	if errors.Is(err, gate.ErrInsufficientCredits) {
		// Not enough funds is expected and user-actionable, not a malfunction.
		writeError(w, http.StatusPaymentRequired, gate.KindInsufficientCredits, "insufficient credits")
		return
	}
	if err != nil {
		h.serverError(w, "failed to deduct credit", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *CreditsHandler) claimMonthly(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	result, err := h.ledger.ClaimMonthlyCredits(r.Context(), accountID)
	if err != nil {
		h.serverError(w, "failed to claim credits", err)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusPaymentRequired, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *CreditsHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, gate.KindValidationError, "limit must be an integer")
			return
		}
		limit = parsed
	}

	history, err := h.ledger.TransactionHistory(r.Context(), accountID, limit)
	if err != nil {
		h.serverError(w, "failed to read transactions", err)
		return
	}
	if history == nil {
		history = []credits.CreditTransaction{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *CreditsHandler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	subs, err := h.ledger.SubscriptionHistory(r.Context(), accountID)
	if err != nil {
		h.serverError(w, "failed to read subscriptions", err)
		return
	}
	if subs == nil {
		subs = []credits.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

type purchaseRequest struct {
	Tier            string `json:"tier"`
	TransactionHash string `json:"transactionHash"`
	PaymentNetwork  string `json:"paymentNetwork"`
}

func (h *CreditsHandler) purchaseSubscription(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var body purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, gate.KindValidationError, "invalid request body")
		return
	}
	tier, err := credits.ParseTier(body.Tier)
	if err != nil {
		writeError(w, http.StatusBadRequest, gate.KindValidationError, err.Error())
		return
	}

	sub, err := h.ledger.RecordPurchase(r.Context(), accountID, tier, body.TransactionHash, body.PaymentNetwork)
	if err != nil {
		if tier == credits.TierFree {
			writeError(w, http.StatusBadRequest, gate.KindValidationError, err.Error())
			return
		}
		h.serverError(w, "failed to record purchase", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *CreditsHandler) serverError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, "error", err)
	writeError(w, http.StatusInternalServerError, "", message)
}
