package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/fundlens/fundlens/internal/modules/catalog"
	"github.com/fundlens/fundlens/internal/modules/ledger"
	"github.com/fundlens/fundlens/internal/modules/positions"
	"github.com/fundlens/fundlens/internal/modules/profile"
	"github.com/fundlens/fundlens/internal/modules/refresh"
	"github.com/fundlens/fundlens/internal/modules/tags"
	"github.com/fundlens/fundlens/internal/modules/valuation"
)

// Handlers serves the customer-facing API: transaction ingest, refresh
// triggers, and reads of the derived state.
type Handlers struct {
	catalog      *catalog.Repository
	ledger       *ledger.Repository
	positions    *positions.Repository
	recomputer   *positions.Recomputer
	profiles     *profile.Repository
	tags         *tags.Repository
	orchestrator *refresh.Orchestrator
	valuation    *valuation.Updater
	log          zerolog.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(
	catalogRepo *catalog.Repository,
	ledgerRepo *ledger.Repository,
	positionRepo *positions.Repository,
	recomputer *positions.Recomputer,
	profileRepo *profile.Repository,
	tagRepo *tags.Repository,
	orchestrator *refresh.Orchestrator,
	updater *valuation.Updater,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		catalog:      catalogRepo,
		ledger:       ledgerRepo,
		positions:    positionRepo,
		recomputer:   recomputer,
		profiles:     profileRepo,
		tags:         tagRepo,
		orchestrator: orchestrator,
		valuation:    updater,
		log:          log.With().Str("component", "api").Logger(),
	}
}

// holdingResponse is the wire form of a holding.
type holdingResponse struct {
	InstrumentCode string   `json:"instrument_code"`
	Units          string   `json:"units"`
	AverageCost    string   `json:"average_cost"`
	MarketValue    *float64 `json:"market_value"`
	UpdatedAt      string   `json:"updated_at"`
}

// profileResponse is the wire form of a customer profile.
type profileResponse struct {
	CustomerID        string   `json:"customer_id"`
	TotalMarketValue  float64  `json:"total_market_value"`
	AvgHoldingAgeDays *float64 `json:"avg_holding_age_days"`
	RecencyDays       *int     `json:"recency_days"`
	Frequency90Days   int      `json:"frequency_90_days"`
	RegularInvestor   bool     `json:"regular_investor"`
	UpdatedAt         string   `json:"updated_at"`
}

// tagResponse is the wire form of one tag relation.
type tagResponse struct {
	Category string `json:"category"`
	Tag      string `json:"tag"`
}

// transactionRequest is the wire form of a new ledger entry. Monetary
// fields are decimal strings.
type transactionRequest struct {
	InstrumentCode string `json:"instrument_code"`
	Kind           string `json:"kind"`
	Amount         string `json:"amount"`
	Units          string `json:"units"`
	ExecutedAt     string `json:"executed_at"` // RFC3339, defaults to now
}

// HandleAppendTransaction appends one transaction to the ledger and applies
// the incremental holding projection. The ledger write is the durable
// operation; a projection failure leaves the stored holding stale until the
// next recompute and is reported as reconciliation pending, not an error.
// POST /api/customers/{customerID}/transactions
func (h *Handlers) HandleAppendTransaction(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	tx, err := req.toTransaction(customerID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := h.ledger.Append(tx)
	if err != nil {
		h.log.Error().Err(err).Str("customer_id", customerID).Msg("Transaction append failed")
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	tx.ID = id

	projected := true
	if err := h.recomputer.ApplyTransaction(tx); err != nil {
		projected = false
		h.log.Warn().Err(err).Str("transaction_id", id).
			Msg("Holding projection failed, pending recompute")
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id":        id,
		"projected": projected,
	})
}

func (req transactionRequest) toTransaction(customerID string) (domain.Transaction, error) {
	kind := domain.TransactionKind(req.Kind)
	if kind != domain.KindPurchase && kind != domain.KindRedemption {
		return domain.Transaction{}, fmt.Errorf("unknown transaction kind: %q", req.Kind)
	}
	if req.InstrumentCode == "" {
		return domain.Transaction{}, fmt.Errorf("instrument_code is required")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid amount: %w", err)
	}
	units, err := decimal.NewFromString(req.Units)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid units: %w", err)
	}
	if amount.Sign() <= 0 || units.Sign() <= 0 {
		return domain.Transaction{}, fmt.Errorf("amount and units must be positive")
	}

	executedAt := time.Now().UTC()
	if req.ExecutedAt != "" {
		executedAt, err = time.Parse(time.RFC3339, req.ExecutedAt)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("invalid executed_at: %w", err)
		}
	}

	return domain.Transaction{
		CustomerID:     customerID,
		InstrumentCode: req.InstrumentCode,
		Kind:           kind,
		Amount:         amount,
		Units:          units,
		UnitPrice:      amount.Div(units),
		ExecutedAt:     executedAt,
		Status:         domain.StatusSettled,
	}, nil
}

// HandleRefreshCustomer refreshes a single customer's profile and tags.
// POST /api/customers/{customerID}/refresh
func (h *Handlers) HandleRefreshCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	instruments, err := h.catalog.GetAllAsMap()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	processed, err := h.orchestrator.RefreshCustomer(customerID, instruments)
	if err != nil {
		h.log.Error().Err(err).Str("customer_id", customerID).Msg("Refresh failed")
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	// An unknown customer is a no-op, not an error: the sweep treats it
	// the same way.
	h.writeJSON(w, http.StatusOK, map[string]any{
		"refreshed": processed,
	})
}

// HandleRecomputePositions rebuilds a customer's holdings from the ledger.
// POST /api/customers/{customerID}/recompute
func (h *Handlers) HandleRecomputePositions(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	holdings, err := h.recomputer.Recompute(customerID)
	if err != nil {
		h.log.Error().Err(err).Str("customer_id", customerID).Msg("Position recompute failed")
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "recomputed",
		"holdings": len(holdings),
	})
}

// HandleRefreshAll runs a full-population refresh sweep.
// POST /api/refresh
func (h *Handlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.RefreshAll(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Full refresh failed")
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":       result.Total,
		"processed":   result.Processed,
		"failed":      result.Failed,
		"timed_out":   result.TimedOut,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// HandleRunValuation runs a valuation pass over the whole catalog.
// POST /api/valuation/run
func (h *Handlers) HandleRunValuation(w http.ResponseWriter, r *http.Request) {
	result, err := h.valuation.Run()
	if err != nil {
		h.log.Error().Err(err).Msg("Valuation run failed")
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetProfile returns a customer's derived profile.
// GET /api/customers/{customerID}/profile
func (h *Handlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	p, err := h.profiles.GetByCustomer(customerID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if p == nil {
		http.NotFound(w, r)
		return
	}

	h.writeJSON(w, http.StatusOK, profileResponse{
		CustomerID:        p.CustomerID,
		TotalMarketValue:  p.TotalMarketValue,
		AvgHoldingAgeDays: p.AvgHoldingAgeDays,
		RecencyDays:       p.RecencyDays,
		Frequency90Days:   p.Frequency90Days,
		RegularInvestor:   p.RegularInvestor,
		UpdatedAt:         p.UpdatedAt.Format(time.RFC3339),
	})
}

// HandleGetHoldings returns a customer's current holdings.
// GET /api/customers/{customerID}/holdings
func (h *Handlers) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	holdings, err := h.positions.GetByCustomer(customerID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	response := make([]holdingResponse, 0, len(holdings))
	for _, hld := range holdings {
		response = append(response, holdingResponse{
			InstrumentCode: hld.InstrumentCode,
			Units:          hld.Units.String(),
			AverageCost:    hld.AverageCost.String(),
			MarketValue:    hld.MarketValue,
			UpdatedAt:      hld.UpdatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetTags returns a customer's current tag set.
// GET /api/customers/{customerID}/tags
func (h *Handlers) HandleGetTags(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	relations, err := h.tags.GetByCustomer(customerID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	response := make([]tagResponse, 0, len(relations))
	for _, rel := range relations {
		response = append(response, tagResponse{Category: rel.Category, Tag: rel.Tag})
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetCustomersByTag returns IDs of customers carrying a tag.
// GET /api/tags/{tag}/customers
func (h *Handlers) HandleGetCustomersByTag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")

	ids, err := h.tags.GetCustomersByTag(tag)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tag":       tag,
		"customers": ids,
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
