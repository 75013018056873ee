package positions

import (
	"fmt"
	"sort"
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// avgCostPrecision is the display precision applied when persisting
// average cost. Intermediate division keeps full decimal precision.
const avgCostPrecision = 4

// TransactionSource supplies a customer's ordered transaction history.
type TransactionSource interface {
	GetByCustomer(customerID string) ([]domain.Transaction, error)
}

// HoldingStore persists recomputed holdings.
type HoldingStore interface {
	ReplaceForCustomer(customerID string, holdings []domain.Holding) error
	GetByCustomer(customerID string) ([]domain.Holding, error)
	UpsertOne(h domain.Holding) error
}

// Recomputer rebuilds a customer's holdings from their full transaction
// history using weighted-average cost accounting. It is the source of
// truth for holdings; the incremental ApplyTransaction path is a cached
// projection reconciled by the next full recompute.
type Recomputer struct {
	transactions TransactionSource
	holdings     HoldingStore
	log          zerolog.Logger
}

// NewRecomputer creates a new position recomputer.
func NewRecomputer(transactions TransactionSource, holdings HoldingStore, log zerolog.Logger) *Recomputer {
	return &Recomputer{
		transactions: transactions,
		holdings:     holdings,
		log:          log.With().Str("service", "recomputer").Logger(),
	}
}

// Recompute rebuilds and persists the complete holding set for one
// customer, replacing any previously stored holdings. Idempotent: repeated
// invocations on an unchanged ledger yield identical holdings. An empty
// history deletes any stale rows and is not an error.
func (rc *Recomputer) Recompute(customerID string) ([]domain.Holding, error) {
	history, err := rc.transactions.GetByCustomer(customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}

	holdings := ComputeHoldings(customerID, history, time.Now().UTC())

	if err := rc.holdings.ReplaceForCustomer(customerID, holdings); err != nil {
		return nil, fmt.Errorf("failed to replace holdings: %w", err)
	}

	rc.log.Debug().
		Str("customer_id", customerID).
		Int("transactions", len(history)).
		Int("holdings", len(holdings)).
		Msg("Positions recomputed")

	return holdings, nil
}

// ComputeHoldings derives current holdings from a transaction history.
// Pure function: no persistence. Transactions are sorted by execution time
// before processing; timestamp-ascending order is a correctness
// precondition of the cost-basis arithmetic, not a scheduling guarantee.
func ComputeHoldings(customerID string, history []domain.Transaction, now time.Time) []domain.Holding {
	sorted := make([]domain.Transaction, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExecutedAt.Before(sorted[j].ExecutedAt)
	})

	type running struct {
		units       decimal.Decimal
		costPool    decimal.Decimal
		lastAvgCost decimal.Decimal
	}

	books := make(map[string]*running)
	var order []string // deterministic output order: first appearance

	for _, tx := range sorted {
		book, ok := books[tx.InstrumentCode]
		if !ok {
			book = &running{}
			books[tx.InstrumentCode] = book
			order = append(order, tx.InstrumentCode)
		}

		switch tx.Kind {
		case domain.KindPurchase:
			book.units = book.units.Add(tx.Units)
			book.costPool = book.costPool.Add(tx.Amount)

		case domain.KindRedemption:
			// Average cost is recomputed from running totals at each
			// redemption. When units are not positive the last computed
			// average is reused; a consistent ledger never hits that path.
			avgCost := book.lastAvgCost
			if book.units.Sign() > 0 {
				avgCost = book.costPool.Div(book.units)
			}
			book.lastAvgCost = avgCost

			redeemedCost := tx.Units.Mul(avgCost)
			book.units = book.units.Sub(tx.Units)
			book.costPool = book.costPool.Sub(redeemedCost)
		}

		if book.units.Sign() > 0 {
			book.lastAvgCost = book.costPool.Div(book.units)
		}
	}

	var holdings []domain.Holding
	for _, code := range order {
		book := books[code]
		if book.units.Sign() <= 0 {
			// Fully redeemed instruments emit no holding row.
			continue
		}

		holdings = append(holdings, domain.Holding{
			CustomerID:     customerID,
			InstrumentCode: code,
			Units:          book.units,
			AverageCost:    book.costPool.Div(book.units).Round(avgCostPrecision),
			UpdatedAt:      now,
		})
	}

	return holdings
}

// ApplyTransaction adjusts a single holding from one new transaction
// without replaying history. This is a fast-path projection only: it does
// not rebuild cost pools from the full ledger, so it may drift from the
// canonical result when the ledger is amended retroactively. Run Recompute
// to reconcile; Recompute always wins.
func (rc *Recomputer) ApplyTransaction(tx domain.Transaction) error {
	existing, err := rc.holdings.GetByCustomer(tx.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to load holdings: %w", err)
	}

	var current *domain.Holding
	for i := range existing {
		if existing[i].InstrumentCode == tx.InstrumentCode {
			current = &existing[i]
			break
		}
	}

	units := decimal.Zero
	costPool := decimal.Zero
	if current != nil {
		units = current.Units
		costPool = current.AverageCost.Mul(current.Units)
	}

	switch tx.Kind {
	case domain.KindPurchase:
		units = units.Add(tx.Units)
		costPool = costPool.Add(tx.Amount)
	case domain.KindRedemption:
		avgCost := decimal.Zero
		if units.Sign() > 0 {
			avgCost = costPool.Div(units)
		}
		costPool = costPool.Sub(tx.Units.Mul(avgCost))
		units = units.Sub(tx.Units)
	default:
		return fmt.Errorf("unknown transaction kind: %s", tx.Kind)
	}

	holding := domain.Holding{
		CustomerID:     tx.CustomerID,
		InstrumentCode: tx.InstrumentCode,
		Units:          units,
		UpdatedAt:      time.Now().UTC(),
	}
	if units.Sign() > 0 {
		holding.AverageCost = costPool.Div(units).Round(avgCostPrecision)
	}

	return rc.holdings.UpsertOne(holding)
}
