// Package refresh drives the per-customer profile-and-tags pipeline,
// either synchronously for one customer or fanned out across a bounded
// worker pool for the whole population.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/fundlens/fundlens/internal/modules/positions"
	"github.com/fundlens/fundlens/internal/modules/profile"
	"github.com/fundlens/fundlens/internal/modules/tags"
	"github.com/fundlens/fundlens/internal/workers"
	"github.com/rs/zerolog"
)

// DefaultSweepTimeout bounds the join barrier of a full-population sweep.
// Exceeding it is a degraded-completion case, not a fatal error.
const DefaultSweepTimeout = time.Hour

// CustomerSource supplies customer reference data.
type CustomerSource interface {
	GetAll() ([]domain.Customer, error)
	GetByID(id string) (*domain.Customer, error)
}

// PositionRecomputer rebuilds a customer's holdings from the ledger.
type PositionRecomputer interface {
	Recompute(customerID string) ([]domain.Holding, error)
}

// MarketValueStore batch-writes holding market values.
type MarketValueStore interface {
	UpdateMarketValues(values []positions.MarketValueUpdate) (int, error)
}

// TransactionSource supplies ordered transaction history.
type TransactionSource interface {
	GetByCustomer(customerID string) ([]domain.Transaction, error)
}

// AssessmentSource supplies the latest risk assessment.
type AssessmentSource interface {
	GetLatest(customerID string) (*domain.RiskAssessment, error)
}

// InstrumentSource supplies the instrument catalog.
type InstrumentSource interface {
	GetAllAsMap() (map[string]domain.Instrument, error)
}

// ProfileStore persists computed profiles.
type ProfileStore interface {
	Upsert(p domain.Profile) error
}

// TagStore atomically replaces a customer's tag set.
type TagStore interface {
	ReplaceForCustomer(customerID string, tagSet []domain.TagRelation) error
}

// Orchestrator wires the profile calculator and tag engine to storage.
type Orchestrator struct {
	customers    CustomerSource
	recomputer   PositionRecomputer
	marketValues MarketValueStore
	transactions TransactionSource
	assessments  AssessmentSource
	instruments  InstrumentSource
	calculator   *profile.Calculator
	profiles     ProfileStore
	engine       *tags.Engine
	tagStore     TagStore
	pool         *workers.Pool
	sweepTimeout time.Duration
	log          zerolog.Logger
}

// Config holds orchestrator dependencies.
type Config struct {
	Customers    CustomerSource
	Recomputer   PositionRecomputer
	MarketValues MarketValueStore
	Transactions TransactionSource
	Assessments  AssessmentSource
	Instruments  InstrumentSource
	Calculator   *profile.Calculator
	Profiles     ProfileStore
	Engine       *tags.Engine
	TagStore     TagStore
	Pool         *workers.Pool
	SweepTimeout time.Duration
	Log          zerolog.Logger
}

// New creates a refresh orchestrator.
func New(cfg Config) *Orchestrator {
	timeout := cfg.SweepTimeout
	if timeout <= 0 {
		timeout = DefaultSweepTimeout
	}

	return &Orchestrator{
		customers:    cfg.Customers,
		recomputer:   cfg.Recomputer,
		marketValues: cfg.MarketValues,
		transactions: cfg.Transactions,
		assessments:  cfg.Assessments,
		instruments:  cfg.Instruments,
		calculator:   cfg.Calculator,
		profiles:     cfg.Profiles,
		engine:       cfg.Engine,
		tagStore:     cfg.TagStore,
		pool:         cfg.Pool,
		sweepTimeout: timeout,
		log:          cfg.Log.With().Str("service", "refresh").Logger(),
	}
}

// RefreshCustomer runs the single-customer contract: recompute positions
// from the ledger, derive the profile, evaluate the tag rules, persist. An
// unknown customer is a no-op, not an error. When instruments is nil the
// catalog is loaded for this call; sweeps pass a precomputed map to avoid
// repeated lookups. Returns false when the customer does not exist.
func (o *Orchestrator) RefreshCustomer(customerID string, instruments map[string]domain.Instrument) (bool, error) {
	customer, err := o.customers.GetByID(customerID)
	if err != nil {
		return false, fmt.Errorf("failed to load customer: %w", err)
	}
	if customer == nil {
		o.log.Debug().Str("customer_id", customerID).Msg("Customer not found, skipping refresh")
		return false, nil
	}

	if instruments == nil {
		instruments, err = o.instruments.GetAllAsMap()
		if err != nil {
			return false, fmt.Errorf("failed to load instrument catalog: %w", err)
		}
	}

	// Positions are rebuilt from the ledger before anything is derived
	// from them; the stored rows may predate recent transactions.
	holdings, err := o.recomputer.Recompute(customerID)
	if err != nil {
		return false, fmt.Errorf("failed to recompute positions: %w", err)
	}
	if err := o.priceHoldings(holdings, instruments); err != nil {
		return false, err
	}

	txs, err := o.transactions.GetByCustomer(customerID)
	if err != nil {
		return false, fmt.Errorf("failed to load transactions: %w", err)
	}
	assessment, err := o.assessments.GetLatest(customerID)
	if err != nil {
		return false, fmt.Errorf("failed to load risk assessment: %w", err)
	}

	now := time.Now().UTC()
	p := o.calculator.Calculate(customerID, holdings, txs, now)
	if err := o.profiles.Upsert(p); err != nil {
		return false, fmt.Errorf("failed to persist profile: %w", err)
	}

	tagSet := o.engine.Assign(tags.AssignInput{
		Customer:     *customer,
		Profile:      p,
		Assessment:   assessment,
		Holdings:     holdings,
		Transactions: txs,
		Instruments:  instruments,
		Now:          now,
	})

	if err := o.tagStore.ReplaceForCustomer(customerID, tagSet); err != nil {
		return false, fmt.Errorf("failed to replace tags: %w", err)
	}

	return true, nil
}

// priceHoldings values freshly recomputed holdings at the catalog's latest
// prices, in place, and persists the values. Recomputation only yields
// units and cost basis; market value is units times latest price, the same
// invariant the valuation updater maintains. Unpriced or unknown
// instruments stay unvalued.
func (o *Orchestrator) priceHoldings(holdings []domain.Holding, instruments map[string]domain.Instrument) error {
	var updates []positions.MarketValueUpdate
	for i := range holdings {
		inst, ok := instruments[holdings[i].InstrumentCode]
		if !ok || inst.LatestPrice == nil {
			continue
		}
		units, _ := holdings[i].Units.Float64()
		value := units * *inst.LatestPrice
		holdings[i].MarketValue = &value
		updates = append(updates, positions.MarketValueUpdate{
			CustomerID:     holdings[i].CustomerID,
			InstrumentCode: holdings[i].InstrumentCode,
			MarketValue:    value,
		})
	}
	if len(updates) == 0 {
		return nil
	}
	if _, err := o.marketValues.UpdateMarketValues(updates); err != nil {
		return fmt.Errorf("failed to persist market values: %w", err)
	}
	return nil
}

// SweepResult summarizes a full-population refresh.
type SweepResult struct {
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	TimedOut  bool          `json:"timed_out"`
	Duration  time.Duration `json:"-"`
}

// RefreshAll runs the single-customer contract for every customer across
// the worker pool. The customer list and instrument map are loaded once;
// the map is shared read-only by all units. A failing unit is logged and
// never blocks or cancels siblings. The join barrier is bounded by the
// sweep timeout; on expiry, unstarted units are dropped and the sweep
// returns with TimedOut set rather than an error.
func (o *Orchestrator) RefreshAll(ctx context.Context) (SweepResult, error) {
	start := time.Now()

	customerList, err := o.customers.GetAll()
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to load customers: %w", err)
	}
	if len(customerList) == 0 {
		o.log.Info().Msg("No customers to refresh")
		return SweepResult{}, nil
	}

	instruments, err := o.instruments.GetAllAsMap()
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to load instrument catalog: %w", err)
	}

	o.log.Info().
		Int("customers", len(customerList)).
		Int("workers", o.pool.Size()).
		Msg("Starting full-population refresh")

	sweepCtx, cancel := context.WithTimeout(ctx, o.sweepTimeout)
	defer cancel()

	taskList := make([]workers.Task, len(customerList))
	for i, c := range customerList {
		customerID := c.ID
		taskList[i] = workers.Task{
			ID: customerID,
			Run: func() error {
				_, err := o.RefreshCustomer(customerID, instruments)
				return err
			},
		}
	}

	results := o.pool.RunAll(sweepCtx, taskList)

	res := SweepResult{
		Total:    len(customerList),
		Duration: time.Since(start),
	}
	for _, r := range results {
		if r.Err == nil {
			res.Processed++
			continue
		}
		res.Failed++
		if errors.Is(r.Err, context.DeadlineExceeded) {
			res.TimedOut = true
		}
		o.log.Warn().
			Err(r.Err).
			Str("customer_id", r.ID).
			Msg("Customer refresh failed, continuing with siblings")
	}

	event := o.log.Info()
	if res.TimedOut {
		event = o.log.Warn()
	}
	event.
		Int("total", res.Total).
		Int("processed", res.Processed).
		Int("failed", res.Failed).
		Bool("timed_out", res.TimedOut).
		Dur("duration", res.Duration).
		Msg("Full-population refresh completed")

	return res, nil
}
