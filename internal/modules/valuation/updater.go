// Package valuation implements the nightly price perturbation and
// market-value recompute. Each run continues the random walk from the
// currently stored prices, so repeated runs are safe.
package valuation

import (
	"fmt"
	"math/rand"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/fundlens/fundlens/internal/modules/positions"
	"github.com/rs/zerolog"
)

// maxDrift bounds the per-run price perturbation at +/-2.5%.
const maxDrift = 0.025

// seedPrice is assigned to instruments that have never been priced.
const seedPrice = 1.0

// InstrumentStore reads the catalog and batch-writes new prices.
type InstrumentStore interface {
	GetAll() ([]domain.Instrument, error)
	UpdatePrices(prices map[string]float64) (int, error)
}

// HoldingStore reads all holdings and batch-writes market values.
type HoldingStore interface {
	GetAll() ([]domain.Holding, error)
	UpdateMarketValues(values []positions.MarketValueUpdate) (int, error)
}

// Updater perturbs instrument prices and recomputes holding market
// values. The random source is injected so tests can fix the walk.
type Updater struct {
	instruments InstrumentStore
	holdings    HoldingStore
	rng         *rand.Rand
	log         zerolog.Logger
}

// NewUpdater creates a valuation updater. A nil rng is replaced with a
// time-seeded source.
func NewUpdater(instruments InstrumentStore, holdings HoldingStore, rng *rand.Rand, log zerolog.Logger) *Updater {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Updater{
		instruments: instruments,
		holdings:    holdings,
		rng:         rng,
		log:         log.With().Str("service", "valuation").Logger(),
	}
}

// Result summarizes one valuation run.
type Result struct {
	PricesUpdated   int `json:"prices_updated"`
	HoldingsUpdated int `json:"holdings_updated"`
}

// Run perturbs every instrument's latest price by a bounded random step
// (seeding unpriced instruments), batch-writes the prices, then recomputes
// every holding's market value as units times the new price and
// batch-writes those. Both writes use the engine-wide retry policy via
// the stores.
func (u *Updater) Run() (Result, error) {
	instruments, err := u.instruments.GetAll()
	if err != nil {
		return Result{}, fmt.Errorf("failed to load instruments: %w", err)
	}

	prices := make(map[string]float64, len(instruments))
	for _, inst := range instruments {
		prices[inst.Code] = u.nextPrice(inst.LatestPrice)
	}

	pricesUpdated, err := u.instruments.UpdatePrices(prices)
	if err != nil {
		return Result{}, fmt.Errorf("failed to write instrument prices: %w", err)
	}

	holdings, err := u.holdings.GetAll()
	if err != nil {
		return Result{}, fmt.Errorf("failed to load holdings: %w", err)
	}

	var updates []positions.MarketValueUpdate
	for _, h := range holdings {
		price, ok := prices[h.InstrumentCode]
		if !ok {
			// Holding references an instrument missing from the catalog;
			// leave its market value untouched.
			continue
		}
		units, _ := h.Units.Float64()
		updates = append(updates, positions.MarketValueUpdate{
			CustomerID:     h.CustomerID,
			InstrumentCode: h.InstrumentCode,
			MarketValue:    units * price,
		})
	}

	holdingsUpdated, err := u.holdings.UpdateMarketValues(updates)
	if err != nil {
		return Result{}, fmt.Errorf("failed to write market values: %w", err)
	}

	u.log.Info().
		Int("prices_updated", pricesUpdated).
		Int("holdings_updated", holdingsUpdated).
		Msg("Valuation update completed")

	return Result{PricesUpdated: pricesUpdated, HoldingsUpdated: holdingsUpdated}, nil
}

// nextPrice applies a single random-walk step, or seeds the initial price.
func (u *Updater) nextPrice(current *float64) float64 {
	if current == nil || *current <= 0 {
		return seedPrice
	}

	drift := (u.rng.Float64()*2 - 1) * maxDrift
	return *current * (1 + drift)
}
