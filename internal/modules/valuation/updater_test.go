package valuation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/fundlens/fundlens/internal/modules/positions"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	instruments []domain.Instrument
	written     map[string]float64
}

func (f *fakeCatalog) GetAll() ([]domain.Instrument, error) {
	return f.instruments, nil
}

func (f *fakeCatalog) UpdatePrices(prices map[string]float64) (int, error) {
	f.written = prices
	return len(prices), nil
}

type fakeHoldings struct {
	holdings []domain.Holding
	written  []positions.MarketValueUpdate
}

func (f *fakeHoldings) GetAll() ([]domain.Holding, error) {
	return f.holdings, nil
}

func (f *fakeHoldings) UpdateMarketValues(values []positions.MarketValueUpdate) (int, error) {
	f.written = values
	return len(values), nil
}

func priced(code string, price float64) domain.Instrument {
	return domain.Instrument{Code: code, RiskScore: 3, LatestPrice: &price}
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestRun_SeedsUnpricedInstruments(t *testing.T) {
	catalog := &fakeCatalog{instruments: []domain.Instrument{
		{Code: "FND-NEW-01", RiskScore: 4},
	}}
	holdings := &fakeHoldings{}
	u := NewUpdater(catalog, holdings, rand.New(rand.NewSource(1)), testLogger())

	result, err := u.Run()

	require.NoError(t, err)
	assert.Equal(t, 1, result.PricesUpdated)
	assert.Equal(t, 1.0, catalog.written["FND-NEW-01"])
}

func TestRun_DriftStaysWithinBounds(t *testing.T) {
	catalog := &fakeCatalog{instruments: []domain.Instrument{
		priced("FND-EQ-01", 1.50),
	}}
	holdings := &fakeHoldings{}
	u := NewUpdater(catalog, holdings, rand.New(rand.NewSource(7)), testLogger())

	for i := 0; i < 200; i++ {
		before := catalog.written["FND-EQ-01"]
		if i == 0 {
			before = 1.50
		}

		_, err := u.Run()
		require.NoError(t, err)

		after := catalog.written["FND-EQ-01"]
		ratio := after / before
		assert.True(t, ratio >= 1-0.025 && ratio <= 1+0.025,
			"run %d: ratio %f out of bounds", i, ratio)

		catalog.instruments[0].LatestPrice = &after
	}
}

func TestRun_DeterministicWithFixedSeed(t *testing.T) {
	run := func() float64 {
		catalog := &fakeCatalog{instruments: []domain.Instrument{
			priced("FND-EQ-01", 1.50),
		}}
		u := NewUpdater(catalog, &fakeHoldings{}, rand.New(rand.NewSource(42)), testLogger())
		_, err := u.Run()
		require.NoError(t, err)
		return catalog.written["FND-EQ-01"]
	}

	assert.Equal(t, run(), run())
}

func TestRun_MarketValueIsUnitsTimesPrice(t *testing.T) {
	catalog := &fakeCatalog{instruments: []domain.Instrument{
		priced("FND-EQ-01", 2.0),
	}}
	holdings := &fakeHoldings{holdings: []domain.Holding{
		{
			CustomerID:     "cust-001",
			InstrumentCode: "FND-EQ-01",
			Units:          decimal.NewFromInt(300),
			AverageCost:    decimal.NewFromFloat(1.25),
		},
	}}
	u := NewUpdater(catalog, holdings, rand.New(rand.NewSource(3)), testLogger())

	result, err := u.Run()

	require.NoError(t, err)
	assert.Equal(t, 1, result.HoldingsUpdated)
	require.Len(t, holdings.written, 1)

	newPrice := catalog.written["FND-EQ-01"]
	assert.InDelta(t, 300*newPrice, holdings.written[0].MarketValue, 1e-9)
	assert.False(t, math.IsNaN(holdings.written[0].MarketValue))
}

func TestRun_HoldingWithUnknownInstrumentSkipped(t *testing.T) {
	catalog := &fakeCatalog{instruments: []domain.Instrument{
		priced("FND-EQ-01", 2.0),
	}}
	holdings := &fakeHoldings{holdings: []domain.Holding{
		{CustomerID: "cust-001", InstrumentCode: "FND-EQ-01", Units: decimal.NewFromInt(10)},
		{CustomerID: "cust-001", InstrumentCode: "FND-GONE-01", Units: decimal.NewFromInt(10)},
	}}
	u := NewUpdater(catalog, holdings, rand.New(rand.NewSource(3)), testLogger())

	result, err := u.Run()

	require.NoError(t, err)
	assert.Equal(t, 1, result.HoldingsUpdated)
	require.Len(t, holdings.written, 1)
	assert.Equal(t, "FND-EQ-01", holdings.written[0].InstrumentCode)
}
