package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/fundlens/fundlens/internal/modules/positions"
	"github.com/fundlens/fundlens/internal/modules/profile"
	"github.com/fundlens/fundlens/internal/modules/tags"
	"github.com/fundlens/fundlens/internal/workers"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu sync.Mutex

	customers   map[string]domain.Customer
	instruments map[string]domain.Instrument

	recomputed     map[string][]domain.Holding
	recomputeErr   map[string]error
	recomputeCalls map[string]int

	marketUpdates []positions.MarketValueUpdate

	profiles map[string]domain.Profile
	tagSets  map[string][]domain.TagRelation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers:      map[string]domain.Customer{},
		instruments:    map[string]domain.Instrument{},
		recomputed:     map[string][]domain.Holding{},
		recomputeErr:   map[string]error{},
		recomputeCalls: map[string]int{},
		profiles:       map[string]domain.Profile{},
		tagSets:        map[string][]domain.TagRelation{},
	}
}

func (f *fakeStore) GetAll() ([]domain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Customer, 0, len(f.customers))
	for _, c := range f.customers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) GetByID(id string) (*domain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) Recompute(customerID string) ([]domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputeCalls[customerID]++
	if err := f.recomputeErr[customerID]; err != nil {
		return nil, err
	}
	return f.recomputed[customerID], nil
}

func (f *fakeStore) UpdateMarketValues(values []positions.MarketValueUpdate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketUpdates = append(f.marketUpdates, values...)
	return len(values), nil
}

func (f *fakeStore) GetLatest(customerID string) (*domain.RiskAssessment, error) {
	return nil, nil
}

func (f *fakeStore) GetAllAsMap() (map[string]domain.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instruments, nil
}

func (f *fakeStore) Upsert(p domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.CustomerID] = p
	return nil
}

func (f *fakeStore) ReplaceForCustomer(customerID string, tagSet []domain.TagRelation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagSets[customerID] = tagSet
	return nil
}

// txSource adapts fakeStore to the transaction interface; recompute results
// keyed by customer already live on fakeStore, so transactions get a shim.
type txSource struct{}

func (txSource) GetByCustomer(customerID string) ([]domain.Transaction, error) {
	return nil, nil
}

func newTestOrchestrator(store *fakeStore, numWorkers int, timeout time.Duration) *Orchestrator {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return New(Config{
		Customers:    store,
		Recomputer:   store,
		MarketValues: store,
		Transactions: txSource{},
		Assessments:  store,
		Instruments:  store,
		Calculator:   profile.NewCalculator(log),
		Profiles:     store,
		Engine:       tags.NewEngine(log),
		TagStore:     store,
		Pool:         workers.NewPool(numWorkers),
		SweepTimeout: timeout,
		Log:          log,
	})
}

func tagFor(tagSet []domain.TagRelation, category string) string {
	for _, rel := range tagSet {
		if rel.Category == category {
			return rel.Tag
		}
	}
	return ""
}

func TestRefreshCustomer_UnknownCustomerIsNoOp(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, 2, time.Minute)

	processed, err := o.RefreshCustomer("nobody", nil)

	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, store.profiles)
	assert.Empty(t, store.tagSets)
	assert.Zero(t, store.recomputeCalls["nobody"])
}

func TestRefreshCustomer_PersistsProfileAndTags(t *testing.T) {
	store := newFakeStore()
	store.customers["cust-001"] = domain.Customer{ID: "cust-001", Name: "Alice", Gender: "female"}
	o := newTestOrchestrator(store, 2, time.Minute)

	processed, err := o.RefreshCustomer("cust-001", nil)

	require.NoError(t, err)
	assert.True(t, processed)
	assert.Contains(t, store.profiles, "cust-001")
	assert.Contains(t, store.tagSets, "cust-001")
	assert.NotEmpty(t, store.tagSets["cust-001"])
}

func TestRefreshCustomer_DerivesFromRecomputedPositions(t *testing.T) {
	store := newFakeStore()
	store.customers["cust-001"] = domain.Customer{ID: "cust-001", Name: "Alice"}
	// The ledger says the position was fully redeemed: recomputation yields
	// no holdings, whatever a stale holdings row might still claim.
	store.recomputed["cust-001"] = nil

	o := newTestOrchestrator(store, 2, time.Minute)

	processed, err := o.RefreshCustomer("cust-001", nil)

	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 1, store.recomputeCalls["cust-001"])

	p := store.profiles["cust-001"]
	assert.Zero(t, p.TotalMarketValue)
	assert.Equal(t, tags.TagAssetTierLow, tagFor(store.tagSets["cust-001"], tags.CategoryAssetTier))
}

func TestRefreshCustomer_PricesHoldingsFromCatalog(t *testing.T) {
	store := newFakeStore()
	store.customers["cust-001"] = domain.Customer{ID: "cust-001", Name: "Alice"}

	price := 1.5
	store.instruments["FND-EQ-01"] = domain.Instrument{Code: "FND-EQ-01", RiskScore: 5, LatestPrice: &price}
	store.instruments["FND-NEW-01"] = domain.Instrument{Code: "FND-NEW-01", RiskScore: 4}

	// Freshly recomputed holdings carry units and cost only; market value
	// comes from the catalog price.
	store.recomputed["cust-001"] = []domain.Holding{
		{CustomerID: "cust-001", InstrumentCode: "FND-EQ-01", Units: decimal.NewFromInt(100), AverageCost: decimal.NewFromFloat(1.2)},
		{CustomerID: "cust-001", InstrumentCode: "FND-NEW-01", Units: decimal.NewFromInt(50), AverageCost: decimal.NewFromInt(1)},
	}

	o := newTestOrchestrator(store, 2, time.Minute)

	processed, err := o.RefreshCustomer("cust-001", nil)

	require.NoError(t, err)
	assert.True(t, processed)

	require.Len(t, store.marketUpdates, 1)
	assert.Equal(t, "FND-EQ-01", store.marketUpdates[0].InstrumentCode)
	assert.InDelta(t, 150.0, store.marketUpdates[0].MarketValue, 1e-9)

	// The profile sees the freshly priced value; the unpriced instrument
	// contributes nothing.
	assert.InDelta(t, 150.0, store.profiles["cust-001"].TotalMarketValue, 1e-9)
}

func TestRefreshAll_FaultIsolation(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("cust-%03d", i)
		store.customers[id] = domain.Customer{ID: id, Name: id}
	}
	// One customer's position recompute always fails.
	store.recomputeErr["cust-042"] = errors.New("disk on fire")

	o := newTestOrchestrator(store, 4, time.Minute)

	result, err := o.RefreshAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 100, result.Total)
	assert.Equal(t, 99, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.TimedOut)

	// The failing customer kept no partial state; everyone else was tagged.
	assert.NotContains(t, store.tagSets, "cust-042")
	assert.Len(t, store.tagSets, 99)
}

func TestRefreshAll_RecomputesEveryCustomer(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("cust-%03d", i)
		store.customers[id] = domain.Customer{ID: id, Name: id}
	}

	o := newTestOrchestrator(store, 4, time.Minute)

	result, err := o.RefreshAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 20, result.Processed)
	for id := range store.customers {
		assert.Equal(t, 1, store.recomputeCalls[id], "customer %s", id)
	}
}

func TestRefreshAll_EmptyPopulation(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, 2, time.Minute)

	result, err := o.RefreshAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, result.Processed)
}

func TestRefreshAll_TimeoutMarksSweepDegraded(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("cust-%03d", i)
		store.customers[id] = domain.Customer{ID: id, Name: id}
	}

	// A timeout that has already expired: no unit should start.
	o := newTestOrchestrator(store, 2, time.Nanosecond)

	result, err := o.RefreshAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 50, result.Total)
	assert.True(t, result.TimedOut)
	assert.Equal(t, result.Total, result.Processed+result.Failed)
}
