package positions

import (
	"testing"
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	testhelpers "github.com/fundlens/fundlens/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*Repository, func()) {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "profile")
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewRepository(db.Conn(), log), cleanup
}

func holding(customerID, instrument string, units, avgCost float64) domain.Holding {
	return domain.Holding{
		CustomerID:     customerID,
		InstrumentCode: instrument,
		Units:          decimal.NewFromFloat(units),
		AverageCost:    decimal.NewFromFloat(avgCost),
		UpdatedAt:      time.Now().UTC(),
	}
}

func TestRepository_ReplaceForCustomer(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	err := repo.ReplaceForCustomer("cust-001", []domain.Holding{
		holding("cust-001", "FND-EQ-01", 100, 1.25),
		holding("cust-001", "FND-BOND-01", 50, 1.02),
	})
	require.NoError(t, err)

	stored, err := repo.GetByCustomer("cust-001")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	// Replacement drops rows absent from the new set.
	err = repo.ReplaceForCustomer("cust-001", []domain.Holding{
		holding("cust-001", "FND-EQ-01", 80, 1.30),
	})
	require.NoError(t, err)

	stored, err = repo.GetByCustomer("cust-001")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "FND-EQ-01", stored[0].InstrumentCode)
	assert.True(t, stored[0].Units.Equal(decimal.NewFromInt(80)))
}

func TestRepository_ReplaceForCustomer_EmptySetDeletesAll(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	require.NoError(t, repo.ReplaceForCustomer("cust-001", []domain.Holding{
		holding("cust-001", "FND-EQ-01", 100, 1.25),
	}))

	require.NoError(t, repo.ReplaceForCustomer("cust-001", nil))

	stored, err := repo.GetByCustomer("cust-001")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRepository_ReplaceForCustomer_DoesNotTouchOtherCustomers(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	require.NoError(t, repo.ReplaceForCustomer("cust-001", []domain.Holding{
		holding("cust-001", "FND-EQ-01", 100, 1.25),
	}))
	require.NoError(t, repo.ReplaceForCustomer("cust-002", []domain.Holding{
		holding("cust-002", "FND-EQ-01", 40, 1.10),
	}))

	require.NoError(t, repo.ReplaceForCustomer("cust-001", nil))

	other, err := repo.GetByCustomer("cust-002")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestRepository_UpsertOne_DeletesOnNonPositiveUnits(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	require.NoError(t, repo.UpsertOne(holding("cust-001", "FND-EQ-01", 100, 1.25)))
	require.NoError(t, repo.UpsertOne(holding("cust-001", "FND-EQ-01", 0, 0)))

	stored, err := repo.GetByCustomer("cust-001")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRepository_UpdateMarketValues(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	require.NoError(t, repo.ReplaceForCustomer("cust-001", []domain.Holding{
		holding("cust-001", "FND-EQ-01", 100, 1.25),
		holding("cust-001", "FND-BOND-01", 50, 1.02),
	}))

	updated, err := repo.UpdateMarketValues([]MarketValueUpdate{
		{CustomerID: "cust-001", InstrumentCode: "FND-EQ-01", MarketValue: 148.0},
		{CustomerID: "cust-001", InstrumentCode: "FND-BOND-01", MarketValue: 51.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	stored, err := repo.GetByCustomer("cust-001")
	require.NoError(t, err)
	for _, h := range stored {
		require.NotNil(t, h.MarketValue)
		if h.InstrumentCode == "FND-EQ-01" {
			assert.InDelta(t, 148.0, *h.MarketValue, 1e-9)
		}
	}
}
