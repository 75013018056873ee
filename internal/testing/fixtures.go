package testing

import (
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/shopspring/decimal"
)

// NewCustomerFixtures returns a small set of customers for use in tests.
func NewCustomerFixtures() []*domain.Customer {
	now := time.Now()
	birth1985 := time.Date(1985, 3, 14, 0, 0, 0, 0, time.UTC)
	birth1962 := time.Date(1962, 11, 2, 0, 0, 0, 0, time.UTC)
	return []*domain.Customer{
		{
			ID:         "cust-001",
			Name:       "Alice Hartley",
			Gender:     "female",
			Occupation: "engineer",
			BirthDate:  &birth1985,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:         "cust-002",
			Name:       "Ben Okafor",
			Gender:     "male",
			Occupation: "teacher",
			BirthDate:  &birth1962,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:        "cust-003",
			Name:      "Chen Wei",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// NewInstrumentFixtures returns catalog entries spanning the risk spectrum.
func NewInstrumentFixtures() []*domain.Instrument {
	now := time.Now()
	pricedAt := func(p float64) *float64 { return &p }
	return []*domain.Instrument{
		{
			Code:        "FND-BOND-01",
			Name:        "Core Bond Fund",
			Category:    "bond",
			RiskScore:   1,
			LatestPrice: pricedAt(1.02),
			UpdatedAt:   now,
		},
		{
			Code:        "FND-BAL-01",
			Name:        "Balanced Allocation Fund",
			Category:    "mixed",
			RiskScore:   3,
			LatestPrice: pricedAt(1.15),
			UpdatedAt:   now,
		},
		{
			Code:        "FND-EQ-01",
			Name:        "Global Equity Fund",
			Category:    "equity",
			RiskScore:   5,
			LatestPrice: pricedAt(1.48),
			UpdatedAt:   now,
		},
		{
			Code:      "FND-NEW-01",
			Name:      "New Issue Fund",
			Category:  "equity",
			RiskScore: 4,
			UpdatedAt: now,
		},
	}
}

// NewPurchase builds a settled purchase transaction.
func NewPurchase(customerID, instrumentCode string, amount, units float64, executedAt time.Time) *domain.Transaction {
	amt := decimal.NewFromFloat(amount)
	u := decimal.NewFromFloat(units)
	return &domain.Transaction{
		CustomerID:     customerID,
		InstrumentCode: instrumentCode,
		Kind:           domain.KindPurchase,
		Amount:         amt,
		Units:          u,
		UnitPrice:      amt.Div(u),
		ExecutedAt:     executedAt,
		Status:         domain.StatusSettled,
		CreatedAt:      executedAt,
	}
}

// NewRedemption builds a settled redemption transaction.
func NewRedemption(customerID, instrumentCode string, amount, units float64, executedAt time.Time) *domain.Transaction {
	amt := decimal.NewFromFloat(amount)
	u := decimal.NewFromFloat(units)
	return &domain.Transaction{
		CustomerID:     customerID,
		InstrumentCode: instrumentCode,
		Kind:           domain.KindRedemption,
		Amount:         amt,
		Units:          u,
		UnitPrice:      amt.Div(u),
		ExecutedAt:     executedAt,
		Status:         domain.StatusSettled,
		CreatedAt:      executedAt,
	}
}

// NewAssessment builds a risk assessment at the given level.
func NewAssessment(customerID, level string, score int, assessedAt time.Time) *domain.RiskAssessment {
	return &domain.RiskAssessment{
		CustomerID: customerID,
		Score:      score,
		Level:      level,
		AssessedAt: assessedAt,
	}
}
