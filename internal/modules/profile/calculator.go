// Package profile derives the quantitative indicators of a customer's
// investment behavior from holdings and transaction history.
package profile

import (
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// frequencyWindow is the trailing window for the transaction count
// indicator.
const frequencyWindow = 90 * 24 * time.Hour

// Calculator derives a Profile from holdings and transactions.
// Calculation never fails: absent indicators come out as nil/zero.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new profile calculator.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("service", "profile_calculator").Logger(),
	}
}

// Calculate derives one customer's profile as of now.
func (c *Calculator) Calculate(customerID string, holdings []domain.Holding, txs []domain.Transaction, now time.Time) domain.Profile {
	p := domain.Profile{
		CustomerID: customerID,
		UpdatedAt:  now,
	}

	for _, h := range holdings {
		if h.MarketValue != nil {
			p.TotalMarketValue += *h.MarketValue
		}
	}

	p.AvgHoldingAgeDays = averageHoldingAge(holdings, txs, now)
	p.RecencyDays = recencyDays(txs, now)
	p.Frequency90Days = countSince(txs, now.Add(-frequencyWindow))
	p.RegularInvestor = HasRegularInvestmentPattern(txs, now)

	return p
}

// averageHoldingAge returns the mean age in days of holdings that have at
// least one matching purchase transaction, measured from the instrument's
// first purchase. Holdings with no matching purchase are a data
// inconsistency and are excluded from the mean rather than counted as
// zero. Returns nil when no holding qualifies.
func averageHoldingAge(holdings []domain.Holding, txs []domain.Transaction, now time.Time) *float64 {
	firstPurchase := make(map[string]time.Time)
	for _, tx := range txs {
		if tx.Kind != domain.KindPurchase {
			continue
		}
		if existing, ok := firstPurchase[tx.InstrumentCode]; !ok || tx.ExecutedAt.Before(existing) {
			firstPurchase[tx.InstrumentCode] = tx.ExecutedAt
		}
	}

	var ages []float64
	for _, h := range holdings {
		bought, ok := firstPurchase[h.InstrumentCode]
		if !ok {
			continue
		}
		ages = append(ages, now.Sub(bought).Hours()/24)
	}

	if len(ages) == 0 {
		return nil
	}

	mean := stat.Mean(ages, nil)
	return &mean
}

// recencyDays returns whole days since the most recent transaction, or nil
// when the customer has none.
func recencyDays(txs []domain.Transaction, now time.Time) *int {
	var last time.Time
	for _, tx := range txs {
		if tx.ExecutedAt.After(last) {
			last = tx.ExecutedAt
		}
	}
	if last.IsZero() {
		return nil
	}

	days := int(now.Sub(last).Hours() / 24)
	return &days
}

func countSince(txs []domain.Transaction, cutoff time.Time) int {
	count := 0
	for _, tx := range txs {
		if !tx.ExecutedAt.Before(cutoff) {
			count++
		}
	}
	return count
}

// HasRegularInvestmentPattern reports whether any 3 consecutive calendar
// months within the trailing 12 each contain at least one purchase,
// across all instruments.
func HasRegularInvestmentPattern(txs []domain.Transaction, now time.Time) bool {
	windowStart := now.AddDate(-1, 0, 0)

	// Month index relative to the current month: 0 = this month,
	// 1 = last month, ... 11 = eleven months back.
	monthsWithPurchase := make(map[int]bool)
	currentMonth := now.Year()*12 + int(now.Month()) - 1
	for _, tx := range txs {
		if tx.Kind != domain.KindPurchase {
			continue
		}
		if tx.ExecutedAt.Before(windowStart) || tx.ExecutedAt.After(now) {
			continue
		}
		txMonth := tx.ExecutedAt.Year()*12 + int(tx.ExecutedAt.Month()) - 1
		offset := currentMonth - txMonth
		if offset >= 0 && offset < 12 {
			monthsWithPurchase[offset] = true
		}
	}

	streak := 0
	for offset := 0; offset < 12; offset++ {
		if monthsWithPurchase[offset] {
			streak++
			if streak >= 3 {
				return true
			}
		} else {
			streak = 0
		}
	}

	return false
}
