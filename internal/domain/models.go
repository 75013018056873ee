// Package domain contains the core entities of the customer investment
// profile engine. The domain layer is pure: no database, logging, or
// transport dependencies.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind distinguishes ledger entries.
type TransactionKind string

const (
	// KindPurchase is a buy of fund units.
	KindPurchase TransactionKind = "purchase"
	// KindRedemption is a sale of fund units.
	KindRedemption TransactionKind = "redemption"
)

// TransactionStatus marks the settlement state of a ledger entry.
type TransactionStatus string

const (
	// StatusSettled entries participate in cost-basis arithmetic.
	StatusSettled TransactionStatus = "settled"
	// StatusPending entries are recorded but not yet confirmed.
	StatusPending TransactionStatus = "pending"
)

// Customer is reference data owned by the administrative layer.
// The engine treats it as read-only input.
type Customer struct {
	ID         string
	Name       string
	Gender     string // optional, empty when undeclared
	Occupation string // optional
	BirthDate  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Instrument is a catalog entry for a tradable fund.
// RiskScore is a 1-5 integer, 5 being the most aggressive.
type Instrument struct {
	Code        string
	Name        string
	Category    string
	RiskScore   int
	LatestPrice *float64 // nil until the first valuation run seeds it
	UpdatedAt   time.Time
}

// Transaction is an immutable ledger entry. Entries are append-only and
// must be processed in non-decreasing ExecutedAt order for cost-basis
// arithmetic to be correct.
type Transaction struct {
	ID             string
	CustomerID     string
	InstrumentCode string
	Kind           TransactionKind
	Amount         decimal.Decimal // monetary amount of the trade
	Units          decimal.Decimal
	UnitPrice      decimal.Decimal // price per unit at execution
	ExecutedAt     time.Time
	Status         TransactionStatus
	CreatedAt      time.Time
}

// Holding is a customer's current position in one instrument, derived
// entirely from the transaction ledger. A holding with zero units is
// never persisted.
type Holding struct {
	CustomerID     string
	InstrumentCode string
	Units          decimal.Decimal
	AverageCost    decimal.Decimal // weighted-average cost per unit
	MarketValue    *float64        // nil until valuation; units * latest price
	UpdatedAt      time.Time
}

// Profile holds the quantitative indicators derived per customer.
// Absent indicators are nil/zero, never an error.
type Profile struct {
	CustomerID        string
	TotalMarketValue  float64
	AvgHoldingAgeDays *float64 // nil when no holding has a matching purchase
	RecencyDays       *int     // days since last transaction, nil when none
	Frequency90Days   int      // transaction count in the trailing 90 days
	RegularInvestor   bool     // 3 consecutive purchase months in trailing 12
	UpdatedAt         time.Time
}

// RiskAssessment is a dated questionnaire outcome. Multiple rows may exist
// per customer; only the most recent by AssessedAt is consumed.
type RiskAssessment struct {
	ID         string
	CustomerID string
	Score      int // 0-100
	Level      string
	AssessedAt time.Time
}

// TagRelation is one (customer, category, tag) row. A customer's full tag
// set is replaced atomically on every refresh; categories with no
// applicable tag have no row.
type TagRelation struct {
	CustomerID string
	Tag        string
	Category   string
}
