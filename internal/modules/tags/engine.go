// Package tags derives the categorical tag set of a customer from their
// profile, holdings, declared risk appetite, and transaction behavior.
package tags

import (
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Tag categories. A customer has at most one tag per category except
// gender/occupation, which are emitted verbatim when present.
const (
	CategoryGender        = "gender"
	CategoryOccupation    = "occupation"
	CategoryAgeCohort     = "age_cohort"
	CategoryDeclaredRisk  = "declared_risk"
	CategoryAssetTier     = "asset_tier"
	CategoryHoldingStyle  = "holding_style"
	CategoryActualRisk    = "actual_risk"
	CategoryRiskDiagnosis = "risk_diagnosis"
	CategoryRecency       = "recency"
	CategoryFrequency     = "frequency"
)

// Risk level labels, ordered conservative (1) to aggressive (5).
const (
	RiskConservative = "conservative"
	RiskSteady       = "steady"
	RiskBalanced     = "balanced"
	RiskGrowth       = "growth"
	RiskAggressive   = "aggressive"
	RiskUnknown      = "unknown"
)

// Asset tier thresholds (total market value, inclusive lower bounds).
const (
	AssetTierHighThreshold = 500_000.0
	AssetTierLowThreshold  = 50_000.0
)

// Holding style boundary: average holding age above this is long-term.
const longTermAgeDays = 180.0

// Actual-risk bucket thresholds, strictly descending. A weighted score at
// or above a threshold takes that bucket's label.
var actualRiskBuckets = []struct {
	threshold float64
	label     string
}{
	{4.5, RiskAggressive},
	{3.5, RiskGrowth},
	{2.5, RiskBalanced},
	{1.5, RiskSteady},
}

// Tag values outside the risk-level set.
const (
	TagAssetTierHigh   = "high-value"
	TagAssetTierMedium = "medium-value"
	TagAssetTierLow    = "low-value"

	TagLongTerm  = "long-term"
	TagShortTerm = "short-term"

	TagRiskUnassessable = "unable-to-assess"

	TagDiagnosisMoreAggressive   = "more-aggressive-than-stated"
	TagDiagnosisMoreConservative = "more-conservative-than-stated"
	TagDiagnosisConsistent       = "consistent"
	TagDiagnosisUnknown          = "unknown"

	TagRecencyContinued = "continued-investment"
	TagRecencyStagnant  = "stagnant"
	TagRecencyOutflow   = "outflow"
	TagRecencyActive    = "active"
	TagRecencyDormant   = "dormant"
	TagRecencyLost      = "lost"

	TagFrequencyRegular   = "regular-investor"
	TagFrequencyIrregular = "no-regular-pattern"
	TagFrequencyHigh      = "high-frequency"
	TagFrequencyMedium    = "medium-frequency"
	TagFrequencyLow       = "low-frequency"
)

// riskOrdinal maps a risk level label to its ordinal rank 1-5.
// Unmappable labels return 0.
func riskOrdinal(level string) int {
	switch level {
	case RiskConservative:
		return 1
	case RiskSteady:
		return 2
	case RiskBalanced:
		return 3
	case RiskGrowth:
		return 4
	case RiskAggressive:
		return 5
	default:
		return 0
	}
}

// AssignInput carries everything the rule table consumes. The instrument
// map is read-only and may be shared across concurrent assignments.
type AssignInput struct {
	Customer     domain.Customer
	Profile      domain.Profile
	Assessment   *domain.RiskAssessment // nil when never assessed
	Holdings     []domain.Holding
	Transactions []domain.Transaction // full history, timestamp-ascending
	Instruments  map[string]domain.Instrument
	Now          time.Time
}

// Engine evaluates the deterministic tag rule table. Assign is pure:
// persistence is the orchestrator's responsibility.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new tag rules engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("service", "tag_engine").Logger(),
	}
}

// Assign produces the complete replacement tag set for one customer.
// Rules evaluate independently; the recency/frequency rules branch on the
// holding-style outcome, so the two style branches are mutually exclusive.
func (e *Engine) Assign(in AssignInput) []domain.TagRelation {
	var tags []domain.TagRelation
	add := func(category, tag string) {
		tags = append(tags, domain.TagRelation{
			CustomerID: in.Customer.ID,
			Tag:        tag,
			Category:   category,
		})
	}

	if in.Customer.Gender != "" {
		add(CategoryGender, in.Customer.Gender)
	}
	if in.Customer.Occupation != "" {
		add(CategoryOccupation, in.Customer.Occupation)
	}
	if cohort := ageCohort(in.Customer.BirthDate); cohort != "" {
		add(CategoryAgeCohort, cohort)
	}

	declared := RiskUnknown
	if in.Assessment != nil && in.Assessment.Level != "" {
		declared = in.Assessment.Level
	}
	add(CategoryDeclaredRisk, declared)

	add(CategoryAssetTier, assetTier(in.Profile.TotalMarketValue))

	longTerm := in.Profile.AvgHoldingAgeDays != nil && *in.Profile.AvgHoldingAgeDays > longTermAgeDays
	if longTerm {
		add(CategoryHoldingStyle, TagLongTerm)
	} else {
		add(CategoryHoldingStyle, TagShortTerm)
	}

	actual, assessable := actualRisk(in.Holdings, in.Instruments)
	if assessable {
		add(CategoryActualRisk, actual)
	} else {
		add(CategoryActualRisk, TagRiskUnassessable)
	}

	if declared != RiskUnknown && assessable {
		add(CategoryRiskDiagnosis, diagnose(declared, actual))
	}

	if longTerm {
		add(CategoryRecency, longTermRecency(in.Transactions, in.Now))
		if in.Profile.RegularInvestor {
			add(CategoryFrequency, TagFrequencyRegular)
		} else {
			add(CategoryFrequency, TagFrequencyIrregular)
		}
	} else {
		if in.Profile.RecencyDays != nil {
			add(CategoryRecency, shortTermRecency(*in.Profile.RecencyDays))
		}
		add(CategoryFrequency, shortTermFrequency(in.Profile.Frequency90Days))
	}

	return tags
}

// ageCohort buckets a birth date into its decade cohort. Empty when the
// birth date is undeclared.
func ageCohort(birthDate *time.Time) string {
	if birthDate == nil {
		return ""
	}

	year := birthDate.Year()
	switch {
	case year >= 2010:
		return "post-2010"
	case year >= 2000:
		return "post-2000"
	case year >= 1990:
		return "post-1990"
	case year >= 1980:
		return "post-1980"
	case year >= 1970:
		return "post-1970"
	case year >= 1960:
		return "post-1960"
	default:
		return "pre-1960"
	}
}

// assetTier buckets total market value. The HIGH bound is inclusive.
func assetTier(totalMarketValue float64) string {
	switch {
	case totalMarketValue >= AssetTierHighThreshold:
		return TagAssetTierHigh
	case totalMarketValue >= AssetTierLowThreshold:
		return TagAssetTierMedium
	default:
		return TagAssetTierLow
	}
}

// actualRisk computes the market-value-weighted mean of instrument risk
// scores and buckets it. Requires a positive total market value and at
// least one holding with a known instrument; otherwise unassessable.
func actualRisk(holdings []domain.Holding, instruments map[string]domain.Instrument) (string, bool) {
	var scores, weights []float64
	for _, h := range holdings {
		inst, ok := instruments[h.InstrumentCode]
		if !ok || h.MarketValue == nil || *h.MarketValue <= 0 {
			// Unknown instruments and unvalued holdings are excluded
			// rather than failing the whole assessment.
			continue
		}
		scores = append(scores, float64(inst.RiskScore))
		weights = append(weights, *h.MarketValue)
	}

	if len(scores) == 0 {
		return "", false
	}

	weighted := stat.Mean(scores, weights)
	for _, bucket := range actualRiskBuckets {
		if weighted >= bucket.threshold {
			return bucket.label, true
		}
	}

	return RiskConservative, true
}

// diagnose compares declared and actual risk by ordinal rank.
func diagnose(declared, actual string) string {
	d := riskOrdinal(declared)
	a := riskOrdinal(actual)
	if d == 0 || a == 0 {
		return TagDiagnosisUnknown
	}

	switch {
	case a > d:
		return TagDiagnosisMoreAggressive
	case a < d:
		return TagDiagnosisMoreConservative
	default:
		return TagDiagnosisConsistent
	}
}

// longTermRecency classifies by net cash flow: positive over the trailing
// 3 months means continued investment; otherwise a non-negative 6-month
// flow is stagnant and a negative one is outflow.
func longTermRecency(txs []domain.Transaction, now time.Time) string {
	if netCashFlow(txs, now.AddDate(0, -3, 0), now) > 0 {
		return TagRecencyContinued
	}
	if netCashFlow(txs, now.AddDate(0, -6, 0), now) >= 0 {
		return TagRecencyStagnant
	}
	return TagRecencyOutflow
}

// netCashFlow sums purchases minus redemptions executed in [from, to].
func netCashFlow(txs []domain.Transaction, from, to time.Time) float64 {
	net := 0.0
	for _, tx := range txs {
		if tx.ExecutedAt.Before(from) || tx.ExecutedAt.After(to) {
			continue
		}
		amount, _ := tx.Amount.Float64()
		switch tx.Kind {
		case domain.KindPurchase:
			net += amount
		case domain.KindRedemption:
			net -= amount
		}
	}
	return net
}

func shortTermRecency(recencyDays int) string {
	switch {
	case recencyDays <= 30:
		return TagRecencyActive
	case recencyDays <= 90:
		return TagRecencyDormant
	default:
		return TagRecencyLost
	}
}

func shortTermFrequency(count90d int) string {
	switch {
	case count90d > 10:
		return TagFrequencyHigh
	case count90d > 2:
		return TagFrequencyMedium
	default:
		return TagFrequencyLow
	}
}
