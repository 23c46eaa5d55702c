package analysis

import (
	"github.com/AngelCh415/adreview/internal/models"
)

// DeltaValue compares a current and a previous value. Percent is a ratio
// (0.1 == +10%) and stays nil when either side is missing or previous is zero.
type DeltaValue struct {
	Current  *float64 `json:"current"`
	Previous *float64 `json:"previous"`
	Absolute *float64 `json:"absolute"`
	Percent  *float64 `json:"percent"`
}

// SafeDivide returns nil iff denominator is exactly zero.
func SafeDivide(numerator, denominator float64) *float64 {
	if denominator == 0 {
		return nil
	}
	v := numerator / denominator
	return &v
}

// SumTotals adds totals field by field. Reach and revenue stay nil only
// while every input is nil.
func SumTotals(items []models.Totals) models.Totals {
	var acc models.Totals
	for _, t := range items {
		acc.Spend += t.Spend
		acc.Impressions += t.Impressions
		acc.Clicks += t.Clicks
		acc.Results += t.Results
		acc.Reach = addNullable(acc.Reach, t.Reach)
		acc.Revenue = addNullable(acc.Revenue, t.Revenue)
	}
	return acc
}

// SumRows folds daily rows into Totals with the same null propagation as SumTotals.
func SumRows(rows []models.DailyMetricRow) models.Totals {
	var acc models.Totals
	for _, r := range rows {
		acc.Spend += r.Spend
		acc.Impressions += r.Impressions
		acc.Clicks += r.Clicks
		acc.Results += r.Results
		acc.Reach = addNullable(acc.Reach, r.Reach)
		acc.Revenue = addNullable(acc.Revenue, r.Revenue)
	}
	return acc
}

func addNullable(acc, v *int64) *int64 {
	if acc == nil && v == nil {
		return nil
	}
	var sum int64
	if acc != nil {
		sum = *acc
	}
	if v != nil {
		sum += *v
	}
	return &sum
}

func ComputeDerived(t models.Totals) models.DerivedMetrics {
	d := models.DerivedMetrics{
		CTR:            SafeDivide(float64(t.Clicks), float64(t.Impressions)),
		CostPerResult:  SafeDivide(float64(t.Spend), float64(t.Results)),
		CPC:            SafeDivide(float64(t.Spend), float64(t.Clicks)),
		ConversionRate: SafeDivide(float64(t.Results), float64(t.Clicks)),
	}
	// reach/revenue en cero cuentan como ausentes
	if t.Reach != nil && *t.Reach != 0 {
		d.Frequency = SafeDivide(float64(t.Impressions), float64(*t.Reach))
	}
	if t.Revenue != nil && *t.Revenue != 0 {
		d.ROAS = SafeDivide(float64(*t.Revenue), float64(t.Spend))
	}
	return d
}

func Delta(current, previous *float64) DeltaValue {
	out := DeltaValue{Current: current, Previous: previous}
	if current == nil || previous == nil {
		return out
	}
	abs := *current - *previous
	out.Absolute = &abs
	if *previous != 0 {
		pct := abs / *previous
		out.Percent = &pct
	}
	return out
}

// DeltaInt is Delta for integer totals such as spend or results.
func DeltaInt(current, previous int64) DeltaValue {
	return Delta(models.Float64(float64(current)), models.Float64(float64(previous)))
}
