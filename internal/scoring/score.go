package scoring

import (
	"math"

	"github.com/AngelCh415/adreview/internal/models"
)

const (
	maxCostPerResultPenalty = 35
	maxROASPenalty          = 25
)

type Label string

const (
	LabelTop            Label = "Top"
	LabelNormal         Label = "Normal"
	LabelNeedsAttention Label = "Needs attention"
)

// ComputeScore starts at 100 and subtracts weighted penalties. Metrics that
// are nil contribute nothing. A zero divisor yields +Inf (capped penalty) or
// NaN (no penalty).
func ComputeScore(d models.DerivedMetrics, t Thresholds) int {
	return computeScore(d, t, DefaultWeights())
}

func computeScore(d models.DerivedMetrics, t Thresholds, w Weights) int {
	var penalty float64

	if d.CostPerResult != nil {
		if ratio := *d.CostPerResult / t.CostPerResultTarget; ratio > 1 {
			penalty += math.Min((ratio-1)*100*w.CostPerResult, maxCostPerResultPenalty)
		}
	}
	if d.ROAS != nil {
		if ratio := t.ROASTarget / *d.ROAS; ratio > 1 {
			penalty += math.Min((ratio-1)*100*w.ROAS, maxROASPenalty)
		}
	}
	if d.CTR != nil {
		switch {
		case *d.CTR < t.CTRWarning:
			penalty += 20 * w.CTR
		case *d.CTR < t.CTRMin:
			penalty += 10 * w.CTR
		}
	}
	if d.Frequency != nil {
		switch {
		case *d.Frequency > t.FrequencyHigh:
			penalty += 20 * w.Frequency
		case *d.Frequency > t.FrequencyWarning:
			penalty += 10 * w.Frequency
		}
	}

	score := int(math.Round(100 - penalty))
	return max(0, min(100, score))
}

func LabelFromScore(score int, t Thresholds) Label {
	switch {
	case score >= t.LabelTop:
		return LabelTop
	case score <= t.LabelNeedsAttention:
		return LabelNeedsAttention
	default:
		return LabelNormal
	}
}

// Priority ranks how urgently an ad group needs attention: a quadratic
// severity term times the square root of its spend share. spendShare is
// nil when totalSpend is zero, in which case impact counts as 1.
func Priority(score int, spend, totalSpend int64, t Thresholds) (priority float64, spendShare *float64) {
	if totalSpend > 0 {
		share := float64(spend) / float64(totalSpend)
		spendShare = &share
	}
	var severity float64
	if t.LabelTop > 0 {
		ratio := math.Max(0, float64(t.LabelTop-score)/float64(t.LabelTop))
		severity = ratio * ratio
	}
	impact := 1.0
	if spendShare != nil {
		impact = math.Sqrt(*spendShare)
	}
	return severity * impact, spendShare
}
