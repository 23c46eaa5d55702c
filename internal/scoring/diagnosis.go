package scoring

import (
	"github.com/AngelCh415/adreview/internal/analysis"
	"github.com/AngelCh415/adreview/internal/models"
)

type DiagnosisLabel string

const (
	DiagnosisFatigue         DiagnosisLabel = "Fatigue Detected"
	DiagnosisCostCreeping    DiagnosisLabel = "Cost Creeping"
	DiagnosisLearningLimited DiagnosisLabel = "Learning Limited"
	DiagnosisTopPerformer    DiagnosisLabel = "Top Performer"
	DiagnosisStable          DiagnosisLabel = "Stable"
)

type Severity string

const (
	SeverityLow  Severity = "low"
	SeverityMed  Severity = "med"
	SeverityHigh Severity = "high"
)

type Diagnosis struct {
	Label    DiagnosisLabel `json:"label"`
	Severity Severity       `json:"severity"`
	Reason   string         `json:"reason"`
}

// fixed volume floor, not configurable
const learningResultsFloor = 50

// topPerformerCPRRatio: CPR at or below 80% of target counts as strong.
const topPerformerCPRRatio = 0.8

type DiagnosisInput struct {
	Totals             models.Totals
	Metrics            models.DerivedMetrics
	CostPerResultDelta analysis.DeltaValue
}

// DiagnoseAdGroup walks the rules in priority order; the first match wins.
func DiagnoseAdGroup(in DiagnosisInput, t Thresholds) Diagnosis {
	cpr, ctr, freq, roas := in.Metrics.CostPerResult, in.Metrics.CTR, in.Metrics.Frequency, in.Metrics.ROAS

	if cpr != nil && ctr != nil && freq != nil &&
		*cpr > t.CostPerResultTarget && *freq > t.FrequencyHigh && *ctr < t.CTRWarning {
		return Diagnosis{
			Label:    DiagnosisFatigue,
			Severity: SeverityHigh,
			Reason:   "High frequency and CTR drop with rising cost per result",
		}
	}

	if pct := in.CostPerResultDelta.Percent; cpr != nil && pct != nil && *pct > t.CostCreepingPct {
		return Diagnosis{
			Label:    DiagnosisCostCreeping,
			Severity: SeverityMed,
			Reason:   "Cost per result trending upward",
		}
	}

	if in.Totals.Spend > 0 && in.Totals.Results < learningResultsFloor {
		return Diagnosis{
			Label:    DiagnosisLearningLimited,
			Severity: SeverityMed,
			Reason:   "Spend without enough results in learning phase",
		}
	}

	if (roas != nil && *roas >= t.ROASTarget) ||
		(cpr != nil && *cpr <= t.CostPerResultTarget*topPerformerCPRRatio) {
		return Diagnosis{
			Label:    DiagnosisTopPerformer,
			Severity: SeverityLow,
			Reason:   "Strong efficiency vs target",
		}
	}

	return Diagnosis{
		Label:    DiagnosisStable,
		Severity: SeverityLow,
		Reason:   "No significant anomalies detected",
	}
}
