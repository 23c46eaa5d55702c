package analysis

import "github.com/AngelCh415/adreview/internal/models"

type SlotID string

const (
	SlotCostEfficiency SlotID = "E1"
	SlotTrafficQuality SlotID = "E2"
	SlotFatigue        SlotID = "E3"
)

// EvidenceSlot is one before/after comparison card. Degraded marks a slot
// that is backed by its fallback metric.
type EvidenceSlot struct {
	ID          SlotID     `json:"id"`
	Title       string     `json:"title"`
	MetricLabel string     `json:"metricLabel"`
	Value       DeltaValue `json:"value"`
	Degraded    bool       `json:"degraded"`
}

type metricPick func(models.DerivedMetrics) *float64

type slotChoice struct {
	pick  metricPick
	title string
	label string
}

type slotRule struct {
	id        SlotID
	preferred slotChoice
	fallback  slotChoice
}

func pickROAS(d models.DerivedMetrics) *float64           { return d.ROAS }
func pickCostPerResult(d models.DerivedMetrics) *float64  { return d.CostPerResult }
func pickConversionRate(d models.DerivedMetrics) *float64 { return d.ConversionRate }
func pickCTR(d models.DerivedMetrics) *float64            { return d.CTR }
func pickFrequency(d models.DerivedMetrics) *float64      { return d.Frequency }

// E2 and E3 may both land on CTR when conversion and reach data are missing.
var slotRules = []slotRule{
	{
		id:        SlotCostEfficiency,
		preferred: slotChoice{pick: pickROAS, title: "Cost Efficiency (ROAS)", label: "ROAS"},
		fallback:  slotChoice{pick: pickCostPerResult, title: "Cost Efficiency", label: "Cost per Result"},
	},
	{
		id:        SlotTrafficQuality,
		preferred: slotChoice{pick: pickConversionRate, title: "Audience Quality", label: "Conversion Rate"},
		fallback:  slotChoice{pick: pickCTR, title: "Audience Quality", label: "CTR"},
	},
	{
		id:        SlotFatigue,
		preferred: slotChoice{pick: pickFrequency, title: "Ad Fatigue", label: "Frequency"},
		fallback:  slotChoice{pick: pickCTR, title: "Ad Fatigue", label: "CTR Trend"},
	},
}

// BuildEvidenceSlots always returns E1, E2, E3 in that order. The preferred
// metric is used whenever the current snapshot has it.
func BuildEvidenceSlots(current, previous models.DerivedMetrics) []EvidenceSlot {
	out := make([]EvidenceSlot, 0, len(slotRules))
	for _, rule := range slotRules {
		choice, degraded := rule.preferred, false
		if rule.preferred.pick(current) == nil {
			choice, degraded = rule.fallback, true
		}
		out = append(out, EvidenceSlot{
			ID:          rule.id,
			Title:       choice.title,
			MetricLabel: choice.label,
			Value:       Delta(choice.pick(current), choice.pick(previous)),
			Degraded:    degraded,
		})
	}
	return out
}
