package review

import (
	"context"
	"fmt"
	"math"

	"github.com/AngelCh415/adreview/internal/analysis"
	"github.com/AngelCh415/adreview/internal/models"
	"github.com/AngelCh415/adreview/internal/scoring"
	"github.com/AngelCh415/adreview/internal/store"
)

const (
	maxActions       = 3
	minCPRGapPercent = 15
)

type BreakdownAdGroup struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Totals    models.Totals         `json:"totals"`
	Derived   models.DerivedMetrics `json:"derived"`
	CostDelta analysis.DeltaValue   `json:"costDelta"`
	Diagnosis scoring.Diagnosis     `json:"diagnosis"`
	Score     int                   `json:"score"`
	Label     scoring.Label         `json:"label"`
}

type DiagnosisCounts struct {
	Fatigue         int `json:"fatigue"`
	LearningLimited int `json:"learningLimited"`
	CostCreeping    int `json:"costCreeping"`
	TopPerformer    int `json:"topPerformer"`
	Stable          int `json:"stable"`
}

func (c *DiagnosisCounts) add(label scoring.DiagnosisLabel) {
	switch label {
	case scoring.DiagnosisFatigue:
		c.Fatigue++
	case scoring.DiagnosisLearningLimited:
		c.LearningLimited++
	case scoring.DiagnosisCostCreeping:
		c.CostCreeping++
	case scoring.DiagnosisTopPerformer:
		c.TopPerformer++
	default:
		c.Stable++
	}
}

type Highlight struct {
	BestID  string `json:"bestId"`
	WorstID string `json:"worstId"`
}

type Highlights struct {
	CPR  *Highlight `json:"cpr"`
	ROAS *Highlight `json:"roas"`
}

type BreakdownSummary struct {
	SpendTotal      int64           `json:"spendTotal"`
	DiagnosisCounts DiagnosisCounts `json:"diagnosisCounts"`
	Highlights      Highlights      `json:"highlights"`
	BestCPR         *float64        `json:"bestCpr"`
	BestCPRName     *string         `json:"bestCprName"`
	WorstCPR        *float64        `json:"worstCpr"`
	WorstCPRName    *string         `json:"worstCprName"`
	BestROAS        *float64        `json:"bestRoas"`
	BestROASName    *string         `json:"bestRoasName"`
	WorstROAS       *float64        `json:"worstRoas"`
	WorstROASName   *string         `json:"worstRoasName"`
	Actions         []string        `json:"actions"`
}

// CampaignBreakdown.Campaign is nil when the campaign has no ad groups or
// does not exist; the rest of the view is still well formed.
type CampaignBreakdown struct {
	Period   analysis.PeriodRange       `json:"period"`
	Campaign *store.CampaignWithAccount `json:"campaign"`
	Summary  BreakdownSummary           `json:"summary"`
	AdGroups []BreakdownAdGroup         `json:"adGroups"`
}

func (s *Service) CampaignBreakdown(ctx context.Context, campaignID string, periodDays int) (*CampaignBreakdown, error) {
	p, err := s.period(ctx, periodDays)
	if err != nil {
		return nil, err
	}
	groups, err := s.src.AdGroupsForCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("ad groups for campaign %s: %w", campaignID, err)
	}
	groupIDs := make([]string, 0, len(groups))
	var adIDs []string
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
		adIDs = append(adIDs, g.AdIDs...)
	}
	if err := checkUnique("ad group", groupIDs); err != nil {
		return nil, err
	}
	if err := checkUnique("ad", adIDs); err != nil {
		return nil, err
	}

	byAd, _, err := s.loadRows(ctx, adIDs, p)
	if err != nil {
		return nil, err
	}

	out := &CampaignBreakdown{Period: p, AdGroups: make([]BreakdownAdGroup, 0, len(groups))}
	if len(groups) > 0 {
		c := groups[0].Campaign
		out.Campaign = &c
	}
	for _, g := range groups {
		ev := s.evaluate(g.Campaign.AccountID, g.Campaign.Objective, g.AdIDs, byAd, p)
		out.AdGroups = append(out.AdGroups, BreakdownAdGroup{
			ID:        g.ID,
			Name:      g.Name,
			Totals:    ev.current.totals,
			Derived:   ev.current.derived,
			CostDelta: ev.costDelta,
			Diagnosis: ev.diagnosis,
			Score:     ev.score,
			Label:     ev.label,
		})
	}
	out.Summary = summarize(out.AdGroups)
	return out, nil
}

// extreme returns the first group whose metric beats every other under better.
func extreme(groups []BreakdownAdGroup, metric func(models.DerivedMetrics) *float64, better func(a, b float64) bool) *BreakdownAdGroup {
	var pick *BreakdownAdGroup
	for i := range groups {
		v := metric(groups[i].Derived)
		if v == nil {
			continue
		}
		if pick == nil || better(*v, *metric(pick.Derived)) {
			pick = &groups[i]
		}
	}
	return pick
}

func cprOf(d models.DerivedMetrics) *float64  { return d.CostPerResult }
func roasOf(d models.DerivedMetrics) *float64 { return d.ROAS }
func less(a, b float64) bool                  { return a < b }
func greater(a, b float64) bool               { return a > b }

func summarize(groups []BreakdownAdGroup) BreakdownSummary {
	var sum BreakdownSummary
	for _, g := range groups {
		sum.SpendTotal += g.Totals.Spend
		sum.DiagnosisCounts.add(g.Diagnosis.Label)
	}

	bestCPR, worstCPR := extreme(groups, cprOf, less), extreme(groups, cprOf, greater)
	bestROAS, worstROAS := extreme(groups, roasOf, greater), extreme(groups, roasOf, less)

	if bestCPR != nil && worstCPR != nil {
		sum.Highlights.CPR = &Highlight{BestID: bestCPR.ID, WorstID: worstCPR.ID}
		sum.BestCPR, sum.BestCPRName = bestCPR.Derived.CostPerResult, &bestCPR.Name
		sum.WorstCPR, sum.WorstCPRName = worstCPR.Derived.CostPerResult, &worstCPR.Name
	}
	if bestROAS != nil && worstROAS != nil {
		sum.Highlights.ROAS = &Highlight{BestID: bestROAS.ID, WorstID: worstROAS.ID}
		sum.BestROAS, sum.BestROASName = bestROAS.Derived.ROAS, &bestROAS.Name
		sum.WorstROAS, sum.WorstROASName = worstROAS.Derived.ROAS, &worstROAS.Name
	}

	sum.Actions = buildActions(bestCPR, worstCPR, sum.DiagnosisCounts)
	return sum
}

func buildActions(bestCPR, worstCPR *BreakdownAdGroup, counts DiagnosisCounts) []string {
	actions := []string{}
	if bestCPR != nil && worstCPR != nil && bestCPR.ID != worstCPR.ID {
		best, worst := *bestCPR.Derived.CostPerResult, *worstCPR.Derived.CostPerResult
		if worst > 0 {
			gap := int(math.Max(0, math.Round((1-best/worst)*100)))
			if gap >= minCPRGapPercent {
				actions = append(actions, fmt.Sprintf(
					"CPR gap between the most and least efficient ad groups is ~%d%%. Consider shifting budget from %q to %q if objective and creative are comparable.",
					gap, worstCPR.Name, bestCPR.Name))
			}
		}
	}
	if counts.Fatigue > 0 {
		actions = append(actions, fmt.Sprintf(
			"Creative fatigue in %d ad group(s). Plan a creative refresh or rotation and review repeat exposure frequency.", counts.Fatigue))
	}
	if counts.LearningLimited > 0 {
		actions = append(actions, fmt.Sprintf(
			"Learning limited in %d ad group(s). Consider consolidating fragmented ad sets so each gets more signal.", counts.LearningLimited))
	}
	if counts.CostCreeping > 0 {
		actions = append(actions, fmt.Sprintf(
			"Cost creeping in %d ad group(s). Review bids, placements and dayparting, and check whether traffic or conversion drove the higher cost per result.", counts.CostCreeping))
	}
	if len(actions) > maxActions {
		actions = actions[:maxActions]
	}
	return actions
}
