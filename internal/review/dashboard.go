package review

import (
	"context"
	"fmt"
	"slices"

	"github.com/AngelCh415/adreview/internal/analysis"
	"github.com/AngelCh415/adreview/internal/models"
	"github.com/AngelCh415/adreview/internal/scoring"
)

type SummaryDeltas struct {
	CostPerResult analysis.DeltaValue `json:"costPerResult"`
	CTR           analysis.DeltaValue `json:"ctr"`
}

type AdGroupSummary struct {
	AdGroupID    string                  `json:"adGroupId"`
	AdGroupName  string                  `json:"adGroupName"`
	CampaignID   string                  `json:"campaignId"`
	CampaignName string                  `json:"campaignName"`
	Score        int                     `json:"score"`
	Label        scoring.Label           `json:"label"`
	Diagnosis    scoring.Diagnosis       `json:"diagnosis"`
	Totals       models.Totals           `json:"totals"`
	Derived      models.DerivedMetrics   `json:"derived"`
	Deltas       SummaryDeltas           `json:"deltas"`
	Evidence     []analysis.EvidenceSlot `json:"evidence"`
}

type Impact struct {
	SpendShare *float64 `json:"spendShare"`
}

type PriorityItem struct {
	AdGroupSummary
	Impact        Impact  `json:"impact"`
	PriorityScore float64 `json:"priorityScore"`
}

type AccountSummary struct {
	Spend         analysis.DeltaValue `json:"spend"`
	Results       analysis.DeltaValue `json:"results"`
	CostPerResult analysis.DeltaValue `json:"costPerResult"`
	ROAS          analysis.DeltaValue `json:"roas"`
}

type Dashboard struct {
	AccountID string               `json:"accountId"`
	Period    analysis.PeriodRange `json:"period"`
	Summary   AccountSummary       `json:"summary"`
	Priority  []PriorityItem       `json:"priority"`
}

// resolveAccount falls back to the first account when accountID is empty or unknown.
func (s *Service) resolveAccount(ctx context.Context, accountID string) (string, error) {
	if accountID != "" {
		accounts, err := s.src.Accounts(ctx)
		if err != nil {
			return "", fmt.Errorf("list accounts: %w", err)
		}
		if slices.ContainsFunc(accounts, func(a models.Account) bool { return a.ID == accountID }) {
			return accountID, nil
		}
	}
	first, err := s.src.FirstAccountID(ctx)
	if err != nil {
		return "", fmt.Errorf("first account: %w", err)
	}
	return first, nil
}

// Dashboard ranks every ad group of an account by severity x impact.
func (s *Service) Dashboard(ctx context.Context, accountID string, periodDays int) (*Dashboard, error) {
	resolved, err := s.resolveAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		return nil, fmt.Errorf("account %q: %w", accountID, ErrNotFound)
	}
	if resolved != accountID && accountID != "" {
		s.log.Debug("review account fallback", "requested", accountID, "account_id", resolved)
	}

	p, err := s.period(ctx, periodDays)
	if err != nil {
		return nil, err
	}

	groups, err := s.src.AdGroupsForAccount(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("ad groups for account %s: %w", resolved, err)
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

	items := make([]PriorityItem, 0, len(groups))
	evals := make([]groupEval, 0, len(groups))
	curTotals := make([]models.Totals, 0, len(groups))
	prevTotals := make([]models.Totals, 0, len(groups))
	for _, g := range groups {
		ev := s.evaluate(resolved, g.Campaign.Objective, g.AdIDs, byAd, p)
		evals = append(evals, ev)
		curTotals = append(curTotals, ev.current.totals)
		prevTotals = append(prevTotals, ev.previous.totals)
		items = append(items, PriorityItem{AdGroupSummary: AdGroupSummary{
			AdGroupID:    g.ID,
			AdGroupName:  g.Name,
			CampaignID:   g.CampaignID,
			CampaignName: g.Campaign.Name,
			Score:        ev.score,
			Label:        ev.label,
			Diagnosis:    ev.diagnosis,
			Totals:       ev.current.totals,
			Derived:      ev.current.derived,
			Deltas: SummaryDeltas{
				CostPerResult: ev.costDelta,
				CTR:           analysis.Delta(ev.current.derived.CTR, ev.previous.derived.CTR),
			},
			Evidence: analysis.BuildEvidenceSlots(ev.current.derived, ev.previous.derived),
		}})
	}

	cur := analysis.SumTotals(curTotals)
	prev := analysis.SumTotals(prevTotals)
	for i := range items {
		items[i].PriorityScore, items[i].Impact.SpendShare = scoring.Priority(
			items[i].Score, items[i].Totals.Spend, cur.Spend, evals[i].thresholds)
	}
	sortPriority(items)

	curDerived, prevDerived := analysis.ComputeDerived(cur), analysis.ComputeDerived(prev)
	return &Dashboard{
		AccountID: resolved,
		Period:    p,
		Summary: AccountSummary{
			Spend:         analysis.DeltaInt(cur.Spend, prev.Spend),
			Results:       analysis.DeltaInt(cur.Results, prev.Results),
			CostPerResult: analysis.Delta(curDerived.CostPerResult, prevDerived.CostPerResult),
			ROAS:          analysis.Delta(curDerived.ROAS, prevDerived.ROAS),
		},
		Priority: items,
	}, nil
}
