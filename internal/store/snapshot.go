package store

import (
	"fmt"

	"github.com/AngelCh415/adreview/internal/models"
)

// Snapshot is the full reference + fact data set handed over by ingestion.
type Snapshot struct {
	Accounts     []models.Account        `json:"accounts"`
	Campaigns    []models.Campaign       `json:"campaigns"`
	AdGroups     []models.AdGroup        `json:"adGroups"`
	Ads          []models.Ad             `json:"ads"`
	DailyMetrics []models.DailyMetricRow `json:"dailyMetrics"`
}

// Validate checks id uniqueness and parent references. Repeated daily rows
// for the same (entity, day) are not an error; loaders keep the first one.
func (s Snapshot) Validate() error {
	accounts, err := uniqueIDs("account", len(s.Accounts), func(i int) string { return s.Accounts[i].ID })
	if err != nil {
		return err
	}
	campaigns, err := uniqueIDs("campaign", len(s.Campaigns), func(i int) string { return s.Campaigns[i].ID })
	if err != nil {
		return err
	}
	groups, err := uniqueIDs("ad group", len(s.AdGroups), func(i int) string { return s.AdGroups[i].ID })
	if err != nil {
		return err
	}
	ads, err := uniqueIDs("ad", len(s.Ads), func(i int) string { return s.Ads[i].ID })
	if err != nil {
		return err
	}

	for _, c := range s.Campaigns {
		if _, ok := accounts[c.AccountID]; !ok {
			return fmt.Errorf("%w: campaign %q references missing account %q", ErrIntegrity, c.ID, c.AccountID)
		}
	}
	for _, g := range s.AdGroups {
		if _, ok := campaigns[g.CampaignID]; !ok {
			return fmt.Errorf("%w: ad group %q references missing campaign %q", ErrIntegrity, g.ID, g.CampaignID)
		}
	}
	for _, a := range s.Ads {
		if _, ok := groups[a.AdGroupID]; !ok {
			return fmt.Errorf("%w: ad %q references missing ad group %q", ErrIntegrity, a.ID, a.AdGroupID)
		}
	}
	for _, r := range s.DailyMetrics {
		if _, ok := ads[r.EntityID]; !ok {
			return fmt.Errorf("%w: daily row for unknown ad %q", ErrIntegrity, r.EntityID)
		}
		if r.Date.IsZero() {
			return fmt.Errorf("%w: daily row for ad %q has no date", ErrIntegrity, r.EntityID)
		}
	}
	return nil
}

func uniqueIDs(label string, n int, id func(int) string) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			return nil, fmt.Errorf("%w: %s with empty id", ErrIntegrity, label)
		}
		if _, dup := seen[v]; dup {
			return nil, fmt.Errorf("%w: duplicate %s id %q", ErrIntegrity, label, v)
		}
		seen[v] = struct{}{}
	}
	return seen, nil
}

func rowKey(r models.DailyMetricRow) string {
	return r.EntityID + "|" + dayUTC(r.Date).Format("2006-01-02")
}
