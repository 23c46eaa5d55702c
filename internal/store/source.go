package store

import (
	"context"
	"errors"
	"time"

	"github.com/AngelCh415/adreview/internal/models"
)

// ErrIntegrity marks a broken data source: duplicate ids or dangling references.
var ErrIntegrity = errors.New("data integrity violation")

type AdGroupListRow struct {
	models.AdGroup
	Campaign models.Campaign `json:"campaign"`
	AdIDs    []string        `json:"adIds"`
}

type CampaignWithAccount struct {
	models.Campaign
	Account models.Account `json:"account"`
}

type AdGroupCampaignListRow struct {
	models.AdGroup
	Campaign CampaignWithAccount `json:"campaign"`
	AdIDs    []string            `json:"adIds"`
}

type AdGroupDetailRow struct {
	models.AdGroup
	Campaign models.Campaign `json:"campaign"`
	Ads      []models.Ad     `json:"ads"`
}

// Source is the read side the review service consumes. Absence is reported
// with zero values (zero time, empty id, nil row), never with an error.
type Source interface {
	LatestMetricDate(ctx context.Context) (time.Time, error)
	FirstAccountID(ctx context.Context) (string, error)
	Accounts(ctx context.Context) ([]models.Account, error)
	AdGroupsForAccount(ctx context.Context, accountID string) ([]AdGroupListRow, error)
	AdGroupsForCampaign(ctx context.Context, campaignID string) ([]AdGroupCampaignListRow, error)
	AdGroupByID(ctx context.Context, adGroupID string) (*AdGroupDetailRow, error)
	DailyMetricsForAds(ctx context.Context, adIDs []string, r models.DateRange) ([]models.DailyMetricRow, error)
}

// Loader accepts full snapshots from ingestion.
type Loader interface {
	LoadSnapshot(ctx context.Context, s Snapshot) (LoadStats, error)
}

type LoadStats struct {
	Accounts    int `json:"accounts"`
	Campaigns   int `json:"campaigns"`
	AdGroups    int `json:"adGroups"`
	Ads         int `json:"ads"`
	RowsAdded   int `json:"rowsAdded"`
	RowsSkipped int `json:"rowsSkipped"`
}

func dayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
