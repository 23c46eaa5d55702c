package models

import "time"

type EntityStatus string

const (
	StatusActive   EntityStatus = "ACTIVE"
	StatusPaused   EntityStatus = "PAUSED"
	StatusArchived EntityStatus = "ARCHIVED"
)

type CreativeType string

const (
	CreativeImage    CreativeType = "IMAGE"
	CreativeVideo    CreativeType = "VIDEO"
	CreativeCarousel CreativeType = "CAROUSEL"
	CreativeOther    CreativeType = "OTHER"
)

type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Campaign struct {
	ID        string       `json:"id"`
	AccountID string       `json:"accountId"`
	Name      string       `json:"name"`
	Objective string       `json:"objective"` // texto libre, se normaliza en scoring
	Status    EntityStatus `json:"status"`
}

type AdGroup struct {
	ID         string       `json:"id"`
	CampaignID string       `json:"campaignId"`
	Name       string       `json:"name"`
	Status     EntityStatus `json:"status"`
}

type Ad struct {
	ID           string        `json:"id"`
	AdGroupID    string        `json:"adGroupId"`
	Name         string        `json:"name"`
	CreativeKey  *string       `json:"creativeKey"`
	CreativeType *CreativeType `json:"creativeType"`
	Status       EntityStatus  `json:"status"`
}

// DailyMetricRow is one immutable fact per (ad, UTC day). Money is in minor units.
type DailyMetricRow struct {
	EntityID    string    `json:"entityId"`
	Date        time.Time `json:"date"`
	Spend       int64     `json:"spend"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Results     int64     `json:"results"`
	Reach       *int64    `json:"reach"`
	Revenue     *int64    `json:"revenue"`
}

// Totals keeps Reach and Revenue nil when no contributing row had a value,
// so "no data" stays distinguishable from zero.
type Totals struct {
	Spend       int64  `json:"spend"`
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks"`
	Results     int64  `json:"results"`
	Reach       *int64 `json:"reach"`
	Revenue     *int64 `json:"revenue"`
}

type DerivedMetrics struct {
	CTR            *float64 `json:"ctr"`
	CostPerResult  *float64 `json:"costPerResult"`
	CPC            *float64 `json:"cpc"`
	ConversionRate *float64 `json:"conversionRate"`
	Frequency      *float64 `json:"frequency"`
	ROAS           *float64 `json:"roas"`
}

// DateRange is inclusive on both ends.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func Int64(v int64) *int64       { return &v }
func Float64(v float64) *float64 { return &v }
func String(v string) *string    { return &v }
