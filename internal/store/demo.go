package store

import (
	"fmt"
	"math"
	"time"

	"github.com/AngelCh415/adreview/internal/models"
)

const demoDays = 28

type seriesProfile struct {
	impressionsPerDay float64
	reachPerDay       float64
	ctrFrom, ctrTo    float64
	cprFrom, cprTo    float64
	conversionRate    float64
	roas              float64 // 0 = sin revenue
}

var demoProfiles = map[string]seriesProfile{
	"fatigue":          {5200, 980, 0.0062, 0.0038, 16_000, 24_500, 0.18, 0},
	"cost_creeping":    {5400, 2500, 0.0102, 0.0092, 13_200, 17_800, 0.11, 0},
	"top":              {4600, 3300, 0.013, 0.0145, 10_500, 9_200, 0.16, 4.0},
	"learning_limited": {650, 320, 0.0105, 0.009, 16_800, 17_400, 0.03, 0},
	"stable":           {4800, 2450, 0.0092, 0.0098, 13_800, 14_300, 0.1, 0},
}

type demoGroup struct {
	id, campaignID, name, theme, profile string
	roas                                 float64
}

// DemoSnapshot builds a deterministic 28-day data set ending on the UTC day
// of latest. Every call with the same day yields identical data.
func DemoSnapshot(latest time.Time) Snapshot {
	end := dayUTC(latest)

	accounts := []models.Account{
		{ID: "acc_7eleven_th", Name: "7-Eleven Thailand (7Delivery)"},
		{ID: "acc_lotus_th", Name: "Lotus's Thailand (Online)"},
	}
	campaigns := []models.Campaign{
		{ID: "camp_ao_purchase", AccountID: "acc_7eleven_th", Name: "Always-on | 7DELIVERY | Purchase (Prospecting)", Objective: "SALES", Status: models.StatusActive},
		{ID: "camp_rt_purchase", AccountID: "acc_7eleven_th", Name: "Always-on | 7DELIVERY | Retargeting (VC/ATC)", Objective: "SALES", Status: models.StatusActive},
		{ID: "camp_launch_allcafe", AccountID: "acc_7eleven_th", Name: "Launch | All Cafe | Cold Brew", Objective: "AWARENESS", Status: models.StatusActive},
		{ID: "camp_crm_allmember", AccountID: "acc_7eleven_th", Name: "CRM | ALL member | App sign-up", Objective: "LEADS", Status: models.StatusActive},
		{ID: "camp_store_traffic", AccountID: "acc_7eleven_th", Name: "Store Traffic | Near Me | Q1", Objective: "TRAFFIC", Status: models.StatusActive},
		{ID: "camp_lotus_ao_purchase", AccountID: "acc_lotus_th", Name: "Always-on | Lotus's Online | Purchase (Prospecting)", Objective: "SALES", Status: models.StatusActive},
	}
	groups := []demoGroup{
		{id: "ag_ao_broad_18_44", campaignID: "camp_ao_purchase", name: "Broad | 18-44 | Auto Placements", theme: "7DELIVERY 30 min", profile: "stable", roas: 3.2},
		{id: "ag_ao_lal_1pct_purch_180d", campaignID: "camp_ao_purchase", name: "LAL 1% | Purchasers 180D", theme: "Best Sellers + Bundle Deal", profile: "top"},
		{id: "ag_ao_interest_food", campaignID: "camp_ao_purchase", name: "Interest | Food Delivery", theme: "Late Night Cravings", profile: "fatigue"},
		{id: "ag_rt_vc_atc_7d", campaignID: "camp_rt_purchase", name: "RT | VC/ATC 7D", theme: "Cart Reminder", profile: "cost_creeping"},
		{id: "ag_rt_engagers_30d", campaignID: "camp_rt_purchase", name: "RT | Engagers 30D", theme: "Coupon Drop", profile: "stable"},
		{id: "ag_cafe_reach_bkk", campaignID: "camp_launch_allcafe", name: "Reach | Bangkok 18-34", theme: "Cold Brew Launch", profile: "stable"},
		{id: "ag_crm_signup_lal", campaignID: "camp_crm_allmember", name: "LAL 2% | Members", theme: "Member Points", profile: "learning_limited"},
		{id: "ag_store_near_me", campaignID: "camp_store_traffic", name: "Geo 3km | Store Visitors", theme: "Near Me", profile: "stable"},
		{id: "ag_lotus_broad", campaignID: "camp_lotus_ao_purchase", name: "Broad | 25-54", theme: "Weekly Deals", profile: "top"},
		{id: "ag_lotus_interest_home", campaignID: "camp_lotus_ao_purchase", name: "Interest | Home & Living", theme: "Home Essentials", profile: "cost_creeping"},
	}

	snap := Snapshot{Accounts: accounts, Campaigns: campaigns}
	creatives := []struct {
		suffix string
		ctype  models.CreativeType
		prefix string
	}{
		{"A", models.CreativeVideo, "VID"},
		{"B", models.CreativeImage, "IMG"},
		{"C", models.CreativeCarousel, "CAR"},
	}

	for _, g := range groups {
		snap.AdGroups = append(snap.AdGroups, models.AdGroup{ID: g.id, CampaignID: g.campaignID, Name: g.name, Status: models.StatusActive})
		adIDs := make([]string, 0, len(creatives))
		for _, c := range creatives {
			ctype := c.ctype
			ad := models.Ad{
				ID:           fmt.Sprintf("ad_%s_%s", g.id, c.suffix),
				AdGroupID:    g.id,
				Name:         fmt.Sprintf("%s | %s", c.prefix, g.theme),
				CreativeKey:  models.String(fmt.Sprintf("%s_%s", g.id, c.suffix)),
				CreativeType: &ctype,
				Status:       models.StatusActive,
			}
			snap.Ads = append(snap.Ads, ad)
			adIDs = append(adIDs, ad.ID)
		}
		p := demoProfiles[g.profile]
		if g.roas > 0 {
			p.roas = g.roas
		}
		snap.DailyMetrics = append(snap.DailyMetrics, demoSeries(end, adIDs, p)...)
	}
	return snap
}

func lerp(from, to, t float64) float64 { return from + (to-from)*t }

func demoSeries(end time.Time, adIDs []string, p seriesProfile) []models.DailyMetricRow {
	out := make([]models.DailyMetricRow, 0, demoDays*len(adIDs))
	for i := 0; i < demoDays; i++ {
		date := end.AddDate(0, 0, i-(demoDays-1))
		t := float64(i) / float64(demoDays-1)
		ctr := lerp(p.ctrFrom, p.ctrTo, t)
		baseCPR := math.Round(lerp(p.cprFrom, p.cprTo, t))

		weekend := 1.0
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend = 1.12
		}

		for idx, id := range adIDs {
			centered := float64(idx) - float64(len(adIDs)-1)/2
			impressions := math.Max(0, math.Round(p.impressionsPerDay*(1+centered*0.08)*weekend))
			clicks := math.Max(0, math.Round(impressions*math.Max(0, ctr*(1+centered*0.06))))
			results := math.Max(1, math.Round(clicks*p.conversionRate))
			cpr := math.Max(500, math.Round(baseCPR*(1+centered*0.12)))
			spend := results * cpr
			reach := math.Max(1, math.Round(p.reachPerDay*(1-centered*0.06)*weekend))

			row := models.DailyMetricRow{
				EntityID:    id,
				Date:        date,
				Spend:       int64(spend),
				Impressions: int64(impressions),
				Clicks:      int64(clicks),
				Results:     int64(results),
				Reach:       models.Int64(int64(reach)),
			}
			if p.roas > 0 {
				row.Revenue = models.Int64(int64(math.Round(spend * p.roas)))
			}
			out = append(out, row)
		}
	}
	return out
}
