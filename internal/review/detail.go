package review

import (
	"context"
	"fmt"
	"sort"

	"github.com/AngelCh415/adreview/internal/analysis"
	"github.com/AngelCh415/adreview/internal/models"
	"github.com/AngelCh415/adreview/internal/scoring"
)

type DailyPoint struct {
	Date    string                `json:"date"`
	Totals  models.Totals         `json:"totals"`
	Derived models.DerivedMetrics `json:"derived"`
}

type AdDeltas struct {
	CostPerResult  analysis.DeltaValue `json:"costPerResult"`
	CPC            analysis.DeltaValue `json:"cpc"`
	CTR            analysis.DeltaValue `json:"ctr"`
	Frequency      analysis.DeltaValue `json:"frequency"`
	ROAS           analysis.DeltaValue `json:"roas"`
	ConversionRate analysis.DeltaValue `json:"conversionRate"`
}

type AdPerformance struct {
	models.Ad
	Totals    models.Totals         `json:"totals"`
	Derived   models.DerivedMetrics `json:"derived"`
	Previous  models.DerivedMetrics `json:"previous"`
	Deltas    AdDeltas              `json:"deltas"`
	Diagnosis scoring.Diagnosis     `json:"diagnosis"`
	Score     int                   `json:"score"`
	Label     scoring.Label         `json:"label"`
}

// AdGroupDetail is the deep view of one ad group. It also feeds the AI pipeline.
type AdGroupDetail struct {
	Period     analysis.PeriodRange    `json:"period"`
	AdGroup    models.AdGroup          `json:"adGroup"`
	Campaign   models.Campaign         `json:"campaign"`
	Thresholds scoring.Thresholds      `json:"thresholds"`
	Totals     models.Totals           `json:"totals"`
	Derived    models.DerivedMetrics   `json:"derived"`
	Previous   models.DerivedMetrics   `json:"previous"`
	Score      int                     `json:"score"`
	Label      scoring.Label           `json:"label"`
	Diagnosis  scoring.Diagnosis       `json:"diagnosis"`
	CostDelta  analysis.DeltaValue     `json:"costDelta"`
	Evidence   []analysis.EvidenceSlot `json:"evidence"`
	Daily      []DailyPoint            `json:"daily"`
	Ads        []AdPerformance         `json:"ads"`
}

func (s *Service) AdGroupDetail(ctx context.Context, adGroupID string, periodDays int) (*AdGroupDetail, error) {
	p, err := s.period(ctx, periodDays)
	if err != nil {
		return nil, err
	}
	g, err := s.src.AdGroupByID(ctx, adGroupID)
	if err != nil {
		return nil, fmt.Errorf("ad group %s: %w", adGroupID, err)
	}
	if g == nil {
		return nil, fmt.Errorf("ad group %q: %w", adGroupID, ErrNotFound)
	}

	adIDs := make([]string, 0, len(g.Ads))
	for _, a := range g.Ads {
		adIDs = append(adIDs, a.ID)
	}
	if err := checkUnique("ad", adIDs); err != nil {
		return nil, err
	}
	byAd, rows, err := s.loadRows(ctx, adIDs, p)
	if err != nil {
		return nil, err
	}

	ev := s.evaluate(g.Campaign.AccountID, g.Campaign.Objective, adIDs, byAd, p)

	ads := make([]AdPerformance, 0, len(g.Ads))
	for _, a := range g.Ads {
		adEv := evalWindows(
			buildWindow([]string{a.ID}, byAd, p.Current),
			buildWindow([]string{a.ID}, byAd, p.Previous),
			ev.thresholds,
		)
		cur, prev := adEv.current.derived, adEv.previous.derived
		ads = append(ads, AdPerformance{
			Ad:       a,
			Totals:   adEv.current.totals,
			Derived:  cur,
			Previous: prev,
			Deltas: AdDeltas{
				CostPerResult:  adEv.costDelta,
				CPC:            analysis.Delta(cur.CPC, prev.CPC),
				CTR:            analysis.Delta(cur.CTR, prev.CTR),
				Frequency:      analysis.Delta(cur.Frequency, prev.Frequency),
				ROAS:           analysis.Delta(cur.ROAS, prev.ROAS),
				ConversionRate: analysis.Delta(cur.ConversionRate, prev.ConversionRate),
			},
			Diagnosis: adEv.diagnosis,
			Score:     adEv.score,
			Label:     adEv.label,
		})
	}

	return &AdGroupDetail{
		Period:     p,
		AdGroup:    g.AdGroup,
		Campaign:   g.Campaign,
		Thresholds: ev.thresholds,
		Totals:     ev.current.totals,
		Derived:    ev.current.derived,
		Previous:   ev.previous.derived,
		Score:      ev.score,
		Label:      ev.label,
		Diagnosis:  ev.diagnosis,
		CostDelta:  ev.costDelta,
		Evidence:   analysis.BuildEvidenceSlots(ev.current.derived, ev.previous.derived),
		Daily:      dailySeries(analysis.FilterRows(rows, p.Current)),
		Ads:        ads,
	}, nil
}

func dailySeries(rows []models.DailyMetricRow) []DailyPoint {
	byDate := make(map[string][]models.DailyMetricRow)
	for _, r := range rows {
		key := r.Date.UTC().Format("2006-01-02")
		byDate[key] = append(byDate[key], r)
	}
	out := make([]DailyPoint, 0, len(byDate))
	for date, bucket := range byDate {
		t := analysis.SumRows(bucket)
		out = append(out, DailyPoint{Date: date, Totals: t, Derived: analysis.ComputeDerived(t)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
