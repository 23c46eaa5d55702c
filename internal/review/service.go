package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AngelCh415/adreview/internal/analysis"
	"github.com/AngelCh415/adreview/internal/models"
	"github.com/AngelCh415/adreview/internal/scoring"
	"github.com/AngelCh415/adreview/internal/store"
)

// ErrNotFound is returned when the requested account or ad group does not exist.
var ErrNotFound = errors.New("not found")

type Service struct {
	src      store.Source
	resolver *scoring.Resolver
	log      *slog.Logger
	now      func() time.Time
}

func NewService(src store.Source, resolver *scoring.Resolver, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{src: src, resolver: resolver, log: log, now: time.Now}
}

func (s *Service) Accounts(ctx context.Context) ([]models.Account, error) {
	return s.src.Accounts(ctx)
}

// period anchors on the latest metric date, or today when there is no data.
func (s *Service) period(ctx context.Context, periodDays int) (analysis.PeriodRange, error) {
	end, err := s.src.LatestMetricDate(ctx)
	if err != nil {
		return analysis.PeriodRange{}, err
	}
	if end.IsZero() {
		end = s.now()
	}
	return analysis.BuildPeriodRange(end, analysis.NormalizePeriodDays(periodDays)), nil
}

// loadRows reads both windows for adIDs in a single call and buckets them by ad.
func (s *Service) loadRows(ctx context.Context, adIDs []string, p analysis.PeriodRange) (map[string][]models.DailyMetricRow, []models.DailyMetricRow, error) {
	byAd := make(map[string][]models.DailyMetricRow)
	if len(adIDs) == 0 {
		return byAd, nil, nil
	}
	rows, err := s.src.DailyMetricsForAds(ctx, adIDs, p.Span())
	if err != nil {
		return nil, nil, fmt.Errorf("load daily metrics: %w", err)
	}
	for _, r := range rows {
		byAd[r.EntityID] = append(byAd[r.EntityID], r)
	}
	return byAd, rows, nil
}

type window struct {
	totals  models.Totals
	derived models.DerivedMetrics
}

func buildWindow(adIDs []string, byAd map[string][]models.DailyMetricRow, r models.DateRange) window {
	var rows []models.DailyMetricRow
	for _, id := range adIDs {
		rows = append(rows, analysis.FilterRows(byAd[id], r)...)
	}
	t := analysis.SumRows(rows)
	return window{totals: t, derived: analysis.ComputeDerived(t)}
}

// groupEval is the shared per-ad-group computation behind every view.
type groupEval struct {
	current, previous window
	thresholds        scoring.Thresholds
	score             int
	label             scoring.Label
	costDelta         analysis.DeltaValue
	diagnosis         scoring.Diagnosis
}

func (s *Service) evaluate(accountID, objective string, adIDs []string, byAd map[string][]models.DailyMetricRow, p analysis.PeriodRange) groupEval {
	cur := buildWindow(adIDs, byAd, p.Current)
	prev := buildWindow(adIDs, byAd, p.Previous)
	th := s.resolver.Resolve(accountID, objective)
	return evalWindows(cur, prev, th)
}

func evalWindows(cur, prev window, th scoring.Thresholds) groupEval {
	score := scoring.ComputeScore(cur.derived, th)
	costDelta := analysis.Delta(cur.derived.CostPerResult, prev.derived.CostPerResult)
	return groupEval{
		current:    cur,
		previous:   prev,
		thresholds: th,
		score:      score,
		label:      scoring.LabelFromScore(score, th),
		costDelta:  costDelta,
		diagnosis: scoring.DiagnoseAdGroup(scoring.DiagnosisInput{
			Totals:             cur.totals,
			Metrics:            cur.derived,
			CostPerResultDelta: costDelta,
		}, th),
	}
}

func checkUnique(kind string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate %s id %q", store.ErrIntegrity, kind, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func sortPriority(items []PriorityItem) {
	// orden determinista
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		return a.Totals.Spend > b.Totals.Spend
	})
}
