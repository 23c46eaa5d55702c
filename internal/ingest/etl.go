package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AngelCh415/adreview/internal/analysis"
	"github.com/AngelCh415/adreview/internal/config"
	"github.com/AngelCh415/adreview/internal/models"
	"github.com/AngelCh415/adreview/internal/store"
)

var (
	ErrSinkNotConfigured   = errors.New("sink not configured")
	ErrSourceNotConfigured = errors.New("snapshot url not configured")
)

type ETL struct {
	c   HTTPClient
	dst store.Loader
	src store.Source
	log *slog.Logger
	cfg config.Config
}

func NewETL(c HTTPClient, dst store.Loader, src store.Source, log *slog.Logger, cfg config.Config) *ETL {
	return &ETL{c: c, dst: dst, src: src, log: log, cfg: cfg}
}

type dailyRow struct {
	EntityID    string `json:"entityId"`
	Date        string `json:"date"`
	Spend       int64  `json:"spend"`
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks"`
	Results     int64  `json:"results"`
	Reach       *int64 `json:"reach"`
	Revenue     *int64 `json:"revenue"`
}

type snapshotResp struct {
	Accounts     []models.Account  `json:"accounts"`
	Campaigns    []models.Campaign `json:"campaigns"`
	AdGroups     []models.AdGroup  `json:"adGroups"`
	Ads          []models.Ad       `json:"ads"`
	DailyMetrics []dailyRow        `json:"dailyMetrics"`
}

// parseDay accepts YYYY-MM-DD or RFC3339 and truncates to the UTC day.
func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// normalize trims ids, clamps negative counters and drops rows without a usable date.
func (r snapshotResp) normalize() (store.Snapshot, int) {
	snap := store.Snapshot{
		Accounts:     r.Accounts,
		Campaigns:    r.Campaigns,
		AdGroups:     r.AdGroups,
		Ads:          r.Ads,
		DailyMetrics: make([]models.DailyMetricRow, 0, len(r.DailyMetrics)),
	}
	dropped := 0
	for _, row := range r.DailyMetrics {
		d, err := parseDay(row.Date)
		id := strings.TrimSpace(row.EntityID)
		if err != nil || id == "" {
			dropped++
			continue
		}
		snap.DailyMetrics = append(snap.DailyMetrics, models.DailyMetricRow{
			EntityID:    id,
			Date:        d,
			Spend:       max(row.Spend, 0),
			Impressions: max(row.Impressions, 0),
			Clicks:      max(row.Clicks, 0),
			Results:     max(row.Results, 0),
			Reach:       nonNegative(row.Reach),
			Revenue:     nonNegative(row.Revenue),
		})
	}
	return snap, dropped
}

func nonNegative(v *int64) *int64 {
	if v == nil || *v >= 0 {
		return v
	}
	return models.Int64(0)
}

// ParseSnapshot decodes a snapshot document. The int is the number of rows dropped.
func ParseSnapshot(r io.Reader) (store.Snapshot, int, error) {
	var resp snapshotResp
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return store.Snapshot{}, 0, fmt.Errorf("decode snapshot: %w", err)
	}
	snap, dropped := resp.normalize()
	return snap, dropped, nil
}

// Run fetches the snapshot at SNAPSHOT_URL and loads it.
func (e *ETL) Run(ctx context.Context) (store.LoadStats, error) {
	if e.cfg.SnapshotURL == "" {
		return store.LoadStats{}, ErrSourceNotConfigured
	}
	var resp snapshotResp
	if err := GetJSONWithRetry(ctx, e.c, e.cfg.SnapshotURL, &resp); err != nil {
		return store.LoadStats{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	snap, dropped := resp.normalize()
	return e.load(ctx, snap, dropped)
}

func (e *ETL) LoadFile(ctx context.Context, path string) (store.LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return store.LoadStats{}, err
	}
	defer f.Close()
	snap, dropped, err := ParseSnapshot(f)
	if err != nil {
		return store.LoadStats{}, err
	}
	return e.load(ctx, snap, dropped)
}

func (e *ETL) load(ctx context.Context, snap store.Snapshot, dropped int) (store.LoadStats, error) {
	stats, err := e.dst.LoadSnapshot(ctx, snap)
	if err != nil {
		return stats, err
	}
	stats.RowsSkipped += dropped
	e.log.Info("ingest complete",
		slog.Int("accounts", stats.Accounts),
		slog.Int("ad_groups", stats.AdGroups),
		slog.Int("rows_added", stats.RowsAdded),
		slog.Int("rows_skipped", stats.RowsSkipped))
	return stats, nil
}

// Schedule runs Run on a cron spec until ctx is done.
func (e *ETL) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := e.Run(ctx); err != nil {
			e.log.Error("scheduled ingest failed", slog.String("err", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ingest schedule %q: %w", spec, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}

// Rollup is one ad group's totals for a single day.
type Rollup struct {
	Date        string                `json:"date"`
	AccountID   string                `json:"accountId"`
	CampaignID  string                `json:"campaignId"`
	AdGroupID   string                `json:"adGroupId"`
	AdGroupName string                `json:"adGroupName"`
	Totals      models.Totals         `json:"totals"`
	Derived     models.DerivedMetrics `json:"derived"`
}

func (e *ETL) rollups(ctx context.Context, day time.Time) ([]Rollup, error) {
	accounts, err := e.src.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	r := models.DateRange{Start: day, End: day}
	var out []Rollup
	for _, a := range accounts {
		groups, err := e.src.AdGroupsForAccount(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			if len(g.AdIDs) == 0 {
				continue
			}
			rows, err := e.src.DailyMetricsForAds(ctx, g.AdIDs, r)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				continue
			}
			t := analysis.SumRows(rows)
			out = append(out, Rollup{
				Date:        day.Format("2006-01-02"),
				AccountID:   a.ID,
				CampaignID:  g.CampaignID,
				AdGroupID:   g.ID,
				AdGroupName: g.Name,
				Totals:      t,
				Derived:     analysis.ComputeDerived(t),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdGroupID < out[j].AdGroupID })
	return out, nil
}

// ExportDay posts the day's ad-group rollups to the sink, signed with HMAC-SHA256.
func (e *ETL) ExportDay(ctx context.Context, date time.Time) (int, error) {
	if e.cfg.SinkURL == "" || e.cfg.SinkSecret == "" {
		return 0, ErrSinkNotConfigured
	}
	rows, err := e.rollups(ctx, analysis.DayUTC(date))
	if err != nil {
		return 0, fmt.Errorf("build rollups: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.SinkURL, strings.NewReader(string(b)))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", Sign(b, e.cfg.SinkSecret))
	resp, err := e.c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("export sink: %w", &StatusError{Code: resp.StatusCode})
	}
	return len(rows), nil
}

func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
