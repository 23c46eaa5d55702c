package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/AngelCh415/adreview/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const entityTypeAd = "AD"

// PostgresStore implements Source and Loader over the accounts / campaigns /
// ad_groups / ads / daily_metrics tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// OpenPostgres opens a lib/pq connection pool and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestMetricDate(ctx context.Context) (time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM daily_metrics WHERE entity_type = $1`, entityTypeAd,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest metric date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return dayUTC(latest.Time), nil
}

func (s *PostgresStore) FirstAccountID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM accounts ORDER BY created_at ASC, id ASC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("first account: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Accounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM accounts ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const adGroupListQuery = `
SELECT g.id, g.campaign_id, g.name, g.status,
       c.id, c.account_id, c.name, c.objective, c.status,
       COALESCE(array_agg(a.id ORDER BY a.id) FILTER (WHERE a.id IS NOT NULL), '{}') AS ad_ids
FROM ad_groups g
JOIN campaigns c ON c.id = g.campaign_id
LEFT JOIN ads a ON a.ad_group_id = g.id
WHERE c.account_id = $1
GROUP BY g.id, c.id
ORDER BY g.name ASC, g.id ASC`

func (s *PostgresStore) AdGroupsForAccount(ctx context.Context, accountID string) ([]AdGroupListRow, error) {
	rows, err := s.db.QueryContext(ctx, adGroupListQuery, accountID)
	if err != nil {
		return nil, fmt.Errorf("ad groups for account: %w", err)
	}
	defer rows.Close()

	var out []AdGroupListRow
	for rows.Next() {
		var r AdGroupListRow
		if err := rows.Scan(
			&r.ID, &r.CampaignID, &r.Name, &r.Status,
			&r.Campaign.ID, &r.Campaign.AccountID, &r.Campaign.Name, &r.Campaign.Objective, &r.Campaign.Status,
			pq.Array(&r.AdIDs),
		); err != nil {
			return nil, fmt.Errorf("scan ad group: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const adGroupCampaignQuery = `
SELECT g.id, g.campaign_id, g.name, g.status,
       c.id, c.account_id, c.name, c.objective, c.status,
       acc.id, acc.name,
       COALESCE(array_agg(a.id ORDER BY a.id) FILTER (WHERE a.id IS NOT NULL), '{}') AS ad_ids
FROM ad_groups g
JOIN campaigns c ON c.id = g.campaign_id
JOIN accounts acc ON acc.id = c.account_id
LEFT JOIN ads a ON a.ad_group_id = g.id
WHERE g.campaign_id = $1
GROUP BY g.id, c.id, acc.id
ORDER BY g.name ASC, g.id ASC`

func (s *PostgresStore) AdGroupsForCampaign(ctx context.Context, campaignID string) ([]AdGroupCampaignListRow, error) {
	rows, err := s.db.QueryContext(ctx, adGroupCampaignQuery, campaignID)
	if err != nil {
		return nil, fmt.Errorf("ad groups for campaign: %w", err)
	}
	defer rows.Close()

	var out []AdGroupCampaignListRow
	for rows.Next() {
		var r AdGroupCampaignListRow
		c := &r.Campaign
		if err := rows.Scan(
			&r.ID, &r.CampaignID, &r.Name, &r.Status,
			&c.ID, &c.AccountID, &c.Name, &c.Objective, &c.Status,
			&c.Account.ID, &c.Account.Name,
			pq.Array(&r.AdIDs),
		); err != nil {
			return nil, fmt.Errorf("scan ad group: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AdGroupByID(ctx context.Context, adGroupID string) (*AdGroupDetailRow, error) {
	var r AdGroupDetailRow
	err := s.db.QueryRowContext(ctx, `
SELECT g.id, g.campaign_id, g.name, g.status,
       c.id, c.account_id, c.name, c.objective, c.status
FROM ad_groups g
JOIN campaigns c ON c.id = g.campaign_id
WHERE g.id = $1`, adGroupID).Scan(
		&r.ID, &r.CampaignID, &r.Name, &r.Status,
		&r.Campaign.ID, &r.Campaign.AccountID, &r.Campaign.Name, &r.Campaign.Objective, &r.Campaign.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ad group %s: %w", adGroupID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, ad_group_id, name, creative_key, creative_type, status
FROM ads WHERE ad_group_id = $1 ORDER BY id ASC`, adGroupID)
	if err != nil {
		return nil, fmt.Errorf("ads for ad group %s: %w", adGroupID, err)
	}
	defer rows.Close()

	r.Ads = []models.Ad{}
	for rows.Next() {
		var (
			a          models.Ad
			key, ctype sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.AdGroupID, &a.Name, &key, &ctype, &a.Status); err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		if key.Valid {
			a.CreativeKey = &key.String
		}
		if ctype.Valid {
			ct := models.CreativeType(ctype.String)
			a.CreativeType = &ct
		}
		r.Ads = append(r.Ads, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

// DailyMetricsForAds reads both windows in one call; ad ids travel as a
// single array parameter.
func (s *PostgresStore) DailyMetricsForAds(ctx context.Context, adIDs []string, r models.DateRange) ([]models.DailyMetricRow, error) {
	if len(adIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT entity_id, date, spend, impressions, clicks, results, reach, revenue
FROM daily_metrics
WHERE entity_type = $1 AND entity_id = ANY($2) AND date BETWEEN $3 AND $4
ORDER BY date ASC, entity_id ASC`,
		entityTypeAd, pq.Array(adIDs), dayUTC(r.Start), dayUTC(r.End))
	if err != nil {
		return nil, fmt.Errorf("daily metrics: %w", err)
	}
	defer rows.Close()

	var out []models.DailyMetricRow
	for rows.Next() {
		var (
			m              models.DailyMetricRow
			reach, revenue sql.NullInt64
		)
		if err := rows.Scan(&m.EntityID, &m.Date, &m.Spend, &m.Impressions, &m.Clicks, &m.Results, &reach, &revenue); err != nil {
			return nil, fmt.Errorf("scan daily metric: %w", err)
		}
		m.Date = dayUTC(m.Date)
		if reach.Valid {
			m.Reach = &reach.Int64
		}
		if revenue.Valid {
			m.Revenue = &revenue.Int64
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LoadSnapshot upserts reference data and inserts daily rows in one
// transaction. Existing (entity, day) facts are kept as they are.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, snap Snapshot) (LoadStats, error) {
	if err := snap.Validate(); err != nil {
		return LoadStats{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadStats{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stats := LoadStats{
		Accounts:  len(snap.Accounts),
		Campaigns: len(snap.Campaigns),
		AdGroups:  len(snap.AdGroups),
		Ads:       len(snap.Ads),
	}

	for _, a := range snap.Accounts {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO accounts (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, a.ID, a.Name); err != nil {
			return LoadStats{}, fmt.Errorf("upsert account %s: %w", a.ID, err)
		}
	}
	for _, c := range snap.Campaigns {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO campaigns (id, account_id, name, objective, status) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET account_id = EXCLUDED.account_id, name = EXCLUDED.name,
  objective = EXCLUDED.objective, status = EXCLUDED.status`,
			c.ID, c.AccountID, c.Name, c.Objective, string(c.Status)); err != nil {
			return LoadStats{}, fmt.Errorf("upsert campaign %s: %w", c.ID, err)
		}
	}
	for _, g := range snap.AdGroups {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ad_groups (id, campaign_id, name, status) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET campaign_id = EXCLUDED.campaign_id, name = EXCLUDED.name,
  status = EXCLUDED.status`,
			g.ID, g.CampaignID, g.Name, string(g.Status)); err != nil {
			return LoadStats{}, fmt.Errorf("upsert ad group %s: %w", g.ID, err)
		}
	}
	for _, a := range snap.Ads {
		var ctype *string
		if a.CreativeType != nil {
			v := string(*a.CreativeType)
			ctype = &v
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ads (id, ad_group_id, name, creative_key, creative_type, status) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET ad_group_id = EXCLUDED.ad_group_id, name = EXCLUDED.name,
  creative_key = EXCLUDED.creative_key, creative_type = EXCLUDED.creative_type, status = EXCLUDED.status`,
			a.ID, a.AdGroupID, a.Name, a.CreativeKey, ctype, string(a.Status)); err != nil {
			return LoadStats{}, fmt.Errorf("upsert ad %s: %w", a.ID, err)
		}
	}
	for _, m := range snap.DailyMetrics {
		res, err := tx.ExecContext(ctx, `
INSERT INTO daily_metrics (entity_type, entity_id, date, spend, impressions, clicks, results, reach, revenue)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (entity_type, entity_id, date) DO NOTHING`,
			entityTypeAd, m.EntityID, dayUTC(m.Date), m.Spend, m.Impressions, m.Clicks, m.Results, m.Reach, m.Revenue)
		if err != nil {
			return LoadStats{}, fmt.Errorf("insert daily metric %s: %w", rowKey(m), err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stats.RowsAdded++
		} else {
			stats.RowsSkipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return LoadStats{}, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}
