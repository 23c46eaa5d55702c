package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AngelCh415/adreview/internal/models"
)

type MemoryStore struct {
	mu         sync.RWMutex
	accounts   []models.Account // orden de carga
	campaigns  map[string]models.Campaign
	adGroups   map[string]models.AdGroup
	ads        map[string]models.Ad
	adsByGroup map[string][]string
	rows       map[string][]models.DailyMetricRow // por ad id
	seen       map[string]struct{}                // idempotencia por (ad, día)
	latest     time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:  make(map[string]models.Campaign),
		adGroups:   make(map[string]models.AdGroup),
		ads:        make(map[string]models.Ad),
		adsByGroup: make(map[string][]string),
		rows:       make(map[string][]models.DailyMetricRow),
		seen:       make(map[string]struct{}),
	}
}

// MarkSeen reports whether key is new, recording it either way.
func (s *MemoryStore) MarkSeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markSeenLocked(key)
}

func (s *MemoryStore) markSeenLocked(key string) bool {
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// LoadSnapshot replaces reference data and appends daily rows that were not
// loaded before. A snapshot that fails validation leaves the store untouched.
func (s *MemoryStore) LoadSnapshot(_ context.Context, snap Snapshot) (LoadStats, error) {
	if err := snap.Validate(); err != nil {
		return LoadStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = append([]models.Account(nil), snap.Accounts...)
	s.campaigns = make(map[string]models.Campaign, len(snap.Campaigns))
	for _, c := range snap.Campaigns {
		s.campaigns[c.ID] = c
	}
	s.adGroups = make(map[string]models.AdGroup, len(snap.AdGroups))
	for _, g := range snap.AdGroups {
		s.adGroups[g.ID] = g
	}
	s.ads = make(map[string]models.Ad, len(snap.Ads))
	s.adsByGroup = make(map[string][]string)
	for _, a := range snap.Ads {
		s.ads[a.ID] = a
		s.adsByGroup[a.AdGroupID] = append(s.adsByGroup[a.AdGroupID], a.ID)
	}

	stats := LoadStats{
		Accounts:  len(snap.Accounts),
		Campaigns: len(snap.Campaigns),
		AdGroups:  len(snap.AdGroups),
		Ads:       len(snap.Ads),
	}
	for _, r := range snap.DailyMetrics {
		if !s.markSeenLocked(rowKey(r)) {
			stats.RowsSkipped++
			continue
		}
		r.Date = dayUTC(r.Date)
		s.rows[r.EntityID] = append(s.rows[r.EntityID], r)
		if r.Date.After(s.latest) {
			s.latest = r.Date
		}
		stats.RowsAdded++
	}
	return stats, nil
}

func (s *MemoryStore) LatestMetricDate(context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, nil
}

func (s *MemoryStore) FirstAccountID(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.accounts) == 0 {
		return "", nil
	}
	return s.accounts[0].ID, nil
}

func (s *MemoryStore) Accounts(context.Context) ([]models.Account, error) {
	s.mu.RLock()
	out := append([]models.Account(nil), s.accounts...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) AdGroupsForAccount(_ context.Context, accountID string) ([]AdGroupListRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AdGroupListRow
	for _, g := range s.adGroups {
		c := s.campaigns[g.CampaignID]
		if c.AccountID != accountID {
			continue
		}
		out = append(out, AdGroupListRow{AdGroup: g, Campaign: c, AdIDs: s.adIDsLocked(g.ID)})
	}
	sortGroups(out, func(r AdGroupListRow) models.AdGroup { return r.AdGroup })
	return out, nil
}

func (s *MemoryStore) AdGroupsForCampaign(_ context.Context, campaignID string) ([]AdGroupCampaignListRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil, nil
	}
	var acc models.Account
	for _, a := range s.accounts {
		if a.ID == c.AccountID {
			acc = a
			break
		}
	}
	var out []AdGroupCampaignListRow
	for _, g := range s.adGroups {
		if g.CampaignID != campaignID {
			continue
		}
		out = append(out, AdGroupCampaignListRow{
			AdGroup:  g,
			Campaign: CampaignWithAccount{Campaign: c, Account: acc},
			AdIDs:    s.adIDsLocked(g.ID),
		})
	}
	sortGroups(out, func(r AdGroupCampaignListRow) models.AdGroup { return r.AdGroup })
	return out, nil
}

func (s *MemoryStore) AdGroupByID(_ context.Context, adGroupID string) (*AdGroupDetailRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.adGroups[adGroupID]
	if !ok {
		return nil, nil
	}
	ids := s.adsByGroup[g.ID]
	ads := make([]models.Ad, 0, len(ids))
	for _, id := range ids {
		ads = append(ads, s.ads[id])
	}
	return &AdGroupDetailRow{AdGroup: g, Campaign: s.campaigns[g.CampaignID], Ads: ads}, nil
}

func (s *MemoryStore) DailyMetricsForAds(_ context.Context, adIDs []string, r models.DateRange) ([]models.DailyMetricRow, error) {
	start, end := dayUTC(r.Start), dayUTC(r.End)
	s.mu.RLock()
	var out []models.DailyMetricRow
	for _, id := range dedupe(adIDs) {
		for _, row := range s.rows[id] {
			if !row.Date.Before(start) && !row.Date.After(end) {
				out = append(out, row)
			}
		}
	}
	s.mu.RUnlock()

	// orden determinista
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

func (s *MemoryStore) adIDsLocked(groupID string) []string {
	return append([]string{}, s.adsByGroup[groupID]...)
}

func sortGroups[T any](rows []T, group func(T) models.AdGroup) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := group(rows[i]), group(rows[j])
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
