package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/adreview/internal/models"
)

const DefaultPeriodDays = 7

var allowedPeriodDays = map[int]struct{}{3: {}, 7: {}, 14: {}}

// PeriodRange is a pair of equal-length, contiguous, non-overlapping windows.
type PeriodRange struct {
	Days     int              `json:"days"`
	Current  models.DateRange `json:"current"`
	Previous models.DateRange `json:"previous"`
}

// NormalizePeriodDays collapses anything outside {3, 7, 14} to the default.
func NormalizePeriodDays(days int) int {
	if _, ok := allowedPeriodDays[days]; ok {
		return days
	}
	return DefaultPeriodDays
}

// ParsePeriodDays accepts query-string style input ("7", " 14 ", "7.0").
func ParsePeriodDays(raw string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || f != math.Trunc(f) {
		return DefaultPeriodDays
	}
	return NormalizePeriodDays(int(f))
}

// PeriodDays decodes a JSON number or string and normalizes it on the way in.
// A zero value means the field was absent. Other JSON kinds are rejected.
type PeriodDays int

func (p *PeriodDays) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*p = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*p = PeriodDays(ParsePeriodDays(str))
		return nil
	}
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return fmt.Errorf("periodDays: expected number or string, got %s", s)
	}
	*p = PeriodDays(ParsePeriodDays(s))
	return nil
}

// Int returns the normalized day count, defaulting when absent.
func (p PeriodDays) Int() int { return NormalizePeriodDays(int(p)) }

func DayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func addDays(t time.Time, days int) time.Time {
	return DayUTC(t.UTC().AddDate(0, 0, days))
}

// BuildPeriodRange anchors the current window on the UTC day of end and
// places the previous window immediately before it.
func BuildPeriodRange(end time.Time, days int) PeriodRange {
	curEnd := DayUTC(end)
	curStart := addDays(curEnd, -(days - 1))
	prevEnd := addDays(curStart, -1)
	prevStart := addDays(prevEnd, -(days - 1))
	return PeriodRange{
		Days:     days,
		Current:  models.DateRange{Start: curStart, End: curEnd},
		Previous: models.DateRange{Start: prevStart, End: prevEnd},
	}
}

// Span covers both windows, previous.start through current.end.
func (p PeriodRange) Span() models.DateRange {
	return models.DateRange{Start: p.Previous.Start, End: p.Current.End}
}

func IsWithinRange(t time.Time, r models.DateRange) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func FilterRows(rows []models.DailyMetricRow, r models.DateRange) []models.DailyMetricRow {
	out := make([]models.DailyMetricRow, 0, len(rows))
	for _, row := range rows {
		if IsWithinRange(row.Date, r) {
			out = append(out, row)
		}
	}
	return out
}
