package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adreview/internal/models"
)

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestNormalizePeriodDays(t *testing.T) {
	for in, want := range map[int]int{3: 3, 7: 7, 14: 14, 0: 7, -3: 7, 30: 7, 5: 7} {
		assert.Equal(t, want, NormalizePeriodDays(in), "in=%d", in)
	}
	for in, want := range map[string]int{"14": 14, " 3 ": 3, "7.0": 7, "": 7, "abc": 7, "NaN": 7, "7.5": 7} {
		assert.Equal(t, want, ParsePeriodDays(in), "in=%q", in)
	}
}

func TestPeriodDaysJSON(t *testing.T) {
	var body struct {
		PeriodDays PeriodDays `json:"periodDays"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"periodDays":"14"}`), &body))
	assert.Equal(t, 14, body.PeriodDays.Int())

	body.PeriodDays = 0
	require.NoError(t, json.Unmarshal([]byte(`{"periodDays":3}`), &body))
	assert.Equal(t, 3, body.PeriodDays.Int())

	body.PeriodDays = 0
	require.NoError(t, json.Unmarshal([]byte(`{}`), &body))
	assert.Equal(t, DefaultPeriodDays, body.PeriodDays.Int())

	require.NoError(t, json.Unmarshal([]byte(`{"periodDays":99}`), &body))
	assert.Equal(t, DefaultPeriodDays, body.PeriodDays.Int())

	require.NoError(t, json.Unmarshal([]byte(`{"periodDays":null}`), &body))
	assert.Equal(t, DefaultPeriodDays, body.PeriodDays.Int())

	for _, raw := range []string{`true`, `false`, `{}`, `[7]`} {
		assert.Error(t, json.Unmarshal([]byte(`{"periodDays":`+raw+`}`), &body), raw)
	}
}

func TestBuildPeriodRangeScenario(t *testing.T) {
	p := BuildPeriodRange(day("2024-01-15"), 7)
	assert.Equal(t, 7, p.Days)
	assert.Equal(t, day("2024-01-09"), p.Current.Start)
	assert.Equal(t, day("2024-01-15"), p.Current.End)
	assert.Equal(t, day("2024-01-02"), p.Previous.Start)
	assert.Equal(t, day("2024-01-08"), p.Previous.End)
}

func TestBuildPeriodRangeSymmetry(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	ends := []time.Time{
		day("2024-03-01"),
		time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 1, 1, 3, 0, 0, 0, loc), // 2023-12-31 in UTC
		day("2024-02-29"),
	}
	for _, end := range ends {
		for _, days := range []int{3, 7, 14} {
			p := BuildPeriodRange(end, days)
			span := time.Duration(days-1) * 24 * time.Hour
			assert.Equal(t, span, p.Current.End.Sub(p.Current.Start))
			assert.Equal(t, span, p.Previous.End.Sub(p.Previous.Start))
			assert.Equal(t, p.Current.Start.AddDate(0, 0, -1), p.Previous.End)
			assert.Equal(t, time.UTC, p.Current.End.Location())
		}
	}

	p := BuildPeriodRange(time.Date(2024, 1, 1, 3, 0, 0, 0, loc), 3)
	assert.Equal(t, day("2023-12-31"), p.Current.End)
}

func TestIsWithinRangeInclusive(t *testing.T) {
	r := models.DateRange{Start: day("2024-01-09"), End: day("2024-01-15")}
	assert.True(t, IsWithinRange(day("2024-01-09"), r))
	assert.True(t, IsWithinRange(day("2024-01-15"), r))
	assert.False(t, IsWithinRange(day("2024-01-08"), r))
	assert.False(t, IsWithinRange(day("2024-01-16"), r))
}
