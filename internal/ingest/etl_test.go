package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adreview/internal/config"
	"github.com/AngelCh415/adreview/internal/models"
	"github.com/AngelCh415/adreview/internal/store"
)

const snapshotDoc = `{
	"accounts": [{"id": "acc1", "name": "Account"}],
	"campaigns": [{"id": "c1", "accountId": "acc1", "name": "Sales", "objective": "SALES", "status": "ACTIVE"}],
	"adGroups": [{"id": "g1", "campaignId": "c1", "name": "Group", "status": "ACTIVE"}],
	"ads": [{"id": "a1", "adGroupId": "g1", "name": "Ad", "status": "ACTIVE"}],
	"dailyMetrics": [
		{"entityId": "a1", "date": "2024-01-15", "spend": 1000, "impressions": 200, "clicks": 10, "results": 2},
		{"entityId": "a1", "date": "2024-01-14T09:30:00+07:00", "spend": -5, "impressions": 100, "clicks": 5, "results": 1},
		{"entityId": "a1", "date": "yesterday", "spend": 1, "impressions": 1, "clicks": 1, "results": 1}
	]
}`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// helper: hace la petición y devuelve código HTTP + error de red (si hubo)
func fetchURL(c HTTPClient, url string) (int, error) {
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func TestHTTPClientHandles500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	code, err := fetchURL(NewHTTPClient(2*time.Second), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestHTTPClientHandlesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := fetchURL(NewHTTPClient(100*time.Millisecond), srv.URL)
	assert.Error(t, err)
}

func TestRunRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, snapshotDoc)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	etl := NewETL(NewHTTPClient(time.Second), st, st, quiet(), config.Config{SnapshotURL: srv.URL})
	stats, err := etl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, stats.RowsAdded)
	assert.Equal(t, 1, stats.RowsSkipped)

	latest, err := st.LatestMetricDate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", latest.Format("2006-01-02"))

	rows, err := st.DailyMetricsForAds(context.Background(), []string{"a1"}, models.DateRange{Start: latest.AddDate(0, 0, -7), End: latest})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-14", rows[0].Date.Format("2006-01-02"))
	assert.Zero(t, rows[0].Spend)

	// idempotencia: the same snapshot adds nothing
	again, err := etl.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.RowsAdded)
}

func TestRunDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	etl := NewETL(NewHTTPClient(time.Second), st, st, quiet(), config.Config{SnapshotURL: srv.URL})
	_, err := etl.Run(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunWithoutURL(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := NewETL(NewHTTPClient(time.Second), st, st, quiet(), config.Config{}).Run(context.Background())
	assert.ErrorIs(t, err, ErrSourceNotConfigured)
}

func TestLoadFileRejectsBrokenReferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"accounts":[],"campaigns":[{"id":"c1","accountId":"ghost","name":"x"}]}`), 0o600))

	st := store.NewMemoryStore()
	_, err := NewETL(nil, st, st, quiet(), config.Config{}).LoadFile(context.Background(), path)
	assert.ErrorIs(t, err, store.ErrIntegrity)
}

func TestExportDaySignsRollups(t *testing.T) {
	var body []byte
	var sig string
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sink.Close()

	st := store.NewMemoryStore()
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshotDoc), 0o600))
	cfg := config.Config{SinkURL: sink.URL, SinkSecret: "s3cret"}
	etl := NewETL(NewHTTPClient(time.Second), st, st, quiet(), cfg)
	_, err := etl.LoadFile(context.Background(), path)
	require.NoError(t, err)

	n, err := etl.ExportDay(context.Background(), time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, Sign(body, "s3cret"), sig)

	var rows []Rollup
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "g1", rows[0].AdGroupID)
	assert.Equal(t, int64(1000), rows[0].Totals.Spend)
	assert.InDelta(t, 0.05, *rows[0].Derived.CTR, 1e-12)

	n, err = etl.ExportDay(context.Background(), time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExportDayWithoutSink(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := NewETL(nil, st, st, quiet(), config.Config{}).ExportDay(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrSinkNotConfigured)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	st := store.NewMemoryStore()
	etl := NewETL(nil, st, st, quiet(), config.Config{})
	_, err := etl.Schedule(context.Background(), "not a cron spec")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := etl.Schedule(ctx, "@every 1h")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
}
