package ai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adreview/internal/analysis"
	"github.com/AngelCh415/adreview/internal/config"
	"github.com/AngelCh415/adreview/internal/models"
	"github.com/AngelCh415/adreview/internal/review"
	"github.com/AngelCh415/adreview/internal/scoring"
)

type stubDetails struct {
	calls atomic.Int32
	miss  bool
}

func (s *stubDetails) AdGroupDetail(_ context.Context, id string, periodDays int) (*review.AdGroupDetail, error) {
	s.calls.Add(1)
	if s.miss {
		return nil, review.ErrNotFound
	}
	return &review.AdGroupDetail{
		Period:   analysis.PeriodRange{Days: analysis.NormalizePeriodDays(periodDays)},
		AdGroup:  models.AdGroup{ID: id, Name: "Group " + id},
		Campaign: models.Campaign{Name: "Campaign"},
		Score:    62,
		Label:    scoring.LabelNormal,
		Derived:  models.DerivedMetrics{CTR: models.Float64(0.012)},
		Evidence: []analysis.EvidenceSlot{
			{ID: analysis.SlotCostEfficiency, Title: "Cost Efficiency", MetricLabel: "Cost per Result"},
		},
	}, nil
}

// provider fakes the LLM endpoint. Stages are told apart by temperature.
type provider struct {
	insight     string
	reco        string
	recoStatus  int
	delay       time.Duration
	insightHits atomic.Int32
	recoHits    atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu       sync.Mutex
	lastUser string
}

func (p *provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		m := p.maxInFlight.Load()
		if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	var body struct {
		Temperature float64   `json:"temperature"`
		Messages    []Message `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	p.mu.Lock()
	p.lastUser = body.Messages[len(body.Messages)-1].Content
	p.mu.Unlock()

	content := p.insight
	if body.Temperature == recoTemperature {
		p.recoHits.Add(1)
		if p.recoStatus != 0 {
			w.WriteHeader(p.recoStatus)
			return
		}
		content = p.reco
	} else {
		p.insightHits.Add(1)
	}
	out, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": content}}}})
	w.Write(out)
}

const validReco = `{"summary":"Refresh creatives.","recommendations":[
	{"action":"a1","reason":"r","confidence":"high","basedOn":["insight:creative_fatigue"]},
	{"action":"a2","reason":"r","confidence":"med","basedOn":["evidence:E3"]},
	{"action":"a3","reason":"r","confidence":"low","basedOn":["evidence:E1"]},
	{"action":"a4","reason":"r","confidence":"low","basedOn":["evidence:E2"]}
],"notes":"Review before applying."}`

func newProvider() *provider {
	return &provider{insight: validInsight, reco: validReco}
}

func aiConfig(url string) config.AIConfig {
	cfg := config.DefaultAI()
	cfg.APIURL = url
	cfg.APIKey = "key"
	cfg.ModelInsight = "insight-model"
	cfg.ModelReco = "reco-model"
	cfg.Timeout = 2 * time.Second
	return cfg
}

func newPipeline(t *testing.T, cfg config.AIConfig, src DetailSource) *Pipeline {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPipeline(cfg, NewClient(http.DefaultClient), src, NewCache(cfg.CacheTTL, nil, nil), log, nil)
}

func TestSummaryDisabledWithoutConfig(t *testing.T) {
	p := newProvider()
	srv := httptest.NewServer(p)
	defer srv.Close()

	cfg := aiConfig(srv.URL)
	cfg.ModelInsight = ""
	pl := newPipeline(t, cfg, &stubDetails{})

	res := pl.Summary(context.Background(), Request{AdGroupID: "g1"})
	assert.Equal(t, StatusDisabled, res.Status)
	assert.Equal(t, ReasonMissingConfig, res.Reason)
	assert.Equal(t, SourceLive, res.Source)
	assert.Nil(t, res.Insight)
	assert.Zero(t, p.insightHits.Load())

	again := pl.Summary(context.Background(), Request{AdGroupID: "g1"})
	assert.Equal(t, StatusDisabled, again.Status)
	assert.Equal(t, SourceCache, again.Source)
}

func TestSummaryFullThenInsightReuse(t *testing.T) {
	p := newProvider()
	srv := httptest.NewServer(p)
	defer srv.Close()
	pl := newPipeline(t, aiConfig(srv.URL), &stubDetails{})

	full := pl.Summary(context.Background(), Request{AdGroupID: "g1", PeriodDays: 7})
	require.Equal(t, StatusOK, full.Status)
	assert.Equal(t, SourceLive, full.Source)
	require.NotNil(t, full.Recommendation)
	assert.Len(t, full.Recommendation.Recommendations, 3)
	assert.Empty(t, full.Reason)

	ins := pl.Summary(context.Background(), Request{AdGroupID: "g1", PeriodDays: 7, Mode: ModeInsight})
	assert.Equal(t, StatusPartial, ins.Status)
	assert.Equal(t, SourceCache, ins.Source)
	assert.Nil(t, ins.Recommendation)
	assert.Equal(t, full.Insight, ins.Insight)

	cached := pl.Summary(context.Background(), Request{AdGroupID: "g1", PeriodDays: 7})
	assert.Equal(t, SourceCache, cached.Source)
	assert.Equal(t, StatusOK, cached.Status)

	assert.Equal(t, int32(1), p.insightHits.Load())
	assert.Equal(t, int32(1), p.recoHits.Load())
}

func TestSummaryInsightReuseFromFullEntry(t *testing.T) {
	p := newProvider()
	srv := httptest.NewServer(p)
	defer srv.Close()
	pl := newPipeline(t, aiConfig(srv.URL), &stubDetails{})

	insight := ClampInsight(InsightJSON{InsightSummary: "from full"})
	fullKey := CacheKey("g9", 7, pl.cfg.Locale, "", ModeFull)
	pl.cache.Set(context.Background(), fullKey, Result{Status: StatusOK, Source: SourceLive, Insight: &insight})

	res := pl.Summary(context.Background(), Request{AdGroupID: "g9", Mode: ModeInsight})
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "from full", res.Insight.InsightSummary)
	assert.Zero(t, p.insightHits.Load())
}

func TestSummaryInsightModeSkipsRecommendation(t *testing.T) {
	p := newProvider()
	srv := httptest.NewServer(p)
	defer srv.Close()
	pl := newPipeline(t, aiConfig(srv.URL), &stubDetails{})

	res := pl.Summary(context.Background(), Request{AdGroupID: "g1", Mode: ModeInsight})
	assert.Equal(t, StatusPartial, res.Status)
	assert.NotNil(t, res.Insight)
	assert.Zero(t, p.recoHits.Load())
}

func TestSummaryPartialWhenRecommendationFails(t *testing.T) {
	p := newProvider()
	p.recoStatus = http.StatusInternalServerError
	srv := httptest.NewServer(p)
	defer srv.Close()
	pl := newPipeline(t, aiConfig(srv.URL), &stubDetails{})

	res := pl.Summary(context.Background(), Request{AdGroupID: "g1"})
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, ReasonError, res.Reason)
	require.NotNil(t, res.Insight)
	assert.Nil(t, res.Recommendation)
}

func TestSummaryFallbackOnInvalidInsight(t *testing.T) {
	p := newProvider()
	p.insight = `{"insightSummary":"s","unexpected":true}`
	srv := httptest.NewServer(p)
	defer srv.Close()
	pl := newPipeline(t, aiConfig(srv.URL), &stubDetails{})

	res := pl.Summary(context.Background(), Request{AdGroupID: "g1"})
	assert.Equal(t, StatusFallback, res.Status)
	assert.Equal(t, ReasonInvalidJSON, res.Reason)
	assert.Zero(t, p.recoHits.Load())
}

func TestSummaryTimeout(t *testing.T) {
	p := newProvider()
	p.delay = 300 * time.Millisecond
	srv := httptest.NewServer(p)
	defer srv.Close()

	cfg := aiConfig(srv.URL)
	cfg.Timeout = 30 * time.Millisecond
	pl := newPipeline(t, cfg, &stubDetails{})

	res := pl.Summary(context.Background(), Request{AdGroupID: "g1"})
	assert.Equal(t, StatusFallback, res.Status)
	assert.Equal(t, ReasonTimeout, res.Reason)
}

func TestSummaryClampsInsight(t *testing.T) {
	p := newProvider()
	p.insight = `{"insightSummary":"s",
		"evidenceBullets":[{"text":"1","evidenceRef":["E1"]},{"text":"2","evidenceRef":["E1"]},{"text":"3","evidenceRef":["E2"]},{"text":"4","evidenceRef":["E3"]}],
		"insights":[{"type":"volume","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]},{"type":"learning","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]},{"type":"efficiency","title":"t","detail":"d","severity":"low","evidenceRef":["E1"]}],
		"limits":["a","b","c","d","e"]}`
	srv := httptest.NewServer(p)
	defer srv.Close()
	pl := newPipeline(t, aiConfig(srv.URL), &stubDetails{})

	res := pl.Summary(context.Background(), Request{AdGroupID: "g1"})
	require.NotNil(t, res.Insight)
	assert.Len(t, res.Insight.EvidenceBullets, 3)
	assert.Len(t, res.Insight.Insights, 2)
	assert.Len(t, res.Insight.Limits, 3)

	// the recommendation stage only sees the clamped insight
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.NotContains(t, p.lastUser, `"text":"4"`)
	assert.Contains(t, p.lastUser, "Generate RecommendationJSON from InsightJSON only.")
}

func TestSummaryMissingDetailNotCached(t *testing.T) {
	p := newProvider()
	srv := httptest.NewServer(p)
	defer srv.Close()
	src := &stubDetails{miss: true}
	pl := newPipeline(t, aiConfig(srv.URL), src)

	for range 2 {
		res := pl.Summary(context.Background(), Request{AdGroupID: "missing"})
		assert.Equal(t, StatusFallback, res.Status)
		assert.Equal(t, ReasonError, res.Reason)
		assert.Equal(t, SourceLive, res.Source)
	}
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Zero(t, p.insightHits.Load())
}

func TestSummaryCoalescesConcurrentCalls(t *testing.T) {
	p := newProvider()
	p.delay = 100 * time.Millisecond
	srv := httptest.NewServer(p)
	defer srv.Close()
	pl := newPipeline(t, aiConfig(srv.URL), &stubDetails{})

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = pl.Summary(context.Background(), Request{AdGroupID: "g1"})
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, StatusOK, r.Status)
	}
	assert.Equal(t, int32(1), p.insightHits.Load())
	assert.Equal(t, int32(1), p.recoHits.Load())
}

func TestSummaryBusinessContextInPayloadAndKey(t *testing.T) {
	p := newProvider()
	srv := httptest.NewServer(p)
	defer srv.Close()
	pl := newPipeline(t, aiConfig(srv.URL), &stubDetails{})

	long := strings.Repeat("ก", 2500)
	pl.Summary(context.Background(), Request{AdGroupID: "g1", Mode: ModeInsight, BusinessContext: long})
	p.mu.Lock()
	assert.Contains(t, p.lastUser, strings.Repeat("ก", 2000))
	assert.NotContains(t, p.lastUser, strings.Repeat("ก", 2001))
	p.mu.Unlock()

	pl.Summary(context.Background(), Request{AdGroupID: "g1", Mode: ModeInsight, BusinessContext: "other"})
	assert.Equal(t, int32(2), p.insightHits.Load())
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "g1:7:th-TH:none:full", CacheKey("g1", 0, "th-TH", "  ", ModeFull))
	k := CacheKey("g1", 14, "th-TH", "promo week", ModeInsight)
	parts := strings.Split(k, ":")
	require.Len(t, parts, 5)
	assert.Len(t, parts[3], 16)
	assert.NotEqual(t, k, CacheKey("g1", 14, "th-TH", "promo month", ModeInsight))
	assert.Equal(t,
		CacheKey("g1", 7, "th-TH", strings.Repeat("x", 2000), ModeFull),
		CacheKey("g1", 7, "th-TH", strings.Repeat("x", 2001), ModeFull))
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, ModeFull, m)
	m, ok = ParseMode("insight")
	assert.True(t, ok)
	assert.Equal(t, ModeInsight, m)
	_, ok = ParseMode("summary")
	assert.False(t, ok)
}
