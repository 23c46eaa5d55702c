package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/AngelCh415/adreview/internal/analysis"
	"github.com/AngelCh415/adreview/internal/config"
	"github.com/AngelCh415/adreview/internal/review"
	"github.com/AngelCh415/adreview/internal/telemetry"
)

// ErrMissingConfig marks a stage without provider URL, key or model.
var ErrMissingConfig = errors.New("ai: missing configuration")

type Mode string

const (
	ModeInsight Mode = "insight"
	ModeFull    Mode = "full"
)

// ParseMode accepts "", "insight" and "full"; empty means full.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeFull:
		return ModeFull, true
	case ModeInsight:
		return ModeInsight, true
	}
	return "", false
}

type Status string

const (
	StatusOK       Status = "ok"
	StatusPartial  Status = "partial"
	StatusFallback Status = "fallback"
	StatusDisabled Status = "disabled"
)

type Source string

const (
	SourceLive  Source = "live"
	SourceCache Source = "cache"
)

type Reason string

const (
	ReasonMissingConfig Reason = "missing_config"
	ReasonInvalidJSON   Reason = "invalid_json"
	ReasonTimeout       Reason = "timeout"
	ReasonError         Reason = "error"
)

// Result is always renderable; every non-ok status means the caller should
// fall back to deterministic evidence text.
type Result struct {
	Status         Status              `json:"status"`
	Source         Source              `json:"source"`
	Insight        *InsightJSON        `json:"insight"`
	Recommendation *RecommendationJSON `json:"recommendation"`
	Reason         Reason              `json:"reason,omitempty"`
}

const (
	stageInsight        = "insight"
	stageRecommendation = "recommendation"

	insightTemperature = 0.2
	recoTemperature    = 0.3

	maxBusinessContext = 2000
	logPreviewLen      = 200
)

type Request struct {
	AdGroupID       string
	PeriodDays      int
	BusinessContext string
	Mode            Mode
	// Detail skips the lookup when the caller already has it.
	Detail *review.AdGroupDetail
}

// DetailSource is the part of the review service the pipeline reads from.
type DetailSource interface {
	AdGroupDetail(ctx context.Context, adGroupID string, periodDays int) (*review.AdGroupDetail, error)
}

type caller interface {
	Call(ctx context.Context, p CallParams) (any, error)
}

type Pipeline struct {
	cfg     config.AIConfig
	client  caller
	src     DetailSource
	cache   *Cache
	log     *slog.Logger
	metrics *telemetry.Metrics

	flight      singleflight.Group
	missingOnce sync.Map // stage -> *sync.Once
}

func NewPipeline(cfg config.AIConfig, client *Client, src DetailSource, cache *Cache, log *slog.Logger, m *telemetry.Metrics) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cache == nil {
		cache = NewCache(cfg.CacheTTL, nil, m)
	}
	p := &Pipeline{cfg: cfg, src: src, cache: cache, log: log, metrics: m}
	if client != nil {
		p.client = client
	}
	return p
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func contextHash(businessContext string) string {
	if businessContext == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(businessContext))
	return hex.EncodeToString(sum[:])[:16]
}

// CacheKey is adGroupId:periodDays:locale:contextHash:mode.
func CacheKey(adGroupID string, periodDays int, locale, businessContext string, mode Mode) string {
	ctx := truncateRunes(strings.TrimSpace(businessContext), maxBusinessContext)
	return strings.Join([]string{
		adGroupID,
		strconv.Itoa(analysis.NormalizePeriodDays(periodDays)),
		locale,
		contextHash(ctx),
		string(mode),
	}, ":")
}

// Summary runs the cached, coalesced two-stage pipeline. It never fails.
func (p *Pipeline) Summary(ctx context.Context, req Request) Result {
	mode, ok := ParseMode(string(req.Mode))
	if !ok {
		mode = ModeFull
	}
	req.Mode = mode
	req.BusinessContext = truncateRunes(strings.TrimSpace(req.BusinessContext), maxBusinessContext)
	key := CacheKey(req.AdGroupID, req.PeriodDays, p.cfg.Locale, req.BusinessContext, mode)

	if hit, ok := p.cache.Get(ctx, key); ok {
		p.log.Info("ai cache_hit", slog.String("ad_group_id", req.AdGroupID), slog.String("status", string(hit.Status)))
		hit.Source = SourceCache
		return hit
	}
	if mode == ModeInsight {
		fullKey := CacheKey(req.AdGroupID, req.PeriodDays, p.cfg.Locale, req.BusinessContext, ModeFull)
		if full, ok := p.cache.Get(ctx, fullKey); ok && full.Insight != nil {
			p.log.Info("ai cache_hit", slog.String("ad_group_id", req.AdGroupID), slog.String("status", string(StatusPartial)))
			return Result{Status: StatusPartial, Source: SourceCache, Insight: full.Insight}
		}
	}

	ch := p.flight.DoChan(key, func() (any, error) {
		bg := context.WithoutCancel(ctx)
		if hit, ok := p.cache.Get(bg, key); ok {
			hit.Source = SourceCache
			return hit, nil
		}
		return p.compute(bg, key, req), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Result)
	case <-ctx.Done():
		reason := ReasonError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		return Result{Status: StatusFallback, Source: SourceLive, Reason: reason}
	}
}

func (p *Pipeline) compute(ctx context.Context, key string, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("ai pipeline panic", slog.String("ad_group_id", req.AdGroupID), slog.Any("panic", r))
			res = Result{Status: StatusFallback, Source: SourceLive, Reason: ReasonError}
		}
	}()

	detail := req.Detail
	if detail == nil {
		d, err := p.src.AdGroupDetail(ctx, req.AdGroupID, req.PeriodDays)
		if err != nil {
			p.log.Warn("ai detail lookup failed", slog.String("ad_group_id", req.AdGroupID), slog.String("err", err.Error()))
		}
		detail = d
	}
	if detail == nil {
		return Result{Status: StatusFallback, Source: SourceLive, Reason: ReasonError}
	}

	insight, reason := p.insightStage(ctx, req, detail)
	if insight == nil {
		status := StatusFallback
		if reason == ReasonMissingConfig {
			status = StatusDisabled
		}
		out := Result{Status: status, Source: SourceLive, Reason: reason}
		p.cache.Set(ctx, key, out)
		return out
	}

	clamped := ClampInsight(*insight)
	partial := Result{Status: StatusPartial, Source: SourceLive, Insight: &clamped}
	insightKey := CacheKey(req.AdGroupID, req.PeriodDays, p.cfg.Locale, req.BusinessContext, ModeInsight)
	p.cache.Set(ctx, insightKey, partial)
	if req.Mode == ModeInsight {
		return partial
	}

	reco, reason := p.recommendationStage(ctx, req, clamped)
	if reco == nil {
		out := Result{Status: StatusPartial, Source: SourceLive, Insight: &clamped, Reason: reason}
		p.cache.Set(ctx, key, out)
		return out
	}
	r := ClampRecommendation(*reco)
	out := Result{Status: StatusOK, Source: SourceLive, Insight: &clamped, Recommendation: &r}
	p.cache.Set(ctx, key, out)
	return out
}

func (p *Pipeline) stageConfigured(stage, key, model string) bool {
	if p.client != nil && p.cfg.APIURL != "" && key != "" && model != "" {
		return true
	}
	once, _ := p.missingOnce.LoadOrStore(stage, &sync.Once{})
	once.(*sync.Once).Do(func() {
		p.log.Warn("ai missing_config", slog.String("stage", stage), slog.String("err", ErrMissingConfig.Error()))
	})
	return false
}

func (p *Pipeline) insightStage(ctx context.Context, req Request, d *review.AdGroupDetail) (*InsightJSON, Reason) {
	model := p.cfg.ModelInsight
	if !p.stageConfigured(stageInsight, p.cfg.InsightKey(), model) {
		p.metrics.AIStage(stageInsight, string(ReasonMissingConfig))
		return nil, ReasonMissingConfig
	}
	msgs, err := insightMessages(buildInsightPayload(d, p.cfg.Locale, req.BusinessContext))
	if err != nil {
		return nil, p.stageError(stageInsight, req.AdGroupID, err)
	}
	raw, reason := p.call(ctx, stageInsight, req.AdGroupID, p.cfg.InsightKey(), model, msgs, insightTemperature)
	if reason != "" {
		return nil, reason
	}
	insight, err := ParseInsight(raw)
	if err != nil {
		p.invalid(stageInsight, req.AdGroupID, raw, err)
		return nil, ReasonInvalidJSON
	}
	p.succeeded(stageInsight, req.AdGroupID)
	return insight, ""
}

func (p *Pipeline) recommendationStage(ctx context.Context, req Request, insight InsightJSON) (*RecommendationJSON, Reason) {
	model := p.cfg.ModelReco
	if !p.stageConfigured(stageRecommendation, p.cfg.RecoKey(), model) {
		p.metrics.AIStage(stageRecommendation, string(ReasonMissingConfig))
		return nil, ReasonMissingConfig
	}
	msgs, err := recommendationMessages(insight, p.cfg.Locale)
	if err != nil {
		return nil, p.stageError(stageRecommendation, req.AdGroupID, err)
	}
	raw, reason := p.call(ctx, stageRecommendation, req.AdGroupID, p.cfg.RecoKey(), model, msgs, recoTemperature)
	if reason != "" {
		return nil, reason
	}
	reco, err := ParseRecommendation(raw)
	if err != nil {
		p.invalid(stageRecommendation, req.AdGroupID, raw, err)
		return nil, ReasonInvalidJSON
	}
	p.succeeded(stageRecommendation, req.AdGroupID)
	return reco, ""
}

func (p *Pipeline) call(ctx context.Context, stage, adGroupID, apiKey, model string, msgs []Message, temperature float64) (any, Reason) {
	p.log.Info("ai request_start",
		slog.String("stage", stage),
		slog.String("ad_group_id", adGroupID),
		slog.String("model", model),
		slog.Duration("timeout", p.cfg.Timeout))
	raw, err := p.client.Call(ctx, CallParams{
		APIURL:            p.cfg.APIURL,
		APIKey:            apiKey,
		Model:             model,
		Messages:          msgs,
		Temperature:       temperature,
		Timeout:           p.cfg.Timeout,
		UseResponseFormat: p.cfg.UseResponseFormat,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidJSON) {
			p.invalid(stage, adGroupID, nil, err)
			return nil, ReasonInvalidJSON
		}
		return nil, p.stageError(stage, adGroupID, err)
	}
	return raw, ""
}

func classify(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonError
}

func (p *Pipeline) stageError(stage, adGroupID string, err error) Reason {
	reason := classify(err)
	p.metrics.AIStage(stage, string(reason))
	p.log.Warn("ai request_error",
		slog.String("stage", stage),
		slog.String("ad_group_id", adGroupID),
		slog.String("reason", string(reason)),
		slog.String("err", err.Error()))
	return reason
}

func (p *Pipeline) invalid(stage, adGroupID string, raw any, err error) {
	p.metrics.AIStage(stage, string(ReasonInvalidJSON))
	p.log.Warn("ai invalid_json",
		slog.String("stage", stage),
		slog.String("ad_group_id", adGroupID),
		slog.String("preview", preview(raw)),
		slog.String("err", err.Error()))
}

func (p *Pipeline) succeeded(stage, adGroupID string) {
	p.metrics.AIStage(stage, "ok")
	p.log.Info("ai request_success", slog.String("stage", stage), slog.String("ad_group_id", adGroupID))
}

func preview(v any) string {
	if v == nil {
		return ""
	}
	var s string
	if str, ok := v.(string); ok {
		s = str
	} else if b, err := json.Marshal(v); err == nil {
		s = string(b)
	} else {
		s = fmt.Sprint(v)
	}
	return truncateRunes(s, logPreviewLen)
}
