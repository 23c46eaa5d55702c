package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/AngelCh415/adreview/internal/ai"
	"github.com/AngelCh415/adreview/internal/analysis"
	"github.com/AngelCh415/adreview/internal/ingest"
	"github.com/AngelCh415/adreview/internal/review"
	"github.com/AngelCh415/adreview/internal/telemetry"
	"github.com/AngelCh415/adreview/internal/utils"
)

// Deps are the services behind the routes. ETL and Metrics may be nil.
type Deps struct {
	Review      *review.Service
	AI          *ai.Pipeline
	ETL         *ingest.ETL
	Metrics     *telemetry.Metrics
	CORSOrigins []string
}

type api struct {
	log      *slog.Logger
	deps     Deps
	validate *validator.Validate
}

func NewRouter(log *slog.Logger, deps Deps) http.Handler {
	a := &api{log: log, deps: deps, validate: validator.New()}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))
	mux.Use(deps.Metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", a.ready)
	mux.Handle("/metrics", deps.Metrics.Handler())

	mux.Route("/api", func(r chi.Router) {
		r.Get("/accounts", a.accounts)
		r.Get("/review", a.dashboard)
		r.Get("/campaign/{id}/breakdown", a.breakdown)
		r.Get("/detail/adgroup", a.detail)
		r.Post("/ai/summary", a.summary)
		r.Post("/ai/summary/batch", a.summaryBatch)
	})

	mux.Post("/ingest/run", a.ingestRun)
	mux.Post("/export/run", a.exportRun)

	return mux
}

func (a *api) ready(w http.ResponseWriter, r *http.Request) {
	if _, err := a.deps.Review.Accounts(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

func (a *api) accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.deps.Review.Accounts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func periodParam(r *http.Request) int {
	return analysis.ParsePeriodDays(r.URL.Query().Get("periodDays"))
}

func (a *api) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.deps.Review.Dashboard(r.Context(), r.URL.Query().Get("accountId"), periodParam(r))
	if errors.Is(err, review.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Account not found.")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *api) breakdown(w http.ResponseWriter, r *http.Request) {
	b, err := a.deps.Review.CampaignBreakdown(r.Context(), chi.URLParam(r, "id"), periodParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *api) detail(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing adGroup id.")
		return
	}
	d, err := a.deps.Review.AdGroupDetail(r.Context(), id, periodParam(r))
	if errors.Is(err, review.ErrNotFound) {
		writeError(w, http.StatusNotFound, "AdGroup not found.")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type summaryRequest struct {
	AdGroupID       string              `json:"adGroupId" validate:"required"`
	PeriodDays      analysis.PeriodDays `json:"periodDays"`
	Mode            string              `json:"mode" validate:"omitempty,oneof=insight full"`
	BusinessContext string              `json:"businessContext" validate:"max=2000"`
}

type batchRequest struct {
	AdGroupIDs      []string            `json:"adGroupIds" validate:"required,min=1,max=10,dive,required"`
	PeriodDays      analysis.PeriodDays `json:"periodDays"`
	BusinessContext string              `json:"businessContext" validate:"max=2000"`
}

type batchResponse struct {
	Items      []ai.BatchItem `json:"items"`
	PeriodDays int            `json:"periodDays"`
	Mode       ai.Mode        `json:"mode"`
}

// decodeBody decodes and validates a JSON body, answering 400 invalid_request on failure.
func (a *api) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}

func (a *api) summary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	mode, _ := ai.ParseMode(req.Mode)
	res := a.deps.AI.Summary(r.Context(), ai.Request{
		AdGroupID:       req.AdGroupID,
		PeriodDays:      analysis.NormalizePeriodDays(req.PeriodDays.Int()),
		BusinessContext: req.BusinessContext,
		Mode:            mode,
	})
	writeJSON(w, http.StatusOK, res)
}

func (a *api) summaryBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	days := analysis.NormalizePeriodDays(req.PeriodDays.Int())
	items := a.deps.AI.Batch(r.Context(), req.AdGroupIDs, days, req.BusinessContext)
	writeJSON(w, http.StatusOK, batchResponse{Items: items, PeriodDays: days, Mode: ai.ModeInsight})
}

func (a *api) ingestRun(w http.ResponseWriter, r *http.Request) {
	if a.deps.ETL == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest not configured")
		return
	}
	stats, err := a.deps.ETL.Run(r.Context())
	if errors.Is(err, ingest.ErrSourceNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, stats)
}

func (a *api) exportRun(w http.ResponseWriter, r *http.Request) {
	if a.deps.ETL == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest not configured")
		return
	}
	q := r.URL.Query().Get("date")
	if q == "" {
		writeError(w, http.StatusBadRequest, "date required (YYYY-MM-DD)")
		return
	}
	t, err := time.Parse("2006-01-02", q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad date")
		return
	}
	n, err := a.deps.ETL.ExportDay(r.Context(), t)
	if errors.Is(err, ingest.ErrSinkNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exported": n})
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("rid", utils.RID(r.Context())),
		slog.String("err", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
