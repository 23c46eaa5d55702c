package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics is a no-op.
type Metrics struct {
	reg      *prometheus.Registry
	aiStage  *prometheus.CounterVec
	aiCache  *prometheus.CounterVec
	httpTime *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		aiStage: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adreview_ai_stage_total",
			Help: "AI pipeline stage outcomes.",
		}, []string{"stage", "outcome"}),
		aiCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adreview_ai_cache_total",
			Help: "AI result cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		httpTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adreview_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) AIStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.aiStage.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) AICache(tier, result string) {
	if m == nil {
		return
	}
	m.aiCache.WithLabelValues(tier, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled by the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpTime.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
