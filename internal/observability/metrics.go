package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the generation pipeline.
type Recorder interface {
	ObservePage(intent string, ok bool, d time.Duration)
	IncRetryPass(pages int)
	IncElementRetry(elementType string)
	ObserveRefund(cents int64)
	IncProgressDropped()
	ObserveJob(jobType, outcome string, d time.Duration)
	ObserveHTTP(method, route string, status int, d time.Duration)
}

type NoopRecorder struct{}

func (NoopRecorder) ObservePage(string, bool, time.Duration)        {}
func (NoopRecorder) IncRetryPass(int)                               {}
func (NoopRecorder) IncElementRetry(string)                         {}
func (NoopRecorder) ObserveRefund(int64)                            {}
func (NoopRecorder) IncProgressDropped()                            {}
func (NoopRecorder) ObserveJob(string, string, time.Duration)       {}
func (NoopRecorder) ObserveHTTP(string, string, int, time.Duration) {}

// PrometheusRecorder implements Recorder on a private registry.
type PrometheusRecorder struct {
	once            sync.Once
	reg             *prom.Registry
	pages           *prom.CounterVec
	pageDuration    *prom.HistogramVec
	retryPasses     prom.Counter
	retryPages      prom.Counter
	elementRetries  *prom.CounterVec
	refundCents     prom.Counter
	refunds         prom.Counter
	progressDropped prom.Counter
	jobDuration     *prom.HistogramVec
	httpRequests    *prom.CounterVec
	httpLatency     *prom.HistogramVec
}

func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.pages = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "clusterforge",
			Name:      "pages_total",
			Help:      "Generated pages by intent and outcome",
		}, []string{"intent", "result"})
		pr.pageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "clusterforge",
			Name:      "page_duration_seconds",
			Help:      "Wall time of one page task",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"intent"})
		pr.retryPasses = prom.NewCounter(prom.CounterOpts{
			Namespace: "clusterforge",
			Name:      "retry_passes_total",
			Help:      "Retry passes over unprocessed pages",
		})
		pr.retryPages = prom.NewCounter(prom.CounterOpts{
			Namespace: "clusterforge",
			Name:      "retry_pages_total",
			Help:      "Pages scheduled into a retry pass",
		})
		pr.elementRetries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "clusterforge",
			Name:      "element_retries_total",
			Help:      "Inline element regeneration attempts",
		}, []string{"element"})
		pr.refundCents = prom.NewCounter(prom.CounterOpts{
			Namespace: "clusterforge",
			Name:      "refund_cents_total",
			Help:      "Refunded amount in cents",
		})
		pr.refunds = prom.NewCounter(prom.CounterOpts{
			Namespace: "clusterforge",
			Name:      "refunds_total",
			Help:      "Refunds issued",
		})
		pr.progressDropped = prom.NewCounter(prom.CounterOpts{
			Namespace: "clusterforge",
			Name:      "progress_events_dropped_total",
			Help:      "Progress events dropped because the publish buffer was full",
		})
		pr.jobDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "clusterforge",
			Name:      "job_duration_seconds",
			Help:      "Job handler wall time by type and outcome",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}, []string{"job_type", "outcome"})
		pr.httpRequests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "clusterforge",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"})
		pr.httpLatency = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "clusterforge",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prom.DefBuckets,
		}, []string{"method", "route"})
		reg.MustRegister(
			pr.pages, pr.pageDuration, pr.retryPasses, pr.retryPages, pr.elementRetries,
			pr.refundCents, pr.refunds, pr.progressDropped, pr.jobDuration,
			pr.httpRequests, pr.httpLatency,
		)
	})
	return pr
}

func (p *PrometheusRecorder) ObservePage(intent string, ok bool, d time.Duration) {
	result := "processed"
	if !ok {
		result = "unprocessed"
	}
	p.pages.WithLabelValues(intent, result).Inc()
	p.pageDuration.WithLabelValues(intent).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRetryPass(pages int) {
	p.retryPasses.Inc()
	p.retryPages.Add(float64(pages))
}

func (p *PrometheusRecorder) IncElementRetry(elementType string) {
	p.elementRetries.WithLabelValues(elementType).Inc()
}

func (p *PrometheusRecorder) ObserveRefund(cents int64) {
	if cents <= 0 {
		return
	}
	p.refunds.Inc()
	p.refundCents.Add(float64(cents))
}

func (p *PrometheusRecorder) IncProgressDropped() { p.progressDropped.Inc() }

func (p *PrometheusRecorder) ObserveJob(jobType, outcome string, d time.Duration) {
	p.jobDuration.WithLabelValues(jobType, outcome).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveHTTP(method, route string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }
