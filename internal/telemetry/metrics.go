// Package telemetry 汇总调用链路的 Prometheus 指标。所有方法对 nil 接收者安全，
// 未注入指标时调用方无需判空。
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 收集调用、缓存与令牌相关指标，可并发使用。
type Metrics struct {
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	cacheWrites   *prometheus.CounterVec
	tokenRequests *prometheus.CounterVec
}

// NewMetrics 在给定 registerer 上注册指标，registerer 为空时使用默认注册表。
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apicall_calls_total",
				Help: "Total number of action invocations by outcome",
			},
			[]string{"action", "outcome"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apicall_call_duration_seconds",
				Help:    "Duration of action invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apicall_cache_lookups_total",
				Help: "Cache lookups by result (hit, miss, error)",
			},
			[]string{"provider", "result"},
		),
		cacheWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apicall_cache_writes_total",
				Help: "Cache writes by result (stored, error)",
			},
			[]string{"provider", "result"},
		),
		tokenRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apicall_token_requests_total",
				Help: "Token endpoint round-trips by kind (request, refresh) and result",
			},
			[]string{"provider", "kind", "result"},
		),
	}
}

// RecordCall 记录一次调用的结果与耗时。
func (m *Metrics) RecordCall(action, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(action, outcome).Inc()
	m.callDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordCacheLookup 记录缓存读取结果。
func (m *Metrics) RecordCacheLookup(provider, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(provider, result).Inc()
}

// RecordCacheWrite 记录缓存写入结果。
func (m *Metrics) RecordCacheWrite(provider, result string) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(provider, result).Inc()
}

// RecordTokenRequest 记录一次令牌端点往返。
func (m *Metrics) RecordTokenRequest(provider, kind, result string) {
	if m == nil {
		return
	}
	m.tokenRequests.WithLabelValues(provider, kind, result).Inc()
}
