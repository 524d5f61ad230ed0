package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for auth counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsService encapsulates Prometheus instrumentation. Every method is safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	registrations      *prometheus.CounterVec
	logins             *prometheus.CounterVec
	logouts            prometheus.Counter
	refreshes          *prometheus.CounterVec
	failedAttempts     prometheus.Counter
	accountsLocked     prometheus.Counter
	invalidTokens      *prometheus.CounterVec
	expiredTokens      prometheus.Counter
	passwordRejections prometheus.Counter
	loginDuration      prometheus.Histogram
	tokenGeneration    prometheus.Histogram

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers HTTP, cache and authentication collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "user_cache_latency_seconds",
		Help:    "Latency for user cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "user_cache_hit_ratio",
		Help: "Ratio of user cache hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "user_cache_hits_total",
		Help: "Total user cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "user_cache_misses_total",
		Help: "Total user cache misses",
	})

	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_registration_total",
		Help: "Registration attempts by result",
	}, []string{"result", "reason"})

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_total",
		Help: "Login attempts by result",
	}, []string{"result", "reason"})

	logouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_logout_total",
		Help: "Completed logouts",
	})

	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_refresh_total",
		Help: "Refresh token rotations by result",
	}, []string{"result", "reason"})

	failedAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_failed_attempts_total",
		Help: "Failed password checks",
	})

	accountsLocked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_account_locked_total",
		Help: "Accounts locked after repeated failures",
	})

	invalidTokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_invalid_token_total",
		Help: "Bearer tokens rejected by verification",
	}, []string{"reason"})

	expiredTokens := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_expired_token_total",
		Help: "Expired bearer tokens presented",
	})

	passwordRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_password_validation_failure_total",
		Help: "Passwords rejected by the password policy",
	})

	loginDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_login_duration_seconds",
		Help:    "Time spent authenticating a login request",
		Buckets: prometheus.DefBuckets,
	})

	tokenGeneration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_token_generation_duration_seconds",
		Help:    "Time spent signing a token pair",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		registrations, logins, logouts, refreshes, failedAttempts, accountsLocked,
		invalidTokens, expiredTokens, passwordRejections, loginDuration, tokenGeneration, goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		registrations:      registrations,
		logins:             logins,
		logouts:            logouts,
		refreshes:          refreshes,
		failedAttempts:     failedAttempts,
		accountsLocked:     accountsLocked,
		invalidTokens:      invalidTokens,
		expiredTokens:      expiredTokens,
		passwordRejections: passwordRejections,
		loginDuration:      loginDuration,
		tokenGeneration:    tokenGeneration,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordRegistration counts a registration outcome. reason is empty on success.
func (m *MetricsService) RecordRegistration(result, reason string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result, reason).Inc()
}

// RecordLogin counts a login outcome.
func (m *MetricsService) RecordLogin(result, reason string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result, reason).Inc()
}

// RecordLogout counts a logout.
func (m *MetricsService) RecordLogout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

// RecordTokenRefresh counts a refresh outcome.
func (m *MetricsService) RecordTokenRefresh(result, reason string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result, reason).Inc()
}

// RecordFailedAttempt counts a wrong password.
func (m *MetricsService) RecordFailedAttempt() {
	if m == nil {
		return
	}
	m.failedAttempts.Inc()
}

// RecordAccountLocked counts a lockout.
func (m *MetricsService) RecordAccountLocked() {
	if m == nil {
		return
	}
	m.accountsLocked.Inc()
}

// RecordInvalidToken counts a rejected bearer token by reason.
func (m *MetricsService) RecordInvalidToken(reason string) {
	if m == nil {
		return
	}
	m.invalidTokens.WithLabelValues(reason).Inc()
}

// RecordExpiredToken counts an expired bearer token.
func (m *MetricsService) RecordExpiredToken() {
	if m == nil {
		return
	}
	m.expiredTokens.Inc()
}

// RecordPasswordValidationFailure counts a policy rejection.
func (m *MetricsService) RecordPasswordValidationFailure() {
	if m == nil {
		return
	}
	m.passwordRejections.Inc()
}

// ObserveLogin records how long a login took.
func (m *MetricsService) ObserveLogin(duration time.Duration) {
	if m == nil {
		return
	}
	m.loginDuration.Observe(duration.Seconds())
}

// ObserveTokenGeneration records how long signing a token pair took.
func (m *MetricsService) ObserveTokenGeneration(duration time.Duration) {
	if m == nil {
		return
	}
	m.tokenGeneration.Observe(duration.Seconds())
}
