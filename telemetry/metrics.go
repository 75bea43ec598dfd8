package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles        prometheus.Counter
	PollFailures      *prometheus.CounterVec // label: kind
	NotificationsSent prometheus.Counter
	DeliveryFailures  prometheus.Counter
	TokenRefreshes    prometheus.Counter
	UserCacheHits     prometheus.Counter
	UserCacheMisses   prometheus.Counter

	// Histograms (seconds)
	CycleDuration    prometheus.Observer
	UpstreamDuration *prometheus.HistogramVec // label: endpoint

	// Gauges
	StreamsLiveGauge   prometheus.Gauge
	WatchlistSizeGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_poll_cycles_total", Help: "Number of scheduled poll cycles started"})
		PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamwatch_poll_failures_total", Help: "Number of poll cycles that failed, by failure kind"}, []string{"kind"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_notifications_sent_total", Help: "Number of live notifications delivered"})
		DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_delivery_failures_total", Help: "Number of live notifications that failed to deliver"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_token_refreshes_total", Help: "Number of app access token requests sent to Twitch"})
		UserCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_user_cache_hits_total", Help: "Login lookups served from the user cache"})
		UserCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_user_cache_misses_total", Help: "Login lookups that required a Helix request"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "streamwatch_poll_cycle_duration_seconds", Help: "Poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "streamwatch_upstream_request_duration_seconds", Help: "Helix request duration seconds", Buckets: prometheus.DefBuckets}, []string{"endpoint"})
		StreamsLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_streams_live", Help: "Watched streamers live as of the last successful poll"})
		WatchlistSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_watchlist_size", Help: "Number of logins on the watchlist"})
	})
}

// IncPollFailure counts a failed cycle under the given kind (credential, upstream, store, delivery).
func IncPollFailure(kind string) {
	if PollFailures != nil {
		PollFailures.WithLabelValues(kind).Inc()
	}
}

// Inc increments c if the metric has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetStreamsLive records how many watched streamers are currently live.
func SetStreamsLive(n int) {
	if StreamsLiveGauge != nil {
		StreamsLiveGauge.Set(float64(n))
	}
}

// SetWatchlistSize records the current watchlist length.
func SetWatchlistSize(n int) {
	if WatchlistSizeGauge != nil {
		WatchlistSizeGauge.Set(float64(n))
	}
}

// ObserveUpstream records a Helix request duration for endpoint.
func ObserveUpstream(endpoint string, d time.Duration) {
	if UpstreamDuration != nil {
		UpstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
