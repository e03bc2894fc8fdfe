package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minara_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minara_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	QuotaChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minara_quota_checks_total",
			Help: "Total number of quota enforcement calls.",
		},
		[]string{"outcome"},
	)

	QuotaDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minara_quota_denials_total",
			Help: "Total number of quota denials by ceiling.",
		},
		[]string{"reason"},
	)

	QuotaUnitsConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minara_quota_units_consumed_total",
			Help: "Total billable units recorded by the enforcer.",
		},
	)

	QuotaAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minara_quota_alerts_total",
			Help: "Total number of threshold-crossing alerts emitted.",
		},
		[]string{"scope"},
	)

	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minara_notifications_sent_total",
			Help: "Total notifications delivered by channel and result.",
		},
		[]string{"channel", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotaChecksTotal,
		QuotaDenialsTotal,
		QuotaUnitsConsumed,
		QuotaAlertsTotal,
		NotificationsSentTotal,
	)
}
