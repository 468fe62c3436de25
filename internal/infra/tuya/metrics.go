package tuya

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess         = "success"
	resultAuthError       = "auth_error"
	resultTokenExpired    = "token_expired"
	resultConnectionError = "connection_error"
	resultAPIError        = "api_error"
	resultCanceled        = "canceled"
)

var (
	tokenRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuya_scale_token_requests_total",
			Help: "Access token requests by result",
		},
		[]string{"result"},
	)
	fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuya_scale_fetch_attempts_total",
			Help: "Device data requests by result",
		},
		[]string{"result"},
	)
	pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuya_scale_poll_cycles_total",
			Help: "Completed fetch cycles by result",
		},
		[]string{"result"},
	)
	pollRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tuya_scale_poll_retries_total",
			Help: "Retries of retry-eligible failures within fetch cycles",
		},
	)
)

// MetricsCollectors returns collectors for the polling engine.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		tokenRequests,
		fetchAttempts,
		pollCycles,
		pollRetries,
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, context.Canceled):
		return resultCanceled
	case errors.Is(err, ErrAuth):
		return resultAuthError
	case errors.Is(err, ErrTokenExpired):
		return resultTokenExpired
	case errors.Is(err, ErrConnection):
		return resultConnectionError
	default:
		return resultAPIError
	}
}
