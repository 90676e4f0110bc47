// Package metrics registers the Prometheus collectors of the chat server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusmart_messages_sent_total",
		Help: "Messages persisted, by message type",
	}, []string{"type"})

	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campusmart_live_connections",
		Help: "Websocket connections attached to the hub",
	})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campusmart_online_users",
		Help: "Users with at least one registered connection",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusmart_events_dropped_total",
		Help: "Outbound events dropped because a connection buffer was full",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusmart_rate_limited_total",
		Help: "Send attempts rejected by the rate limiter",
	})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}
