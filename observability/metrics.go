package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks open subscriber connections per channel.
	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subscriptions_active_connections",
		Help: "Current number of open subscriber connections",
	}, []string{"channel"})

	// ActiveSubscriptions tracks live (subscriber, topic) pairs per channel.
	ActiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subscriptions_active_total",
		Help: "Current number of live subscriptions",
	}, []string{"channel"})

	// SubscribeRequests counts subscribe operations per channel.
	SubscribeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptions_subscribe_requests_total",
		Help: "Total subscribe operations accepted",
	}, []string{"channel"})

	// UnsubscribeRequests counts unsubscribe operations per channel.
	UnsubscribeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptions_unsubscribe_requests_total",
		Help: "Total unsubscribe operations accepted",
	}, []string{"channel"})

	// EventsSent counts delivered notifications by topic family.
	EventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subscriptions_events_sent_total",
		Help: "Total notifications pushed to subscribers",
	}, []string{"channel", "event"})
)
