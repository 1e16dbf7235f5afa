package prometheus

import "github.com/prometheus/client_golang/prometheus"

var (
	// WebhookEvents counts inbound webhook events by transport and outcome
	// (queued, duplicate, unauthorized, unsupported_event, non_mention, ...).
	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orx_webhook_events_total",
		Help: "Inbound webhook events by transport and outcome.",
	}, []string{"transport", "outcome"})

	// SearchRequests counts provider invocations by provider name and outcome.
	SearchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orx_search_requests_total",
		Help: "Search provider invocations by provider and outcome.",
	}, []string{"provider", "outcome"})

	// ChatRequests counts model chat calls by outcome.
	ChatRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orx_chat_requests_total",
		Help: "Chat model calls by outcome.",
	}, []string{"outcome"})

	// SendFailures counts outbound transport send failures by transport.
	SendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orx_send_failures_total",
		Help: "Outbound send failures by transport.",
	}, []string{"transport"})
)

func init() {
	registry.MustRegister(WebhookEvents, SearchRequests, ChatRequests, SendFailures)
}
