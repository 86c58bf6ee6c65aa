// Package observability exposes prometheus instrumentation for the
// subscription layer. The sink is a passive observer: channels call it at
// lifecycle points and correctness never depends on it.
package observability

// PrometheusSink implements the channels' metrics contract for one named
// channel ("wsrpc", "rooms").
type PrometheusSink struct {
	channel string
}

func NewPrometheusSink(channel string) *PrometheusSink {
	return &PrometheusSink{channel: channel}
}

func (s *PrometheusSink) Connect(remoteAddr string) {
	ActiveConnections.WithLabelValues(s.channel).Inc()
}

func (s *PrometheusSink) Disconnect(remoteAddr string) {
	ActiveConnections.WithLabelValues(s.channel).Dec()
}

func (s *PrometheusSink) Subscribe(remoteAddr string, topicKeys ...string) {
	count := float64(len(topicKeys))
	ActiveSubscriptions.WithLabelValues(s.channel).Add(count)
	SubscribeRequests.WithLabelValues(s.channel).Add(count)
}

func (s *PrometheusSink) Unsubscribe(remoteAddr string, topicKey string) {
	ActiveSubscriptions.WithLabelValues(s.channel).Dec()
	UnsubscribeRequests.WithLabelValues(s.channel).Inc()
}

func (s *PrometheusSink) SendEvent(event string) {
	EventsSent.WithLabelValues(s.channel, event).Inc()
}
