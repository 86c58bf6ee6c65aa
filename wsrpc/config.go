package wsrpc

import "time"

const maxConnectionsDefault = 500

// Config tunes the RPC transport channel.
type Config struct {
	// HeartbeatInterval spaces the registry ping sweeps. A subscriber has
	// exactly one interval to answer a ping before it is purged.
	HeartbeatInterval time.Duration
	// SendTimeout bounds how long an outbound notification may wait for a
	// subscriber's queue; past it the subscription is torn down.
	SendTimeout time.Duration
	// WriteTimeout is the per-frame websocket write deadline.
	WriteTimeout time.Duration
	// ReadLimit caps inbound frame size in bytes.
	ReadLimit int64
	// MaxConnections rejects further upgrades past the cap.
	MaxConnections int
	// OutboundQueueSize buffers notifications per subscriber.
	OutboundQueueSize int
	// RateLimit and RateBurst shape the per-remote inbound request budget.
	RateLimit float64
	RateBurst int
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		SendTimeout:       3 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReadLimit:         1 << 20,
		MaxConnections:    maxConnectionsDefault,
		OutboundQueueSize: 64,
		RateLimit:         50,
		RateBurst:         100,
	}
}
