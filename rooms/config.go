package rooms

import "time"

// Config tunes the room transport channel.
type Config struct {
	// SendTimeout bounds how long a delivery may wait on a member's queue.
	SendTimeout time.Duration
	// WriteTimeout is the per-frame websocket write deadline.
	WriteTimeout time.Duration
	// OutboundQueueSize buffers frames per member.
	OutboundQueueSize int
}

func DefaultConfig() Config {
	return Config{
		SendTimeout:       3 * time.Second,
		WriteTimeout:      5 * time.Second,
		OutboundQueueSize: 64,
	}
}
