// Package wsrpc implements the raw-socket transport channel: JSON-RPC 2.0
// subscribe/unsubscribe over a websocket, one subscription registry per topic
// family, and heartbeat-based liveness tracking.
package wsrpc

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hirosystems/stacks-blockchain-api-sub006/pubsub"
	"github.com/hirosystems/stacks-blockchain-api-sub006/topics"
)

// Channel is the RPC transport. It satisfies pubsub.Channel and http.Handler;
// the host process mounts it wherever its socket endpoint lives.
type Channel struct {
	cfg        Config
	metrics    pubsub.Metrics
	upgrader   websocket.Upgrader
	limiter    *TokenBucketLimiter
	registries map[topics.Family]*Registry

	mu      sync.Mutex
	clients map[*client]struct{}
	conns   int
	closed  bool
}

// NewChannel builds a channel with one registry per topic family. metrics may
// be nil.
func NewChannel(cfg Config, metrics pubsub.Metrics) *Channel {
	registries := make(map[topics.Family]*Registry, len(topics.AllFamilies))
	for _, f := range topics.AllFamilies {
		registries[f] = NewRegistry(f.String(), cfg.HeartbeatInterval)
	}
	return &Channel{
		cfg:     cfg,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    NewTokenBucketLimiter(cfg.RateLimit, cfg.RateBurst),
		registries: registries,
		clients:    make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and runs its read loop until disconnect.
// The connection slot is reserved under the lock before the upgrade starts,
// so concurrent handshakes cannot overshoot the cap.
func (ch *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch.mu.Lock()
	if ch.closed || ch.conns >= ch.cfg.MaxConnections {
		ch.mu.Unlock()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	ch.conns++
	ch.mu.Unlock()
	defer func() {
		ch.mu.Lock()
		ch.conns--
		ch.mu.Unlock()
	}()

	conn, err := ch.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsrpc: upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(ch.cfg.ReadLimit)

	c := newClient(conn, ch.cfg.WriteTimeout, ch.cfg.OutboundQueueSize)
	ch.mu.Lock()
	ch.clients[c] = struct{}{}
	ch.mu.Unlock()
	if ch.metrics != nil {
		ch.metrics.Connect(c.Remote())
	}

	ch.readLoop(c)

	c.close()
	ch.mu.Lock()
	delete(ch.clients, c)
	ch.mu.Unlock()
	ch.limiter.Forget(c.Remote())
	if ch.metrics != nil {
		ch.metrics.Disconnect(c.Remote())
	}
}

func (ch *Channel) readLoop(c *client) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("wsrpc: read error from %s: %v", c.Remote(), err)
			}
			return
		}
		if !ch.limiter.Allow(c.Remote()) {
			reply := errorResponse(nil, codeServerError, "too many requests")
			if err := c.Enqueue(reply, ch.cfg.SendTimeout); err != nil {
				return
			}
			continue
		}
		if reply, ok := ch.HandleFrame(c, raw); ok {
			if err := c.Enqueue(reply, ch.cfg.SendTimeout); err != nil {
				return
			}
		}
	}
}

// HandleFrame processes one inbound frame and returns the reply payload, if
// any. Batch frames answer with an array in request order; client
// notifications are filtered out and a batch of only notifications gets no
// reply at all.
func (ch *Channel) HandleFrame(p peer, raw []byte) (interface{}, bool) {
	items, batch, topErr := decodeFrame(raw)
	if topErr != nil {
		return *topErr, true
	}

	var replies []rpcResponse
	for _, item := range items {
		if item.err != nil {
			replies = append(replies, *item.err)
			continue
		}
		if item.req.isNotification() {
			continue
		}
		replies = append(replies, ch.dispatch(p, item.req))
	}

	if len(replies) == 0 {
		return nil, false
	}
	if batch {
		return replies, true
	}
	return replies[0], true
}

func (ch *Channel) dispatch(p peer, req *rpcRequest) rpcResponse {
	switch req.Method {
	case "subscribe":
		topic, rpcErr := topicFromParams(req.Params)
		if rpcErr != nil {
			return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
		}
		ch.registries[topic.Family].Add(p, topic.Key())
		if ch.metrics != nil {
			ch.metrics.Subscribe(p.Remote(), topic.Key())
		}
		return successResponse(req.ID, paramsEcho(topic))
	case "unsubscribe":
		topic, rpcErr := topicFromParams(req.Params)
		if rpcErr != nil {
			return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
		}
		ch.registries[topic.Family].Remove(p, topic.Key())
		if ch.metrics != nil {
			ch.metrics.Unsubscribe(p.Remote(), topic.Key())
		}
		return successResponse(req.ID, paramsEcho(topic))
	default:
		return errorResponse(req.ID, codeMethodNotFound, "Method not found")
	}
}

// HasListeners reports whether the exact topic key has a subscriber.
func (ch *Channel) HasListeners(t topics.Topic) bool {
	return ch.registries[t.Family].HasKey(t.Key())
}

// HasFamilyListeners reports whether the family has any subscription.
func (ch *Channel) HasFamilyListeners(f topics.Family) bool {
	return !ch.registries[f].Empty()
}

// Send pushes the payload as a JSON-RPC notification to every subscriber of
// the topic. Each delivery is independent: a subscriber whose queue stays
// full past SendTimeout loses the subscription without delaying the others.
func (ch *Channel) Send(ctx context.Context, t topics.Topic, payload interface{}) error {
	registry := ch.registries[t.Family]
	subscribers := registry.Peers(t.Key())
	if len(subscribers) == 0 {
		return nil
	}

	notif := rpcNotification{JSONRPC: "2.0", Method: t.Family.Event(), Params: payload}
	topicKey := t.Key()
	for _, p := range subscribers {
		p := p
		go func() {
			if err := p.Enqueue(notif, ch.cfg.SendTimeout); err != nil {
				log.Printf("wsrpc: delivery to %s on %s failed: %v", p.Remote(), topicKey, err)
				registry.Remove(p, topicKey)
				return
			}
			if ch.metrics != nil {
				ch.metrics.SendEvent(t.Family.Event())
			}
		}()
	}
	return nil
}

// Close tears down every registry and client connection.
func (ch *Channel) Close(ctx context.Context) error {
	ch.mu.Lock()
	ch.closed = true
	clients := make([]*client, 0, len(ch.clients))
	for c := range ch.clients {
		clients = append(clients, c)
	}
	ch.clients = make(map[*client]struct{})
	ch.mu.Unlock()

	for _, registry := range ch.registries {
		registry.Close()
	}
	for _, c := range clients {
		c.close()
	}
	return nil
}
