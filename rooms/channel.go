package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hirosystems/stacks-blockchain-api-sub006/pubsub"
	"github.com/hirosystems/stacks-blockchain-api-sub006/topics"
)

// clientCommand is an in-band request from a member: subscribe carries an
// optional ack id, unsubscribe is fire-and-forget. Both take a variadic topic
// list.
type clientCommand struct {
	Event  string   `json:"event"`
	ID     *int64   `json:"id,omitempty"`
	Topics []string `json:"topics"`
}

type subscribeAck struct {
	Event  string   `json:"event"`
	ID     *int64   `json:"id,omitempty"`
	OK     bool     `json:"ok"`
	Topics []string `json:"topics,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// envelope is one emission. Event is the generic family name and Topic the
// composite key, so generic and targeted listeners both match off a single
// physical send.
type envelope struct {
	Event   string      `json:"event"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// Channel is the room transport. It satisfies pubsub.Channel and
// http.Handler.
type Channel struct {
	cfg      Config
	metrics  pubsub.Metrics
	broker   Broker
	upgrader websocket.Upgrader

	mu      sync.Mutex
	rooms   map[string]map[*member]struct{}
	members map[*member]map[string]struct{}
	closed  bool
	done    chan struct{}
}

// NewChannel wires a room channel to its broadcast backbone and starts the
// relay loop. metrics may be nil.
func NewChannel(cfg Config, broker Broker, metrics pubsub.Metrics) *Channel {
	ch := &Channel{
		cfg:     cfg,
		metrics: metrics,
		broker:  broker,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms:   make(map[string]map[*member]struct{}),
		members: make(map[*member]map[string]struct{}),
		done:    make(chan struct{}),
	}
	go ch.relayLoop()
	return ch
}

// parseHandshakeTopics validates the connection-time subscription list: a
// `subscriptions` query parameter, comma-joined or repeated. An invalid entry
// rejects the whole handshake.
func parseHandshakeTopics(r *http.Request) ([]topics.Topic, error) {
	var parsed []topics.Topic
	for _, raw := range r.URL.Query()["subscriptions"] {
		for _, key := range strings.Split(raw, ",") {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			topic, err := topics.ParseKey(key)
			if err != nil {
				return nil, err
			}
			normalized, err := topic.Normalize()
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, normalized)
		}
	}
	return parsed, nil
}

// ServeHTTP validates the handshake subscription list, upgrades the
// connection and runs the member's read loop until disconnect.
func (ch *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	initial, err := parseHandshakeTopics(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid subscription: %v", err), http.StatusBadRequest)
		return
	}

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ch.mu.Unlock()

	conn, err := ch.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("rooms: upgrade failed: %v", err)
		return
	}

	m := newMember(conn, ch.cfg.WriteTimeout, ch.cfg.OutboundQueueSize)
	ch.mu.Lock()
	ch.members[m] = make(map[string]struct{})
	ch.mu.Unlock()
	if ch.metrics != nil {
		ch.metrics.Connect(m.remote)
	}

	for _, topic := range initial {
		ch.join(m, topic.Key())
	}
	if ch.metrics != nil && len(initial) > 0 {
		keys := make([]string, len(initial))
		for i, topic := range initial {
			keys[i] = topic.Key()
		}
		ch.metrics.Subscribe(m.remote, keys...)
	}

	ch.readLoop(m)

	ch.dropMember(m)
	if ch.metrics != nil {
		ch.metrics.Disconnect(m.remote)
	}
}

func (ch *Channel) readLoop(m *member) {
	for {
		_, raw, err := m.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Printf("rooms: malformed command from %s: %v", m.remote, err)
			continue
		}
		switch cmd.Event {
		case "subscribe":
			ch.handleSubscribe(m, cmd)
		case "unsubscribe":
			ch.handleUnsubscribe(m, cmd)
		default:
			log.Printf("rooms: unknown command %q from %s", cmd.Event, m.remote)
		}
	}
}

// handleSubscribe validates every requested topic before joining any of
// them, then acks success or failure back to the caller.
func (ch *Channel) handleSubscribe(m *member, cmd clientCommand) {
	parsed := make([]topics.Topic, 0, len(cmd.Topics))
	for _, key := range cmd.Topics {
		topic, err := topics.ParseKey(key)
		if err == nil {
			topic, err = topic.Normalize()
		}
		if err != nil {
			ch.ack(m, subscribeAck{Event: "subscribe", ID: cmd.ID, OK: false, Error: err.Error()})
			return
		}
		parsed = append(parsed, topic)
	}

	keys := make([]string, len(parsed))
	for i, topic := range parsed {
		keys[i] = topic.Key()
		ch.join(m, keys[i])
	}
	if ch.metrics != nil && len(keys) > 0 {
		ch.metrics.Subscribe(m.remote, keys...)
	}
	ch.ack(m, subscribeAck{Event: "subscribe", ID: cmd.ID, OK: true, Topics: keys})
}

// handleUnsubscribe validates and leaves; no ack, per the transport's idiom.
func (ch *Channel) handleUnsubscribe(m *member, cmd clientCommand) {
	for _, key := range cmd.Topics {
		topic, err := topics.ParseKey(key)
		if err == nil {
			topic, err = topic.Normalize()
		}
		if err != nil {
			log.Printf("rooms: unsubscribe from %s rejected: %v", m.remote, err)
			continue
		}
		ch.leave(m, topic.Key())
		if ch.metrics != nil {
			ch.metrics.Unsubscribe(m.remote, topic.Key())
		}
	}
}

func (ch *Channel) ack(m *member, ack subscribeAck) {
	frame, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := m.enqueue(frame, ch.cfg.SendTimeout); err != nil {
		m.close()
	}
}

func (ch *Channel) join(m *member, room string) {
	ch.mu.Lock()
	set, ok := ch.rooms[room]
	if !ok {
		set = make(map[*member]struct{})
		ch.rooms[room] = set
		if err := ch.broker.Join(context.Background(), room); err != nil {
			log.Printf("rooms: broker join %s failed: %v", room, err)
		}
		log.Printf("rooms: room %s created", room)
	}
	set[m] = struct{}{}
	if keys, known := ch.members[m]; known {
		keys[room] = struct{}{}
	}
	ch.mu.Unlock()
	log.Printf("rooms: %s joined %s", m.remote, room)
}

func (ch *Channel) leave(m *member, room string) {
	ch.mu.Lock()
	ch.leaveLocked(m, room)
	ch.mu.Unlock()
	log.Printf("rooms: %s left %s", m.remote, room)
}

func (ch *Channel) leaveLocked(m *member, room string) {
	if set, ok := ch.rooms[room]; ok {
		delete(set, m)
		if len(set) == 0 {
			delete(ch.rooms, room)
			if err := ch.broker.Leave(context.Background(), room); err != nil {
				log.Printf("rooms: broker leave %s failed: %v", room, err)
			}
			log.Printf("rooms: room %s destroyed", room)
		}
	}
	if keys, ok := ch.members[m]; ok {
		delete(keys, room)
	}
}

// dropMember removes the member from every room it joined, exactly once.
func (ch *Channel) dropMember(m *member) {
	m.close()
	ch.mu.Lock()
	for room := range ch.members[m] {
		ch.leaveLocked(m, room)
	}
	delete(ch.members, m)
	ch.mu.Unlock()
}

// relayLoop moves backbone emissions to the local members of each room.
func (ch *Channel) relayLoop() {
	for {
		select {
		case <-ch.done:
			return
		case msg, ok := <-ch.broker.Messages():
			if !ok {
				return
			}
			ch.deliver(msg)
		}
	}
}

func (ch *Channel) deliver(msg RoomMessage) {
	ch.mu.Lock()
	recipients := make([]*member, 0, len(ch.rooms[msg.Room]))
	for m := range ch.rooms[msg.Room] {
		recipients = append(recipients, m)
	}
	ch.mu.Unlock()

	for _, m := range recipients {
		m := m
		go func() {
			if err := m.enqueue(msg.Payload, ch.cfg.SendTimeout); err != nil {
				log.Printf("rooms: delivery to %s on %s failed: %v", m.remote, msg.Room, err)
				ch.leave(m, msg.Room)
			}
		}()
	}
}

// HasListeners reports whether the room for the exact topic key has a local
// member.
func (ch *Channel) HasListeners(t topics.Topic) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.rooms[t.Key()]) > 0
}

// HasFamilyListeners reports whether any room of the family has a member.
func (ch *Channel) HasFamilyListeners(f topics.Family) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !f.Parameterized() {
		return len(ch.rooms[f.String()]) > 0
	}
	prefix := f.String() + ":"
	for room, set := range ch.rooms {
		if strings.HasPrefix(room, prefix) && len(set) > 0 {
			return true
		}
	}
	return false
}

// Send emits the payload once to the topic's room. The envelope carries both
// the generic event name and the composite key, so a member receives exactly
// one frame however it listens.
func (ch *Channel) Send(ctx context.Context, t topics.Topic, payload interface{}) error {
	frame, err := json.Marshal(envelope{Event: t.Family.Event(), Topic: t.Key(), Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", t.Key(), err)
	}
	if err := ch.broker.Publish(ctx, t.Key(), frame); err != nil {
		return fmt.Errorf("publish to %s: %w", t.Key(), err)
	}
	if ch.metrics != nil {
		ch.metrics.SendEvent(t.Family.Event())
	}
	return nil
}

// Close stops the relay, closes the backbone and disconnects every member.
func (ch *Channel) Close(ctx context.Context) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	members := make([]*member, 0, len(ch.members))
	for m := range ch.members {
		members = append(members, m)
	}
	ch.rooms = make(map[string]map[*member]struct{})
	ch.members = make(map[*member]map[string]struct{})
	ch.mu.Unlock()

	close(ch.done)
	for _, m := range members {
		m.close()
	}
	return ch.broker.Close()
}
