package wsrpc

import (
	"log"
	"sync"
	"time"
)

// peer is the registry's view of one connected subscriber. The concrete type
// is the websocket client; tests substitute fakes.
type peer interface {
	Remote() string
	// Enqueue hands a payload to the peer's writer, bounded by timeout.
	Enqueue(payload interface{}, timeout time.Duration) error
	// Ping enqueues a transport-level ping frame.
	Ping() error
	// OnPong registers a hook invoked on every pong the peer receives.
	OnPong(func())
	// OnClose registers a hook invoked exactly once when the peer disconnects.
	OnClose(func())
}

// Registry tracks which peers hold which topic keys for one topic family.
// The heartbeat timer is owned state: it starts with the family's first
// subscription and stops with its last, so registry lifetime and timer
// lifetime are identical.
type Registry struct {
	familyName string
	interval   time.Duration

	mu       sync.Mutex
	byKey    map[string]map[peer]struct{}
	byPeer   map[peer]map[string]struct{}
	awaiting map[peer]struct{}
	stop     chan struct{}
	closed   bool
}

func NewRegistry(familyName string, heartbeatInterval time.Duration) *Registry {
	return &Registry{
		familyName: familyName,
		interval:   heartbeatInterval,
		byKey:      make(map[string]map[peer]struct{}),
		byPeer:     make(map[peer]map[string]struct{}),
		awaiting:   make(map[peer]struct{}),
	}
}

// Add registers the peer under the topic key. The first subscription of any
// kind starts the heartbeat loop; the peer's first appearance registers a
// disconnect hook that purges it from every key it holds and a pong hook that
// clears this registry's outstanding ping for it. Ping acknowledgment state
// is per (registry, peer); each family's timer only ever reads its own.
func (r *Registry) Add(p peer, topicKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	set, ok := r.byKey[topicKey]
	if !ok {
		set = make(map[peer]struct{})
		r.byKey[topicKey] = set
	}
	set[p] = struct{}{}

	keys, known := r.byPeer[p]
	if !known {
		keys = make(map[string]struct{})
		r.byPeer[p] = keys
		p.OnClose(func() { r.RemoveAll(p) })
		p.OnPong(func() { r.ackPong(p) })
	}
	keys[topicKey] = struct{}{}

	if r.stop == nil {
		r.stop = make(chan struct{})
		go r.heartbeatLoop(r.stop)
	}
}

// Remove drops the peer from the topic key, deleting the key's set when it
// empties and stopping the heartbeat once the family has no subscriptions at
// all. No empty-set entries linger.
func (r *Registry) Remove(p peer, topicKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(p, topicKey)
}

// RemoveAll drops the peer from every topic key it holds.
func (r *Registry) RemoveAll(p peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topicKey := range r.byPeer[p] {
		r.removeLocked(p, topicKey)
	}
}

func (r *Registry) removeLocked(p peer, topicKey string) {
	if set, ok := r.byKey[topicKey]; ok {
		delete(set, p)
		if len(set) == 0 {
			delete(r.byKey, topicKey)
		}
	}
	if keys, ok := r.byPeer[p]; ok {
		delete(keys, topicKey)
		if len(keys) == 0 {
			delete(r.byPeer, p)
			delete(r.awaiting, p)
		}
	}
	if len(r.byPeer) == 0 && r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

// HasKey reports whether any live peer is registered for the topic key.
func (r *Registry) HasKey(topicKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey[topicKey]) > 0
}

// Empty reports whether the family has zero subscriptions across all keys.
func (r *Registry) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byPeer) == 0
}

// Peers returns a snapshot of the subscribers for a topic key.
func (r *Registry) Peers(topicKey string) []peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]peer, 0, len(r.byKey[topicKey]))
	for p := range r.byKey[topicKey] {
		peers = append(peers, p)
	}
	return peers
}

// Close clears all state and stops the heartbeat.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.byKey = make(map[string]map[peer]struct{})
	r.byPeer = make(map[peer]map[string]struct{})
	r.awaiting = make(map[peer]struct{})
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

func (r *Registry) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// ackPong clears the registry's outstanding ping for the peer.
func (r *Registry) ackPong(p peer) {
	r.mu.Lock()
	delete(r.awaiting, p)
	r.mu.Unlock()
}

// sweep implements the one-strike liveness policy: a peer whose ping from the
// previous sweep is still outstanding is purged from every key it holds;
// everyone else gets a fresh ping and one full interval to answer it.
func (r *Registry) sweep() {
	r.mu.Lock()
	var stale, fresh []peer
	for p := range r.byPeer {
		if _, waiting := r.awaiting[p]; waiting {
			stale = append(stale, p)
		} else {
			r.awaiting[p] = struct{}{}
			fresh = append(fresh, p)
		}
	}
	r.mu.Unlock()

	for _, p := range stale {
		log.Printf("wsrpc: %s subscriber %s missed heartbeat, evicting", r.familyName, p.Remote())
		r.RemoveAll(p)
	}
	for _, p := range fresh {
		if err := p.Ping(); err != nil {
			r.RemoveAll(p)
		}
	}
}
