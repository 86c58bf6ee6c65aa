package wsrpc

import (
	"sync"
	"testing"
	"time"
)

type fakePeer struct {
	remote string

	mu         sync.Mutex
	sent       []interface{}
	pingErr    error
	pongs      bool
	closeHooks []func()
	pongHooks  []func()
}

func newFakePeer(remote string) *fakePeer {
	return &fakePeer{remote: remote}
}

func (p *fakePeer) Remote() string { return p.remote }

func (p *fakePeer) Enqueue(payload interface{}, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, payload)
	return nil
}

func (p *fakePeer) Ping() error {
	p.mu.Lock()
	err := p.pingErr
	pongs := p.pongs
	p.mu.Unlock()
	if pongs && err == nil {
		// Simulates a live peer: the pong comes back before the next sweep.
		p.ack()
	}
	return err
}

// ack delivers a pong to every registered hook, like the websocket pong
// handler does.
func (p *fakePeer) ack() {
	p.mu.Lock()
	hooks := append([]func(){}, p.pongHooks...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (p *fakePeer) OnPong(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pongHooks = append(p.pongHooks, fn)
}

func (p *fakePeer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeHooks = append(p.closeHooks, fn)
}

func (p *fakePeer) disconnect() {
	p.mu.Lock()
	hooks := p.closeHooks
	p.closeHooks = nil
	p.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// latentPeer answers every ping, but only after a realistic round trip.
type latentPeer struct {
	*fakePeer
	delay time.Duration
}

func (p *latentPeer) Ping() error {
	go func() {
		time.Sleep(p.delay)
		p.ack()
	}()
	return nil
}

func TestRegistryInvariant(t *testing.T) {
	r := NewRegistry("transaction", time.Hour)
	defer r.Close()
	p1 := newFakePeer("1.2.3.4:100")
	p2 := newFakePeer("1.2.3.4:200")

	r.Add(p1, "transaction:aa")
	r.Add(p2, "transaction:aa")
	r.Add(p1, "transaction:bb")

	if !r.HasKey("transaction:aa") || !r.HasKey("transaction:bb") {
		t.Fatal("expected both keys present")
	}

	r.Remove(p1, "transaction:aa")
	if !r.HasKey("transaction:aa") {
		t.Fatal("key should survive while p2 holds it")
	}
	r.Remove(p2, "transaction:aa")
	if r.HasKey("transaction:aa") {
		t.Fatal("key should be absent after last subscriber leaves, not present-with-empty-set")
	}
	if r.Empty() {
		t.Fatal("p1 still holds transaction:bb")
	}
	r.Remove(p1, "transaction:bb")
	if !r.Empty() {
		t.Fatal("registry should be empty")
	}
}

func TestRegistryDisconnectHookPurgesEverything(t *testing.T) {
	r := NewRegistry("transaction", time.Hour)
	defer r.Close()
	p := newFakePeer("1.2.3.4:100")

	r.Add(p, "transaction:aa")
	r.Add(p, "transaction:bb")
	p.disconnect()

	if r.HasKey("transaction:aa") || r.HasKey("transaction:bb") || !r.Empty() {
		t.Fatal("disconnect should remove every subscription exactly once")
	}
}

func TestHeartbeatEvictsDeadPeer(t *testing.T) {
	r := NewRegistry("transaction", 10*time.Millisecond)
	defer r.Close()

	dead := newFakePeer("dead")
	live := newFakePeer("live")
	live.pongs = true

	r.Add(dead, "transaction:aa")
	r.Add(dead, "transaction:bb")
	r.Add(live, "transaction:aa")

	// First sweep pings, second sweep finds the dead peer still awaiting.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if !r.HasKey("transaction:bb") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if r.HasKey("transaction:bb") {
		t.Fatal("dead peer should be evicted from every topic it held")
	}
	if !r.HasKey("transaction:aa") {
		t.Fatal("live peer should survive the sweep")
	}
}

func TestHeartbeatTracksPingsPerFamily(t *testing.T) {
	block := NewRegistry("block", 50*time.Millisecond)
	defer block.Close()
	mempool := NewRegistry("mempool", 50*time.Millisecond)
	defer mempool.Close()

	// One peer in two families whose timers start back-to-back. The pong for
	// one family's ping must never be mistaken for the other's.
	p := &latentPeer{fakePeer: newFakePeer("1.2.3.4:100"), delay: 2 * time.Millisecond}
	block.Add(p, "block")
	mempool.Add(p, "mempool")

	time.Sleep(250 * time.Millisecond)

	if !block.HasKey("block") || !mempool.HasKey("mempool") {
		t.Fatal("a peer answering every ping must survive sweeps in every family it holds")
	}
}

func TestHeartbeatStopsWithLastSubscription(t *testing.T) {
	r := NewRegistry("block", 10*time.Millisecond)
	p := newFakePeer("1.2.3.4:100")

	r.Add(p, "block")
	r.mu.Lock()
	running := r.stop != nil
	r.mu.Unlock()
	if !running {
		t.Fatal("heartbeat should start on first subscription")
	}

	r.Remove(p, "block")
	r.mu.Lock()
	running = r.stop != nil
	r.mu.Unlock()
	if running {
		t.Fatal("heartbeat should stop once the family has zero subscriptions")
	}
}
