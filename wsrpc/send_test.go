package wsrpc

import (
	"context"
	"testing"
	"time"

	"github.com/hirosystems/stacks-blockchain-api-sub006/topics"
)

// slowPeer simulates a consumer whose queue never drains.
type slowPeer struct {
	*fakePeer
}

func (p *slowPeer) Enqueue(payload interface{}, timeout time.Duration) error {
	time.Sleep(timeout)
	return errSendTimeout
}

func TestSendDeliversToEverySubscriber(t *testing.T) {
	ch := testChannel()
	p1 := newFakePeer("1.2.3.4:100")
	p2 := newFakePeer("1.2.3.4:200")
	ch.registries[topics.FamilyBlock].Add(p1, "block")
	ch.registries[topics.FamilyBlock].Add(p2, "block")

	if err := ch.Send(context.Background(), topics.Block(), map[string]int{"height": 9}); err != nil {
		t.Fatal(err)
	}

	for _, p := range []*fakePeer{p1, p2} {
		waitFor(t, func() bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			return len(p.sent) == 1
		}, "subscriber should receive exactly one notification")
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendTimeout = 20 * time.Millisecond
	ch := NewChannel(cfg, nil)

	fast := newFakePeer("fast")
	slow := &slowPeer{fakePeer: newFakePeer("slow")}
	ch.registries[topics.FamilyBlock].Add(fast, "block")
	ch.registries[topics.FamilyBlock].Add(slow, "block")

	start := time.Now()
	if err := ch.Send(context.Background(), topics.Block(), "payload"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Fatalf("Send blocked for %v", elapsed)
	}

	waitFor(t, func() bool {
		fast.mu.Lock()
		defer fast.mu.Unlock()
		return len(fast.sent) == 1
	}, "fast subscriber should be delivered to promptly")

	// The timed-out subscription is torn down; the fast one survives.
	waitFor(t, func() bool {
		return len(ch.registries[topics.FamilyBlock].Peers("block")) == 1
	}, "slow subscriber should lose the subscription")
	if !ch.HasListeners(topics.Block()) {
		t.Fatal("fast subscriber should still hold the topic")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
