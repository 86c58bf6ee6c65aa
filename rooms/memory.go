package rooms

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker for tests and single-node setups.
type MemoryBroker struct {
	mu     sync.Mutex
	joined map[string]struct{}
	out    chan RoomMessage
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		joined: make(map[string]struct{}),
		out:    make(chan RoomMessage, 256),
	}
}

func (b *MemoryBroker) Join(ctx context.Context, room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joined[room] = struct{}{}
	return nil
}

func (b *MemoryBroker) Leave(ctx context.Context, room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.joined, room)
	return nil
}

func (b *MemoryBroker) Publish(ctx context.Context, room string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	if _, ok := b.joined[room]; !ok {
		return nil
	}
	b.out <- RoomMessage{Room: room, Payload: payload}
	return nil
}

func (b *MemoryBroker) Messages() <-chan RoomMessage {
	return b.out
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.out)
	}
	return nil
}
