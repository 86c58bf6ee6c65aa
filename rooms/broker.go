// Package rooms implements the room-based transport channel: joining a named
// room subscribes to a topic key, emitting to a room delivers to all of its
// current members. The broadcast backbone is pluggable; production uses
// Redis pub/sub so multiple API instances share fan-out.
package rooms

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoomMessage is one emission observed on the backbone.
type RoomMessage struct {
	Room    string
	Payload []byte
}

// Broker is the broadcast-group primitive behind the room channel.
type Broker interface {
	// Join starts receiving emissions for the room.
	Join(ctx context.Context, room string) error
	// Leave stops receiving emissions for the room.
	Leave(ctx context.Context, room string) error
	// Publish emits a payload to every process joined to the room.
	Publish(ctx context.Context, room string, payload []byte) error
	// Messages streams emissions for all joined rooms.
	Messages() <-chan RoomMessage
	Close() error
}

const roomKeyPrefix = "events:"

// RedisBroker implements Broker on Redis pub/sub, one Redis channel per room.
type RedisBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
	out    chan RoomMessage
	done   chan struct{}
}

func NewRedisBroker(addr, password string, db int) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	b := &RedisBroker{
		client: client,
		pubsub: client.Subscribe(context.Background()),
		out:    make(chan RoomMessage, 256),
		done:   make(chan struct{}),
	}
	go b.receiveLoop()
	return b, nil
}

func (b *RedisBroker) receiveLoop() {
	for msg := range b.pubsub.Channel() {
		room := msg.Channel[len(roomKeyPrefix):]
		select {
		case b.out <- RoomMessage{Room: room, Payload: []byte(msg.Payload)}:
		case <-b.done:
			return
		}
	}
}

func (b *RedisBroker) Join(ctx context.Context, room string) error {
	return b.pubsub.Subscribe(ctx, roomKeyPrefix+room)
}

func (b *RedisBroker) Leave(ctx context.Context, room string) error {
	return b.pubsub.Unsubscribe(ctx, roomKeyPrefix+room)
}

func (b *RedisBroker) Publish(ctx context.Context, room string, payload []byte) error {
	return b.client.Publish(ctx, roomKeyPrefix+room, payload).Err()
}

func (b *RedisBroker) Messages() <-chan RoomMessage {
	return b.out
}

func (b *RedisBroker) Close() error {
	close(b.done)
	if err := b.pubsub.Close(); err != nil {
		return err
	}
	return b.client.Close()
}
