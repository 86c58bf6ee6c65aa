// Package subscriptions is the real-time notification layer of the
// blockchain-indexing API: clients subscribe to chain events over either a
// room-based transport or a JSON-RPC websocket transport, and receive push
// notifications rehydrated from the indexer's canonical view.
//
// The package root carries the host-facing wiring: environment-driven
// configuration and a constructor that assembles both channels and the
// transmitter.
package subscriptions

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hirosystems/stacks-blockchain-api-sub006/observability"
	"github.com/hirosystems/stacks-blockchain-api-sub006/pubsub"
	"github.com/hirosystems/stacks-blockchain-api-sub006/rooms"
	"github.com/hirosystems/stacks-blockchain-api-sub006/store"
	"github.com/hirosystems/stacks-blockchain-api-sub006/wsrpc"
)

// HostConfig collects the external endpoints and channel tunables a host
// process needs to stand the layer up.
type HostConfig struct {
	PostgresConnString string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	WsRPC wsrpc.Config
	Rooms rooms.Config
}

// HostConfigFromEnv builds a HostConfig from the environment, falling back
// to defaults for anything unset.
func HostConfigFromEnv() HostConfig {
	cfg := HostConfig{
		PostgresConnString: os.Getenv("PG_CONN_STRING"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		WsRPC:              wsrpc.DefaultConfig(),
		Rooms:              rooms.DefaultConfig(),
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		fmt.Sscanf(dbStr, "%d", &cfg.RedisDB)
	}
	if intervalStr := os.Getenv("SUB_HEARTBEAT_INTERVAL"); intervalStr != "" {
		if interval, err := time.ParseDuration(intervalStr); err == nil && interval > 0 {
			cfg.WsRPC.HeartbeatInterval = interval
		}
	}
	if timeoutStr := os.Getenv("SUB_SEND_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil && timeout > 0 {
			cfg.WsRPC.SendTimeout = timeout
			cfg.Rooms.SendTimeout = timeout
		}
	}
	if maxStr := os.Getenv("SUB_MAX_CONNECTIONS"); maxStr != "" {
		var limit int
		fmt.Sscanf(maxStr, "%d", &limit)
		if limit > 0 {
			cfg.WsRPC.MaxConnections = limit
		}
	}
	return cfg
}

// Layer bundles the assembled notification layer: both channels, ready to be
// mounted on the host's HTTP mux, and the transmitter driving them.
type Layer struct {
	WsRPC       *wsrpc.Channel
	Rooms       *rooms.Channel
	Transmitter *pubsub.Transmitter
	reader      *store.PgReader
}

// NewLayer assembles the full notification layer against live Postgres and
// Redis endpoints.
func NewLayer(ctx context.Context, cfg HostConfig) (*Layer, error) {
	reader, err := store.NewPgReader(ctx, cfg.PostgresConnString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	broker, err := rooms.NewRedisBroker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	wsChannel := wsrpc.NewChannel(cfg.WsRPC, observability.NewPrometheusSink("wsrpc"))
	roomChannel := rooms.NewChannel(cfg.Rooms, broker, observability.NewPrometheusSink("rooms"))
	transmitter := pubsub.NewTransmitter(reader, wsChannel, roomChannel)

	return &Layer{
		WsRPC:       wsChannel,
		Rooms:       roomChannel,
		Transmitter: transmitter,
		reader:      reader,
	}, nil
}

// Close shuts the channels down and releases the storage pool.
func (l *Layer) Close(ctx context.Context) error {
	err := l.Transmitter.Close(ctx)
	l.reader.Close()
	return err
}
