package wsrpc

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	errSendTimeout  = errors.New("wsrpc: send timed out")
	errClientClosed = errors.New("wsrpc: client closed")
)

type outboundFrame struct {
	ping    bool
	payload interface{}
}

// client is one websocket subscriber. All writes funnel through a single
// writer pump; Enqueue races the subscriber's queue against a deadline so a
// slow consumer never stalls the caller.
type client struct {
	conn         *websocket.Conn
	remote       string
	writeTimeout time.Duration

	out       chan outboundFrame
	closed    chan struct{}
	closeOnce sync.Once

	hookMu    sync.Mutex
	hooks     []func()
	pongHooks []func()
}

func newClient(conn *websocket.Conn, writeTimeout time.Duration, queueSize int) *client {
	c := &client{
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		writeTimeout: writeTimeout,
		out:          make(chan outboundFrame, queueSize),
		closed:       make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		c.hookMu.Lock()
		hooks := append([]func(){}, c.pongHooks...)
		c.hookMu.Unlock()
		for _, fn := range hooks {
			fn()
		}
		return nil
	})
	go c.writePump()
	return c
}

func (c *client) Remote() string { return c.remote }

// OnPong registers a hook run on every pong the connection receives. Each
// registry holding this peer tracks its own outstanding ping, so pong receipt
// fans out to all of them.
func (c *client) OnPong(fn func()) {
	c.hookMu.Lock()
	c.pongHooks = append(c.pongHooks, fn)
	c.hookMu.Unlock()
}

// Ping enqueues a transport-level ping. A full queue counts as a failed ping;
// the registry treats that as a dead peer.
func (c *client) Ping() error {
	select {
	case c.out <- outboundFrame{ping: true}:
		return nil
	case <-c.closed:
		return errClientClosed
	default:
		return errSendTimeout
	}
}

// Enqueue hands a payload to the writer pump, racing a deadline timer.
// Whichever finishes first wins; a loss means the subscription is torn down
// by the caller.
func (c *client) Enqueue(payload interface{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.out <- outboundFrame{payload: payload}:
		return nil
	case <-timer.C:
		return errSendTimeout
	case <-c.closed:
		return errClientClosed
	}
}

// OnClose registers a hook run exactly once when the client disconnects. A
// hook registered after the fact runs immediately.
func (c *client) OnClose(fn func()) {
	c.hookMu.Lock()
	select {
	case <-c.closed:
		c.hookMu.Unlock()
		fn()
		return
	default:
	}
	c.hooks = append(c.hooks, fn)
	c.hookMu.Unlock()
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
		c.hookMu.Lock()
		hooks := c.hooks
		c.hooks = nil
		c.hookMu.Unlock()
		for _, fn := range hooks {
			fn()
		}
	})
}

func (c *client) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			var err error
			if frame.ping {
				err = c.conn.WriteMessage(websocket.PingMessage, nil)
			} else {
				err = c.conn.WriteJSON(frame.payload)
			}
			if err != nil {
				c.close()
				return
			}
		}
	}
}
