package rooms

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	errSendTimeout  = errors.New("rooms: send timed out")
	errMemberClosed = errors.New("rooms: member closed")
)

// member is one websocket connection joined to some set of rooms. Frames are
// pre-marshaled and funneled through a single writer pump.
type member struct {
	conn         *websocket.Conn
	remote       string
	writeTimeout time.Duration

	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newMember(conn *websocket.Conn, writeTimeout time.Duration, queueSize int) *member {
	m := &member{
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		writeTimeout: writeTimeout,
		out:          make(chan []byte, queueSize),
		closed:       make(chan struct{}),
	}
	go m.writePump()
	return m
}

func (m *member) enqueue(frame []byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m.out <- frame:
		return nil
	case <-timer.C:
		return errSendTimeout
	case <-m.closed:
		return errMemberClosed
	}
}

func (m *member) close() {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.conn.Close()
	})
}

func (m *member) writePump() {
	for {
		select {
		case <-m.closed:
			return
		case frame := <-m.out:
			m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
			if err := m.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				m.close()
				return
			}
		}
	}
}
