package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
	sendBuffer     = 16
)

var (
	// ErrSocketClosed is returned when posting to a closed socket
	ErrSocketClosed = errors.New("sandbox socket closed")
	// ErrSocketBusy is returned when the outbound buffer is full
	ErrSocketBusy = errors.New("sandbox socket send buffer full")
)

// socket is a sandbox frame backed by a browser page connected over a
// WebSocket. Post never blocks; a single writer goroutine owns writes.
type socket struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	// emit is set by the frame factory once the socket is bound to an instance
	mu   sync.Mutex
	emit func(data []byte)
}

func newSocket(conn *websocket.Conn) *socket {
	return &socket{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Post queues an outbound instruction
func (s *socket) Post(data []byte) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrSocketClosed
	default:
		return ErrSocketBusy
	}
}

// Close stops the writer, which closes the connection
func (s *socket) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *socket) bind(emit func(data []byte)) {
	s.mu.Lock()
	s.emit = emit
	s.mu.Unlock()
}

func (s *socket) deliver(data []byte) bool {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	if emit == nil {
		return false
	}
	emit(data)
	return true
}

// writeLoop drains send and keeps the connection alive with pings
func (s *socket) writeLoop(onWrite func(data []byte)) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
			if onWrite != nil {
				onWrite(data)
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
