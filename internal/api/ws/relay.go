package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/sandbox"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/id"
	"github.com/GriffinCanCode/ConceptCanvas/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound is returned for an unknown session
	ErrSessionNotFound = errors.New("sandbox session not found")
	errNoConnection    = errors.New("no sandbox connection waiting for a frame")
)

// Status is the last known state of a session's frame
type Status struct {
	Session   string           `json:"session"`
	Instance  string           `json:"instance,omitempty"`
	Connected bool             `json:"connected"`
	Ready     bool             `json:"ready"`
	Last      *sandbox.Message `json:"last,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Session binds one browser sandbox page to one Host. A reconnect of the
// page recreates the frame; code queued before the page is ready survives.
type Session struct {
	id   string
	host *sandbox.Host

	mu      sync.Mutex
	next    *socket
	current *socket
	last    *sandbox.Message
	updated time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.updated = now
	s.mu.Unlock()
}

// idle reports whether no page is connected and nothing happened since cutoff
func (s *Session) idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == nil && s.next == nil && s.updated.Before(cutoff)
}

func (s *Session) newFrame(_ context.Context, _ id.InstanceID, emit sandbox.Emit) (sandbox.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return nil, errNoConnection
	}
	sock := s.next
	s.next = nil
	sock.bind(emit)
	return sock, nil
}

func (s *Session) outcome(msg sandbox.Message) {
	s.mu.Lock()
	s.last = &msg
	s.updated = time.Now()
	s.mu.Unlock()
}

// Status reports the session state
func (s *Session) Status() Status {
	st := Status{
		Session:  s.id,
		Instance: s.host.Instance().String(),
		Ready:    s.host.Ready(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.Connected = s.current != nil
	st.Last = s.last
	st.UpdatedAt = s.updated
	return st
}

// DefaultIdleTTL is how long a session without a connected page is kept
const DefaultIdleTTL = 10 * time.Minute

// Relay connects browser sandbox pages to hosts and lets API clients inject
// code into them. Sessions that never get a page, or whose page left, expire
// after the idle TTL.
type Relay struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	idleTTL  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time
}

// NewRelay creates a relay
func NewRelay(logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the sandbox page is served from a null origin inside an iframe
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:   logger,
		idleTTL:  DefaultIdleTTL,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// WithIdleTTL sets how long unconnected sessions are kept
func (r *Relay) WithIdleTTL(ttl time.Duration) *Relay {
	if ttl > 0 {
		r.idleTTL = ttl
	}
	return r
}

// WithMetrics adds metrics tracking
func (r *Relay) WithMetrics(metrics *monitoring.Metrics) *Relay {
	r.metrics = metrics
	return r
}

// Session returns the session with the given ID, creating it if needed
func (r *Relay) Session(sessionID string) (*Session, error) {
	if err := utils.ValidateID(sessionID, "session", true); err != nil {
		return nil, err
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s, nil
	}
	r.sweep(now)

	s := &Session{id: sessionID, updated: now}
	s.host = sandbox.NewHost(sandbox.FrameFactoryFunc(s.newFrame), sandbox.ListenerFuncs{
		OnReady: func(id.InstanceID) { s.outcome(sandbox.Message{Type: sandbox.TypeExecutionReady}) },
		OnError: func(_ id.InstanceID, msg sandbox.Message) { s.outcome(msg) },
	}).WithLogger(r.logger.With(zap.String("session", sessionID))).WithMetrics(r.metrics)
	r.sessions[sessionID] = s
	return s, nil
}

// sweep closes sessions idle for longer than the TTL. Callers hold r.mu.
func (r *Relay) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < r.idleTTL {
		return
	}
	r.lastSweep = now

	cutoff := now.Add(-r.idleTTL)
	for key, s := range r.sessions {
		if !s.idle(cutoff) {
			continue
		}
		delete(r.sessions, key)
		s.host.Close()
		r.logger.Debug("Expired idle sandbox session", zap.String("session", key))
	}
}

// Lookup returns an existing session
func (r *Relay) Lookup(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Inject sends code to the session's frame, queueing it until the page is
// ready. The session is created if the page has not connected yet.
func (r *Relay) Inject(sessionID, code string) error {
	s, err := r.Session(sessionID)
	if err != nil {
		return err
	}
	s.touch(r.now())
	return s.host.Inject(code)
}

// Len returns the number of sessions
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every session
func (r *Relay) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.host.Close()
	}
}

// remove drops s if sock is still its live connection
func (r *Relay) remove(s *Session, sock *socket) {
	s.mu.Lock()
	live := s.current == sock
	if live {
		s.current = nil
	}
	s.mu.Unlock()
	if !live {
		return
	}

	r.mu.Lock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()
	s.host.Close()
}

// HandleConnection handles GET /sandbox/ws?session=<id>. The socket carries
// sandbox messages from the page and inject instructions to it.
func (r *Relay) HandleConnection(c *gin.Context) {
	s, err := r.Session(c.Query("session"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	// claim the session before the previous frame is torn down so the old
	// connection's cleanup leaves the session alone
	sock := newSocket(conn)
	s.mu.Lock()
	s.next = sock
	s.current = sock
	s.mu.Unlock()

	if err := s.host.Recreate(c.Request.Context()); err != nil {
		r.logger.Warn("Failed to bind sandbox connection", zap.String("session", s.id), zap.Error(err))
		r.remove(s, sock)
		sock.Close()
		conn.Close()
		return
	}

	if r.metrics != nil {
		r.metrics.IncWSConnections()
		defer r.metrics.DecWSConnections()
	}
	r.logger.Info("Sandbox connected",
		zap.String("session", s.id),
		zap.String("instance", s.host.Instance().String()))

	go sock.writeLoop(func([]byte) { r.record("outbound", string(sandbox.TypeInject)) })
	r.readLoop(s, sock)

	r.remove(s, sock)
	sock.Close()
	r.logger.Info("Sandbox disconnected", zap.String("session", s.id))
}

func (r *Relay) readLoop(s *Session, sock *socket) {
	conn := sock.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Debug("Sandbox read error", zap.String("session", s.id), zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		msgType := "invalid"
		if msg, err := sandbox.Decode(data); err == nil {
			msgType = string(msg.Type)
		}
		r.record("inbound", msgType)
		sock.deliver(data)
	}
}

func (r *Relay) record(direction, msgType string) {
	if r.metrics != nil {
		r.metrics.RecordWSMessage(direction, msgType)
	}
}

// InjectRequest is the body of POST /api/sandbox/:session/inject
type InjectRequest struct {
	Code string `json:"code" binding:"required"`
}

// HandleInject handles POST /api/sandbox/:session/inject
func (r *Relay) HandleInject(c *gin.Context) {
	var req InjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if err := utils.ValidateCode(req.Code); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}

	sessionID := c.Param("session")
	if err := r.Inject(sessionID, req.Code); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, sandbox.ErrHostClosed):
			status = http.StatusGone
		case utils.ValidateID(sessionID, "session", true) != nil:
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	s, _ := r.Lookup(sessionID)
	st := Status{Session: sessionID}
	if s != nil {
		st = s.Status()
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": !st.Ready, "status": st})
}

// HandleStatus handles GET /api/sandbox/:session
func (r *Relay) HandleStatus(c *gin.Context) {
	s, err := r.Lookup(c.Param("session"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%v: %s", err, c.Param("session"))})
		return
	}
	c.JSON(http.StatusOK, s.Status())
}
