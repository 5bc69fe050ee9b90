package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/sandbox"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Relay, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	relay := NewRelay(nil).WithMetrics(monitoring.NewMetrics())
	router := gin.New()
	router.GET("/sandbox/ws", relay.HandleConnection)
	router.POST("/api/sandbox/:session/inject", relay.HandleInject)
	router.GET("/api/sandbox/:session", relay.HandleStatus)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		relay.Close()
		srv.Close()
	})
	return relay, srv
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sandbox/ws?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func readInject(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	code, err := sandbox.DecodeInject(data)
	require.NoError(t, err)
	return code
}

func postInject(t *testing.T, srv *httptest.Server, session, code string) *http.Response {
	t.Helper()
	body, err := sonic.MarshalString(InjectRequest{Code: code})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/sandbox/"+session+"/inject", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestInjectQueuedUntilFrameReady(t *testing.T) {
	relay, srv := newTestServer(t)

	resp := postInject(t, srv, "viz-1", "first")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = postInject(t, srv, "viz-1", "latest")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	conn := dial(t, srv, "viz-1")
	sendMsg(t, conn, `{"type":"frameReady"}`)
	assert.Equal(t, "latest", readInject(t, conn), "only the newest queued code is flushed")

	sendMsg(t, conn, `{"type":"executionReady"}`)

	s, err := relay.Lookup("viz-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Last != nil && st.Last.Type == sandbox.TypeExecutionReady
	}, 2*time.Second, 10*time.Millisecond)

	st := s.Status()
	assert.True(t, st.Ready)
	assert.True(t, st.Connected)

	resp = postInject(t, srv, "viz-1", "live")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "live", readInject(t, conn), "ready frames receive code immediately")
}

func TestExecutionErrorRecorded(t *testing.T) {
	relay, srv := newTestServer(t)

	conn := dial(t, srv, "viz-err")
	sendMsg(t, conn, `{"type":"frameReady"}`)
	require.Eventually(t, func() bool {
		s, err := relay.Lookup("viz-err")
		return err == nil && s.Status().Ready
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusAccepted, postInject(t, srv, "viz-err", "boom").StatusCode)
	assert.Equal(t, "boom", readInject(t, conn))

	sendMsg(t, conn, `{"type":"bogus"}`)
	sendMsg(t, conn, `{"type":"executionError","message":"x is not defined"}`)

	s, err := relay.Lookup("viz-err")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Last != nil && st.Last.Type == sandbox.TypeExecutionError
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "x is not defined", s.Status().Last.Message)
}

func TestReconnectReplacesInstance(t *testing.T) {
	relay, srv := newTestServer(t)

	first := dial(t, srv, "viz-2")
	sendMsg(t, first, `{"type":"frameReady"}`)

	s, err := relay.Session("viz-2")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Status().Ready }, 2*time.Second, 10*time.Millisecond)
	oldInstance := s.Status().Instance

	second := dial(t, srv, "viz-2")
	require.Eventually(t, func() bool { return s.Status().Instance != oldInstance }, 2*time.Second, 10*time.Millisecond)

	// the old page is disconnected
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	assert.False(t, s.Status().Ready)
	require.Equal(t, http.StatusAccepted, postInject(t, srv, "viz-2", "after").StatusCode)
	sendMsg(t, second, `{"type":"frameReady"}`)
	assert.Equal(t, "after", readInject(t, second))

	assert.Equal(t, 1, relay.Len(), "the session survives the old connection closing")
}

func TestDisconnectRemovesSession(t *testing.T) {
	relay, srv := newTestServer(t)

	conn := dial(t, srv, "viz-3")
	require.Eventually(t, func() bool { return relay.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return relay.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/sandbox/viz-3")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleConnectionRejectsBadSession(t *testing.T) {
	_, srv := newTestServer(t)

	for _, session := range []string{"", "bad%20id", "a.b"} {
		t.Run(session, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/sandbox/ws?session=" + session)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandleInjectValidation(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/sandbox/viz/inject", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postInject(t, srv, "viz", strings.Repeat("x", 101*1024))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp = postInject(t, srv, "bad.id", "code")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSocketPost(t *testing.T) {
	sock := &socket{send: make(chan []byte, 1), done: make(chan struct{})}

	require.NoError(t, sock.Post([]byte("a")))
	assert.ErrorIs(t, sock.Post([]byte("b")), ErrSocketBusy)

	require.NoError(t, sock.Close())
	require.NoError(t, sock.Close())
	assert.ErrorIs(t, sock.Post([]byte("c")), ErrSocketClosed)
	assert.False(t, sock.deliver([]byte("{}")), "unbound sockets drop messages")
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestIdleSessionsExpire(t *testing.T) {
	relay, srv := newTestServer(t)
	clock := &testClock{now: time.Now()}
	relay.WithIdleTTL(time.Minute).now = clock.Now

	dial(t, srv, "live")
	require.Eventually(t, func() bool {
		s, err := relay.Lookup("live")
		return err == nil && s.Status().Connected
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, relay.Inject("orphan", "a"))
	orphan, err := relay.Lookup("orphan")
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	require.NoError(t, relay.Inject("recent", "b"))
	assert.Equal(t, 3, relay.Len())

	clock.Advance(time.Minute)
	require.NoError(t, relay.Inject("fresh", "c"))

	_, err = relay.Lookup("orphan")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, orphan.host.Inject("d"), sandbox.ErrHostClosed)

	for _, session := range []string{"live", "recent", "fresh"} {
		_, err := relay.Lookup(session)
		assert.NoError(t, err, session)
	}
	assert.Equal(t, 3, relay.Len())
}
