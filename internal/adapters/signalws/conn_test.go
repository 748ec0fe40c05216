package signalws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/confclient/internal/core"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer upgrades one connection and feeds every request envelope
// to handle, which may answer through reply at any time and in any order.
type testServer struct {
	srv *httptest.Server
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

func newTestServer(t *testing.T, handle func(s *testServer, env envelope)) *testServer {
	t.Helper()
	s := &testServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = ws
		s.mu.Unlock()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			handle(s, env)
		}
	}))
	t.Cleanup(s.srv.Close)
	s.url = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return s
}

func (s *testServer) reply(env envelope) {
	b, _ := json.Marshal(env)
	// The connection is registered by the handler goroutine just after
	// the upgrade; a reply issued right after Dial may need to wait.
	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.WriteMessage(websocket.TextMessage, b)
			return
		}
		if time.Now().After(deadline) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *testServer) dropConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func ok() *bool    { v := true; return &v }
func notOK() *bool { v := false; return &v }

func TestCallRoundTrip(t *testing.T) {
	s := newTestServer(t, func(s *testServer, env envelope) {
		s.reply(envelope{ID: env.ID, Method: env.Method, OK: ok(), Data: env.Data})
	})

	c, err := Dial(s.url, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	type payload struct {
		Value string `json:"value"`
	}
	var out payload
	err = c.Call(context.Background(), "echo", payload{Value: "hello"}, &out)
	require.NoError(t, err)
	require.Equal(t, "hello", out.Value)
}

func TestCallCorrelationOutOfOrder(t *testing.T) {
	// The server answers the second request first. Each caller must still
	// receive its own response.
	var pending []envelope
	var mu sync.Mutex
	s := newTestServer(t, func(s *testServer, env envelope) {
		mu.Lock()
		pending = append(pending, env)
		ready := len(pending) == 2
		var batch []envelope
		if ready {
			batch = []envelope{pending[1], pending[0]}
		}
		mu.Unlock()
		for _, e := range batch {
			s.reply(envelope{ID: e.ID, Method: e.Method, OK: ok(), Data: e.Data})
		}
	})

	c, err := Dial(s.url, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	type payload struct {
		Value string `json:"value"`
	}
	results := make(chan string, 2)
	for _, v := range []string{"first", "second"} {
		go func(v string) {
			var out payload
			if err := c.Call(context.Background(), "echo", payload{Value: v}, &out); err != nil {
				results <- "error: " + err.Error()
				return
			}
			if out.Value != v {
				results <- "crossed: sent " + v + " got " + out.Value
				return
			}
			results <- "ok"
		}(v)
	}
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			require.Equal(t, "ok", r)
		case <-time.After(2 * time.Second):
			t.Fatal("call never resolved")
		}
	}
}

func TestCallRemoteError(t *testing.T) {
	s := newTestServer(t, func(s *testServer, env envelope) {
		s.reply(envelope{ID: env.ID, Method: env.Method, OK: notOK(), Error: "conference full"})
	})

	c, err := Dial(s.url, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	err = c.Call(context.Background(), "joinConference", nil, nil)
	var remote *core.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "conference full", remote.Reason)
}

func TestCallContextTimeout(t *testing.T) {
	s := newTestServer(t, func(s *testServer, env envelope) {
		// Never answer.
	})

	c, err := Dial(s.url, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.Call(ctx, "slow", nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPushDispatch(t *testing.T) {
	s := newTestServer(t, func(s *testServer, env envelope) {})

	c, err := Dial(s.url, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	got := make(chan json.RawMessage, 1)
	c.On("participantJoined", func(data json.RawMessage) {
		got <- data
	})

	s.reply(envelope{Event: "participantJoined", Data: json.RawMessage(`{"participantId":"p1"}`)})

	select {
	case data := <-got:
		require.JSONEq(t, `{"participantId":"p1"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("push never dispatched")
	}

	c.Off("participantJoined")
	s.reply(envelope{Event: "participantJoined", Data: json.RawMessage(`{}`)})
	select {
	case <-got:
		t.Fatal("handler fired after Off")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnectHandlerFires(t *testing.T) {
	s := newTestServer(t, func(s *testServer, env envelope) {})

	c, err := Dial(s.url, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	disconnected := make(chan struct{})
	c.On(core.EventDisconnect, func(json.RawMessage) {
		close(disconnected)
	})

	s.dropConn()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler never fired")
	}
}

func TestCloseFailsPending(t *testing.T) {
	s := newTestServer(t, func(s *testServer, env envelope) {})

	c, err := Dial(s.url, time.Minute)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		errs <- c.Call(context.Background(), "slow", nil, nil)
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never failed")
	}

	require.ErrorIs(t, c.Call(context.Background(), "late", nil, nil), ErrClosed)
}
