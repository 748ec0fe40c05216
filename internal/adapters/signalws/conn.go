package signalws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/confclient/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const (
	writeWait      = 5 * time.Second
	sendBufferSize = 32
	dialMaxElapsed = 30 * time.Second
)

// envelope is the one frame shape on the wire. Requests carry id and
// method; responses echo the id with ok set; pushes carry event only.
type envelope struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Event  string          `json:"event,omitempty"`
	OK     *bool           `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Conn is the websocket signaling channel. It implements core.Signaler:
// request/response correlation by id plus push event dispatch. Push
// handlers run sequentially on the read pump goroutine, so a handler
// must never Call inline.
type Conn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	pingPeriod time.Duration

	mu       sync.Mutex
	closed   bool
	pending  map[string]chan callResult
	handlers map[string]func(data json.RawMessage)
}

// Dial connects to the signaling endpoint, retrying transient failures
// with exponential backoff, and starts the io pumps.
func Dial(url string, pingPeriod time.Duration) (*Conn, error) {
	var ws *websocket.Conn
	op := func() error {
		var err error
		ws, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			log.Warn().Err(err).Str("module", "signalws").Str("url", url).Msg("dial failed, retrying")
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = dialMaxElapsed
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	log.Info().Str("module", "signalws").Str("url", url).Msg("connected")

	c := &Conn{
		conn:       ws,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		pingPeriod: pingPeriod,
		pending:    make(map[string]chan callResult),
		handlers:   make(map[string]func(data json.RawMessage)),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

func (c *Conn) On(event string, h func(data json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

func (c *Conn) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

func (c *Conn) handlerFor(event string) func(data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[event]
}

func (c *Conn) trySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close shuts the connection down and fails every call still waiting
// for its response.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	close(c.send)
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- callResult{err: ErrClosed}
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump ping error")
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	defer func() {
		log.Info().Str("module", "signalws").Msg("readPump closing")
		c.dispatchDisconnect()
		_ = c.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Error().Err(err).Str("module", "signalws").Msg("readPump read error")
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Conn) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signalws").Msg("bad json")
		return
	}

	switch {
	case env.ID != "":
		c.resolve(env)
	case env.Event != "":
		if h := c.handlerFor(env.Event); h != nil {
			h(env.Data)
		} else {
			log.Warn().Str("module", "signalws").Str("event", env.Event).Msg("unhandled push")
		}
	default:
		log.Warn().Str("module", "signalws").Msg("frame without id or event")
	}
}

// dispatchDisconnect runs once when the read pump dies so the session
// above can tear itself down.
func (c *Conn) dispatchDisconnect() {
	if h := c.handlerFor(core.EventDisconnect); h != nil {
		h(nil)
	}
}
