package signalws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dkeye/confclient/internal/core"
)

type callResult struct {
	data json.RawMessage
	err  error
}

// Call sends one request and blocks until its correlated response or
// ctx expiry. Each call gets its own id and its own result channel;
// responses never attach to the wrong caller regardless of ordering.
func (c *Conn) Call(ctx context.Context, method string, in, out any) error {
	var payload json.RawMessage
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("call %s: marshal: %w", method, err)
		}
		payload = b
	}

	id := uuid.NewString()
	env := envelope{ID: id, Method: method, Data: payload}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("call %s: marshal envelope: %w", method, err)
	}

	ch := make(chan callResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.trySend(frame); err != nil {
		c.dropPending(id)
		return fmt.Errorf("call %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return fmt.Errorf("call %s: %w", method, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("call %s: %w", method, res.err)
		}
		if out != nil && len(res.data) > 0 {
			if err := json.Unmarshal(res.data, out); err != nil {
				return fmt.Errorf("call %s: unmarshal response: %w", method, err)
			}
		}
		return nil
	}
}

// resolve routes a response frame to the caller waiting on its id. A
// server-reported failure becomes a RemoteError, which callers can
// distinguish from transport loss.
func (c *Conn) resolve(env envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	if ok {
		delete(c.pending, env.ID)
	}
	c.mu.Unlock()
	if !ok {
		// Caller gave up (ctx expiry) before the response landed.
		return
	}

	if env.OK != nil && !*env.OK {
		ch <- callResult{err: &core.RemoteError{Method: env.Method, Reason: env.Error}}
		return
	}
	ch <- callResult{data: env.Data}
}

func (c *Conn) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
