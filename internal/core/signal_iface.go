package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// Signaler abstracts the request/ack + push-event channel to the
// conference server. Owned by the adapter; the adapter must Close() it.
//
// Call returns *RemoteError when the server answers with an error
// envelope; any other non-nil error is a transport failure. Responses
// carry no ordering guarantee relative to push events.
type Signaler interface {
	// Call issues a request and decodes the response payload into out
	// (out may be nil when the response body is irrelevant).
	Call(ctx context.Context, method string, in, out any) error
	// On registers a push-event handler. Handlers for one connection are
	// invoked sequentially, in arrival order.
	On(event string, h func(data json.RawMessage))
	Off(event string)
	Close() error
}

// RemoteError is an application-level failure reported by the server.
type RemoteError struct {
	Method string
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("signal %s: %s", e.Method, e.Reason)
}
