package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Conn is one open streaming connection.
type Conn interface {
	// Next blocks until the next message payload arrives. Errors should be
	// a *ConnError carrying the transport's ready state.
	Next(ctx context.Context) (string, error)

	// Close releases the connection. It must be safe to call more than once.
	Close() error
}

// Dialer opens streaming connections.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, rawURL string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, rawURL string) (Conn, error) {
	return f(ctx, rawURL)
}

// ConnError reports a stream failure together with the ready state the
// transport was in when it happened.
type ConnError struct {
	ReadyState ReadyState
	Err        error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("stream error (ready state %s): %v", e.ReadyState, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// IndicatorFor classifies any error returned by a Dialer or Conn. Errors
// that carry no ready state are reported as unknown.
func IndicatorFor(err error) Indicator {
	var ce *ConnError
	if errors.As(err, &ce) {
		return Classify(ce.ReadyState)
	}
	return IndicatorUnknown
}

// MultiDialer picks a transport by URL scheme: http and https use SSE,
// ws and wss use WebSocket.
type MultiDialer struct {
	SSE       Dialer
	WebSocket Dialer
}

// Dial opens rawURL with the transport matching its scheme.
func (m MultiDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ConnError{ReadyState: ReadyStateClosed, Err: err}
	}
	var d Dialer
	switch u.Scheme {
	case "http", "https":
		d = m.SSE
	case "ws", "wss":
		d = m.WebSocket
	}
	if d == nil {
		return nil, &ConnError{
			ReadyState: ReadyStateClosed,
			Err:        fmt.Errorf("unsupported stream scheme %q", u.Scheme),
		}
	}
	return d.Dial(ctx, rawURL)
}
