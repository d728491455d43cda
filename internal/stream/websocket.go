package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
)

// wsReadLimit bounds a single WebSocket message.
const wsReadLimit = 1 << 20

// WebSocketDialer opens ws/wss log streams. Each text frame is one line.
type WebSocketDialer struct {
	Client *http.Client
	Header http.Header
}

// Dial performs the WebSocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	c, resp, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient: d.Client,
		HTTPHeader: d.Header,
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, &ConnError{ReadyState: ReadyStateClosed, Err: ctx.Err()}
		case resp != nil:
			return nil, &ConnError{
				ReadyState: ReadyStateClosed,
				Err:        fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err),
			}
		default:
			return nil, &ConnError{ReadyState: ReadyStateConnecting, Err: err}
		}
	}
	c.SetReadLimit(wsReadLimit)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c         *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (w *wsConn) Next(ctx context.Context) (string, error) {
	for {
		typ, data, err := w.c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) != -1 {
				return "", &ConnError{ReadyState: ReadyStateClosed, Err: err}
			}
			return "", &ConnError{ReadyState: ReadyStateOpen, Err: err}
		}
		if typ != websocket.MessageText {
			continue
		}
		return string(data), nil
	}
}

func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.c.Close(websocket.StatusNormalClosure, "")
	})
	return w.closeErr
}
