package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// maxSSELine bounds a single line read from an event stream.
const maxSSELine = 1 << 20

// SSEDialer opens text/event-stream connections over HTTP.
type SSEDialer struct {
	// Client performs the request. It must not set a global timeout, since
	// the response body stays open for the life of the stream.
	Client *http.Client

	// Header is added to every request.
	Header http.Header
}

// Dial issues the GET request and returns once response headers arrive.
// A non-2xx status is reported as closed; a network failure as connecting.
func (d *SSEDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &ConnError{ReadyState: ReadyStateClosed, Err: err}
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &ConnError{ReadyState: ReadyStateClosed, Err: ctx.Err()}
		}
		return nil, &ConnError{ReadyState: ReadyStateConnecting, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &ConnError{
			ReadyState: ReadyStateClosed,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return &sseConn{
		body:   resp.Body,
		reader: bufio.NewReaderSize(resp.Body, 4096),
	}, nil
}

type sseConn struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	closeOnce sync.Once
	closeErr  error
}

// Next returns the data of the next "message" event. Events with another
// name are skipped; multi-line data is joined with "\n".
func (c *sseConn) Next(ctx context.Context) (string, error) {
	var (
		data  []string
		event string
	)
	for {
		line, err := c.readLine()
		if err != nil {
			return "", c.classify(ctx, err)
		}

		if line == "" {
			if len(data) > 0 && (event == "" || event == "message") {
				return strings.Join(data, "\n"), nil
			}
			data, event = nil, ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			event = value
		}
	}
}

func (c *sseConn) readLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			return "", err
		}
		sb.Write(chunk)
		if sb.Len() > maxSSELine {
			return "", fmt.Errorf("event stream line exceeds %d bytes", maxSSELine)
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}

func (c *sseConn) classify(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return &ConnError{ReadyState: ReadyStateClosed, Err: ctx.Err()}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// The server ended the stream; a browser would be reconnecting now.
		return &ConnError{ReadyState: ReadyStateConnecting, Err: err}
	default:
		return &ConnError{ReadyState: ReadyStateOpen, Err: err}
	}
}

func (c *sseConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.body.Close()
	})
	return c.closeErr
}
