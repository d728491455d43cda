package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/phrazzld/taskwatch/internal/domain"
)

func TestSSEDialer_ParsesMessageEvents(t *testing.T) {
	t.Parallel()

	seen := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- [2]string{r.Header.Get("Accept"), r.URL.Query().Get("token")}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: first line\n\n")
		fmt.Fprint(w, "event: progress\ndata: ignored\n\n")
		fmt.Fprint(w, "data: multi\r\ndata: line\r\n\r\n")
		fmt.Fprint(w, "event: message\ndata:no space\n\n")
		fmt.Fprint(w, "id: 7\ndata:  two leading spaces\n\n")
	}))
	defer srv.Close()

	d := &SSEDialer{Client: srv.Client()}
	conn, err := d.Dial(context.Background(), srv.URL+"/logs?token=abc")
	require.NoError(t, err)
	defer conn.Close()

	var got []string
	for i := 0; i < 4; i++ {
		line, err := conn.Next(context.Background())
		require.NoError(t, err)
		got = append(got, line)
	}
	assert.Equal(t, []string{"first line", "multi\nline", "no space", " two leading spaces"}, got)
	assert.Equal(t, [2]string{"text/event-stream", "abc"}, <-seen)

	// The handler returned, so the stream ended: a browser would be reconnecting
	_, err = conn.Next(context.Background())
	var ce *ConnError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ReadyStateConnecting, ce.ReadyState)

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}

func TestSSEDialer_EmptyDataField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		// No data field: nothing is dispatched
		fmt.Fprint(w, "event: message\n\n")
		// An empty data field still dispatches an empty message, as EventSource does
		fmt.Fprint(w, "data:\n\n")
		fmt.Fprint(w, "data: after\n\n")
	}))
	defer srv.Close()

	d := &SSEDialer{Client: srv.Client()}
	conn, err := d.Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	first, err := conn.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", first)

	second, err := conn.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "after", second)
}

func TestSSEDialer_NonSuccessStatusIsClosed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := &SSEDialer{Client: srv.Client()}
	_, err := d.Dial(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, IndicatorClosed, IndicatorFor(err))
}

func TestSSEDialer_ContextCancelIsClosed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	d := &SSEDialer{Client: srv.Client()}
	conn, err := d.Dial(ctx, srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = conn.Next(ctx)
	assert.Equal(t, IndicatorClosed, IndicatorFor(err))
}

func TestWebSocketDialer_TextFramesAndClose(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_ = c.Write(ctx, websocket.MessageText, []byte("line one"))
		_ = c.Write(ctx, websocket.MessageBinary, []byte{0x1, 0x2})
		_ = c.Write(ctx, websocket.MessageText, []byte("line two"))
		_ = c.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	d := &WebSocketDialer{Client: srv.Client()}
	conn, err := d.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	first, err := conn.Next(context.Background())
	require.NoError(t, err)
	second, err := conn.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"line one", "line two"}, []string{first, second})

	_, err = conn.Next(context.Background())
	assert.Equal(t, IndicatorClosed, IndicatorFor(err))
}

func TestMultiDialer_RoutesByScheme(t *testing.T) {
	t.Parallel()

	var used []string
	mk := func(name string) Dialer {
		return DialerFunc(func(ctx context.Context, rawURL string) (Conn, error) {
			used = append(used, name)
			return newFakeConn(), nil
		})
	}
	m := MultiDialer{SSE: mk("sse"), WebSocket: mk("ws")}

	for _, u := range []string{"http://h/a", "https://h/a", "ws://h/a", "wss://h/a"} {
		_, err := m.Dial(context.Background(), u)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"sse", "sse", "ws", "ws"}, used)

	_, err := m.Dial(context.Background(), "ftp://h/a")
	assert.Equal(t, IndicatorClosed, IndicatorFor(err))
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	got, err := BuildURL(
		"https://wiki.example.com/api/tasks/${taskId}/logs?follow=true",
		map[string]string{"taskId": "42"},
		"tok en",
		200,
	)
	require.NoError(t, err)
	assert.Equal(t, "https://wiki.example.com/api/tasks/42/logs?follow=true&tailLines=200&token=tok+en", got)

	got, err = BuildURL("http://h/logs/${name}", map[string]string{"name": "a/b"}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://h/logs/a%2Fb", got)

	_, err = BuildURL("http://h/logs/${missing}", nil, "t", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = BuildURL("/relative/only", nil, "t", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
