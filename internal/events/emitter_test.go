package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEventHandler implements the Handler interface for testing
type MockEventHandler struct {
	// The last event received by this handler
	LastEvent *Event
	// Error to return from HandleEvent
	HandlerError error
	// Count of events handled
	HandledCount int
}

// HandleEvent implements the Handler interface
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *Event) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

func TestInMemoryEmitter(t *testing.T) {
	t.Parallel()

	// Create a minimal logger that discards output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEmitter(logger)
		event, err := NewEvent(TypeMonitorUpdated, map[string]string{"key": "value"})
		require.NoError(t, err)

		// Should not error even with no handlers
		assert.NoError(t, emitter.Emit(context.Background(), event))
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEmitter(logger)
		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		event, err := NewEvent(TypeSyncUpdated, map[string]int{"progress": 30})
		require.NoError(t, err)
		require.NoError(t, emitter.Emit(context.Background(), event))

		// Verify both handlers received the event
		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Equal(t, event, handler1.LastEvent)
		assert.Equal(t, event, handler2.LastEvent)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEmitter(logger)
		successHandler := &MockEventHandler{}
		failingHandler := &MockEventHandler{HandlerError: errors.New("handler error")}
		emitter.RegisterHandler(failingHandler)
		emitter.RegisterHandler(successHandler)

		event, err := NewEvent(TypeMonitorUpdated, nil)
		require.NoError(t, err)

		// Should return an error from the failing handler
		err = emitter.Emit(context.Background(), event)
		assert.EqualError(t, err, "handler error")

		// Both handlers should still have received the event
		assert.Equal(t, 1, successHandler.HandledCount)
		assert.Equal(t, 1, failingHandler.HandledCount)
	})

	t.Run("unregister stops delivery", func(t *testing.T) {
		emitter := NewInMemoryEmitter(logger)
		kept := &MockEventHandler{}
		removed := &MockEventHandler{}
		emitter.RegisterHandler(kept)
		unregister := emitter.RegisterHandler(removed)

		unregister()
		unregister()

		require.NoError(t, Publish(context.Background(), emitter, TypeMonitorUpdated, 1))
		assert.Equal(t, 1, kept.HandledCount)
		assert.Equal(t, 0, removed.HandledCount)
	})
}

func TestPublish(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Publish(context.Background(), nil, TypeMonitorUpdated, "ignored"))

	emitter := NewInMemoryEmitter(nil)
	rec := &Recorder{}
	emitter.RegisterHandler(rec)

	require.NoError(t, Publish(context.Background(), emitter, TypeSyncUpdated, map[string]int{"progress": 100}))
	require.NoError(t, Publish(context.Background(), emitter, TypeMonitorUpdated, nil))

	syncEvents := rec.Events(TypeSyncUpdated)
	require.Len(t, syncEvents, 1)

	var payload map[string]int
	require.NoError(t, syncEvents[0].UnmarshalPayload(&payload))
	assert.Equal(t, 100, payload["progress"])
	assert.Len(t, rec.Events(""), 2)

	_, err := NewEvent(TypeMonitorUpdated, make(chan int))
	assert.Error(t, err, "unserializable payloads are rejected")
}

func TestHandlerFunc(t *testing.T) {
	t.Parallel()

	var got string
	h := HandlerFunc(func(ctx context.Context, event *Event) error {
		got = event.Type
		return nil
	})

	event, err := NewEvent(TypeStreamStatus, nil)
	require.NoError(t, err)
	require.NoError(t, h.HandleEvent(context.Background(), event))
	assert.Equal(t, TypeStreamStatus, got)
	assert.NotEqual(t, event.ID.String(), "")
}
