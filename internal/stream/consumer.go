package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/phrazzld/taskwatch/internal/redact"
)

// ErrConsumerClosed is returned by Subscribe after Close.
var ErrConsumerClosed = errors.New("stream consumer closed")

// Status is the read-only view of a consumer's connection.
type Status struct {
	Key       string    `json:"key"`
	State     State     `json:"state"`
	Indicator Indicator `json:"indicator,omitempty"`
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Logger *slog.Logger

	// OnAppend is called after every appended line with the new buffer
	// length. Viewers use it to advance their scroll position.
	OnAppend func(line string, length int)

	// OnStatus is called whenever the connection state or indicator changes.
	OnStatus func(Status)
}

// Consumer keeps at most one streaming connection open and feeds every
// received message into its Buffer. It never reconnects on its own: a new
// connection is opened only by a key change or an explicit Resubscribe.
type Consumer struct {
	dialer   Dialer
	logger   *slog.Logger
	onAppend func(string, int)
	onStatus func(Status)
	buf      *Buffer

	mu        sync.Mutex
	current   *subscription
	key       string
	url       string
	state     State
	indicator Indicator
	closed    bool

	// readers counts reader goroutines that are running outside a user
	// callback. Close waits on idle until it drops to zero.
	readers int
	idle    *sync.Cond
}

// subscription owns one connection attempt. close runs at most once and is
// the only place its connection is closed.
type subscription struct {
	id     uuid.UUID
	cancel context.CancelFunc

	mu        sync.Mutex
	conn      Conn
	done      bool
	closeOnce sync.Once
}

func (s *subscription) attach(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.conn = conn
	return true
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.done = true
		conn := s.conn
		s.mu.Unlock()

		s.cancel()
		if conn != nil {
			_ = conn.Close()
		}
	})
}

// NewConsumer creates a Consumer that opens connections with dialer.
func NewConsumer(dialer Dialer, opts ConsumerOptions) *Consumer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{
		dialer:   dialer,
		logger:   logger.With("component", "stream"),
		onAppend: opts.OnAppend,
		onStatus: opts.OnStatus,
		buf:      NewBuffer(),
		state:    StateClosed,
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Subscribe points the consumer at key. Subscribing to the current key is a
// no-op. Otherwise the previous connection is closed, the buffer cleared,
// and rawURL dialed in the background.
func (c *Consumer) Subscribe(key, rawURL string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConsumerClosed
	}
	if c.current != nil && c.key == key {
		c.mu.Unlock()
		return nil
	}
	status := c.startLocked(key, rawURL)
	c.mu.Unlock()

	c.notify(status)
	return nil
}

// Resubscribe tears down the current connection and dials the same key
// again, clearing the buffer. It is the explicit remount operation.
func (c *Consumer) Resubscribe() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConsumerClosed
	}
	if c.key == "" {
		c.mu.Unlock()
		return nil
	}
	status := c.startLocked(c.key, c.url)
	c.mu.Unlock()

	c.notify(status)
	return nil
}

func (c *Consumer) startLocked(key, rawURL string) Status {
	c.teardownLocked()

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{id: uuid.New(), cancel: cancel}
	c.current = sub
	c.key = key
	c.url = rawURL
	c.buf.Reset()
	c.state = Transition(c.state, EventDial)
	c.indicator = IndicatorNone

	c.logger.Info("subscribing to stream",
		"key", key,
		"subscription_id", sub.id,
		"url", redact.URL(rawURL))

	c.readers++
	go c.run(ctx, sub, rawURL)

	return c.statusLocked()
}

// teardownLocked closes the live subscription, if any.
func (c *Consumer) teardownLocked() {
	if c.current == nil {
		return
	}
	c.current.close()
	c.current = nil
}

func (c *Consumer) run(ctx context.Context, sub *subscription, rawURL string) {
	defer c.readerDone()

	conn, err := c.dialer.Dial(ctx, rawURL)
	if err != nil {
		c.fail(ctx, sub, err)
		return
	}
	if !sub.attach(conn) {
		// Superseded while dialing
		_ = conn.Close()
		return
	}
	c.opened(sub)

	for {
		line, err := conn.Next(ctx)
		if err != nil {
			c.fail(ctx, sub, err)
			return
		}
		if !c.append(ctx, sub, line) {
			return
		}
	}
}

func (c *Consumer) opened(sub *subscription) {
	c.mu.Lock()
	if c.current != sub {
		c.mu.Unlock()
		return
	}
	c.state = Transition(c.state, EventOpened)
	c.indicator = IndicatorNone
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Info("stream opened", "key", status.Key, "subscription_id", sub.id)
	c.callback(func() { c.notify(status) })
}

// append adds line to the buffer if sub is still current.
func (c *Consumer) append(ctx context.Context, sub *subscription, line string) bool {
	c.mu.Lock()
	if c.current != sub {
		c.mu.Unlock()
		return false
	}
	n := c.buf.Append(line)
	c.mu.Unlock()

	recordLine(ctx)
	if c.onAppend != nil {
		c.callback(func() { c.onAppend(line, n) })
	}
	return true
}

func (c *Consumer) fail(ctx context.Context, sub *subscription, err error) {
	c.mu.Lock()
	if c.current != sub {
		c.mu.Unlock()
		return
	}
	ind := IndicatorFor(err)
	c.state = Transition(c.state, EventFailed)
	c.indicator = ind
	status := c.statusLocked()
	c.mu.Unlock()

	// No automatic reconnection; the connection is closed on any error.
	sub.close()

	recordError(ctx, ind)
	c.logger.Warn("stream error",
		"key", status.Key,
		"subscription_id", sub.id,
		"indicator", string(ind),
		"error", redact.Error(err))
	c.callback(func() { c.notify(status) })
}

// Close tears down the current connection and waits for the reader to exit
// or park in a callback. It may be called from OnAppend or OnStatus.
// Repeated calls are no-ops.
func (c *Consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.teardownLocked()
	c.state = Transition(c.state, EventClosed)
	status := c.statusLocked()
	for c.readers > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()

	c.logger.Debug("stream consumer closed", "key", status.Key)
	c.notify(status)
}

func (c *Consumer) readerDone() {
	c.mu.Lock()
	c.readers--
	c.idle.Broadcast()
	c.mu.Unlock()
}

// callback runs fn on a reader goroutine without counting that reader as
// busy, so fn may call Close.
func (c *Consumer) callback(fn func()) {
	c.mu.Lock()
	c.readers--
	c.idle.Broadcast()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.readers++
		c.mu.Unlock()
	}()
	fn()
}

// Lines returns a copy of the buffered lines.
func (c *Consumer) Lines() []string { return c.buf.Lines() }

// Len returns the number of buffered lines.
func (c *Consumer) Len() int { return c.buf.Len() }

// Status returns the current connection status.
func (c *Consumer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Consumer) statusLocked() Status {
	return Status{Key: c.key, State: c.state, Indicator: c.indicator}
}

func (c *Consumer) notify(s Status) {
	if c.onStatus != nil {
		c.onStatus(s)
	}
}
