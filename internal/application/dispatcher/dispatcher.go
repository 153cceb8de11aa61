package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/kelurahan-portal/internal/domain/event"
)

var (
	// ErrClosed is returned once the dispatcher has been closed
	ErrClosed = errors.New("dispatcher is closed")

	// ErrDuplicateSubscriber is returned when a name is already registered
	ErrDuplicateSubscriber = errors.New("subscriber already registered")
)

// Dispatcher delivers committed workflow events to in-process subscribers.
// Delivery is synchronous on the caller's goroutine, in registration order.
type Dispatcher interface {
	// Subscribe registers handler under name for the given types.
	// No types means every workflow event type.
	Subscribe(name string, handler Handler, types ...event.Type) error

	// Unsubscribe removes the named subscriber
	Unsubscribe(name string) bool

	// Dispatch runs every subscriber interested in evt. A failing subscriber
	// does not stop the others; all failures are joined into the result.
	Dispatch(ctx context.Context, evt *event.Event) error

	// Subscribers lists subscribers interested in eventType
	Subscribers(eventType event.Type) []Subscription

	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu          sync.RWMutex
	subscribers []subscriber
	logger      Logger
	closed      bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(name string, handler Handler, types ...event.Type) error {
	if name == "" || handler == nil {
		return fmt.Errorf("subscriber name and handler are required")
	}
	if len(types) == 0 {
		types = event.AllTypes()
	}

	wanted := make(map[event.Type]struct{}, len(types))
	for _, t := range types {
		if !t.IsValid() {
			return fmt.Errorf("subscriber %s: unknown event type %q", name, t)
		}
		wanted[t] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	for _, s := range d.subscribers {
		if s.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateSubscriber, name)
		}
	}
	d.subscribers = append(d.subscribers, subscriber{name: name, types: wanted, handler: handler})

	if d.logger != nil {
		d.logger.Info("Subscriber registered", "subscriber", name, "event_types", len(wanted))
	}
	return nil
}

func (d *eventDispatcher) Unsubscribe(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, s := range d.subscribers {
		if s.name == name {
			d.subscribers = append(d.subscribers[:i:i], d.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event is required")
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]subscriber, 0, len(d.subscribers))
	for _, s := range d.subscribers {
		if s.wants(evt.Type) {
			targets = append(targets, s)
		}
	}
	d.mu.RUnlock()

	var errs []error
	for _, s := range targets {
		if err := deliver(ctx, evt, s); err != nil {
			if d.logger != nil {
				d.logger.Error("Subscriber failed",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"application_id", evt.ApplicationID,
					"subscriber", s.name,
					"error", err,
				)
			}
			errs = append(errs, fmt.Errorf("subscriber %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) Subscribers(eventType event.Type) []Subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Subscription
	for _, s := range d.subscribers {
		if s.wants(eventType) {
			out = append(out, s.describe())
		}
	}
	return out
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.closed = true
	d.subscribers = nil
	return nil
}

func deliver(ctx context.Context, evt *event.Event, s subscriber) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}
