package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/terrane-io/terrane/pkg/engine"
)

// Subscriber receives execution events from the bus.
type Subscriber func(event engine.Event)

// Bus fans execution events out to subscribers. It implements
// engine.EventPublisher: Publish never blocks, and events are dropped when
// the buffer is full rather than stalling the executor.
type Bus struct {
	buffer      chan engine.Event
	subscribers []Subscriber
	dropped     int64
	mu          sync.RWMutex
	wg          sync.WaitGroup
	closeOnce   sync.Once
	done        chan struct{}
}

// NewBus creates an event bus and starts its dispatch loop.
func NewBus(cfg EventsConfig) *Bus {
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}

	b := &Bus{
		buffer: make(chan engine.Event, size),
		done:   make(chan struct{}),
	}

	b.wg.Add(1)
	go b.dispatch()
	return b
}

// Publish implements engine.EventPublisher.
func (b *Bus) Publish(event engine.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case b.buffer <- event:
	case <-b.done:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

// Subscribe registers a subscriber for all future events. Subscribers run
// on the dispatch goroutine and should return quickly.
func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Dropped reports how many events were discarded because the buffer was
// full.
func (b *Bus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

func (b *Bus) dispatch() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.buffer:
			b.deliver(event)
		case <-b.done:
			// Drain whatever is already buffered.
			for {
				select {
				case event := <-b.buffer:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(event engine.Event) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}

// Close stops the dispatch loop after draining buffered events.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}

// LogSubscriber forwards events to the logger at a level matching their
// severity.
func LogSubscriber(logger *Logger) Subscriber {
	return func(event engine.Event) {
		l := logger
		if event.RunID != "" {
			l = l.WithRunID(event.RunID)
		}
		if event.Identity != "" {
			l = l.WithField("resource", event.Identity)
		}
		l = l.WithField("event", string(event.Type))

		switch event.Type.Severity() {
		case "error":
			l.Error(event.Message)
		case "warning":
			l.Warn(event.Message)
		default:
			l.Info(event.Message)
		}
	}
}

// StoreSubscriber persists events through the state store's event log.
// Persistence failures are logged and otherwise ignored: the event log is
// advisory, not part of run correctness.
func StoreSubscriber(store engine.StateStore, logger *Logger) Subscriber {
	return func(event engine.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.AppendEvent(ctx, &event); err != nil {
			logger.WithError(err).Warn("failed to persist event")
		}
	}
}

var _ engine.EventPublisher = (*Bus)(nil)
