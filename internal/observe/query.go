// Package observe turns store reads into live queries that refresh after
// every committed write, and joins several live sources into one.
package observe

import (
	"context"
	"time"

	"aqualog/internal/events"

	"github.com/rs/zerolog"
)

// Query re-evaluates its loader whenever one of its topics is published.
type Query[T any] struct {
	bus    *events.Bus
	topics []string
	load   func(ctx context.Context) (T, error)
	logger *zerolog.Logger
	every  time.Duration
}

// NewQuery builds a live query over load, refreshed by the given topics.
func NewQuery[T any](bus *events.Bus, logger *zerolog.Logger, load func(context.Context) (T, error), topics ...string) *Query[T] {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Query[T]{bus: bus, topics: topics, load: load, logger: logger}
}

// RefreshEvery also re-evaluates the query on a timer, for results that
// depend on the clock as well as on stored data.
func (q *Query[T]) RefreshEvery(d time.Duration) *Query[T] {
	q.every = d
	return q
}

// Get evaluates the query once.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	return q.load(ctx)
}

// Watch delivers the current result and a fresh one after every publish on
// the query's topics. Slow readers only ever see the latest value. The channel
// is closed when ctx is done.
func (q *Query[T]) Watch(ctx context.Context) <-chan T {
	out := make(chan T, 1)
	trigger := make(chan struct{}, 1)

	notify := func(events.Event) {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	// Subscribe before the first load so no write can slip in between.
	unsubs := make([]func(), 0, len(q.topics))
	for _, topic := range q.topics {
		unsubs = append(unsubs, q.bus.Subscribe(topic, notify))
	}

	go func() {
		defer close(out)
		defer func() {
			for _, unsub := range unsubs {
				unsub()
			}
		}()

		var tick <-chan time.Time
		if q.every > 0 {
			ticker := time.NewTicker(q.every)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			v, err := q.load(ctx)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				q.logger.Warn().Err(err).Strs("topics", q.topics).Msg("live query refresh failed")
			default:
				sendLatest(out, v)
			}

			select {
			case <-ctx.Done():
				return
			case <-trigger:
			case <-tick:
			}
		}
	}()

	return out
}

// sendLatest replaces any undelivered value in ch with v. ch must have a
// buffer of one and a single sender.
func sendLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
