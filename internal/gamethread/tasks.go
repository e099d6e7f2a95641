// Package gamethread confines externally visible effects to the authoritative loop.
//
// Code running anywhere (aggregation workers, buffered command handlers) posts
// closures; the loop that owns engine-facing state drains them at a fixed point
// in every tick.
package gamethread

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/rtsforge/capturepoint/internal/gamethread"

// Task is a unit of work that must run on the authoritative loop.
type Task func()

// Tasks is the deferred task queue drained by the authoritative loop.
type Tasks struct {
	queue   *Queue[Task]
	logger  *slog.Logger
	drained metric.Int64Counter

	draining atomic.Bool
}

// NewTasks creates an empty task queue. Metrics go to the global OTel meter.
func NewTasks(logger *slog.Logger) (*Tasks, error) {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tasks{
		queue:  NewQueue[Task](),
		logger: logger,
	}

	drained, err := otel.Meter(instrumentationName).Int64Counter(
		"gamethread.tasks.drained",
		metric.WithDescription("Tasks executed on the authoritative loop"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating drained counter: %w", err)
	}
	t.drained = drained

	return t, nil
}

// Post schedules fn for the next Drain. Safe from any goroutine.
func (t *Tasks) Post(fn Task) {
	if fn == nil {
		return
	}
	t.queue.Push(fn)
}

// Len returns the number of pending tasks.
func (t *Tasks) Len() int {
	return t.queue.Len()
}

// Drain runs every task that was pending when it was called, in posting order.
// Tasks posted while draining run on the next Drain, so a listener can never
// re-enter the tick that produced its event. A panicking task is logged and skipped.
func (t *Tasks) Drain() int {
	if !t.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer t.draining.Store(false)

	pending := t.queue.TakeAll()
	for _, fn := range pending {
		t.run(fn)
	}

	if len(pending) > 0 {
		t.drained.Add(context.Background(), int64(len(pending)))
	}
	return len(pending)
}

func (t *Tasks) run(fn Task) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("game thread task panicked", "panic", r)
		}
	}()
	fn()
}
