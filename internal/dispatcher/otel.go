package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/rtsforge/capturepoint/internal/dispatcher"

// instruments are taken from the global meter and stay no-ops until a
// provider is installed.
type instruments struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

func (i *instruments) init(queueLengths func() map[string]int) error {
	m := otel.Meter(instrumentationName)
	var err error

	i.queueSize, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a command buffer"))
	if err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range queueLengths() {
			o.ObserveInt64(i.queueSize, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, i.queueSize)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&i.processed, "dispatcher.events.processed", "Buffered events handed to their handler"},
		{&i.dropped, "dispatcher.events.dropped", "Events dropped because the buffer was full"},
		{&i.failed, "dispatcher.events.failed", "Asynchronous handler calls that returned an error"},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return fmt.Errorf("creating %s: %w", c.name, err)
		}
	}
	return nil
}
