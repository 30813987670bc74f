// Package telemetry defines the logging, metrics, and tracing capabilities
// injected into every orchestration component. Components depend on the
// interfaces here, never on a concrete backend.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured log lines. Key-value pairs alternate key,
	// value, key, value, ... and are flattened by the concrete backend.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, durations, and gauges.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer starts spans for request-scoped units of work.
	Tracer interface {
		Start(ctx context.Context, name string) (context.Context, Span)
	}

	// Span is a single unit of tracing work.
	Span interface {
		SetAttribute(key string, value any)
		RecordError(err error)
		End()
	}
)
