package events

import (
	"context"

	"go.uber.org/zap"
)

// LogEmitter records events in the structured log. It stands in for the
// push-notification pipeline in environments where none is configured.
type LogEmitter struct {
	log *zap.Logger
}

func NewLogEmitter(log *zap.Logger) Emitter {
	return &LogEmitter{log: log.Named("events")}
}

func (e *LogEmitter) Emit(ctx context.Context, event Event) {
	_ = ctx
	e.log.Info("event emitted",
		zap.String("event", event.Name()),
		zap.Any("payload", event),
	)
}

// NopEmitter discards events. Used by tests.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}
