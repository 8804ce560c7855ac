// Package telemetry provides fire-and-forget event reporting for analytics
// and failure tracking. Emission never blocks the caller and sink failures
// never propagate into application flows.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event is a single telemetry record.
type Event struct {
	ID    uuid.UUID         `json:"id"`
	Time  time.Time         `json:"time"`
	Name  string            `json:"name"`
	Props map[string]string `json:"props,omitempty"`
}

// NewEvent stamps an event with an ID and the current time.
func NewEvent(name string, props map[string]string) Event {
	return Event{
		ID:    uuid.New(),
		Time:  time.Now().UTC(),
		Name:  name,
		Props: props,
	}
}

// Sink receives dispatched events.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// NoopSink drops every event.
type NoopSink struct{}

func (NoopSink) Record(context.Context, Event) {}

// LogSink writes events to a structured logger, one record per event.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, event Event) {
	attrs := []any{
		"event_id", event.ID.String(),
		"event", event.Name,
	}
	for k, v := range event.Props {
		attrs = append(attrs, k, v)
	}
	s.logger.Info("telemetry", attrs...)
}

// ChannelSink buffers events in a channel. Used in tests to assert on what
// was emitted.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Record(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}
