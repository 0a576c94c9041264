// Package events delivers appointment lifecycle events to side channels.
// Delivery is fire-and-forget: a failed publish is logged and absorbed so it
// can never roll back a committed state transition.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/pawbook/appointment-service/internal/appointment"
)

// envelope is the serialized form shared by every sink.
type envelope struct {
	Event       string                  `json:"event"`
	Appointment appointment.Appointment `json:"appointment"`
	Meta        map[string]any          `json:"meta,omitempty"`
	EmittedAt   time.Time               `json:"emitted_at"`
}

// LogSink writes events as structured log lines. Always safe to use; the
// default sink in dev and tests.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "event_sink").Logger()}
}

var _ appointment.EventSink = (*LogSink)(nil)

func (s *LogSink) Publish(_ context.Context, event string, a appointment.Appointment, meta map[string]any) {
	s.logger.Info().
		Str("event", event).
		Str("appointment_id", a.ID.String()).
		Str("clinician_id", a.ClinicianID.String()).
		Str("status", string(a.Status)).
		Fields(meta).
		Msg("appointment event")
}

// Fanout publishes to every sink in order.
type Fanout []appointment.EventSink

var _ appointment.EventSink = (Fanout)(nil)

func (f Fanout) Publish(ctx context.Context, event string, a appointment.Appointment, meta map[string]any) {
	for _, s := range f {
		s.Publish(ctx, event, a, meta)
	}
}

func marshalEnvelope(event string, a appointment.Appointment, meta map[string]any) ([]byte, error) {
	return json.Marshal(envelope{
		Event:       event,
		Appointment: a,
		Meta:        meta,
		EmittedAt:   time.Now().UTC(),
	})
}
