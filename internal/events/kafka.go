package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/pawbook/appointment-service/internal/appointment"
)

// KafkaSink publishes events to Kafka, one topic per event name, keyed by
// appointment id so a consumer sees each appointment's history in order.
type KafkaSink struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

func NewKafkaSink(brokers []string, logger zerolog.Logger) *KafkaSink {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
	return &KafkaSink{
		writer: writer,
		logger: logger.With().Str("component", "kafka_sink").Logger(),
	}
}

var _ appointment.EventSink = (*KafkaSink)(nil)

func (s *KafkaSink) Publish(ctx context.Context, event string, a appointment.Appointment, meta map[string]any) {
	payload, err := marshalEnvelope(event, a, meta)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("marshal event payload")
		return
	}

	msg := kafka.Message{
		Topic: event,
		Key:   []byte(a.ID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event)},
		},
	}

	// Bounded so a slow broker cannot stall the calling operation for long.
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.writer.WriteMessages(writeCtx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("event", event).
			Str("appointment_id", a.ID.String()).
			Msg("kafka publish failed")
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
