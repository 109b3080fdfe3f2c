package events

import (
	"context"
	"encoding/json"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
)

type EventsService struct {
	Publisher *RabbitMQPublisher
	Sink      interfaces.RealtimeSink
}

// NewEventsService publishes on RabbitMQ when a url is configured and reachable,
// and only logs events otherwise.
func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig) *EventsService {
	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, realtime events are only logged")
		return &EventsService{Sink: NewLogSink(log)}
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		log.Errorf("failed to start RabbitMQ publisher, realtime events are only logged: %v", err)
		return &EventsService{Sink: NewLogSink(log)}
	}

	return &EventsService{
		Publisher: publisher,
		Sink:      publisher,
	}
}

func (s *EventsService) Close() error {
	if s.Publisher != nil {
		return s.Publisher.Close()
	}
	return nil
}

type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Debugf("realtime event %s: %v", event, payload)
		return
	}
	s.log.Debugf("realtime event %s: %s", event, body)
}
