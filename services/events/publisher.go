package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const (
	ExchangeRealtime = "mailsync-realtime"

	DefaultMaxRetries          = 3
	DefaultPublishTimeout      = 5 * time.Second
	DefaultReconnectBackoff    = time.Second
	DefaultMaxReconnectBackoff = 30 * time.Second
	DefaultBufferSize          = 256
)

type PublisherConfig struct {
	MaxRetries          int
	PublishTimeout      time.Duration
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
	BufferSize          int
}

func defaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		MaxRetries:          DefaultMaxRetries,
		PublishTimeout:      DefaultPublishTimeout,
		ReconnectBackoff:    DefaultReconnectBackoff,
		MaxReconnectBackoff: DefaultMaxReconnectBackoff,
		BufferSize:          DefaultBufferSize,
	}
}

// RabbitMQPublisher fans realtime events out on a durable exchange. Emit only
// enqueues; a single worker publishes with confirms.
type RabbitMQPublisher struct {
	mu             sync.Mutex
	connection     *amqp091.Connection
	publishChannel *amqp091.Channel
	confirms       chan amqp091.Confirmation

	url    string
	logger logger.Logger
	config PublisherConfig

	queue     chan dto.RealtimeEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewRabbitMQPublisher(rabbitmqURL string, logger logger.Logger, config *PublisherConfig) (*RabbitMQPublisher, error) {
	if config == nil {
		config = defaultPublisherConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	publisher := &RabbitMQPublisher{
		url:    rabbitmqURL,
		logger: logger,
		config: *config,
		queue:  make(chan dto.RealtimeEvent, config.BufferSize),
		done:   make(chan struct{}),
	}

	publisher.mu.Lock()
	err := publisher.connect()
	publisher.mu.Unlock()
	if err != nil {
		return nil, err
	}

	publisher.wg.Add(2)
	go publisher.handleReconnection()
	go publisher.run()

	return publisher, nil
}

// Emit never blocks: events are dropped when the buffer is full.
func (r *RabbitMQPublisher) Emit(ctx context.Context, event string, payload any) {
	span, _ := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.Emit")
	defer span.Finish()
	tracing.TagComponentPublisher(span)
	span.LogKV("event", event)

	message := dto.RealtimeEvent{
		Event:     event,
		Payload:   payload,
		Timestamp: utils.Now(),
		TraceID:   tracing.ExtractTextMapCarrier(span.Context())["uber-trace-id"],
	}

	select {
	case <-r.done:
		return
	default:
	}

	select {
	case r.queue <- message:
	default:
		r.logger.Warnf("realtime buffer full, dropping %s event", event)
	}
}

func (r *RabbitMQPublisher) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case message := <-r.queue:
			if err := r.publish(message); err != nil {
				r.logger.Errorf("failed to publish %s event: %v", message.Event, err)
			}
		}
	}
}

func (r *RabbitMQPublisher) publish(message dto.RealtimeEvent) error {
	body, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "Failed to marshal message")
	}

	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		err = r.publishWithConfirm(message.Event, body)
		if err == nil {
			return nil
		}
		r.logger.Warnf("Publish attempt %d failed: %v", attempt+1, err)
		if attempt < r.config.MaxRetries-1 {
			select {
			case <-r.done:
				return err
			case <-time.After(time.Millisecond * 100 * time.Duration(attempt+1)):
			}
		}
	}
	return errors.Wrap(err, "Failed to publish message after all retries")
}

func (r *RabbitMQPublisher) publishWithConfirm(event string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureConnectionAndChannel(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.PublishTimeout)
	defer cancel()

	err := r.publishChannel.PublishWithContext(ctx,
		ExchangeRealtime,
		"",
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Type:        event,
			Body:        body,
			Timestamp:   utils.Now(),
		})
	if err != nil {
		return errors.Wrap(err, "Failed to publish message")
	}

	select {
	case confirm, ok := <-r.confirms:
		if !ok {
			return errors.New("Publish channel closed before confirmation")
		}
		if !confirm.Ack {
			return errors.New("Message was not confirmed by server")
		}
	case <-ctx.Done():
		return errors.New("Publish confirmation timeout")
	}
	return nil
}

// connect must be called with mu held.
func (r *RabbitMQPublisher) connect() error {
	connection, err := amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}

	channel, err := connection.Channel()
	if err != nil {
		connection.Close()
		return errors.Wrap(err, "Failed to open channel for exchange setup")
	}
	err = channel.ExchangeDeclare(
		ExchangeRealtime,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	channel.Close()
	if err != nil {
		connection.Close()
		return errors.Wrap(err, "Failed to declare realtime exchange")
	}

	r.connection = connection
	if err := r.setupPublishChannel(); err != nil {
		return errors.Wrap(err, "Failed to setup publish channel")
	}
	return nil
}

func (r *RabbitMQPublisher) setupPublishChannel() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "Failed to open publish channel")
	}

	err = channel.Confirm(false)
	if err != nil {
		channel.Close()
		return errors.Wrap(err, "Failed to enable publisher confirms")
	}

	r.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	r.publishChannel = channel
	return nil
}

func (r *RabbitMQPublisher) ensureConnectionAndChannel() error {
	if r.connection == nil || r.connection.IsClosed() {
		if err := r.connect(); err != nil {
			return errors.Wrap(err, "Failed to establish connection")
		}
	}
	if r.publishChannel == nil || r.publishChannel.IsClosed() {
		if err := r.setupPublishChannel(); err != nil {
			return errors.Wrap(err, "Failed to establish channel")
		}
	}
	return nil
}

func (r *RabbitMQPublisher) handleReconnection() {
	defer r.wg.Done()
	backoff := r.config.ReconnectBackoff

	for {
		r.mu.Lock()
		var notifyClose chan *amqp091.Error
		if r.connection != nil && !r.connection.IsClosed() {
			notifyClose = r.connection.NotifyClose(make(chan *amqp091.Error, 1))
		}
		r.mu.Unlock()

		if notifyClose != nil {
			select {
			case <-r.done:
				return
			case err := <-notifyClose:
				r.logger.Warnf("RabbitMQ connection closed: %v, attempting to reconnect", err)
			}
		}

		for {
			select {
			case <-r.done:
				return
			default:
			}

			r.mu.Lock()
			err := r.ensureConnectionAndChannel()
			r.mu.Unlock()
			if err == nil {
				r.logger.Info("Successfully reconnected to RabbitMQ")
				break
			}

			r.logger.Errorf("Failed to reconnect: %v, retrying in %v", err, backoff)
			select {
			case <-r.done:
				return
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > r.config.MaxReconnectBackoff {
				backoff = r.config.MaxReconnectBackoff
			}
		}

		backoff = r.config.ReconnectBackoff
	}
}

// Close stops the worker and shuts the connection down. Buffered events are dropped.
func (r *RabbitMQPublisher) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		if r.publishChannel != nil {
			if closeErr := r.publishChannel.Close(); closeErr != nil {
				r.logger.Errorf("Error closing publish channel: %v", closeErr)
				err = closeErr
			}
		}
		if r.connection != nil {
			if closeErr := r.connection.Close(); closeErr != nil {
				r.logger.Errorf("Error closing connection: %v", closeErr)
				if err == nil {
					err = closeErr
				}
			}
		}
		r.mu.Unlock()

		r.wg.Wait()
	})
	return err
}
