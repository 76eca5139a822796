package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shipnology/shipnology-backend/pkg/logger"
)

// maxDeliveryAttempts is how many x-death rounds a message gets before it stays in the DLX
const maxDeliveryAttempts = 3

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// outcome is what happens to a delivery once it has been handled
type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDeadLetter
)

func (o outcome) String() string {
	switch o {
	case outcomeAck:
		return "ack"
	case outcomeRequeue:
		return "requeue"
	default:
		return "dead-letter"
	}
}

// Consumer dispatches the events of one durable queue to handlers by type
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	handlers  map[string]MessageHandler
	logger    *logger.Logger
}

// NewConsumer declares queueName and returns a consumer on it
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	return newConsumer(rmq, queueName, log), nil
}

func newConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) *Consumer {
	return &Consumer{
		rmq:       rmq,
		queueName: queueName,
		handlers:  make(map[string]MessageHandler),
		logger:    &logger.Logger{Logger: log.WithComponent("consumer").With().Str("queue", queueName).Logger()},
	}
}

// Subscribe binds the queue to exchange for routingKeyPattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")
	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start consumes in a goroutine until ctx is done or the channel closes
func (c *Consumer) Start(ctx context.Context) error {
	tag := c.queueName + "-consumer"
	msgs, err := c.rmq.Channel().Consume(c.queueName, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				if err := c.rmq.Channel().Cancel(tag, false); err != nil {
					c.logger.Warn().Err(err).Msg("failed to cancel consumer")
				}
				c.logger.Info().Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("message channel closed")
					return
				}
				c.settle(msg, c.dispatch(ctx, msg.Body, retryCount(msg.Headers)))
			}
		}
	}()

	return nil
}

func (c *Consumer) settle(msg amqp.Delivery, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = msg.Ack(false)
	case outcomeRequeue:
		err = msg.Nack(false, true)
	default:
		err = msg.Reject(false)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("outcome", o.String()).Msg("failed to settle delivery")
	}
}

// dispatch decodes body and runs the matching handler. Undecodable messages
// go straight to the dead letter exchange; failing ones are requeued until
// they have been retried maxDeliveryAttempts times.
func (c *Consumer) dispatch(ctx context.Context, body []byte, retries int) outcome {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		return outcomeDeadLetter
	}

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		return outcomeAck
	}

	log := c.logger.With().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Logger()
	log.Debug().Msg("processing event")

	if err := handler(WithCorrelationID(ctx, event.CorrelationID), &event); err != nil {
		if retries >= maxDeliveryAttempts {
			log.Error().Err(err).Int("retry_count", retries).Msg("max retries exceeded, sending to DLQ")
			return outcomeDeadLetter
		}
		log.Warn().Err(err).Int("retry_count", retries).Msg("failed to process event, requeueing")
		return outcomeRequeue
	}
	return outcomeAck
}

// retryCount reads how often the broker already dead-lettered the message
func retryCount(headers amqp.Table) int {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	for _, death := range deaths {
		if d, ok := death.(amqp.Table); ok {
			if count, ok := d["count"].(int64); ok {
				return int(count)
			}
		}
	}
	return 0
}
