// Package consumers keeps the registry in step with events emitted by tenant-side services
package consumers

import (
	"context"
	"fmt"
	"time"

	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/shipnology/shipnology-backend/pkg/messaging"
)

// QueueSessionEvents is the durable queue of this service on the tenant exchange
const QueueSessionEvents = "provisioning-service.tenant-sessions"

// ConnectionTracker records the latest session per tenant database
type ConnectionTracker interface {
	TouchLastConnection(ctx context.Context, databaseName string, at time.Time) (bool, error)
}

// SessionEventHandler stamps last_connection_at (testable without RabbitMQ)
type SessionEventHandler struct {
	tracker ConnectionTracker
	logger  *logger.Logger
}

// NewSessionEventHandler creates the handler
func NewSessionEventHandler(tracker ConnectionTracker, log *logger.Logger) *SessionEventHandler {
	return &SessionEventHandler{
		tracker: tracker,
		logger:  log.WithComponent("session-consumer"),
	}
}

// HandleEvent dispatches on the event type
func (h *SessionEventHandler) HandleEvent(ctx context.Context, event *messaging.Event) error {
	switch event.Type {
	case messaging.EventTenantSessionStarted:
		return h.handleSessionStarted(ctx, event)
	default:
		h.logger.Warn().Str("event_type", event.Type).Msg("unknown event type received")
		return nil
	}
}

func (h *SessionEventHandler) handleSessionStarted(ctx context.Context, event *messaging.Event) error {
	var data messaging.TenantSessionStartedEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal TenantSessionStartedEvent")
		return err
	}

	if data.DatabaseName == "" {
		// redelivery would not fix a malformed payload
		h.logger.Warn().Str("event_id", event.ID).Msg("tenant.session.started without database name, dropping")
		return nil
	}

	at := data.StartedAt
	if at.IsZero() {
		at = event.Timestamp
	}

	updated, err := h.tracker.TouchLastConnection(ctx, data.DatabaseName, at)
	if err != nil {
		return fmt.Errorf("failed to record connection for %s: %w", data.DatabaseName, err)
	}

	if !updated {
		h.logger.Debug().
			Str("database", data.DatabaseName).
			Time("started_at", at).
			Msg("session ignored, unknown tenant or older than the recorded one")
		return nil
	}

	h.logger.Debug().
		Str("database", data.DatabaseName).
		Int64("user_id", data.UserID).
		Time("started_at", at).
		Msg("last connection recorded")
	return nil
}

// SessionEventConsumer consumes tenant.session.started from the tenant exchange
type SessionEventConsumer struct {
	consumer *messaging.Consumer
	handler  *SessionEventHandler
}

// NewSessionEventConsumer declares the queue, binds it and registers the handler
func NewSessionEventConsumer(rmq *messaging.RabbitMQ, tracker ConnectionTracker, log *logger.Logger) (*SessionEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, QueueSessionEvents, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeTenantEvents, "tenant.session.#"); err != nil {
		return nil, err
	}

	handler := NewSessionEventHandler(tracker, log)
	consumer.RegisterHandler(messaging.EventTenantSessionStarted, handler.handleSessionStarted)

	return &SessionEventConsumer{consumer: consumer, handler: handler}, nil
}

// Start starts consuming messages
func (c *SessionEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}
