package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionBody(t *testing.T) []byte {
	t.Helper()
	event, err := NewEvent(EventTenantSessionStarted, "erp", "corr-9", TenantSessionStartedEvent{DatabaseName: "acme_freight", UserID: 4})
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestConsumer_Dispatch(t *testing.T) {
	t.Run("acks a handled event and passes the correlation id", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		var corr string
		c.RegisterHandler(EventTenantSessionStarted, func(ctx context.Context, e *Event) error {
			corr = CorrelationID(ctx)
			return nil
		})

		assert.Equal(t, outcomeAck, c.dispatch(context.Background(), sessionBody(t), 0))
		assert.Equal(t, "corr-9", corr)
	})

	t.Run("acks events nobody handles", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		assert.Equal(t, outcomeAck, c.dispatch(context.Background(), sessionBody(t), 0))
	})

	t.Run("dead-letters garbage", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		assert.Equal(t, outcomeDeadLetter, c.dispatch(context.Background(), []byte("{"), 0))
	})

	t.Run("requeues a failure until retries run out", func(t *testing.T) {
		c := newConsumer(nil, "q", logger.Nop())
		c.RegisterHandler(EventTenantSessionStarted, func(context.Context, *Event) error {
			return errors.New("registry down")
		})

		assert.Equal(t, outcomeRequeue, c.dispatch(context.Background(), sessionBody(t), 1))
		assert.Equal(t, outcomeDeadLetter, c.dispatch(context.Background(), sessionBody(t), maxDeliveryAttempts))
	})
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 0, retryCount(amqp.Table{"x-death": "bogus"}))
	assert.Equal(t, 2, retryCount(amqp.Table{
		"x-death": []interface{}{amqp.Table{"count": int64(2), "queue": "q"}},
	}))
}

func TestEvent_Publishing(t *testing.T) {
	event, err := NewEvent(EventOrganisationCreated, "provisioning-service", "corr-1", OrganisationCreatedEvent{OrganisationID: 1})
	require.NoError(t, err)

	msg, err := event.publishing()
	require.NoError(t, err)

	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, event.ID, msg.MessageId)
	assert.Equal(t, EventOrganisationCreated, msg.Type)
	assert.Equal(t, "provisioning-service", msg.AppId)
	assert.Equal(t, "corr-1", msg.CorrelationId)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
}
