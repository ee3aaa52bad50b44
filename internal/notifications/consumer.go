package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	"github.com/teleos-scientific/tlink-backend/pkg/logger"
	"github.com/teleos-scientific/tlink-backend/pkg/mailer"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox/idempotency"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox/payloads"
)

const emailConsumer = "shipment-emails"

type sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Consumer drains queued shipment emails from the notification subscription
// and delivers them through the mail provider.
type Consumer struct {
	mail         sender
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds an email notification consumer.
func NewConsumer(mail sender, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if mail == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		mail:         mail,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventNotificationEmailQueued) {
		c.logg.Info(logCtx, "skipping non-email event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, emailConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	var payload payloads.NotificationEmailQueuedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, emailConsumer, eventID)
		return processResult{nack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"shipment_id": payload.ShipmentID.String(),
		"template":    payload.Template,
	})

	if err := c.deliver(ctx, payload, logCtx); err != nil {
		c.logg.Error(logCtx, "email delivery failed", err)
		_ = c.idempotency.Delete(ctx, emailConsumer, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) deliver(ctx context.Context, payload payloads.NotificationEmailQueuedEvent, logCtx context.Context) error {
	if len(payload.Recipients) == 0 {
		c.logg.Warn(logCtx, "email event has no recipients")
		return nil
	}

	rendered, err := Render(payload.Template, payload.Variables)
	if err != nil {
		// Unknown template: drop rather than retry forever.
		c.logg.Warn(logCtx, "dropping email with unknown template")
		return nil
	}

	// Attempt every recipient before failing; failures are combined.
	var sendErr error
	for _, recipient := range payload.Recipients {
		err := c.mail.Send(ctx, mailer.Message{
			To:       []string{recipient},
			Subject:  payload.Subject,
			HTMLBody: rendered.HTMLBody,
			TextBody: rendered.TextBody,
		})
		sendErr = multierr.Append(sendErr, err)
	}
	if sendErr != nil {
		return sendErr
	}
	c.logg.Info(logCtx, "shipment email delivered")
	return nil
}
