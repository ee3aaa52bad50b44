package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	"github.com/teleos-scientific/tlink-backend/pkg/logger"
	"github.com/teleos-scientific/tlink-backend/pkg/mailer"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox/idempotency"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox/payloads"
)

type fakeIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{keys: make(map[string]string)}
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = value
	return true, nil
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("tlink:idempotency:%s:%s", scope, id)
}

type fakeSender struct {
	sent []mailer.Message
	fail error
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestConsumer(t *testing.T, mail *fakeSender) *Consumer {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "notification-worker-test"})
	manager, err := idempotency.NewManager(newFakeIdempotencyStore(), time.Hour)
	require.NoError(t, err)
	return &Consumer{
		mail:        mail,
		idempotency: manager,
		logg:        logg,
	}
}

func emailMessage(t *testing.T, payload payloads.NotificationEmailQueuedEvent) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:         uuid.New().String(),
		Data:       envelope,
		Attributes: map[string]string{"event_type": string(enums.EventNotificationEmailQueued)},
	}
}

func TestProcessDeliversEmail(t *testing.T) {
	mail := &fakeSender{}
	consumer := newTestConsumer(t, mail)

	msg := emailMessage(t, payloads.NotificationEmailQueuedEvent{
		ShipmentID: uuid.New(),
		Template:   "shipment_shipped",
		Recipients: []string{"vasquez@example.org"},
		Subject:    "Shipment TL-000417 is on its way",
		Variables: map[string]string{
			"shipment_number": "TL-000417",
			"tracking_number": "794612345678",
		},
	})

	result := consumer.process(context.Background(), msg)
	assert.True(t, result.ack)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "vasquez@example.org", mail.sent[0].To)
	assert.Contains(t, mail.sent[0].TextBody, "794612345678")
}

func TestProcessDeduplicatesByEventID(t *testing.T) {
	mail := &fakeSender{}
	consumer := newTestConsumer(t, mail)

	msg := emailMessage(t, payloads.NotificationEmailQueuedEvent{
		ShipmentID: uuid.New(),
		Template:   "shipment_requested",
		Recipients: []string{"vasquez@example.org"},
		Subject:    "Shipment received",
		Variables:  map[string]string{"shipment_number": "TL-000417"},
	})

	first := consumer.process(context.Background(), msg)
	second := consumer.process(context.Background(), msg)
	assert.True(t, first.ack)
	assert.True(t, second.ack)
	assert.Len(t, mail.sent, 1)
}

func TestProcessNacksOnSendFailure(t *testing.T) {
	mail := &fakeSender{fail: fmt.Errorf("provider unavailable")}
	consumer := newTestConsumer(t, mail)

	msg := emailMessage(t, payloads.NotificationEmailQueuedEvent{
		ShipmentID: uuid.New(),
		Template:   "shipment_cancelled",
		Recipients: []string{"vasquez@example.org"},
		Subject:    "Shipment cancelled",
		Variables:  map[string]string{"shipment_number": "TL-000417"},
	})

	result := consumer.process(context.Background(), msg)
	assert.True(t, result.nack)

	// The idempotency marker is released so a redelivery can retry.
	mail.fail = nil
	result = consumer.process(context.Background(), msg)
	assert.True(t, result.ack)
	assert.Len(t, mail.sent, 1)
}

func TestProcessSkipsOtherEvents(t *testing.T) {
	mail := &fakeSender{}
	consumer := newTestConsumer(t, mail)

	msg := &pubsub.Message{
		ID:         uuid.New().String(),
		Data:       []byte(`{}`),
		Attributes: map[string]string{"event_type": string(enums.EventShipmentStatusChanged)},
	}

	result := consumer.process(context.Background(), msg)
	assert.True(t, result.ack)
	assert.Empty(t, mail.sent)
}

func TestProcessDropsUnknownTemplate(t *testing.T) {
	mail := &fakeSender{}
	consumer := newTestConsumer(t, mail)

	msg := emailMessage(t, payloads.NotificationEmailQueuedEvent{
		ShipmentID: uuid.New(),
		Template:   "totally-unknown",
		Recipients: []string{"vasquez@example.org"},
		Subject:    "???",
	})

	result := consumer.process(context.Background(), msg)
	assert.True(t, result.ack)
	assert.Empty(t, mail.sent)
}
