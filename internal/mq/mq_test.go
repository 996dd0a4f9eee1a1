package mq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/events"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func newTestPublisher(ch *fakeChannel) *Publisher {
	return &Publisher{
		withChannel: func(_ context.Context, fn func(channel) error) error { return fn(ch) },
		logger:      slog.Default(),
	}
}

func TestPublisher_Routes(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)
	ctx := context.Background()

	require.NoError(t, p.PublishProgress(ctx, events.Progress{SessionID: "s1", Completed: 1, Total: 3}))
	require.NoError(t, p.PublishStageChanged(ctx, events.StageChange{SessionID: "s1", From: domain.StageIdle, To: domain.StageClassifying}))
	require.NoError(t, p.PublishHITLCreated(ctx, events.HITLCreated{SessionID: "s1", Item: domain.HITLItem{ID: "h1"}}))
	require.NoError(t, p.PublishDecision(ctx, "s1", domain.HITLDecision{ItemID: "h1", Action: domain.ActionApprove}))

	require.Len(t, ch.sent, 4)
	assert.Equal(t, string(ExchangeEvents), ch.sent[0].exchange)
	assert.Equal(t, string(RoutingKeyProgress), ch.sent[0].key)
	assert.Equal(t, string(RoutingKeyStageChanged), ch.sent[1].key)
	assert.Equal(t, string(RoutingKeyHITLCreated), ch.sent[2].key)
	assert.Equal(t, string(ExchangeDecisions), ch.sent[3].exchange)
	assert.Equal(t, amqp.Persistent, ch.sent[3].msg.DeliveryMode)
	assert.Equal(t, string(MessageTypeDecision), ch.sent[3].msg.Type)

	var msg Message
	require.NoError(t, json.Unmarshal(ch.sent[3].msg.Body, &msg))
	payload, err := ParsePayload[DecisionPayload](&msg)
	require.NoError(t, err)
	assert.Equal(t, "s1", payload.SessionID)
	assert.Equal(t, domain.ActionApprove, payload.Decision.Action)
}

func TestEventPublisher_SwallowsErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	sink := NewEventPublisher(newTestPublisher(ch), time.Second, nil)

	assert.NotPanics(t, func() {
		sink.OnStageChange(events.StageChange{SessionID: "s1"})
	})
}

type ackRecorder struct {
	acked, nacked, requeued int
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked++; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}
func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func decisionBody(t *testing.T, msgType MessageType, payload any) []byte {
	t.Helper()
	body, err := json.Marshal(Message{ID: "m1", Type: msgType, Payload: payload, Timestamp: time.Now()})
	require.NoError(t, err)
	return body
}

func TestConsumer_HandleDelivery(t *testing.T) {
	valid := DecisionPayload{SessionID: "s1", Decision: domain.HITLDecision{ItemID: "h1", Action: domain.ActionApprove}}

	tests := []struct {
		name        string
		body        []byte
		applyErr    error
		wantAck     int
		wantNack    int
		wantRequeue int
	}{
		{"applied", decisionBody(t, MessageTypeDecision, valid), nil, 1, 0, 0},
		{"transient failure requeues", decisionBody(t, MessageTypeDecision, valid), errors.New("session busy"), 0, 1, 1},
		{"permanent failure dead-letters", decisionBody(t, MessageTypeDecision, valid), Permanent(errors.New("item not found")), 0, 1, 0},
		{"wrong type dead-letters", decisionBody(t, MessageTypeProgress, valid), nil, 0, 1, 0},
		{"missing session dead-letters", decisionBody(t, MessageTypeDecision, DecisionPayload{}), nil, 0, 1, 0},
		{"garbage dead-letters", []byte("{"), nil, 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []DecisionPayload
			c := &Consumer{
				logger: slog.Default(),
				queue:  string(QueueHITLDecisions),
				handler: DecisionHandler(func(_ context.Context, p DecisionPayload) error {
					got = append(got, p)
					return tt.applyErr
				}),
			}
			ack := &ackRecorder{}

			c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: tt.body})

			assert.Equal(t, tt.wantAck, ack.acked)
			assert.Equal(t, tt.wantNack, ack.nacked)
			assert.Equal(t, tt.wantRequeue, ack.requeued)
			if tt.wantAck == 1 {
				require.Len(t, got, 1)
				assert.Equal(t, "h1", got[0].Decision.ItemID)
			}
		})
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("boom")
	err := Permanent(base)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}
