package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/events"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeProgress     MessageType = "session.progress"
	MessageTypeStageChanged MessageType = "session.stage_changed"
	MessageTypeHITLCreated  MessageType = "hitl.created"
	MessageTypeDecision     MessageType = "hitl.decision"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// DecisionPayload — решение человека по элементу очереди сессии.
type DecisionPayload struct {
	SessionID string              `json:"session_id"`
	Decision  domain.HITLDecision `json:"decision"`
}

// channel — часть amqp.Channel, нужная для публикации.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	withChannel func(ctx context.Context, fn func(ch channel) error) error
	logger      *slog.Logger
}

// NewPublisher создаёт Publisher поверх соединения.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		withChannel: func(ctx context.Context, fn func(ch channel) error) error {
			return conn.WithChannel(ctx, func(ch *amqp.Channel) error { return fn(ch) })
		},
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.withChannel(ctx, func(ch channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJSON публикует произвольный payload в новом конверте.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, exchange, routingKey, msg)
}

// PublishProgress публикует завершение элемента стадии.
func (p *Publisher) PublishProgress(ctx context.Context, e events.Progress) error {
	return p.PublishJSON(ctx, ExchangeEvents, RoutingKeyProgress, MessageTypeProgress, e)
}

// PublishStageChanged публикует переход между стадиями.
func (p *Publisher) PublishStageChanged(ctx context.Context, e events.StageChange) error {
	return p.PublishJSON(ctx, ExchangeEvents, RoutingKeyStageChanged, MessageTypeStageChanged, e)
}

// PublishHITLCreated публикует новый элемент ручной проверки.
func (p *Publisher) PublishHITLCreated(ctx context.Context, e events.HITLCreated) error {
	return p.PublishJSON(ctx, ExchangeEvents, RoutingKeyHITLCreated, MessageTypeHITLCreated, e)
}

// PublishDecision ставит решение человека в очередь hitl.decisions.
// Потребитель: DecisionConsumer.
func (p *Publisher) PublishDecision(ctx context.Context, sessionID string, d domain.HITLDecision) error {
	payload := DecisionPayload{SessionID: sessionID, Decision: d}
	return p.PublishJSON(ctx, ExchangeDecisions, RoutingKeyDecision, MessageTypeDecision, payload)
}
