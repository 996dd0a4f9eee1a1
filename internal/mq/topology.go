package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeEvents    Exchange = "procura.events"
	ExchangeDecisions Exchange = "procura.decisions"
	ExchangeDLQ       Exchange = "procura.dlq"
)

// Queues.
const (
	QueueSessionEvents Queue = "session.events"
	QueueHITLCreated   Queue = "hitl.created"
	QueueHITLDecisions Queue = "hitl.decisions"
	QueueDLQDecisions  Queue = "dlq.decisions"
)

// Routing keys.
const (
	RoutingKeyProgress     RoutingKey = "session.progress"
	RoutingKeyStageChanged RoutingKey = "session.stage_changed"
	RoutingKeyHITLCreated  RoutingKey = "hitl.created"
	RoutingKeyDecision     RoutingKey = "decision"
	RoutingKeyDLQDecisions RoutingKey = "decisions"

	// routingKeySessionAll — все события сессии (topic wildcard).
	routingKeySessionAll RoutingKey = "session.*"
)

// declareTopology объявляет обменники, очереди и привязки Procura.
// Идемпотентна, вызывается при каждом подключении.
func declareTopology(ch *amqp.Channel) error {
	if err := declareExchanges(ch); err != nil {
		return err
	}
	if err := declareQueues(ch); err != nil {
		return err
	}
	return bindQueues(ch)
}

func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeEvents, "topic"},
		{ExchangeDecisions, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQDecisions),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueSessionEvents, nil},
		{QueueHITLCreated, nil},
		// решения, которые нельзя применить, уходят в dlq.decisions
		{QueueHITLDecisions, dlqArgs},
		{QueueDLQDecisions, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueSessionEvents, routingKeySessionAll, ExchangeEvents},
		{QueueHITLCreated, RoutingKeyHITLCreated, ExchangeEvents},
		{QueueHITLDecisions, RoutingKeyDecision, ExchangeDecisions},
		{QueueDLQDecisions, RoutingKeyDLQDecisions, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Procura RabbitMQ topology:

    procura.events (topic)
    ├── session.events [routing: session.*]
    │       progress and stage changes
    └── hitl.created [routing: hitl.created]
            review UI / notifications

    procura.decisions (direct)
    └── hitl.decisions [routing: decision]
            Consumer: procura-api (Resume)
            DLQ: dlq.decisions

    procura.dlq (direct)
    └── dlq.decisions [routing: decisions]
            manual processing
`
}
