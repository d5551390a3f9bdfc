package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/telegram-shop-bot/internal/model"
)

const (
	orderCreatedQueue = "orders.created"
	dlxExchange       = "orders.created.dlx"
	dlqQueueName      = "orders.created.dlq"
)

// SetupRabbitMQ declares the order event queue and its dead-letter queue.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, orderCreatedQueue, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(orderCreatedQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": orderCreatedQueue,
	}); err != nil {
		return fmt.Errorf("declare order queue: %w", err)
	}
	return nil
}

// Publisher puts order events on the notification queue.
type Publisher struct {
	channel *amqp.Channel
}

func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{channel: ch}
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, evt model.OrderCreatedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, "", orderCreatedQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.OrderID.String(),
	})
	if err != nil {
		return fmt.Errorf("publish order created: %w", err)
	}
	return nil
}
