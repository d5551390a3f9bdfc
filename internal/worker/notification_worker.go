package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/telegram-shop-bot/internal/dto"
	"github.com/flicky/telegram-shop-bot/internal/metrics"
	"github.com/flicky/telegram-shop-bot/internal/model"
	"github.com/flicky/telegram-shop-bot/internal/repository"
	"github.com/flicky/telegram-shop-bot/internal/service"
	"github.com/flicky/telegram-shop-bot/internal/view"
)

const idempotencyTTL = 24 * time.Hour

// Sender delivers a rendered message to the operator chat.
type Sender interface {
	SendMessage(ctx context.Context, reply dto.Reply) error
}

// ProductResolver looks products up by id including deactivated ones.
type ProductResolver interface {
	Resolve(ctx context.Context, id int64) (*model.Product, error)
}

// Consumer is the part of *amqp.Channel the worker reads from.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// NotificationWorker tells the operator chat about new orders. Failures
// here never touch the committed order.
type NotificationWorker struct {
	channel        Consumer
	orderRepo      repository.OrderRepository
	products       ProductResolver
	sender         Sender
	redisClient    *redis.Client
	operatorChatID int64
	metrics        *metrics.Metrics
	log            *slog.Logger
	done           chan struct{}
	stopped        chan struct{}
}

func NewNotificationWorker(
	ch Consumer,
	orderRepo repository.OrderRepository,
	products ProductResolver,
	sender Sender,
	redisClient *redis.Client,
	operatorChatID int64,
	m *metrics.Metrics,
	log *slog.Logger,
) *NotificationWorker {
	return &NotificationWorker{
		channel:        ch,
		orderRepo:      orderRepo,
		products:       products,
		sender:         sender,
		redisClient:    redisClient,
		operatorChatID: operatorChatID,
		metrics:        m,
		log:            log,
		done:           make(chan struct{}),
	}
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(orderCreatedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	w.stopped = make(chan struct{})
	go func() {
		defer close(w.stopped)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("notification worker started", "operator_configured", w.operatorChatID != 0)
	return nil
}

// Stop ends the consume loop and waits for the message in flight, if any.
func (w *NotificationWorker) Stop() {
	close(w.done)
	if w.stopped != nil {
		<-w.stopped
	}
}

func (w *NotificationWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var evt model.OrderCreatedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		w.log.Error("unmarshal order event", "error", err)
		w.count("failed")
		_ = msg.Nack(false, false)
		return
	}

	if err := w.Notify(ctx, evt); err != nil {
		w.log.Error("notify operator", "error", err, "order_id", evt.OrderID)
		_ = msg.Nack(false, false) // → DLQ
		return
	}
	_ = msg.Ack(false)
}

// Notify renders and sends the operator summary for one order. It is a
// no-op when no operator chat is configured or the order was already sent.
// Every call is counted once in notifications_total.
func (w *NotificationWorker) Notify(ctx context.Context, evt model.OrderCreatedEvent) error {
	result, err := w.notify(ctx, evt)
	if err != nil {
		w.count("failed")
		return err
	}
	w.count(result)
	return nil
}

func (w *NotificationWorker) notify(ctx context.Context, evt model.OrderCreatedEvent) (string, error) {
	if w.operatorChatID == 0 {
		return "skipped", nil
	}
	log := w.log.With("order_id", evt.OrderID, "user_id", evt.UserID)

	key := "order_notified:" + evt.OrderID.String()
	if w.redisClient != nil {
		exists, err := w.redisClient.Exists(ctx, key).Result()
		if err != nil {
			return "", fmt.Errorf("check idempotency key: %w", err)
		}
		if exists > 0 {
			log.Info("order already notified, skipping")
			return "duplicate", nil
		}
	}

	order, err := w.orderRepo.GetByID(ctx, evt.OrderID)
	if err != nil {
		return "", fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return "", fmt.Errorf("order not found: %s", evt.OrderID)
	}

	titles, err := w.titles(ctx, order.Items)
	if err != nil {
		return "", err
	}
	if err := w.sender.SendMessage(ctx, view.OrderNotification(w.operatorChatID, order, titles)); err != nil {
		return "", fmt.Errorf("send notification: %w", err)
	}

	if w.redisClient != nil {
		if err := w.redisClient.Set(ctx, key, "1", idempotencyTTL).Err(); err != nil {
			log.Error("set idempotency key", "error", err)
		}
	}
	log.Info("operator notified")
	return "sent", nil
}

func (w *NotificationWorker) titles(ctx context.Context, items []model.OrderItem) (map[int64]string, error) {
	titles := make(map[int64]string, len(items))
	for _, item := range items {
		p, err := w.products.Resolve(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, service.ErrProductNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolve product %d: %w", item.ProductID, err)
		}
		titles[p.ID] = p.Title
	}
	return titles, nil
}

func (w *NotificationWorker) count(result string) {
	if w.metrics != nil {
		w.metrics.Notifications.WithLabelValues(result).Inc()
	}
}

