package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/takeout/pkg/config"
	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const RoutingOrderPlaced = "order.placed"

// OrderPlaced is published once an order is committed.
type OrderPlaced struct {
	OrderID   string          `json:"order_id"`
	UserID    int64           `json:"user_id"`
	Consignee string          `json:"consignee"`
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	LineCount int             `json:"line_count"` // order lines, not units
	OrderTime time.Time       `json:"order_time"`
}

// Publisher publishes order events to a topic exchange
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

func NewPublisher(cfg *config.RabbitMQConfig, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	return &Publisher{
		conn:     conn,
		ch:       ch,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

func (p *Publisher) PublishOrderPlaced(ctx context.Context, evt *OrderPlaced) error {
	msg, err := newPublishing(evt)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingOrderPlaced, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", RoutingOrderPlaced, err)
	}
	p.logger.Debug("Published order event",
		zap.String("routing_key", RoutingOrderPlaced),
		zap.String("order_id", evt.OrderID))
	return nil
}

func newPublishing(evt *OrderPlaced) (amqp091.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    evt.OrderID,
		Timestamp:    time.Now(),
		Body:         body,
	}, nil
}

func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.logger.Warn("Failed to close channel", zap.Error(err))
	}
	return p.conn.Close()
}
