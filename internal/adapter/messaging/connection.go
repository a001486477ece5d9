// Package messaging carries ProductCreated events over RabbitMQ.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

const (
	dialAttempts = 5
	dialBackoff  = 2 * time.Second
)

// Dial retries for a while so the services can start alongside the broker.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("failed to connect to RabbitMQ", zap.Int("attempt", i+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
}

// Session owns one broker connection and redials it when the broker has
// closed it.
type Session struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewSession(url string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{url: url, logger: logger}
}

// Channel opens a channel on a live connection and declares the product
// topology on it.
func (s *Session) Channel(ctx context.Context) (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.conn.IsClosed() {
		if s.conn != nil {
			s.logger.Warn("rabbitmq connection lost, redialing")
		}
		conn, err := Dial(ctx, s.url, s.logger)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// DeclareTopology declares the product exchange and the durable queue the
// inventory service consumes from. Both sides call it; declarations are
// idempotent.
func DeclareTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		domain.ProductExchange,
		amqp.ExchangeDirect,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("could not declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		domain.ProductCreatedQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("could not declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, domain.ProductCreatedRoutingKey, domain.ProductExchange, false, nil); err != nil {
		return fmt.Errorf("could not bind queue: %w", err)
	}
	return nil
}

// headerCarrier adapts AMQP headers to the OpenTelemetry propagator API.
type headerCarrier amqp.Table

func (c headerCarrier) Get(key string) string {
	v, ok := c[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (c headerCarrier) Set(key, value string) {
	c[key] = value
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
