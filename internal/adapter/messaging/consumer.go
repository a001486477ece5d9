package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

type ProductCreatedHandler interface {
	Handle(ctx context.Context, event domain.ProductCreatedEvent)
}

// Consumer delivers ProductCreated messages to a handler. Every delivery it
// starts is acknowledged after handling, including ones that fail to
// decode. Deliveries that arrive after shutdown are requeued.
type Consumer struct {
	ch       *amqp.Channel
	queue    string
	handler  ProductCreatedHandler
	prefetch int
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewConsumer(ch *amqp.Channel, handler ProductCreatedHandler, prefetch int, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		ch:       ch,
		queue:    domain.ProductCreatedQueue,
		handler:  handler,
		prefetch: prefetch,
		logger:   logger,
		tracer:   otel.Tracer("github.com/rl1809/nexus-shop/internal/adapter/messaging"),
	}
}

// Run blocks until ctx is done or the broker closes the delivery stream.
func (c *Consumer) Run(ctx context.Context) error {
	if c.prefetch > 0 {
		if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("could not set qos: %w", err)
		}
	}

	msgs, err := c.ch.ConsumeWithContext(ctx,
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("could not start consume: %w", err)
	}

	c.logger.Info("consuming product events", zap.String("queue", c.queue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery channel closed by broker")
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch requeues a delivery that arrives after shutdown began instead of
// starting work that would be cut short.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	if ctx.Err() != nil {
		if err := d.Nack(false, true); err != nil {
			c.logger.Warn("failed to requeue delivery", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
		}
		return
	}
	c.deliver(ctx, d)
}

// deliver runs the handler to completion even if ctx is cancelled midway,
// so an acked message always had its work done.
func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	ctx = otel.GetTextMapPropagator().Extract(context.WithoutCancel(ctx), headerCarrier(d.Headers))
	ctx, span := c.tracer.Start(ctx, c.queue+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.message.id", d.MessageId),
		),
	)
	defer span.End()

	var event domain.ProductCreatedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		span.RecordError(err)
		c.logger.Error("dropping undecodable product event",
			zap.String("message_id", d.MessageId), zap.Error(err))
	} else {
		c.handler.Handle(ctx, event)
	}

	if err := d.Ack(false); err != nil {
		c.logger.Warn("failed to ack delivery", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
	}
}
