package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ChannelOpener returns a fresh channel with the product topology declared.
type ChannelOpener func(ctx context.Context) (*amqp.Channel, error)

// Publisher sends ProductCreated events. The channel is opened lazily and
// reopened when the broker closes it.
type Publisher struct {
	mu     sync.Mutex
	ch     channelPublisher
	open   func(ctx context.Context) (channelPublisher, error)
	tracer trace.Tracer
}

func NewPublisher(open ChannelOpener) *Publisher {
	return newPublisher(func(ctx context.Context) (channelPublisher, error) {
		ch, err := open(ctx)
		if err != nil {
			return nil, err
		}
		return ch, nil
	})
}

func newPublisher(open func(ctx context.Context) (channelPublisher, error)) *Publisher {
	return &Publisher{open: open, tracer: otel.Tracer("github.com/rl1809/nexus-shop/internal/adapter/messaging")}
}

// Connect opens the first channel so startup fails fast without a broker.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.channel(ctx)
	return err
}

func (p *Publisher) PublishProductCreated(ctx context.Context, event domain.ProductCreatedEvent) error {
	ctx, span := p.tracer.Start(ctx, domain.ProductExchange+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", domain.ProductExchange),
			attribute.String("messaging.rabbitmq.destination.routing_key", domain.ProductCreatedRoutingKey),
			attribute.String("sku", event.SkuCode),
		),
	)
	defer span.End()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	msg := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, msg)
	if errors.Is(err, amqp.ErrClosed) {
		// one retry on a fresh channel
		err = p.publish(ctx, msg)
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish %s: %w", domain.ProductCreatedRoutingKey, err)
	}
	return nil
}

// publish must be called with p.mu held.
func (p *Publisher) publish(ctx context.Context, msg amqp.Publishing) error {
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		domain.ProductExchange,
		domain.ProductCreatedRoutingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
	if errors.Is(err, amqp.ErrClosed) {
		p.ch = nil
	}
	return err
}

func (p *Publisher) channel(ctx context.Context) (channelPublisher, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p.ch = ch
	return ch, nil
}
