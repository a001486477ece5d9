package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/nexus-shop/internal/core/domain"
	"github.com/rl1809/nexus-shop/internal/observability"
	"github.com/rl1809/nexus-shop/internal/port"
)

// ProductService is the catalog CRUD with a read-through cache in front of
// the document store. Creation is announced on the bus.
type ProductService struct {
	repo      port.ProductRepository
	cache     port.ProductCache
	publisher port.EventPublisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

func NewProductService(
	repo port.ProductRepository,
	cache port.ProductCache,
	publisher port.EventPublisher,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer(instrumentationName),
	}
}

func (s *ProductService) GetByID(ctx context.Context, id string) (resp *domain.ProductResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.GetByID", trace.WithAttributes(attribute.String("product.id", id)))
	defer func() { endSpan(span, err) }()

	return s.cache.GetOrLoad(ctx, id, func(ctx context.Context) (*domain.ProductResponse, error) {
		p, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		r := domain.NewProductResponse(*p)
		return &r, nil
	})
}

// Create stores the product and publishes ProductCreated. A failed
// publish is logged and does not fail the create; the inventory init
// endpoint is the recovery path for such products.
func (s *ProductService) Create(ctx context.Context, req domain.ProductRequest) (resp *domain.ProductResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Create")
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var p domain.Product
	req.Apply(&p)
	saved, err := s.repo.Insert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	span.SetAttributes(attribute.String("product.id", saved.ID))

	event := domain.ProductCreatedEvent{SkuCode: saved.ID, Title: saved.Title}
	pubErr := s.publisher.PublishProductCreated(ctx, event)
	s.metrics.EventPublished(pubErr)
	if pubErr != nil {
		span.RecordError(pubErr)
		s.logger.Error("failed to publish product created event",
			zap.String("product_id", saved.ID), zap.Error(pubErr), traceField(ctx), requestIDField(ctx))
	} else {
		s.logger.Info("product created", zap.String("product_id", saved.ID), traceField(ctx), requestIDField(ctx))
	}

	r := domain.NewProductResponse(*saved)
	return &r, nil
}

// Update replaces the mutable fields and refreshes the cache entry with
// the stored result.
func (s *ProductService) Update(ctx context.Context, id string, req domain.ProductRequest) (resp *domain.ProductResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Update", trace.WithAttributes(attribute.String("product.id", id)))
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Apply(existing)

	updated, err := s.repo.Update(ctx, *existing)
	if err != nil {
		return nil, err
	}

	r := domain.NewProductResponse(*updated)
	if err := s.cache.Put(ctx, id, r); err != nil {
		s.logger.Warn("failed to refresh product cache", zap.String("product_id", id), zap.Error(err))
	}
	return &r, nil
}

func (s *ProductService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Delete", trace.WithAttributes(attribute.String("product.id", id)))
	defer func() { endSpan(span, err) }()

	deleted, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}

	if err := s.cache.Evict(ctx, id); err != nil {
		s.logger.Warn("failed to evict product cache", zap.String("product_id", id), zap.Error(err))
	}
	return nil
}

// List reads straight from the store.
func (s *ProductService) List(ctx context.Context, req domain.PageRequest) (page domain.Page[domain.ProductResponse], err error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.List",
		trace.WithAttributes(attribute.Int("page.number", req.Number), attribute.Int("page.size", req.Size)))
	defer func() { endSpan(span, err) }()

	products, total, err := s.repo.FindPage(ctx, req)
	if err != nil {
		return page, err
	}
	return domain.MapPage(domain.NewPage(products, req, total), domain.NewProductResponse), nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if !isExpected(err) {
			span.SetStatus(otelcodes.Error, err.Error())
		}
	}
	span.End()
}
