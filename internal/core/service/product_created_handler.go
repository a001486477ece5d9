package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/nexus-shop/internal/core/domain"
	"github.com/rl1809/nexus-shop/internal/observability"
)

type StockInitializer interface {
	InitStock(ctx context.Context, sku string) error
}

// ProductCreatedHandler turns ProductCreated deliveries into stock rows.
// Failures are logged and never returned to the transport: InitStock is
// idempotent, so a replay of the same event is harmless and a poisoned
// message must not block the queue.
type ProductCreatedHandler struct {
	stock   StockInitializer
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewProductCreatedHandler(stock StockInitializer, logger *zap.Logger, metrics *observability.Metrics) *ProductCreatedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductCreatedHandler{stock: stock, logger: logger, metrics: metrics}
}

func (h *ProductCreatedHandler) Handle(ctx context.Context, event domain.ProductCreatedEvent) {
	err := h.stock.InitStock(ctx, event.SkuCode)
	h.metrics.EventConsumed(err)
	if err != nil {
		h.logger.Error("failed to initialize inventory from product event",
			zap.String("sku", event.SkuCode),
			zap.String("title", event.Title),
			zap.Error(err),
			traceField(ctx),
		)
		return
	}
	h.logger.Info("inventory initialized from product event",
		zap.String("sku", event.SkuCode),
		traceField(ctx),
	)
}
