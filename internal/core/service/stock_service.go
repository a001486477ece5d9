package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/nexus-shop/internal/core/domain"
	"github.com/rl1809/nexus-shop/internal/observability"
	"github.com/rl1809/nexus-shop/internal/port"
)

const instrumentationName = "github.com/rl1809/nexus-shop/internal/core/service"

// StockService applies stock changes through a StockRepository and never lets a
// quantity go below zero.
// It holds no locks of its own; all mutual exclusion happens in the store.
type StockService struct {
	repo    port.StockRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

func NewStockService(repo port.StockRepository, logger *zap.Logger, metrics *observability.Metrics) *StockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(instrumentationName),
	}
}

var (
	readOnly  = port.TxOptions{ReadOnly: true}
	readWrite = port.TxOptions{}
)

// GetStockStatus reports a zero view for a SKU that has no row.
func (s *StockService) GetStockStatus(ctx context.Context, sku string) (view domain.StockView, err error) {
	ctx, span := s.start(ctx, "get_status", attribute.String("sku", sku))
	defer func() { s.finish(ctx, span, "get_status", err) }()

	view = domain.EmptyStockView(sku)
	err = s.repo.WithinTx(ctx, readOnly, func(tx port.StockTx) error {
		inv, err := tx.FindBySku(ctx, sku)
		if err != nil {
			return err
		}
		if inv != nil {
			view = domain.NewStockView(*inv)
		}
		return nil
	})
	if err != nil {
		return domain.EmptyStockView(sku), err
	}
	return view, nil
}

// GetStockStatuses returns one view per existing row. Unknown SKUs are
// left out and the order is unspecified.
func (s *StockService) GetStockStatuses(ctx context.Context, skus []string) (views []domain.StockView, err error) {
	ctx, span := s.start(ctx, "get_statuses", attribute.Int("sku.count", len(skus)))
	defer func() { s.finish(ctx, span, "get_statuses", err) }()

	views = []domain.StockView{}
	if len(skus) == 0 {
		return views, nil
	}
	err = s.repo.WithinTx(ctx, readOnly, func(tx port.StockTx) error {
		rows, err := tx.FindAllBySku(ctx, skus)
		if err != nil {
			return err
		}
		for _, inv := range rows {
			views = append(views, domain.NewStockView(inv))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetDetails is the strict variant of GetStockStatus.
func (s *StockService) GetDetails(ctx context.Context, sku string) (view domain.StockView, err error) {
	ctx, span := s.start(ctx, "get_details", attribute.String("sku", sku))
	defer func() { s.finish(ctx, span, "get_details", err) }()

	err = s.repo.WithinTx(ctx, readOnly, func(tx port.StockTx) error {
		inv, err := tx.FindBySku(ctx, sku)
		if err != nil {
			return err
		}
		if inv == nil {
			return fmt.Errorf("inventory %s: %w", sku, domain.ErrNotFound)
		}
		view = domain.NewStockView(*inv)
		return nil
	})
	return view, err
}

// InitStock creates (sku, 0, 0) if absent. Concurrent callers all succeed;
// the unique index on sku decides which insert lands.
func (s *StockService) InitStock(ctx context.Context, sku string) (err error) {
	ctx, span := s.start(ctx, "init", attribute.String("sku", sku))
	defer func() { s.finish(ctx, span, "init", err) }()

	if err := validateSku(sku); err != nil {
		return err
	}

	return s.repo.WithinTx(ctx, readWrite, func(tx port.StockTx) error {
		_, err := tx.Insert(ctx, sku, 0)
		if errors.Is(err, domain.ErrDuplicateKey) {
			s.logger.Debug("inventory already initialized", zap.String("sku", sku))
			return nil
		}
		return err
	})
}

// AdjustStock adds a signed delta. Negative deltas consume stock and fail
// with ErrInsufficientStock rather than drive the balance below zero.
// The version is not touched.
func (s *StockService) AdjustStock(ctx context.Context, sku string, delta int) (err error) {
	ctx, span := s.start(ctx, "adjust", attribute.String("sku", sku), attribute.Int("delta", delta))
	defer func() { s.finish(ctx, span, "adjust", err) }()

	v := domain.NewValidationError()
	if strings.TrimSpace(sku) == "" {
		v.Add("skuCode", "must not be blank")
	}
	if delta > domain.MaxQuantity || delta < -domain.MaxQuantity {
		v.Add("quantity", fmt.Sprintf("must be between %d and %d", -domain.MaxQuantity, domain.MaxQuantity))
	}
	if err := v.OrNil(); err != nil {
		return err
	}

	return s.repo.WithinTx(ctx, readWrite, func(tx port.StockTx) error {
		return applyDelta(ctx, tx, sku, delta)
	})
}

// SetBalance overwrites the quantity if clientVersion still matches the
// stored version, then bumps the version.
func (s *StockService) SetBalance(ctx context.Context, sku string, quantity, clientVersion int) (view domain.StockView, err error) {
	ctx, span := s.start(ctx, "set_balance",
		attribute.String("sku", sku),
		attribute.Int("quantity", quantity),
		attribute.Int("version", clientVersion),
	)
	defer func() { s.finish(ctx, span, "set_balance", err) }()

	v := domain.NewValidationError()
	if strings.TrimSpace(sku) == "" {
		v.Add("skuCode", "must not be blank")
	}
	if quantity < 0 {
		v.Add("quantity", "must be greater than or equal to 0")
	} else if quantity > domain.MaxQuantity {
		v.Add("quantity", fmt.Sprintf("must be less than or equal to %d", domain.MaxQuantity))
	}
	if clientVersion < 0 || clientVersion >= domain.MaxQuantity {
		v.Add("version", fmt.Sprintf("must be between 0 and %d", domain.MaxQuantity-1))
	}
	if err := v.OrNil(); err != nil {
		return view, err
	}

	err = s.repo.WithinTx(ctx, readWrite, func(tx port.StockTx) error {
		inv, err := tx.FindBySkuForUpdate(ctx, sku)
		if err != nil {
			return err
		}
		if inv == nil {
			return fmt.Errorf("inventory %s: %w", sku, domain.ErrNotFound)
		}

		inv.Quantity = quantity
		inv.Version = clientVersion
		if err := tx.UpdateWithVersion(ctx, *inv); err != nil {
			return fmt.Errorf("inventory %s at version %d: %w", sku, clientVersion, err)
		}
		inv.Version = clientVersion + 1
		view = domain.NewStockView(*inv)
		return nil
	})
	return view, err
}

// CheckAvailability is advisory: it takes no locks and a later
// ReserveStock may still fail. Duplicate SKUs in items count once for the
// existence check but each item is compared against the stored quantity
// on its own.
func (s *StockService) CheckAvailability(ctx context.Context, items []domain.StockRequestItem) (err error) {
	ctx, span := s.start(ctx, "check", attribute.Int("item.count", len(items)))
	defer func() { s.finish(ctx, span, "check", err) }()

	if err := validateItems(items); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	return s.repo.WithinTx(ctx, readOnly, func(tx port.StockTx) error {
		skus := distinctSkus(items)
		rows, err := tx.FindAllBySku(ctx, skus)
		if err != nil {
			return err
		}
		if len(skus) > len(rows) {
			return fmt.Errorf("%d of %d skus: %w", len(skus)-len(rows), len(skus), domain.ErrNotFound)
		}

		bySku := make(map[string]domain.Inventory, len(rows))
		for _, inv := range rows {
			bySku[inv.SkuCode] = inv
		}
		for _, item := range items {
			inv, ok := bySku[item.SkuCode]
			if !ok {
				return fmt.Errorf("inventory %s: %w", item.SkuCode, domain.ErrNotFound)
			}
			if inv.Quantity < item.Qty() {
				return fmt.Errorf("inventory %s has %d, requested %d: %w",
					item.SkuCode, inv.Quantity, item.Qty(), domain.ErrInsufficientStock)
			}
		}
		return nil
	})
}

// ReserveStock decrements every item inside one transaction. The first
// failing item rolls the whole batch back.
func (s *StockService) ReserveStock(ctx context.Context, items []domain.StockRequestItem) (err error) {
	ctx, span := s.start(ctx, "reserve", attribute.Int("item.count", len(items)))
	defer func() { s.finish(ctx, span, "reserve", err) }()

	if err := validateItems(items); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	return s.repo.WithinTx(ctx, readWrite, func(tx port.StockTx) error {
		for _, item := range items {
			if err := applyDelta(ctx, tx, item.SkuCode, -item.Qty()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *StockService) DeleteInventory(ctx context.Context, sku string) (err error) {
	ctx, span := s.start(ctx, "delete", attribute.String("sku", sku))
	defer func() { s.finish(ctx, span, "delete", err) }()

	return s.repo.WithinTx(ctx, readWrite, func(tx port.StockTx) error {
		n, err := tx.DeleteBySku(ctx, sku)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("inventory %s: %w", sku, domain.ErrNotFound)
		}
		return nil
	})
}

// applyDelta is the single-statement fast path. Only when nothing matched
// does it pay for a second read to tell a missing row from an underflow.
func applyDelta(ctx context.Context, tx port.StockTx, sku string, delta int) error {
	if delta == 0 {
		ok, err := tx.ExistsBySku(ctx, sku)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("inventory %s: %w", sku, domain.ErrNotFound)
		}
		return nil
	}

	n, err := tx.ApplyDelta(ctx, sku, delta)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	ok, err := tx.ExistsBySku(ctx, sku)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("inventory %s: %w", sku, domain.ErrNotFound)
	}
	if delta > 0 {
		v := domain.NewValidationError()
		v.Add("quantity", fmt.Sprintf("balance would exceed %d", domain.MaxQuantity))
		return v
	}
	return fmt.Errorf("inventory %s cannot apply %d: %w", sku, delta, domain.ErrInsufficientStock)
}

func validateSku(sku string) error {
	if strings.TrimSpace(sku) == "" {
		v := domain.NewValidationError()
		v.Add("skuCode", "must not be blank")
		return v
	}
	return nil
}

func validateItems(items []domain.StockRequestItem) error {
	v := domain.NewValidationError()
	for i, item := range items {
		if strings.TrimSpace(item.SkuCode) == "" {
			v.Add(fmt.Sprintf("[%d].skuCode", i), "must not be blank")
		}
		if item.Quantity == nil {
			v.Add(fmt.Sprintf("[%d].quantity", i), "must not be null")
		} else if *item.Quantity < 0 {
			v.Add(fmt.Sprintf("[%d].quantity", i), "must be greater than or equal to 0")
		} else if *item.Quantity > domain.MaxQuantity {
			v.Add(fmt.Sprintf("[%d].quantity", i), fmt.Sprintf("must be less than or equal to %d", domain.MaxQuantity))
		}
	}
	return v.OrNil()
}

func distinctSkus(items []domain.StockRequestItem) []string {
	seen := make(map[string]struct{}, len(items))
	skus := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.SkuCode]; ok {
			continue
		}
		seen[item.SkuCode] = struct{}{}
		skus = append(skus, item.SkuCode)
	}
	return skus
}

func (s *StockService) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "StockService."+op, trace.WithAttributes(attrs...))
}

func (s *StockService) finish(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()
	s.metrics.StockOperation(op, err)
	if err == nil {
		return
	}

	span.RecordError(err)
	if isExpected(err) {
		s.logger.Warn("stock operation rejected",
			zap.String("op", op), zap.Error(err), traceField(ctx), requestIDField(ctx))
		return
	}
	span.SetStatus(otelcodes.Error, err.Error())
	s.logger.Error("stock operation failed",
		zap.String("op", op), zap.Error(err), traceField(ctx), requestIDField(ctx))
}

// isExpected reports whether err is a business outcome rather than a fault.
func isExpected(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrValidation)
}

func traceField(ctx context.Context) zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return zap.Skip()
	}
	return zap.String("trace_id", sc.TraceID().String())
}

func requestIDField(ctx context.Context) zap.Field {
	id := observability.RequestIDFromContext(ctx)
	if id == "" {
		return zap.Skip()
	}
	return zap.String("request_id", id)
}
