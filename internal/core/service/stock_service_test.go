package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/nexus-shop/internal/core/domain"
	"github.com/rl1809/nexus-shop/internal/observability"
)

func intPtr(v int) *int { return &v }

func item(sku string, qty int) domain.StockRequestItem {
	return domain.StockRequestItem{SkuCode: sku, Quantity: intPtr(qty)}
}

func newTestStockService() (*StockService, *memStockRepo) {
	repo := newMemStockRepo()
	return NewStockService(repo, nil, nil), repo
}

func TestStock_InitAdjustScenario(t *testing.T) {
	svc, _ := newTestStockService()
	ctx := context.Background()

	if err := svc.InitStock(ctx, "X"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := svc.AdjustStock(ctx, "X", 5); err != nil {
		t.Fatalf("adjust +5 failed: %v", err)
	}
	if err := svc.AdjustStock(ctx, "X", -3); err != nil {
		t.Fatalf("adjust -3 failed: %v", err)
	}

	view, err := svc.GetStockStatus(ctx, "X")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	want := domain.StockView{SkuCode: "X", InStock: true, Quantity: 2, Version: 0}
	if view != want {
		t.Errorf("expected %+v, got %+v", want, view)
	}
}

func TestAdjustStock_MissingSku(t *testing.T) {
	svc, _ := newTestStockService()

	err := svc.AdjustStock(context.Background(), "Y", -1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestAdjustStock_InsufficientStock(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("Z", 3, 0)

	err := svc.AdjustStock(context.Background(), "Z", -10)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got: %v", err)
	}
	if inv, _ := repo.get("Z"); inv.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", inv.Quantity)
	}
}

func TestAdjustStock_ZeroDelta(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("Z", 3, 0)

	if err := svc.AdjustStock(context.Background(), "Z", 0); err != nil {
		t.Errorf("expected success, got: %v", err)
	}
	if err := svc.AdjustStock(context.Background(), "missing", 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestAdjustStock_StoreError(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("Z", 3, 0)
	repo.failDeltaFor = "Z"

	err := svc.AdjustStock(context.Background(), "Z", 1)
	if !errors.Is(err, errBoom) {
		t.Errorf("expected store error, got: %v", err)
	}
}

func TestStock_QuantityRange(t *testing.T) {
	svc, repo := newTestStockService()
	ctx := context.Background()
	repo.seed("R", domain.MaxQuantity-2, 0)

	if err := svc.AdjustStock(ctx, "R", 5); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation on overflow, got: %v", err)
	}
	if inv, _ := repo.get("R"); inv.Quantity != domain.MaxQuantity-2 {
		t.Errorf("expected quantity unchanged, got %d", inv.Quantity)
	}
	if err := svc.AdjustStock(ctx, "R", 2); err != nil {
		t.Errorf("adjust up to the maximum failed: %v", err)
	}

	tooBig := domain.MaxQuantity
	tooBig++

	if err := svc.AdjustStock(ctx, "R", -tooBig); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for delta, got: %v", err)
	}
	if _, err := svc.SetBalance(ctx, "R", tooBig, 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for balance, got: %v", err)
	}

	err := svc.ReserveStock(ctx, []domain.StockRequestItem{item("R", tooBig)})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if _, ok := verr.Fields["[0].quantity"]; !ok {
		t.Errorf("expected [0].quantity field error, got %v", verr.Fields)
	}
	if inv, _ := repo.get("R"); inv.Quantity != domain.MaxQuantity {
		t.Errorf("expected quantity %d, got %d", domain.MaxQuantity, inv.Quantity)
	}
}

func TestStockService_LogsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc := NewStockService(newMemStockRepo(), zap.New(core), nil)
	ctx := observability.ContextWithRequestID(context.Background(), "req-42")

	if err := svc.AdjustStock(ctx, "missing", -1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}

	entries := logs.FilterMessage("stock operation rejected").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 rejection log, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %s", entries[0].Level)
	}
	if got := entries[0].ContextMap()["request_id"]; got != "req-42" {
		t.Errorf("expected request_id req-42, got %v", got)
	}
}

func TestAdjustStock_LastUnitRace(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("W", 1, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.AdjustStock(context.Background(), "W", -1)
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientStock):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Errorf("expected one success and one insufficient, got %d/%d", ok, insufficient)
	}
	if inv, _ := repo.get("W"); inv.Quantity != 0 {
		t.Errorf("expected quantity 0, got %d", inv.Quantity)
	}
}

func TestAdjustStock_NeverNegative(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	svc, repo := newTestStockService()
	repo.seed("item", initialStock, 0)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.AdjustStock(context.Background(), "item", -1); err == nil {
				successCount.Add(1)
			} else if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if inv, _ := repo.get("item"); inv.Quantity != 0 {
		t.Errorf("expected stock 0, got %d", inv.Quantity)
	}
}

func TestAdjustStock_ConservationUnderRace(t *testing.T) {
	const initial, a, b = 5, 3, 7

	for run := 0; run < 20; run++ {
		svc, repo := newTestStockService()
		repo.seed("C", initial, 0)

		var wg sync.WaitGroup
		var errAdd, errSub error
		wg.Add(2)
		go func() { defer wg.Done(); errAdd = svc.AdjustStock(context.Background(), "C", a) }()
		go func() { defer wg.Done(); errSub = svc.AdjustStock(context.Background(), "C", -b) }()
		wg.Wait()

		if errAdd != nil {
			t.Fatalf("receive should never fail: %v", errAdd)
		}
		inv, _ := repo.get("C")
		switch {
		case errSub == nil && inv.Quantity != initial+a-b:
			t.Fatalf("both applied, expected %d, got %d", initial+a-b, inv.Quantity)
		case errors.Is(errSub, domain.ErrInsufficientStock) && inv.Quantity != initial+a:
			t.Fatalf("consume rejected, expected %d, got %d", initial+a, inv.Quantity)
		case errSub != nil && !errors.Is(errSub, domain.ErrInsufficientStock):
			t.Fatalf("unexpected error: %v", errSub)
		}
	}
}

func TestInitStock_ConcurrentIdempotent(t *testing.T) {
	svc, repo := newTestStockService()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.InitStock(context.Background(), "NEW"); err != nil {
				t.Errorf("init should never fail, got: %v", err)
			}
		}()
	}
	wg.Wait()

	if repo.count() != 1 {
		t.Fatalf("expected exactly one row, got %d", repo.count())
	}
	inv, _ := repo.get("NEW")
	if inv.Quantity != 0 || inv.Version != 0 {
		t.Errorf("expected (0, 0), got (%d, %d)", inv.Quantity, inv.Version)
	}
}

func TestInitStock_KeepsExistingBalance(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("X", 8, 2)

	if err := svc.InitStock(context.Background(), "X"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if inv, _ := repo.get("X"); inv.Quantity != 8 || inv.Version != 2 {
		t.Errorf("expected row untouched, got %+v", inv)
	}
}

func TestInitStock_BlankSku(t *testing.T) {
	svc, _ := newTestStockService()

	err := svc.InitStock(context.Background(), "  ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}
}

func TestSetBalance_Scenario(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("A", 0, 0)
	ctx := context.Background()

	view, err := svc.SetBalance(ctx, "A", 7, 0)
	if err != nil {
		t.Fatalf("first set-balance failed: %v", err)
	}
	if view.Quantity != 7 || view.Version != 1 || !view.InStock {
		t.Errorf("unexpected view %+v", view)
	}

	_, err = svc.SetBalance(ctx, "A", 9, 0)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got: %v", err)
	}
	if inv, _ := repo.get("A"); inv.Quantity != 7 || inv.Version != 1 {
		t.Errorf("expected (7, 1), got (%d, %d)", inv.Quantity, inv.Version)
	}
}

func TestSetBalance_ConcurrentSameVersion(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("A", 4, 3)

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			_, err := svc.SetBalance(context.Background(), "A", q, 3)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i + 10)
	}
	wg.Wait()

	if wins.Load() != 1 || conflicts.Load() != 9 {
		t.Errorf("expected 1 win and 9 conflicts, got %d/%d", wins.Load(), conflicts.Load())
	}
	if inv, _ := repo.get("A"); inv.Version != 4 {
		t.Errorf("expected version 4, got %d", inv.Version)
	}
}

func TestSetBalance_Errors(t *testing.T) {
	svc, _ := newTestStockService()
	ctx := context.Background()

	if _, err := svc.SetBalance(ctx, "missing", 1, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}

	_, err := svc.SetBalance(ctx, "", -1, 0)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if _, ok := verr.Fields["skuCode"]; !ok {
		t.Error("expected skuCode field error")
	}
	if _, ok := verr.Fields["quantity"]; !ok {
		t.Error("expected quantity field error")
	}
}

func TestAdjustStock_DoesNotBumpVersion(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("V", 1, 5)

	if err := svc.AdjustStock(context.Background(), "V", 4); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if inv, _ := repo.get("V"); inv.Version != 5 {
		t.Errorf("expected version 5, got %d", inv.Version)
	}
}

func TestCheckAvailability(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("A", 5, 0)
	repo.seed("B", 1, 0)

	tests := []struct {
		name  string
		items []domain.StockRequestItem
		want  error
	}{
		{"all available", []domain.StockRequestItem{item("A", 5), item("B", 1)}, nil},
		{"empty", nil, nil},
		{"missing sku", []domain.StockRequestItem{item("A", 1), item("C", 1)}, domain.ErrNotFound},
		{"insufficient", []domain.StockRequestItem{item("A", 1), item("B", 2)}, domain.ErrInsufficientStock},
		{"duplicates checked per item", []domain.StockRequestItem{item("A", 3), item("A", 3)}, nil},
		{"negative quantity", []domain.StockRequestItem{item("A", -1)}, domain.ErrValidation},
		{"missing quantity", []domain.StockRequestItem{{SkuCode: "A"}}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckAvailability(context.Background(), tt.items)
			if tt.want == nil && err != nil {
				t.Errorf("expected success, got: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got: %v", tt.want, err)
			}
		})
	}

	if inv, _ := repo.get("A"); inv.Quantity != 5 {
		t.Errorf("check must not change stock, got %d", inv.Quantity)
	}
}

func TestReserveStock_Success(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("A", 5, 0)
	repo.seed("B", 2, 0)

	err := svc.ReserveStock(context.Background(), []domain.StockRequestItem{item("A", 2), item("B", 2)})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if inv, _ := repo.get("A"); inv.Quantity != 3 {
		t.Errorf("expected A=3, got %d", inv.Quantity)
	}
	if inv, _ := repo.get("B"); inv.Quantity != 0 {
		t.Errorf("expected B=0, got %d", inv.Quantity)
	}
}

func TestReserveStock_RollsBackBatch(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.StockRequestItem
		want  error
	}{
		{"insufficient second item", []domain.StockRequestItem{item("A", 2), item("B", 3)}, domain.ErrInsufficientStock},
		{"missing second item", []domain.StockRequestItem{item("A", 2), item("C", 1)}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestStockService()
			repo.seed("A", 5, 0)
			repo.seed("B", 1, 0)

			err := svc.ReserveStock(context.Background(), tt.items)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got: %v", tt.want, err)
			}
			if inv, _ := repo.get("A"); inv.Quantity != 5 {
				t.Errorf("expected A rolled back to 5, got %d", inv.Quantity)
			}
		})
	}
}

func TestReserveStock_CancelledContext(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("A", 5, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.ReserveStock(ctx, []domain.StockRequestItem{item("A", 1)}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if inv, _ := repo.get("A"); inv.Quantity != 5 {
		t.Errorf("expected 5, got %d", inv.Quantity)
	}
}

func TestGetStockStatus_Absent(t *testing.T) {
	svc, _ := newTestStockService()

	view, err := svc.GetStockStatus(context.Background(), "none")
	if err != nil {
		t.Fatalf("status should not fail: %v", err)
	}
	if view != domain.EmptyStockView("none") {
		t.Errorf("expected empty view, got %+v", view)
	}

	if _, err := svc.GetDetails(context.Background(), "none"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestGetStockStatuses_SkipsMissing(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("A", 1, 0)
	repo.seed("B", 0, 0)

	views, err := svc.GetStockStatuses(context.Background(), []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("statuses failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	got := map[string]bool{}
	for _, v := range views {
		got[v.SkuCode] = v.InStock
	}
	if !got["A"] || got["B"] {
		t.Errorf("unexpected in-stock flags %v", got)
	}
}

func TestDeleteInventory(t *testing.T) {
	svc, repo := newTestStockService()
	repo.seed("D", 3, 0)
	ctx := context.Background()

	if err := svc.DeleteInventory(ctx, "D"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok := repo.get("D"); ok {
		t.Error("expected row removed")
	}
	if err := svc.DeleteInventory(ctx, "D"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

type recordingInitializer struct {
	mu   sync.Mutex
	skus []string
	err  error
}

func (r *recordingInitializer) InitStock(_ context.Context, sku string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skus = append(r.skus, sku)
	return r.err
}

func TestProductCreatedHandler_InitializesStock(t *testing.T) {
	svc, repo := newTestStockService()
	h := NewProductCreatedHandler(svc, nil, nil)

	event := domain.ProductCreatedEvent{SkuCode: "S", Title: "T"}
	h.Handle(context.Background(), event)
	h.Handle(context.Background(), event)

	if repo.count() != 1 {
		t.Fatalf("expected one row after replay, got %d", repo.count())
	}
	view, _ := svc.GetStockStatus(context.Background(), "S")
	if view.InStock || view.Quantity != 0 {
		t.Errorf("expected empty stock, got %+v", view)
	}
}

func TestProductCreatedHandler_SwallowsErrors(t *testing.T) {
	rec := &recordingInitializer{err: errBoom}
	h := NewProductCreatedHandler(rec, nil, nil)

	h.Handle(context.Background(), domain.ProductCreatedEvent{SkuCode: "S"})

	if len(rec.skus) != 1 || rec.skus[0] != "S" {
		t.Errorf("expected one init call for S, got %v", rec.skus)
	}
}
