package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/nexus-shop/internal/adapter/handler"
	"github.com/rl1809/nexus-shop/internal/adapter/storage"
	"github.com/rl1809/nexus-shop/internal/config"
	"github.com/rl1809/nexus-shop/internal/core/domain"
	"github.com/rl1809/nexus-shop/internal/core/service"
)

const skuCode = "stress-test-sku"

type reserver interface {
	ReserveStock(ctx context.Context, items []domain.StockRequestItem) error
}

func main() {
	initialStock := flag.Int("stock", 20, "initial stock")
	totalRequests := flag.Int("requests", 50, "concurrent reserve requests")
	grpcAddr := flag.String("grpc", "", "reserve through a running inventory-service at this address instead of calling MySQL directly")
	flag.Parse()

	ctx := context.Background()

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/inventory"
	}
	dsn, err := config.NormalizeMySQLDSN(dsn)
	if err != nil {
		log.Fatalf("invalid dsn: %v", err)
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}
	stockService := service.NewStockService(mysqlAdapter, nil, nil)

	// Reset the test row
	if err := stockService.InitStock(ctx, skuCode); err != nil {
		log.Fatalf("failed to init stock: %v", err)
	}
	view, err := stockService.GetDetails(ctx, skuCode)
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	if _, err := stockService.SetBalance(ctx, skuCode, *initialStock, view.Version); err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}

	var target reserver = stockService
	if *grpcAddr != "" {
		conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatalf("failed to dial %s: %v", *grpcAddr, err)
		}
		defer conn.Close()
		target = handler.NewInventoryClient(conn)
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	one := 1
	items := []domain.StockRequestItem{{SkuCode: skuCode, Quantity: &one}}

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := target.ReserveStock(ctx, items); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := int(successCount.Load())
	fail := int(failCount.Load())
	wantSuccess := min(*initialStock, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == wantSuccess && fail == *totalRequests-wantSuccess {
		fmt.Printf("PASS: Exactly %d reservations succeeded, %d failed\n", success, fail)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			wantSuccess, *totalRequests-wantSuccess, success, fail)
	}

	// Verify final stock in MySQL
	final, err := stockService.GetStockStatus(ctx, skuCode)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", final.Quantity)

	if final.Quantity == *initialStock-wantSuccess {
		fmt.Printf("PASS: Stock settled at %d\n", final.Quantity)
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", *initialStock-wantSuccess, final.Quantity)
	}
}
