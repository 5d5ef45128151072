package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zhixuli0406/taiyuan-api/internal/checkout"
	"github.com/zhixuli0406/taiyuan-api/internal/config"
	"github.com/zhixuli0406/taiyuan-api/internal/gateway"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
	"github.com/zhixuli0406/taiyuan-api/internal/store"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func runMigrations(db *sql.DB) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		filePath := filepath.Join(migrationDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

func newCheckoutService(t *testing.T, db *sql.DB) *checkout.Service {
	t.Helper()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}

	payment := gateway.NewPaymentAdapter(cfg.Payment)
	logistics := gateway.NewLogisticsAdapter(cfg.Logistics)
	return checkout.NewService(checkout.SQLDeps(db), payment, logistics, 5*time.Second, nil)
}

func seedCustomer(t *testing.T, db *sql.DB, email string) *models.Customer {
	t.Helper()

	customer, err := store.CreateCustomer(context.Background(), db, email, "Test Customer")
	if err != nil {
		t.Fatalf("Create customer: %v", err)
	}
	return customer
}

// seedProduct creates a catalog row and its default-warehouse inventory.
func seedProduct(t *testing.T, db *sql.DB, sku string, price int64, stock int) *models.Product {
	t.Helper()

	ctx := context.Background()
	product, err := store.CreateProduct(ctx, db, sku, "Product "+sku, "Test", decimal.NewFromInt(price), nil)
	if err != nil {
		t.Fatalf("Create product %s: %v", sku, err)
	}
	if _, err := store.CreateInventory(ctx, db, product.ID, "default", stock, 5); err != nil {
		t.Fatalf("Create inventory for %s: %v", sku, err)
	}
	return product
}

func seedPercentageCoupon(t *testing.T, db *sql.DB, code string, percent int64, usageLimit int) *models.Coupon {
	t.Helper()

	coupon, err := store.CreateCoupon(context.Background(), db, store.CreateCouponRequest{
		Code:         code,
		DiscountType: models.DiscountPercentage,
		Value:        decimal.NewFromInt(percent),
		MinPurchase:  decimal.Zero,
		UsageLimit:   usageLimit,
		StartDate:    time.Now().Add(-time.Hour),
		EndDate:      time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create coupon %s: %v", code, err)
	}
	return coupon
}

func defaultStock(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()

	records, err := store.GetInventoryByProduct(context.Background(), db, productID)
	if err != nil {
		t.Fatalf("Get inventory: %v", err)
	}
	for _, inv := range records {
		if inv.Warehouse == "default" {
			return inv.Quantity
		}
	}
	t.Fatalf("No default warehouse for product %d", productID)
	return 0
}
