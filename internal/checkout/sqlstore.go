package checkout

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
	"github.com/zhixuli0406/taiyuan-api/internal/store"
)

// SQLDeps wires the orchestrator to the Postgres-backed store functions.
func SQLDeps(db *sql.DB) Deps {
	return Deps{
		Catalog:   sqlCatalog{db},
		Coupons:   sqlCoupons{db},
		Inventory: sqlInventory{db},
		Orders:    sqlOrders{db},
	}
}

type sqlCatalog struct{ db *sql.DB }

func (c sqlCatalog) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	return store.GetProductsByIDs(ctx, c.db, ids)
}

type sqlCoupons struct{ db *sql.DB }

func (c sqlCoupons) ValidateAndConsume(ctx context.Context, code string, amount decimal.Decimal, productIDs, categoryIDs []int64) (*store.CouponDiscount, error) {
	return store.ValidateAndConsumeCoupon(ctx, c.db, code, amount, productIDs, categoryIDs)
}

func (c sqlCoupons) Release(ctx context.Context, code string) error {
	return store.ReleaseCoupon(ctx, c.db, code)
}

type sqlInventory struct{ db *sql.DB }

func (i sqlInventory) Reserve(ctx context.Context, productID int64, warehouse string, quantity int) error {
	return store.ReserveStock(ctx, i.db, productID, warehouse, quantity)
}

func (i sqlInventory) Release(ctx context.Context, productID int64, warehouse string, quantity int) error {
	return store.ReleaseStock(ctx, i.db, productID, warehouse, quantity)
}

type sqlOrders struct{ db *sql.DB }

func (o sqlOrders) Create(ctx context.Context, ord *models.Order) (*models.Order, error) {
	return store.CreateOrder(ctx, o.db, ord)
}
