package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/zhixuli0406/taiyuan-api/internal/database"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
)

type CreateCouponRequest struct {
	Code         string
	DiscountType string
	Value        decimal.Decimal
	MaxDiscount  decimal.NullDecimal
	MinPurchase  decimal.Decimal
	UsageLimit   int
	ProductIDs   []int64
	CategoryIDs  []int64
	StartDate    time.Time
	EndDate      time.Time
}

type CouponDiscount struct {
	Code        string          `json:"code"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

const couponColumns = `id, code, discount_type, value, max_discount, min_purchase,
	usage_limit, used_count, product_ids, category_ids, start_date, end_date,
	is_active, created_at, updated_at`

func scanCoupon(row interface{ Scan(...any) error }) (*models.Coupon, error) {
	coupon := &models.Coupon{}
	var productIDs, categoryIDs pq.Int64Array

	err := row.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.DiscountType,
		&coupon.Value,
		&coupon.MaxDiscount,
		&coupon.MinPurchase,
		&coupon.UsageLimit,
		&coupon.UsedCount,
		&productIDs,
		&categoryIDs,
		&coupon.StartDate,
		&coupon.EndDate,
		&coupon.IsActive,
		&coupon.CreatedAt,
		&coupon.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	coupon.ProductIDs = []int64(productIDs)
	coupon.CategoryIDs = []int64(categoryIDs)
	return coupon, nil
}

func CreateCoupon(ctx context.Context, db *sql.DB, req CreateCouponRequest) (*models.Coupon, error) {
	query := fmt.Sprintf(`
		INSERT INTO coupons (code, discount_type, value, max_discount, min_purchase,
			usage_limit, product_ids, category_ids, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING %s`, couponColumns)

	coupon, err := scanCoupon(db.QueryRowContext(ctx, query,
		req.Code, req.DiscountType, req.Value, req.MaxDiscount, req.MinPurchase,
		req.UsageLimit, pq.Array(req.ProductIDs), pq.Array(req.CategoryIDs),
		req.StartDate, req.EndDate))
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	return coupon, nil
}

func GetCouponByCode(ctx context.Context, q DBTX, code string) (*models.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE code = $1`, couponColumns)

	coupon, err := scanCoupon(q.QueryRowContext(ctx, query, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return coupon, nil
}

func ListCoupons(ctx context.Context, db *sql.DB) ([]models.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons ORDER BY created_at DESC`, couponColumns)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []models.Coupon
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *coupon)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return coupons, nil
}

func DisableCoupon(ctx context.Context, db *sql.DB, id int64) (*models.Coupon, error) {
	query := fmt.Sprintf(`
		UPDATE coupons SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, couponColumns)

	coupon, err := scanCoupon(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("disable coupon: %w", err)
	}

	return coupon, nil
}

func DeleteCoupon(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCouponNotFound
	}

	return nil
}

const couponCASAttempts = 5

// ValidateAndConsumeCoupon checks eligibility and consumes one unit of the
// coupon's usage budget as a single admission-control operation. The usage
// counter is advanced with a compare-and-swap against the value that passed
// the limit check, retried on contention, so two concurrent calls can never
// both take the last remaining unit.
func ValidateAndConsumeCoupon(ctx context.Context, q DBTX, code string, amount decimal.Decimal, productIDs, categoryIDs []int64) (*CouponDiscount, error) {
	for attempt := 0; attempt < couponCASAttempts; attempt++ {
		coupon, err := GetCouponByCode(ctx, q, code)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		if !coupon.IsActive || now.Before(coupon.StartDate) || now.After(coupon.EndDate) {
			return nil, database.ErrCouponExpired
		}
		if amount.LessThan(coupon.MinPurchase) {
			return nil, database.ErrCouponMinPurchase
		}
		if coupon.UsedCount >= coupon.UsageLimit {
			return nil, database.ErrCouponExhausted
		}
		if !couponApplies(coupon, productIDs, categoryIDs) {
			return nil, database.ErrCouponNotApplicable
		}

		result, err := q.ExecContext(ctx,
			`UPDATE coupons
			 SET used_count = used_count + 1, updated_at = NOW()
			 WHERE id = $1
			   AND used_count = $2
			   AND used_count < usage_limit`,
			coupon.ID, coupon.UsedCount)
		if err != nil {
			return nil, fmt.Errorf("consume coupon: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("get rows affected: %w", err)
		}

		if rowsAffected == 1 {
			discount := computeDiscount(coupon, amount)
			final := amount.Sub(discount)
			if final.IsNegative() {
				final = decimal.Zero
			}
			return &CouponDiscount{
				Code:        coupon.Code,
				Discount:    discount,
				FinalAmount: final,
			}, nil
		}
		// counter moved underneath us, re-read and re-check
	}

	return nil, fmt.Errorf("consume coupon %s: %w", code, database.ErrLockTimeout)
}

// CartItem names a cart line for coupon verification.
type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// VerifyCoupon resolves authoritative prices for a prospective cart and
// runs the same atomic admission as checkout. A successful verification
// consumes one unit of the coupon's usage budget; a cancellation of the
// consuming order is what gives it back.
func VerifyCoupon(ctx context.Context, db *sql.DB, code string, items []CartItem) (*CouponDiscount, error) {
	productIDs := make([]int64, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := GetProductsByIDs(ctx, db, productIDs)
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	var categoryIDs []int64
	for _, item := range items {
		product := products[item.ProductID]
		amount = amount.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		if product.CategoryID != nil {
			categoryIDs = append(categoryIDs, *product.CategoryID)
		}
	}

	return ValidateAndConsumeCoupon(ctx, db, code, amount, productIDs, categoryIDs)
}

// ReleaseCoupon gives back one unit of usage, floored at zero. Used when a
// pending order that consumed the coupon is cancelled or its checkout
// aborts partway.
func ReleaseCoupon(ctx context.Context, q DBTX, code string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE coupons
		 SET used_count = used_count - 1, updated_at = NOW()
		 WHERE code = $1 AND used_count > 0`,
		code)
	if err != nil {
		return fmt.Errorf("release coupon: %w", err)
	}
	return nil
}

func couponApplies(coupon *models.Coupon, productIDs, categoryIDs []int64) bool {
	if len(coupon.ProductIDs) == 0 && len(coupon.CategoryIDs) == 0 {
		return true
	}
	if intersects(coupon.ProductIDs, productIDs) {
		return true
	}
	return intersects(coupon.CategoryIDs, categoryIDs)
}

func intersects(a, b []int64) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func computeDiscount(coupon *models.Coupon, amount decimal.Decimal) decimal.Decimal {
	switch coupon.DiscountType {
	case models.DiscountPercentage:
		discount := amount.Mul(coupon.Value).Div(decimal.NewFromInt(100))
		if coupon.MaxDiscount.Valid && discount.GreaterThan(coupon.MaxDiscount.Decimal) {
			discount = coupon.MaxDiscount.Decimal
		}
		return discount
	default:
		return coupon.Value
	}
}
