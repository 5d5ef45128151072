package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhixuli0406/taiyuan-api/internal/database"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
)

var couponRowColumns = []string{
	"id", "code", "discount_type", "value", "max_discount", "min_purchase",
	"usage_limit", "used_count", "product_ids", "category_ids", "start_date",
	"end_date", "is_active", "created_at", "updated_at",
}

func activeCouponRow(usedCount, usageLimit int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(couponRowColumns).AddRow(
		int64(1), "SAVE10", "percentage", "10", nil, "0",
		usageLimit, usedCount, "{}", "{}", now.Add(-time.Hour),
		now.Add(time.Hour), true, now, now,
	)
}

func TestValidateAndConsumeCoupon(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT (.+) FROM coupons WHERE code`).
		WithArgs("SAVE10").
		WillReturnRows(activeCouponRow(0, 5))
	mock.ExpectExec(`UPDATE coupons`).
		WithArgs(int64(1), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := ValidateAndConsumeCoupon(context.Background(), db, "SAVE10", decimal.NewFromInt(200), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Discount.Equal(decimal.NewFromInt(20)), "got discount %s", result.Discount)
	assert.True(t, result.FinalAmount.Equal(decimal.NewFromInt(180)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateAndConsumeCouponRetriesOnContention(t *testing.T) {
	db, mock := newMockDB(t)

	// another checkout advanced the counter between our read and write
	mock.ExpectQuery(`SELECT (.+) FROM coupons WHERE code`).
		WithArgs("SAVE10").
		WillReturnRows(activeCouponRow(0, 5))
	mock.ExpectExec(`UPDATE coupons`).
		WithArgs(int64(1), 0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(`SELECT (.+) FROM coupons WHERE code`).
		WithArgs("SAVE10").
		WillReturnRows(activeCouponRow(1, 5))
	mock.ExpectExec(`UPDATE coupons`).
		WithArgs(int64(1), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := ValidateAndConsumeCoupon(context.Background(), db, "SAVE10", decimal.NewFromInt(200), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Discount.Equal(decimal.NewFromInt(20)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateAndConsumeCouponExhausted(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT (.+) FROM coupons WHERE code`).
		WithArgs("SAVE10").
		WillReturnRows(activeCouponRow(5, 5))

	_, err := ValidateAndConsumeCoupon(context.Background(), db, "SAVE10", decimal.NewFromInt(200), nil, nil)
	assert.ErrorIs(t, err, database.ErrCouponExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateAndConsumeCouponGivesUpAfterRetries(t *testing.T) {
	db, mock := newMockDB(t)

	for i := 0; i < couponCASAttempts; i++ {
		mock.ExpectQuery(`SELECT (.+) FROM coupons WHERE code`).
			WithArgs("SAVE10").
			WillReturnRows(activeCouponRow(i, 100))
		mock.ExpectExec(`UPDATE coupons`).
			WithArgs(int64(1), i).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	_, err := ValidateAndConsumeCoupon(context.Background(), db, "SAVE10", decimal.NewFromInt(200), nil, nil)
	assert.ErrorIs(t, err, database.ErrLockTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateAndConsumeCouponMinPurchase(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now()
	rows := sqlmock.NewRows(couponRowColumns).AddRow(
		int64(1), "BIG50", "fixed", "50", nil, "500",
		10, 0, "{}", "{}", now.Add(-time.Hour),
		now.Add(time.Hour), true, now, now,
	)
	mock.ExpectQuery(`SELECT (.+) FROM coupons WHERE code`).
		WithArgs("BIG50").
		WillReturnRows(rows)

	_, err := ValidateAndConsumeCoupon(context.Background(), db, "BIG50", decimal.NewFromInt(200), nil, nil)
	assert.ErrorIs(t, err, database.ErrCouponMinPurchase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateAndConsumeCouponScopeMismatch(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now()
	rows := sqlmock.NewRows(couponRowColumns).AddRow(
		int64(1), "SHOES10", "percentage", "10", nil, "0",
		10, 0, "{7,8}", "{3}", now.Add(-time.Hour),
		now.Add(time.Hour), true, now, now,
	)
	mock.ExpectQuery(`SELECT (.+) FROM coupons WHERE code`).
		WithArgs("SHOES10").
		WillReturnRows(rows)

	_, err := ValidateAndConsumeCoupon(context.Background(), db, "SHOES10",
		decimal.NewFromInt(200), []int64{1, 2}, []int64{9})
	assert.ErrorIs(t, err, database.ErrCouponNotApplicable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyCouponConsumesUsage(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Now()
	productRows := sqlmock.NewRows([]string{
		"id", "sku", "name", "description", "price", "category_id", "created_at", "updated_at",
	}).AddRow(int64(1), "SKU-1", "Product 1", nil, "100", nil, now, now)

	mock.ExpectQuery(`SELECT (.+) FROM products WHERE id = ANY`).
		WillReturnRows(productRows)
	mock.ExpectQuery(`SELECT (.+) FROM coupons WHERE code`).
		WithArgs("SAVE10").
		WillReturnRows(activeCouponRow(0, 5))
	// verification must persist the increment, not just price the cart
	mock.ExpectExec(`UPDATE coupons`).
		WithArgs(int64(1), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := VerifyCoupon(context.Background(), db, "SAVE10", []CartItem{
		{ProductID: 1, Quantity: 2},
	})
	require.NoError(t, err)
	assert.True(t, result.Discount.Equal(decimal.NewFromInt(20)), "got discount %s", result.Discount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComputeDiscountCapsPercentage(t *testing.T) {
	coupon := &models.Coupon{
		DiscountType: models.DiscountPercentage,
		Value:        decimal.NewFromInt(10),
		MaxDiscount:  decimal.NewNullDecimal(decimal.NewFromInt(15)),
	}

	discount := computeDiscount(coupon, decimal.NewFromInt(500))
	assert.True(t, discount.Equal(decimal.NewFromInt(15)), "got %s", discount)
}
