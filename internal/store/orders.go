package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zhixuli0406/taiyuan-api/internal/database"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
	"github.com/zhixuli0406/taiyuan-api/internal/order"
)

const orderColumns = `id, customer_id, merchant_trade_no, status, total_amount, discount,
	coupon_code, shipping_method, logistics_type, logistics_sub_type, cvs_store_id,
	cvs_store_name, cvs_address, receiver_name, receiver_phone, receiver_email,
	receiver_address, logistics_status, logistics_trade_no, tracking_number,
	payment_type, trade_date, payment_date, is_paid, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	o := &models.Order{}
	var (
		couponCode, logisticsType, logisticsSubType   sql.NullString
		cvsStoreID, cvsStoreName, cvsAddress          sql.NullString
		receiverAddress, logisticsStatus              sql.NullString
		logisticsTradeNo, trackingNumber, paymentType sql.NullString
		tradeDate, paymentDate                        sql.NullTime
		status                                        string
	)

	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.MerchantTradeNo,
		&status,
		&o.TotalAmount,
		&o.Discount,
		&couponCode,
		&o.ShippingMethod,
		&logisticsType,
		&logisticsSubType,
		&cvsStoreID,
		&cvsStoreName,
		&cvsAddress,
		&o.Shipment.Receiver.Name,
		&o.Shipment.Receiver.Phone,
		&o.Shipment.Receiver.Email,
		&receiverAddress,
		&logisticsStatus,
		&logisticsTradeNo,
		&trackingNumber,
		&paymentType,
		&tradeDate,
		&paymentDate,
		&o.Payment.IsPaid,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = order.Status(status)
	o.CouponCode = couponCode.String
	o.Shipment.LogisticsType = logisticsType.String
	o.Shipment.LogisticsSubType = logisticsSubType.String
	o.Shipment.CVSStoreID = cvsStoreID.String
	o.Shipment.CVSStoreName = cvsStoreName.String
	o.Shipment.CVSAddress = cvsAddress.String
	o.Shipment.Receiver.Address = receiverAddress.String
	o.Shipment.LogisticsStatus = logisticsStatus.String
	o.Shipment.LogisticsTradeNo = logisticsTradeNo.String
	o.Shipment.TrackingNumber = trackingNumber.String
	o.Payment.PaymentType = paymentType.String
	if tradeDate.Valid {
		o.Payment.TradeDate = &tradeDate.Time
	}
	if paymentDate.Valid {
		o.Payment.PaymentDate = &paymentDate.Time
	}
	return o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateOrder persists an order and its line items in one transaction. The
// merchant trade number carries a unique index; a collision is surfaced as
// ErrTradeNoConflict and must not be retried with the same key.
func CreateOrder(ctx context.Context, db *sql.DB, o *models.Order) (*models.Order, error) {
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var tradeDate any
		if o.Payment.TradeDate != nil {
			tradeDate = *o.Payment.TradeDate
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (customer_id, merchant_trade_no, status, total_amount, discount,
				coupon_code, shipping_method, receiver_name, receiver_phone, receiver_email,
				receiver_address, trade_date, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
			 RETURNING id, created_at, updated_at`,
			o.CustomerID, o.MerchantTradeNo, string(o.Status), o.TotalAmount, o.Discount,
			nullString(o.CouponCode), string(o.ShippingMethod),
			o.Shipment.Receiver.Name, o.Shipment.Receiver.Phone, o.Shipment.Receiver.Email,
			nullString(o.Shipment.Receiver.Address), tradeDate,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("trade no %s: %w", o.MerchantTradeNo, database.ErrTradeNoConflict)
			}
			return fmt.Errorf("create order: %w", err)
		}

		for i := range o.Items {
			item := &o.Items[i]
			item.OrderID = o.ID

			// jsonb wants text, not bytea
			var customFields any
			if len(item.CustomFields) > 0 {
				customFields = string(item.CustomFields)
			}

			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, warehouse, quantity, unit_price, subtotal, custom_fields, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				 RETURNING id, created_at`,
				item.OrderID, item.ProductID, item.Warehouse, item.Quantity,
				item.UnitPrice, item.Subtotal, customFields,
			).Scan(&item.ID, &item.CreatedAt)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return o, nil
}

func loadOrderItems(ctx context.Context, q DBTX, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, warehouse, quantity, unit_price, subtotal, custom_fields, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var customFields []byte
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Warehouse,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&customFields,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.CustomFields = customFields
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)

	o, err := scanOrder(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	o.Items, err = loadOrderItems(ctx, db, o.ID)
	if err != nil {
		return nil, err
	}

	return o, nil
}

// GetOrderByTradeNo resolves the order a gateway callback refers to.
func GetOrderByTradeNo(ctx context.Context, db *sql.DB, tradeNo string) (*models.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE merchant_trade_no = $1`, orderColumns)

	o, err := scanOrder(db.QueryRowContext(ctx, query, tradeNo))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by trade no: %w", err)
	}

	o.Items, err = loadOrderItems(ctx, db, o.ID)
	if err != nil {
		return nil, err
	}

	return o, nil
}

func ListOrdersByCustomer(ctx context.Context, db *sql.DB, customerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	var query string
	var args []any
	if cursorData == nil {
		query = fmt.Sprintf(`
			SELECT %s FROM orders
			WHERE customer_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, orderColumns)
		args = []any{customerID, limit + 1}
	} else {
		query = fmt.Sprintf(`
			SELECT %s FROM orders
			WHERE customer_id = $1
			  AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`, orderColumns)
		args = []any{customerID, cursorData.CreatedAt, cursorData.ID, limit + 1}
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func ListOrders(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s FROM orders
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, orderColumns)

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      orders,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

type PaymentUpdate struct {
	PaymentType string
	TradeDate   time.Time
	PaymentDate time.Time
}

// MarkPaid advances the order identified by tradeNo from Pending to Paid as
// a single conditional update. Replayed callbacks for an already-paid order
// are accepted without re-applying anything; the bool reports whether this
// call performed the transition.
func MarkPaid(ctx context.Context, db *sql.DB, tradeNo string, upd PaymentUpdate) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $2, is_paid = TRUE, payment_type = $3,
		     payment_date = $4, trade_date = COALESCE(trade_date, $5), updated_at = NOW()
		 WHERE merchant_trade_no = $1 AND status = $6`,
		tradeNo, string(order.StatusPaid), upd.PaymentType,
		upd.PaymentDate, upd.TradeDate, string(order.StatusPending))
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return true, nil
	}

	var status string
	err = db.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE merchant_trade_no = $1`, tradeNo).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, database.ErrOrderNotFound
		}
		return false, fmt.Errorf("get order status: %w", err)
	}

	switch order.Status(status) {
	case order.StatusPaid, order.StatusShipped, order.StatusCompleted:
		// duplicate callback, already applied
		return false, nil
	default:
		return false, fmt.Errorf("mark paid from %s: %w", status, database.ErrInvalidTransition)
	}
}

type ShipmentUpdate struct {
	LogisticsType    string
	LogisticsSubType string
	CVSStoreID       string
	CVSStoreName     string
	CVSAddress       string
	LogisticsStatus  string
	LogisticsTradeNo string
	TrackingNumber   string
}

// UpdateShipment merges carrier-provided fields into the order. Logistics
// callbacks arrive in provider-controlled order (store selection may land
// before payment confirmation), so no prior shipment state is required;
// only cancelled orders reject the merge.
func UpdateShipment(ctx context.Context, db *sql.DB, tradeNo string, upd ShipmentUpdate) error {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET logistics_type     = COALESCE(NULLIF($2, ''), logistics_type),
		     logistics_sub_type = COALESCE(NULLIF($3, ''), logistics_sub_type),
		     cvs_store_id       = COALESCE(NULLIF($4, ''), cvs_store_id),
		     cvs_store_name     = COALESCE(NULLIF($5, ''), cvs_store_name),
		     cvs_address        = COALESCE(NULLIF($6, ''), cvs_address),
		     logistics_status   = COALESCE(NULLIF($7, ''), logistics_status),
		     logistics_trade_no = COALESCE(NULLIF($8, ''), logistics_trade_no),
		     tracking_number    = COALESCE(NULLIF($9, ''), tracking_number),
		     updated_at = NOW()
		 WHERE merchant_trade_no = $1 AND status <> $10`,
		tradeNo, upd.LogisticsType, upd.LogisticsSubType, upd.CVSStoreID,
		upd.CVSStoreName, upd.CVSAddress, upd.LogisticsStatus,
		upd.LogisticsTradeNo, upd.TrackingNumber, string(order.StatusCancelled))
	if err != nil {
		return fmt.Errorf("update shipment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE merchant_trade_no = $1)`, tradeNo).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return database.ErrOrderNotFound
	}
	return fmt.Errorf("update shipment on cancelled order: %w", database.ErrInvalidTransition)
}

// UpdateOrderStatus performs an administrator-driven forward transition
// (Paid -> Shipped, Shipped -> Completed) and/or records a tracking number.
// The transition table is the single authority on legality, and the update
// is conditional on the status observed here so a concurrent transition
// fails rather than being silently overwritten.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, next order.Status, trackingNumber string) (*models.Order, error) {
	var current string
	err := db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order status: %w", err)
	}

	target := order.Status(current)
	if next != "" {
		if !order.Status(current).CanTransitionTo(next) {
			return nil, fmt.Errorf("%s -> %s: %w", current, next, database.ErrInvalidTransition)
		}
		target = next
	}

	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $2,
		     tracking_number = COALESCE(NULLIF($3, ''), tracking_number),
		     updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, string(target), trackingNumber, current)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("order %d changed concurrently: %w", id, database.ErrInvalidTransition)
	}

	return GetOrder(ctx, db, id)
}

// CancelOrder cancels a still-pending order and, in the same transaction,
// releases every reserved line item and the coupon usage if one was
// consumed at checkout.
func CancelOrder(ctx context.Context, db *sql.DB, id int64) error {
	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var status string
		var couponCode sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT status, coupon_code FROM orders WHERE id = $1 FOR UPDATE`,
			id).Scan(&status, &couponCode)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if order.Status(status) != order.StatusPending {
			return fmt.Errorf("cancel from %s: %w", status, database.ErrInvalidTransition)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
			id, string(order.StatusCancelled)); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}

		items, err := loadOrderItems(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := ReleaseStock(ctx, tx, item.ProductID, item.Warehouse, item.Quantity); err != nil {
				return fmt.Errorf("release item %d: %w", item.ProductID, err)
			}
		}

		if couponCode.Valid && couponCode.String != "" {
			if err := ReleaseCoupon(ctx, tx, couponCode.String); err != nil {
				return err
			}
		}

		return nil
	})
}
