package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhixuli0406/taiyuan-api/internal/checkout"
	"github.com/zhixuli0406/taiyuan-api/internal/database"
	"github.com/zhixuli0406/taiyuan-api/internal/order"
	"github.com/zhixuli0406/taiyuan-api/internal/store"
)

func TestMarkPaidIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newCheckoutService(t, db)

	customer := seedCustomer(t, db, "paid@example.com")
	product := seedProduct(t, db, "ORD-001", 100, 10)

	result, err := svc.Checkout(ctx, checkoutRequest(customer.ID,
		checkout.ItemRequest{ProductID: product.ID, Quantity: 1}))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	tradeNo := result.Order.MerchantTradeNo

	upd := store.PaymentUpdate{
		PaymentType: "Credit_CreditCard",
		TradeDate:   time.Now(),
		PaymentDate: time.Now(),
	}

	applied, err := store.MarkPaid(ctx, db, tradeNo, upd)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if !applied {
		t.Error("First callback must apply the transition")
	}

	// the provider replays callbacks it considers unacknowledged
	applied, err = store.MarkPaid(ctx, db, tradeNo, upd)
	if err != nil {
		t.Fatalf("MarkPaid replay: %v", err)
	}
	if applied {
		t.Error("Replayed callback must not re-apply the transition")
	}

	o, err := store.GetOrderByTradeNo(ctx, db, tradeNo)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if o.Status != order.StatusPaid {
		t.Errorf("Expected status Paid, got %s", o.Status)
	}
	if !o.Payment.IsPaid {
		t.Error("is_paid must be set")
	}
}

func TestMarkPaidUnknownTradeNo(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.MarkPaid(context.Background(), db, "TY00000000000000DEAD", store.PaymentUpdate{})
	if !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected order not found, got: %v", err)
	}
}

func TestCancelOrderRestoresStockAndCoupon(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newCheckoutService(t, db)

	customer := seedCustomer(t, db, "cancel@example.com")
	product := seedProduct(t, db, "ORD-002", 100, 10)
	seedPercentageCoupon(t, db, "BACK10", 10, 5)

	req := checkoutRequest(customer.ID, checkout.ItemRequest{ProductID: product.ID, Quantity: 3})
	req.CouponCode = "BACK10"

	result, err := svc.Checkout(ctx, req)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if stock := defaultStock(t, db, product.ID); stock != 7 {
		t.Fatalf("Expected stock 7 after checkout, got %d", stock)
	}

	if err := store.CancelOrder(ctx, db, result.Order.ID); err != nil {
		t.Fatalf("Cancel order: %v", err)
	}

	if stock := defaultStock(t, db, product.ID); stock != 10 {
		t.Errorf("Expected stock restored to 10, got %d", stock)
	}

	coupon, err := store.GetCouponByCode(ctx, db, "BACK10")
	if err != nil {
		t.Fatalf("Get coupon: %v", err)
	}
	if coupon.UsedCount != 0 {
		t.Errorf("Expected coupon usage restored, got used_count %d", coupon.UsedCount)
	}

	o, err := store.GetOrder(ctx, db, result.Order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if o.Status != order.StatusCancelled {
		t.Errorf("Expected status Cancelled, got %s", o.Status)
	}

	// cancelling twice must not release stock twice
	err = store.CancelOrder(ctx, db, result.Order.ID)
	if !errors.Is(err, database.ErrInvalidTransition) {
		t.Errorf("Expected invalid transition, got: %v", err)
	}
	if stock := defaultStock(t, db, product.ID); stock != 10 {
		t.Errorf("Stock must remain 10 after repeated cancel, got %d", stock)
	}
}

func TestCancelPaidOrderRejected(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newCheckoutService(t, db)

	customer := seedCustomer(t, db, "cancelpaid@example.com")
	product := seedProduct(t, db, "ORD-003", 100, 10)

	result, err := svc.Checkout(ctx, checkoutRequest(customer.ID,
		checkout.ItemRequest{ProductID: product.ID, Quantity: 1}))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if _, err := store.MarkPaid(ctx, db, result.Order.MerchantTradeNo, store.PaymentUpdate{
		PaymentType: "ATM",
		TradeDate:   time.Now(),
		PaymentDate: time.Now(),
	}); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	err = store.CancelOrder(ctx, db, result.Order.ID)
	if !errors.Is(err, database.ErrInvalidTransition) {
		t.Errorf("Expected invalid transition cancelling a paid order, got: %v", err)
	}
}

func TestOrderStatusLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newCheckoutService(t, db)

	customer := seedCustomer(t, db, "lifecycle@example.com")
	product := seedProduct(t, db, "ORD-004", 100, 10)

	result, err := svc.Checkout(ctx, checkoutRequest(customer.ID,
		checkout.ItemRequest{ProductID: product.ID, Quantity: 1}))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	id := result.Order.ID

	// Pending cannot jump straight to Shipped
	_, err = store.UpdateOrderStatus(ctx, db, id, order.StatusShipped, "")
	if !errors.Is(err, database.ErrInvalidTransition) {
		t.Errorf("Expected invalid transition Pending -> Shipped, got: %v", err)
	}

	if _, err := store.MarkPaid(ctx, db, result.Order.MerchantTradeNo, store.PaymentUpdate{
		PaymentType: "ATM",
		TradeDate:   time.Now(),
		PaymentDate: time.Now(),
	}); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	o, err := store.UpdateOrderStatus(ctx, db, id, order.StatusShipped, "TRK-12345")
	if err != nil {
		t.Fatalf("Ship order: %v", err)
	}
	if o.Shipment.TrackingNumber != "TRK-12345" {
		t.Errorf("Expected tracking number recorded, got %q", o.Shipment.TrackingNumber)
	}

	o, err = store.UpdateOrderStatus(ctx, db, id, order.StatusCompleted, "")
	if err != nil {
		t.Fatalf("Complete order: %v", err)
	}
	if o.Status != order.StatusCompleted {
		t.Errorf("Expected status Completed, got %s", o.Status)
	}
	if o.Shipment.TrackingNumber != "TRK-12345" {
		t.Errorf("Tracking number must survive later updates, got %q", o.Shipment.TrackingNumber)
	}
}

func TestUpdateShipmentMergesCallbackFields(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newCheckoutService(t, db)

	customer := seedCustomer(t, db, "shipment@example.com")
	product := seedProduct(t, db, "ORD-005", 100, 10)

	result, err := svc.Checkout(ctx, checkoutRequest(customer.ID,
		checkout.ItemRequest{ProductID: product.ID, Quantity: 1}))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	tradeNo := result.Order.MerchantTradeNo

	// store selection arrives first
	err = store.UpdateShipment(ctx, db, tradeNo, store.ShipmentUpdate{
		LogisticsType:    "CVS",
		LogisticsSubType: "UNIMART",
		CVSStoreID:       "131386",
		CVSStoreName:     "Taiyuan Store",
		CVSAddress:       "No. 1, Example Rd",
	})
	if err != nil {
		t.Fatalf("Update shipment (store selection): %v", err)
	}

	// a later status notification must not wipe the store fields
	err = store.UpdateShipment(ctx, db, tradeNo, store.ShipmentUpdate{
		LogisticsStatus:  "300",
		LogisticsTradeNo: "9999999",
	})
	if err != nil {
		t.Fatalf("Update shipment (status): %v", err)
	}

	o, err := store.GetOrderByTradeNo(ctx, db, tradeNo)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if o.Shipment.CVSStoreID != "131386" {
		t.Errorf("Store ID must survive later callbacks, got %q", o.Shipment.CVSStoreID)
	}
	if o.Shipment.LogisticsStatus != "300" {
		t.Errorf("Expected logistics status 300, got %q", o.Shipment.LogisticsStatus)
	}

	if err := store.CancelOrder(ctx, db, o.ID); err != nil {
		t.Fatalf("Cancel order: %v", err)
	}
	err = store.UpdateShipment(ctx, db, tradeNo, store.ShipmentUpdate{LogisticsStatus: "3003"})
	if !errors.Is(err, database.ErrInvalidTransition) {
		t.Errorf("Expected invalid transition on cancelled order, got: %v", err)
	}
}

func TestListOrdersByCustomerCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newCheckoutService(t, db)

	customer := seedCustomer(t, db, "cursor@example.com")
	product := seedProduct(t, db, "ORD-006", 100, 100)

	for i := 0; i < 15; i++ {
		_, err := svc.Checkout(ctx, checkoutRequest(customer.ID,
			checkout.ItemRequest{ProductID: product.ID, Quantity: 1}))
		if err != nil {
			t.Fatalf("Checkout %d: %v", i, err)
		}
	}

	page1, err := store.ListOrdersByCustomer(ctx, db, customer.ID, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}
	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	page2, err := store.ListOrdersByCustomer(ctx, db, customer.ID, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}
	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}
}
