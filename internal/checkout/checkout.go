// Package checkout turns a cart into a priced, inventory-reserved,
// payment-initiated order. The multi-step flow has no cross-table atomic
// guarantee, so it runs as a saga: each step is an atomic local operation
// and every partial failure triggers the enumerated compensations.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zhixuli0406/taiyuan-api/internal/gateway"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
	"github.com/zhixuli0406/taiyuan-api/internal/order"
	"github.com/zhixuli0406/taiyuan-api/internal/pricing"
	"github.com/zhixuli0406/taiyuan-api/internal/store"
)

var (
	// ErrValidation marks a malformed checkout request, rejected before
	// any storage is touched.
	ErrValidation = errors.New("invalid checkout request")

	// ErrGatewayUnavailable marks a payment/logistics adapter failure
	// after the order was persisted. The order stays Pending; the trade
	// number remains the source of truth for later callbacks.
	ErrGatewayUnavailable = errors.New("external gateway unavailable")
)

type Catalog interface {
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Product, error)
}

type Coupons interface {
	ValidateAndConsume(ctx context.Context, code string, amount decimal.Decimal, productIDs, categoryIDs []int64) (*store.CouponDiscount, error)
	Release(ctx context.Context, code string) error
}

type Inventory interface {
	Reserve(ctx context.Context, productID int64, warehouse string, quantity int) error
	Release(ctx context.Context, productID int64, warehouse string, quantity int) error
}

type Orders interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
}

type PaymentGateway interface {
	BuildRequest(ctx context.Context, o *models.Order) (*gateway.PaymentRequest, error)
}

type LogisticsGateway interface {
	BuildStoreSelection(ctx context.Context, o *models.Order) (*gateway.LogisticsRequest, error)
}

// Deps bundles the stores the orchestrator composes.
type Deps struct {
	Catalog   Catalog
	Coupons   Coupons
	Inventory Inventory
	Orders    Orders
}

type Service struct {
	deps           Deps
	payment        PaymentGateway
	logistics      LogisticsGateway
	gatewayTimeout time.Duration
	logger         *slog.Logger
	newTradeNo     func() string
	now            func() time.Time
}

func NewService(deps Deps, payment PaymentGateway, logistics LogisticsGateway, gatewayTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deps:           deps,
		payment:        payment,
		logistics:      logistics,
		gatewayTimeout: gatewayTimeout,
		logger:         logger,
		newTradeNo:     generateTradeNo,
		now:            time.Now,
	}
}

// generateTradeNo produces the merchant trade number used to correlate the
// order with gateway callbacks. The provider caps it at 20 alphanumeric
// characters; uniqueness is enforced by the orders table index.
func generateTradeNo() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "TY" + raw[:18]
}

type ItemRequest struct {
	ProductID    int64           `json:"product_id"`
	Quantity     int             `json:"quantity"`
	CustomFields json.RawMessage `json:"custom_fields,omitempty"`
}

type Request struct {
	CustomerID     int64                 `json:"-"`
	Items          []ItemRequest         `json:"items"`
	ShippingMethod models.ShippingMethod `json:"shipping_method"`
	Receiver       models.Receiver       `json:"receiver"`
	CouponCode     string                `json:"coupon_code,omitempty"`
	Warehouse      string                `json:"warehouse,omitempty"`
}

type Result struct {
	Order           *models.Order             `json:"order"`
	PaymentRequest  *gateway.PaymentRequest   `json:"payment_request,omitempty"`
	ShipmentRequest *gateway.LogisticsRequest `json:"shipment_request,omitempty"`
}

func (r *Request) validate() error {
	if r.CustomerID == 0 {
		return fmt.Errorf("%w: missing customer", ErrValidation)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrValidation)
	}
	seen := make(map[int64]bool, len(r.Items))
	for _, item := range r.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for product %d", ErrValidation, item.ProductID)
		}
		if seen[item.ProductID] {
			return fmt.Errorf("%w: duplicate product %d", ErrValidation, item.ProductID)
		}
		seen[item.ProductID] = true
	}
	if !r.ShippingMethod.Valid() {
		return fmt.Errorf("%w: unknown shipping method %q", ErrValidation, r.ShippingMethod)
	}
	if r.Receiver.Name == "" || r.Receiver.Phone == "" || r.Receiver.Email == "" {
		return fmt.Errorf("%w: receiver name, phone and email are required", ErrValidation)
	}
	if r.ShippingMethod == models.ShippingHome && r.Receiver.Address == "" {
		return fmt.Errorf("%w: receiver address is required for home delivery", ErrValidation)
	}
	return nil
}

type reservation struct {
	productID int64
	warehouse string
	quantity  int
}

// Checkout runs the full order-creation saga. On a gateway failure after
// the order is persisted it returns the partial Result together with
// ErrGatewayUnavailable; everything reserved stays reserved and the order
// stays Pending for reconciliation via its trade number.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	warehouse := req.Warehouse
	if warehouse == "" {
		warehouse = "default"
	}

	// snapshot authoritative prices from the catalog
	productIDs := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.deps.Catalog.ProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	var categoryIDs []int64
	lineItems := make([]pricing.LineItem, 0, len(req.Items))
	orderItems := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		product := products[item.ProductID]
		lineItems = append(lineItems, pricing.LineItem{UnitPrice: product.Price, Quantity: item.Quantity})
		orderItems = append(orderItems, models.OrderItem{
			ProductID:    item.ProductID,
			Warehouse:    warehouse,
			Quantity:     item.Quantity,
			UnitPrice:    product.Price,
			Subtotal:     product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			CustomFields: item.CustomFields,
		})
		if product.CategoryID != nil {
			categoryIDs = append(categoryIDs, *product.CategoryID)
		}
	}
	subtotal := pricing.Subtotal(lineItems)

	discount := decimal.Zero
	consumedCoupon := ""
	if req.CouponCode != "" {
		couponResult, err := s.deps.Coupons.ValidateAndConsume(ctx, req.CouponCode, subtotal, productIDs, categoryIDs)
		if err != nil {
			return nil, err
		}
		discount = couponResult.Discount
		consumedCoupon = couponResult.Code
	}

	var reserved []reservation
	for _, item := range req.Items {
		if err := s.deps.Inventory.Reserve(ctx, item.ProductID, warehouse, item.Quantity); err != nil {
			s.compensate(ctx, reserved, consumedCoupon)
			return nil, fmt.Errorf("product %d: %w", item.ProductID, err)
		}
		reserved = append(reserved, reservation{item.ProductID, warehouse, item.Quantity})
	}

	now := s.now()
	o := &models.Order{
		CustomerID:      req.CustomerID,
		MerchantTradeNo: s.newTradeNo(),
		Status:          order.StatusPending,
		TotalAmount:     pricing.Total(lineItems, discount),
		Discount:        discount,
		CouponCode:      consumedCoupon,
		ShippingMethod:  req.ShippingMethod,
		Shipment:        models.Shipment{Receiver: req.Receiver},
		Payment:         models.Payment{TradeDate: &now},
		Items:           orderItems,
	}

	o, err = s.deps.Orders.Create(ctx, o)
	if err != nil {
		s.compensate(ctx, reserved, consumedCoupon)
		return nil, err
	}

	result := &Result{Order: o}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	result.PaymentRequest, err = s.payment.BuildRequest(gwCtx, o)
	if err != nil {
		s.logger.Error("payment request failed, order stays pending",
			"trade_no", o.MerchantTradeNo, "order_id", o.ID, "err", err)
		return result, fmt.Errorf("payment gateway: %w", ErrGatewayUnavailable)
	}

	if req.ShippingMethod == models.ShippingCVS {
		result.ShipmentRequest, err = s.logistics.BuildStoreSelection(gwCtx, o)
		if err != nil {
			s.logger.Error("store selection request failed, order stays pending",
				"trade_no", o.MerchantTradeNo, "order_id", o.ID, "err", err)
			return result, fmt.Errorf("logistics gateway: %w", ErrGatewayUnavailable)
		}
	}

	return result, nil
}

// compensate rolls back partial side effects in reverse order. Its own
// failures are logged, never returned, so they cannot mask the error that
// triggered the rollback.
func (s *Service) compensate(ctx context.Context, reserved []reservation, couponCode string) {
	// the request context may already be cancelled or expired
	ctx = context.WithoutCancel(ctx)

	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := s.deps.Inventory.Release(ctx, r.productID, r.warehouse, r.quantity); err != nil {
			s.logger.Error("compensation failed to release stock",
				"product_id", r.productID, "warehouse", r.warehouse, "quantity", r.quantity, "err", err)
		}
	}
	if couponCode != "" {
		if err := s.deps.Coupons.Release(ctx, couponCode); err != nil {
			s.logger.Error("compensation failed to release coupon", "coupon", couponCode, "err", err)
		}
	}
}
