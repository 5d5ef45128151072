package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zhixuli0406/taiyuan-api/internal/order"
)

type Customer struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID          int64           `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

const (
	DiscountFixed      = "fixed"
	DiscountPercentage = "percentage"
)

type Coupon struct {
	ID           int64               `json:"id"`
	Code         string              `json:"code"`
	DiscountType string              `json:"discount_type"`
	Value        decimal.Decimal     `json:"value"`
	MaxDiscount  decimal.NullDecimal `json:"max_discount,omitempty"`
	MinPurchase  decimal.Decimal     `json:"min_purchase"`
	UsageLimit   int                 `json:"usage_limit"`
	UsedCount    int                 `json:"used_count"`
	ProductIDs   []int64             `json:"product_ids,omitempty"`
	CategoryIDs  []int64             `json:"category_ids,omitempty"`
	StartDate    time.Time           `json:"start_date"`
	EndDate      time.Time           `json:"end_date"`
	IsActive     bool                `json:"is_active"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type Inventory struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Warehouse string    `json:"warehouse"`
	Quantity  int       `json:"quantity"`
	SafeStock int       `json:"safe_stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ShippingMethod string

const (
	ShippingCVS  ShippingMethod = "CVS"  // convenience-store pickup
	ShippingHome ShippingMethod = "HOME" // home delivery
)

func (m ShippingMethod) Valid() bool {
	return m == ShippingCVS || m == ShippingHome
}

type Receiver struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address,omitempty"`
}

// Shipment holds the carrier-provided fields merged in by logistics
// callbacks, plus the receiver snapshot taken at checkout.
type Shipment struct {
	LogisticsType    string   `json:"logistics_type,omitempty"`
	LogisticsSubType string   `json:"logistics_sub_type,omitempty"`
	CVSStoreID       string   `json:"cvs_store_id,omitempty"`
	CVSStoreName     string   `json:"cvs_store_name,omitempty"`
	CVSAddress       string   `json:"cvs_address,omitempty"`
	Receiver         Receiver `json:"receiver"`
	LogisticsStatus  string   `json:"logistics_status,omitempty"`
	LogisticsTradeNo string   `json:"logistics_trade_no,omitempty"`
	TrackingNumber   string   `json:"tracking_number,omitempty"`
}

type Payment struct {
	PaymentType string     `json:"payment_type,omitempty"`
	TradeDate   *time.Time `json:"trade_date,omitempty"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
	IsPaid      bool       `json:"is_paid"`
}

type Order struct {
	ID              int64           `json:"id"`
	CustomerID      int64           `json:"customer_id"`
	MerchantTradeNo string          `json:"merchant_trade_no"`
	Status          order.Status    `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Discount        decimal.Decimal `json:"discount"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	ShippingMethod  ShippingMethod  `json:"shipping_method"`
	Shipment        Shipment        `json:"shipment"`
	Payment         Payment         `json:"payment"`
	Items           []OrderItem     `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	Warehouse    string          `json:"warehouse"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	CustomFields json.RawMessage `json:"custom_fields,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
