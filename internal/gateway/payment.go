package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/zhixuli0406/taiyuan-api/internal/config"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
)

const providerTimeFormat = "2006/01/02 15:04:05"

// PaymentRequest is the payload handed to the front end, which posts the
// fields to the provider's hosted checkout page.
type PaymentRequest struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// PaymentResult carries the verified fields of a payment callback.
type PaymentResult struct {
	MerchantTradeNo string
	Paid            bool
	RtnCode         string
	RtnMsg          string
	TradeNo         string
	PaymentType     string
	TradeDate       time.Time
	PaymentDate     time.Time
	SimulatePaid    bool
}

type PaymentAdapter struct {
	cfg config.GatewayConfig
	now func() time.Time
}

func NewPaymentAdapter(cfg config.GatewayConfig) *PaymentAdapter {
	return &PaymentAdapter{cfg: cfg, now: time.Now}
}

// BuildRequest assembles the signed payment-initiation payload keyed by the
// order's merchant trade number.
func (a *PaymentAdapter) BuildRequest(ctx context.Context, o *models.Order) (*PaymentRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}

	itemNames := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		itemNames = append(itemNames, fmt.Sprintf("Product %d x %d", item.ProductID, item.Quantity))
	}

	fields := map[string]string{
		"MerchantID":        a.cfg.MerchantID,
		"MerchantTradeNo":   o.MerchantTradeNo,
		"MerchantTradeDate": a.now().Format(providerTimeFormat),
		"PaymentType":       "aio",
		"TotalAmount":       o.TotalAmount.StringFixed(0),
		"TradeDesc":         "taiyuan online store",
		"ItemName":          strings.Join(itemNames, "#"),
		"ReturnURL":         a.cfg.CallbackURL,
		"ChoosePayment":     "ALL",
		"EncryptType":       "1",
	}
	fields["CheckMacValue"] = checkMacValue(fields, a.cfg.HashKey, a.cfg.HashIV, macSHA256)

	return &PaymentRequest{URL: a.cfg.BaseURL, Fields: fields}, nil
}

// VerifyCallback validates the CheckMacValue of an inbound payment
// notification and maps it to a PaymentResult. A failed verification
// returns ErrInvalidSignature and no fields may be used.
func (a *PaymentAdapter) VerifyCallback(form url.Values) (*PaymentResult, error) {
	if err := verifyMac(form, a.cfg.HashKey, a.cfg.HashIV, macSHA256); err != nil {
		return nil, err
	}

	tradeNo := form.Get("MerchantTradeNo")
	if tradeNo == "" {
		return nil, fmt.Errorf("payment callback missing MerchantTradeNo")
	}

	result := &PaymentResult{
		MerchantTradeNo: tradeNo,
		RtnCode:         form.Get("RtnCode"),
		RtnMsg:          form.Get("RtnMsg"),
		TradeNo:         form.Get("TradeNo"),
		PaymentType:     form.Get("PaymentType"),
		SimulatePaid:    form.Get("SimulatePaid") == "1",
	}
	result.Paid = result.RtnCode == "1"

	if raw := form.Get("TradeDate"); raw != "" {
		if t, err := time.Parse(providerTimeFormat, raw); err == nil {
			result.TradeDate = t
		}
	}
	if raw := form.Get("PaymentDate"); raw != "" {
		if t, err := time.Parse(providerTimeFormat, raw); err == nil {
			result.PaymentDate = t
		}
	}

	return result, nil
}
