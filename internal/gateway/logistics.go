package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/zhixuli0406/taiyuan-api/internal/config"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
)

// LogisticsRequest is the signed store-selection payload for CVS pickup
// orders; the front end redirects the shopper to the provider's store map.
type LogisticsRequest struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// ShipmentNotice carries the verified fields of a logistics callback.
type ShipmentNotice struct {
	MerchantTradeNo  string
	RtnCode          string
	LogisticsStatus  string
	LogisticsType    string
	LogisticsSubType string
	LogisticsTradeNo string
	CVSStoreID       string
	CVSStoreName     string
	CVSAddress       string
	TrackingNumber   string
}

type LogisticsAdapter struct {
	cfg config.GatewayConfig
	now func() time.Time
}

func NewLogisticsAdapter(cfg config.GatewayConfig) *LogisticsAdapter {
	return &LogisticsAdapter{cfg: cfg, now: time.Now}
}

// BuildStoreSelection assembles the signed payload that opens the
// provider's convenience-store map for a CVS pickup order.
func (a *LogisticsAdapter) BuildStoreSelection(ctx context.Context, o *models.Order) (*LogisticsRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build store selection: %w", err)
	}
	if o.ShippingMethod != models.ShippingCVS {
		return nil, fmt.Errorf("store selection requires CVS shipping, got %s", o.ShippingMethod)
	}

	fields := map[string]string{
		"MerchantID":       a.cfg.MerchantID,
		"MerchantTradeNo":  o.MerchantTradeNo,
		"LogisticsType":    "CVS",
		"LogisticsSubType": "UNIMART",
		"IsCollection":     "N",
		"ServerReplyURL":   a.cfg.CallbackURL,
		"ExtraData":        o.MerchantTradeNo,
	}
	fields["CheckMacValue"] = checkMacValue(fields, a.cfg.HashKey, a.cfg.HashIV, macMD5)

	return &LogisticsRequest{URL: a.cfg.BaseURL, Fields: fields}, nil
}

// VerifyCallback validates the CheckMacValue of an inbound logistics
// notification and maps carrier fields to a ShipmentNotice.
func (a *LogisticsAdapter) VerifyCallback(form url.Values) (*ShipmentNotice, error) {
	if err := verifyMac(form, a.cfg.HashKey, a.cfg.HashIV, macMD5); err != nil {
		return nil, err
	}

	tradeNo := form.Get("MerchantTradeNo")
	if tradeNo == "" {
		tradeNo = form.Get("ExtraData")
	}
	if tradeNo == "" {
		return nil, fmt.Errorf("logistics callback missing MerchantTradeNo")
	}

	return &ShipmentNotice{
		MerchantTradeNo:  tradeNo,
		RtnCode:          form.Get("RtnCode"),
		LogisticsStatus:  form.Get("RtnMsg"),
		LogisticsType:    form.Get("LogisticsType"),
		LogisticsSubType: form.Get("LogisticsSubType"),
		LogisticsTradeNo: form.Get("AllPayLogisticsID"),
		CVSStoreID:       form.Get("CVSStoreID"),
		CVSStoreName:     form.Get("CVSStoreName"),
		CVSAddress:       form.Get("CVSAddress"),
		TrackingNumber:   form.Get("BookingNote"),
	}, nil
}
