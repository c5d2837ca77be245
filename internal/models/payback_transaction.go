package models

import (
	"fmt"
	"strings"
	"time"
)

// ServiceKind identifies where a repayment came from
type ServiceKind int

const (
	ServiceManual ServiceKind = iota + 1
	ServiceCashback
	ServiceGateway
)

// GatewayVendor is a payment gateway that can settle a repayment
type GatewayVendor string

const (
	VendorFaspay GatewayVendor = "faspay"
	VendorDoku   GatewayVendor = "doku"
	VendorBCA    GatewayVendor = "bca"
	VendorXendit GatewayVendor = "xendit"
)

// ParseGatewayVendor accepts only the vendors the service integrates with
func ParseGatewayVendor(s string) (GatewayVendor, error) {
	switch v := GatewayVendor(strings.ToLower(strings.TrimSpace(s))); v {
	case VendorFaspay, VendorDoku, VendorBCA, VendorXendit:
		return v, nil
	default:
		return "", fmt.Errorf("unknown gateway vendor %q", s)
	}
}

// PaybackService is the source of a payback transaction. Vendor is set only for
// ServiceGateway.
type PaybackService struct {
	Kind   ServiceKind
	Vendor GatewayVendor
}

func Manual() PaybackService   { return PaybackService{Kind: ServiceManual} }
func Cashback() PaybackService { return PaybackService{Kind: ServiceCashback} }

func Gateway(vendor GatewayVendor) PaybackService {
	return PaybackService{Kind: ServiceGateway, Vendor: vendor}
}

// IsCashback reports whether the payback is funded from the cashback wallet
func (p PaybackService) IsCashback() bool {
	return p.Kind == ServiceCashback
}

// String returns the persisted form: manual, cashback or gateway:<vendor>
func (p PaybackService) String() string {
	switch p.Kind {
	case ServiceManual:
		return "manual"
	case ServiceCashback:
		return "cashback"
	case ServiceGateway:
		return "gateway:" + string(p.Vendor)
	default:
		return "unknown"
	}
}

// Validate checks the variant is well formed
func (p PaybackService) Validate() error {
	switch p.Kind {
	case ServiceManual, ServiceCashback:
		if p.Vendor != "" {
			return fmt.Errorf("%s payback must not carry a gateway vendor", p)
		}
		return nil
	case ServiceGateway:
		_, err := ParseGatewayVendor(string(p.Vendor))
		return err
	default:
		return fmt.Errorf("unknown payback service kind %d", p.Kind)
	}
}

// ParsePaybackService parses the persisted form written by String
func ParsePaybackService(s string) (PaybackService, error) {
	switch {
	case s == "manual":
		return Manual(), nil
	case s == "cashback":
		return Cashback(), nil
	case strings.HasPrefix(s, "gateway:"):
		vendor, err := ParseGatewayVendor(strings.TrimPrefix(s, "gateway:"))
		if err != nil {
			return PaybackService{}, err
		}
		return Gateway(vendor), nil
	default:
		return PaybackService{}, fmt.Errorf("unknown payback service %q", s)
	}
}

func (p PaybackService) MarshalText() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return []byte(p.String()), nil
}

func (p *PaybackService) UnmarshalText(b []byte) error {
	parsed, err := ParsePaybackService(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PaybackTransaction is the source-of-truth record of a payment attempt.
// Only IsProcessed changes after creation.
type PaybackTransaction struct {
	ID              int64          `json:"id"`
	CustomerID      int64          `json:"customer_id"`
	AccountID       int64          `json:"account_id"`
	Amount          int64          `json:"amount"`
	PaymentMethodID *int64         `json:"payment_method_id,omitempty"`
	TransactionID   string         `json:"transaction_id"`
	TransactionDate time.Time      `json:"transaction_date"`
	Service         PaybackService `json:"payback_service"`
	IsProcessed     bool           `json:"is_processed"`
	CreatedAt       time.Time      `json:"created_at"`
}
