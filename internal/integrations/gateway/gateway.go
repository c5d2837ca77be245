package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/julo/repayment-service/internal/models"
)

// wib is Western Indonesia Time, used by vendors that send local timestamps
var wib = time.FixedZone("WIB", 7*60*60)

// Callback is a payment notification from a gateway, normalized across vendors
type Callback struct {
	Vendor         models.GatewayVendor
	TransactionID  string
	VirtualAccount string
	Amount         int64
	PaidAt         time.Time
	// Paid is false for notifications about pending or failed payments
	Paid bool
	// RequestID is echoed back in vendors' acknowledgements
	RequestID string
}

// ParseCallback decodes a vendor callback body
func ParseCallback(vendor models.GatewayVendor, body []byte) (*Callback, error) {
	var (
		cb  *Callback
		err error
	)
	switch vendor {
	case models.VendorFaspay:
		cb, err = parseFaspay(body)
	case models.VendorDoku:
		cb, err = parseDoku(body)
	case models.VendorXendit:
		cb, err = parseXendit(body)
	case models.VendorBCA:
		cb, err = parseBCA(body)
	default:
		return nil, fmt.Errorf("unsupported gateway vendor %q", vendor)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s callback: %w", vendor, err)
	}
	cb.Vendor = vendor
	if err := cb.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s callback: %w", vendor, err)
	}
	return cb, nil
}

func (c *Callback) validate() error {
	if c.TransactionID == "" {
		return fmt.Errorf("missing transaction id")
	}
	if c.VirtualAccount == "" {
		return fmt.Errorf("missing virtual account")
	}
	if c.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", c.Amount)
	}
	if c.PaidAt.IsZero() {
		return fmt.Errorf("missing payment time")
	}
	return nil
}

type faspayCallback struct {
	TrxID             string `json:"trx_id"`
	BillNo            string `json:"bill_no"`
	PaymentTotal      string `json:"payment_total"`
	PaymentStatusCode string `json:"payment_status_code"`
	PaymentDate       string `json:"payment_date"`
}

func parseFaspay(body []byte) (*Callback, error) {
	var in faspayCallback
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}
	amount, err := parseRupiah(in.PaymentTotal)
	if err != nil {
		return nil, fmt.Errorf("payment_total: %w", err)
	}
	paidAt, err := time.ParseInLocation("2006-01-02 15:04:05", in.PaymentDate, wib)
	if err != nil {
		return nil, fmt.Errorf("payment_date: %w", err)
	}
	return &Callback{
		TransactionID:  in.TrxID,
		VirtualAccount: in.BillNo,
		Amount:         amount,
		PaidAt:         paidAt.UTC(),
		Paid:           in.PaymentStatusCode == "2",
		RequestID:      in.TrxID,
	}, nil
}

type dokuCallback struct {
	Order struct {
		InvoiceNumber string `json:"invoice_number"`
		Amount        int64  `json:"amount"`
	} `json:"order"`
	VirtualAccountInfo struct {
		VirtualAccountNumber string `json:"virtual_account_number"`
	} `json:"virtual_account_info"`
	Transaction struct {
		Status string    `json:"status"`
		Date   time.Time `json:"date"`
	} `json:"transaction"`
}

func parseDoku(body []byte) (*Callback, error) {
	var in dokuCallback
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}
	return &Callback{
		TransactionID:  in.Order.InvoiceNumber,
		VirtualAccount: in.VirtualAccountInfo.VirtualAccountNumber,
		Amount:         in.Order.Amount,
		PaidAt:         in.Transaction.Date.UTC(),
		Paid:           strings.EqualFold(in.Transaction.Status, "SUCCESS"),
		RequestID:      in.Order.InvoiceNumber,
	}, nil
}

type xenditCallback struct {
	ID                   string    `json:"id"`
	PaymentID            string    `json:"payment_id"`
	AccountNumber        string    `json:"account_number"`
	Amount               int64     `json:"amount"`
	TransactionTimestamp time.Time `json:"transaction_timestamp"`
}

// xendit only calls back for completed virtual account payments
func parseXendit(body []byte) (*Callback, error) {
	var in xenditCallback
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}
	return &Callback{
		TransactionID:  in.PaymentID,
		VirtualAccount: in.AccountNumber,
		Amount:         in.Amount,
		PaidAt:         in.TransactionTimestamp.UTC(),
		Paid:           true,
		RequestID:      in.ID,
	}, nil
}

// parseRupiah accepts whole rupiah with an optional all-zero fraction, such
// as "100000" or "100000.00"
func parseRupiah(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, found := strings.Cut(s, ".")
	if found && strings.Trim(frac, "0") != "" {
		return 0, fmt.Errorf("fractional rupiah amount %q", s)
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}
