package models

// PaymentMethod is a customer's virtual account at a gateway vendor
type PaymentMethod struct {
	ID             int64         `json:"id"`
	CustomerID     int64         `json:"customer_id"`
	Vendor         GatewayVendor `json:"vendor"`
	BankCode       string        `json:"bank_code"`
	VirtualAccount string        `json:"virtual_account"`
	IsActive       bool          `json:"is_active"`
}
