package models

// Operator is an admin-tool user allowed to enter and re-drive repayments
type Operator struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // Not serialized
}
