package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanTaken = "taken"
	LoanGiven = "given"
)

// Loan carries a mutable running balance. CurrentBalance starts equal to
// InitialAmount and is only ever decremented by repayments; a loan whose
// balance reaches zero is settled but never deleted.
type Loan struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Currency       string          `json:"currency"`
	Type           string          `json:"type"`
	Person         string          `json:"person"`
	InitialAmount  decimal.Decimal `json:"initial_amount"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Date           time.Time       `json:"date"`
	AccountDetails string          `json:"account_details,omitempty"`
	BankName       string          `json:"bank_name,omitempty"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	Description    string          `json:"description,omitempty"`
}

// Repayment rows are append-only. Currency is copied from the parent loan
// at insert time so the two can never diverge.
type Repayment struct {
	ID                 int64           `json:"id"`
	LoanID             int64           `json:"loan_id"`
	Currency           string          `json:"currency"`
	Amount             decimal.Decimal `json:"amount"`
	Date               time.Time       `json:"date"`
	Description        string          `json:"description,omitempty"`
	AttachmentFilename string          `json:"attachment_filename,omitempty"`
}
