package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionIncome  = "income"
	TransactionExpense = "expense"
)

// CategorySentHome is stored like any other category but gets its own
// report view and dashboard summary.
const CategorySentHome = "Money Sent Home"

type Transaction struct {
	ID                 int64           `json:"id"`
	UserID             int64           `json:"user_id"`
	Currency           string          `json:"currency"`
	Type               string          `json:"type"`
	Amount             decimal.Decimal `json:"amount"`
	Category           string          `json:"category"`
	Date               time.Time       `json:"date"`
	Description        string          `json:"description,omitempty"`
	PaymentMethod      string          `json:"payment_method,omitempty"`
	AttachmentFilename string          `json:"attachment_filename,omitempty"`
}
