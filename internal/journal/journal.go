// Package journal is the append-only record of income and expense
// transactions, plus the aggregate and listing queries built over it and
// over the loan ledger for the dashboard and report views.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hisaab/internal/currency"
	"hisaab/internal/domain/models"

	"github.com/shopspring/decimal"
)

// ErrValidation marks a missing or malformed input field.
var ErrValidation = errors.New("journal: validation")

const dateLayout = "2006-01-02"

// SumQuery selects the transactions feeding one aggregate. Empty fields
// are not filtered on; Category and ExcludeCategory are mutually exclusive
// by construction of the callers.
type SumQuery struct {
	UserID          int64
	Currency        string
	Kind            string
	Category        string
	ExcludeCategory string
}

type TransactionStore interface {
	SaveTransaction(ctx context.Context, t *models.Transaction) (int64, error)
	SumTransactions(ctx context.Context, q SumQuery) (decimal.Decimal, error)
	TransactionsByKind(ctx context.Context, userID int64, currency, kind, excludeCategory string) ([]models.Transaction, error)
	TransactionsByCategory(ctx context.Context, userID int64, currency, category string) ([]models.Transaction, error)
}

// LoanViewStore is the slice of the ledger the journal reads for balance
// summaries and the loan report views.
type LoanViewStore interface {
	LoansByType(ctx context.Context, userID int64, currency, loanType string) ([]models.Loan, error)
	BalanceTotal(ctx context.Context, userID int64, currency, loanType string) (decimal.Decimal, error)
}

type Service struct {
	log   *slog.Logger
	txns  TransactionStore
	loans LoanViewStore
}

func New(log *slog.Logger, txns TransactionStore, loans LoanViewStore) *Service {
	return &Service{log: log, txns: txns, loans: loans}
}

type TransactionParams struct {
	Currency           string
	Type               string
	Amount             decimal.Decimal
	Category           string
	Date               time.Time
	Description        string
	PaymentMethod      string
	AttachmentFilename string
}

// RecordTransaction appends one journal entry. No derived state changes.
func (s *Service) RecordTransaction(ctx context.Context, userID int64, p TransactionParams) (int64, error) {
	const op = "journal.RecordTransaction"

	if !p.Amount.IsPositive() {
		return 0, fmt.Errorf("%s: %w: amount must be positive", op, ErrValidation)
	}
	if p.Type != models.TransactionIncome && p.Type != models.TransactionExpense {
		return 0, fmt.Errorf("%s: %w: unknown transaction type %q", op, ErrValidation, p.Type)
	}
	if !currency.Supported(p.Currency) {
		return 0, fmt.Errorf("%s: %w: unsupported currency %q", op, ErrValidation, p.Currency)
	}
	if p.Category == "" {
		return 0, fmt.Errorf("%s: %w: category is required", op, ErrValidation)
	}
	if p.Date.IsZero() {
		return 0, fmt.Errorf("%s: %w: date is required", op, ErrValidation)
	}

	id, err := s.txns.SaveTransaction(ctx, &models.Transaction{
		UserID:             userID,
		Currency:           p.Currency,
		Type:               p.Type,
		Amount:             p.Amount,
		Category:           p.Category,
		Date:               p.Date,
		Description:        p.Description,
		PaymentMethod:      p.PaymentMethod,
		AttachmentFilename: p.AttachmentFilename,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("transaction recorded",
		slog.Int64("user_id", userID),
		slog.Int64("transaction_id", id),
		slog.String("type", p.Type),
	)
	return id, nil
}

// Aggregate sums matching transaction amounts. Zero, never absent, when no
// rows match.
func (s *Service) Aggregate(ctx context.Context, q SumQuery) (decimal.Decimal, error) {
	const op = "journal.Aggregate"

	total, err := s.txns.SumTransactions(ctx, q)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}

// Summary holds the five dashboard numbers.
type Summary struct {
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	MoneySentHome decimal.Decimal `json:"money_sent_home"`
	LoanTaken     decimal.Decimal `json:"loan_taken"`
	LoanGiven     decimal.Decimal `json:"loan_given"`
}

// Summaries computes the dashboard totals for one user and currency.
func (s *Service) Summaries(ctx context.Context, userID int64, code string) (*Summary, error) {
	const op = "journal.Summaries"

	var sum Summary
	var err error

	sum.TotalIncome, err = s.txns.SumTransactions(ctx, SumQuery{UserID: userID, Currency: code, Kind: models.TransactionIncome})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sum.TotalExpenses, err = s.txns.SumTransactions(ctx, SumQuery{UserID: userID, Currency: code, Kind: models.TransactionExpense})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sum.MoneySentHome, err = s.txns.SumTransactions(ctx, SumQuery{UserID: userID, Currency: code, Category: models.CategorySentHome})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sum.LoanTaken, err = s.loans.BalanceTotal(ctx, userID, code, models.LoanTaken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sum.LoanGiven, err = s.loans.BalanceTotal(ctx, userID, code, models.LoanGiven)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &sum, nil
}
