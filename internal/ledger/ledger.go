// Package ledger owns loans and their repayment history. The one invariant
// that matters here: a loan's running balance must always equal its initial
// amount minus the sum of its repayments, and the repayment-insert plus
// balance-decrement pair is never half applied.
package ledger

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
var ErrValidation = errors.New("ledger: validation")

// RepaymentTx is the slice of the store visible inside one repayment
// transaction. Everything done through it commits or rolls back as a unit.
type RepaymentTx interface {
	LoanForUpdate(ctx context.Context, userID, loanID int64) (*models.Loan, error)
	InsertRepayment(ctx context.Context, rep *models.Repayment) (int64, error)
	DecrementBalance(ctx context.Context, loanID int64, amount decimal.Decimal) error
	RepaymentTotal(ctx context.Context, loanID int64) (decimal.Decimal, error)
}

type LoanStore interface {
	SaveLoan(ctx context.Context, loan *models.Loan) (int64, error)
	OutstandingLoans(ctx context.Context, userID int64, currency string) ([]models.Loan, error)
	InTx(ctx context.Context, fn func(RepaymentTx) error) error
}

type Service struct {
	log   *slog.Logger
	store LoanStore
}

func New(log *slog.Logger, store LoanStore) *Service {
	return &Service{log: log, store: store}
}

type LoanParams struct {
	Currency       string
	Type           string
	Person         string
	Amount         decimal.Decimal
	Date           time.Time
	AccountDetails string
	BankName       string
	PaymentMethod  string
	Description    string
}

// RecordLoan creates the loan with its balance set to the initial amount.
// A single-row insert, so no partial state is possible.
func (s *Service) RecordLoan(ctx context.Context, userID int64, p LoanParams) (int64, error) {
	const op = "ledger.RecordLoan"

	if !p.Amount.IsPositive() {
		return 0, fmt.Errorf("%s: %w: amount must be positive", op, ErrValidation)
	}
	if p.Type != models.LoanTaken && p.Type != models.LoanGiven {
		return 0, fmt.Errorf("%s: %w: unknown loan type %q", op, ErrValidation, p.Type)
	}
	if !currency.Supported(p.Currency) {
		return 0, fmt.Errorf("%s: %w: unsupported currency %q", op, ErrValidation, p.Currency)
	}
	if p.Person == "" {
		return 0, fmt.Errorf("%s: %w: person is required", op, ErrValidation)
	}
	if p.Date.IsZero() {
		return 0, fmt.Errorf("%s: %w: date is required", op, ErrValidation)
	}

	id, err := s.store.SaveLoan(ctx, &models.Loan{
		UserID:         userID,
		Currency:       p.Currency,
		Type:           p.Type,
		Person:         p.Person,
		InitialAmount:  p.Amount,
		CurrentBalance: p.Amount,
		Date:           p.Date,
		AccountDetails: p.AccountDetails,
		BankName:       p.BankName,
		PaymentMethod:  p.PaymentMethod,
		Description:    p.Description,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("loan recorded",
		slog.Int64("user_id", userID),
		slog.Int64("loan_id", id),
		slog.String("type", p.Type),
		slog.String("currency", p.Currency),
	)
	return id, nil
}

type RepaymentParams struct {
	LoanID             int64
	Amount             decimal.Decimal
	Date               time.Time
	Description        string
	AttachmentFilename string
}

// RecordRepayment appends a repayment and decrements the loan balance in
// one transaction. The loan row is locked for the duration, so concurrent
// repayments serialize instead of clobbering each other's balance write.
//
// The repayment takes its currency from the loan row, not the caller. No
// guard stops the balance going negative when a repayment exceeds it; that
// matches the ledger's historical behavior.
func (s *Service) RecordRepayment(ctx context.Context, userID int64, p RepaymentParams) (int64, error) {
	const op = "ledger.RecordRepayment"

	if !p.Amount.IsPositive() {
		return 0, fmt.Errorf("%s: %w: amount must be positive", op, ErrValidation)
	}
	if p.Date.IsZero() {
		return 0, fmt.Errorf("%s: %w: date is required", op, ErrValidation)
	}

	var id int64
	err := s.store.InTx(ctx, func(tx RepaymentTx) error {
		loan, err := tx.LoanForUpdate(ctx, userID, p.LoanID)
		if err != nil {
			return err
		}

		id, err = tx.InsertRepayment(ctx, &models.Repayment{
			LoanID:             loan.ID,
			Currency:           loan.Currency,
			Amount:             p.Amount,
			Date:               p.Date,
			Description:        p.Description,
			AttachmentFilename: p.AttachmentFilename,
		})
		if err != nil {
			return err
		}

		return tx.DecrementBalance(ctx, loan.ID, p.Amount)
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("repayment recorded",
		slog.Int64("user_id", userID),
		slog.Int64("loan_id", p.LoanID),
		slog.Int64("repayment_id", id),
	)
	return id, nil
}

// Outstanding returns the user's loans in the given currency that still
// carry a positive balance, newest first.
func (s *Service) Outstanding(ctx context.Context, userID int64, code string) ([]models.Loan, error) {
	const op = "ledger.Outstanding"

	loans, err := s.store.OutstandingLoans(ctx, userID, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return loans, nil
}

// AuditBalance recomputes a loan's balance from its repayment history and
// reports both the stored and recomputed values. The two diverge only if a
// past write was half applied, which the transaction in RecordRepayment
// exists to prevent.
func (s *Service) AuditBalance(ctx context.Context, userID, loanID int64) (stored, recomputed decimal.Decimal, err error) {
	const op = "ledger.AuditBalance"

	err = s.store.InTx(ctx, func(tx RepaymentTx) error {
		loan, err := tx.LoanForUpdate(ctx, userID, loanID)
		if err != nil {
			return err
		}
		repaid, err := tx.RepaymentTotal(ctx, loanID)
		if err != nil {
			return err
		}
		stored = loan.CurrentBalance
		recomputed = loan.InitialAmount.Sub(repaid)
		return nil
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return stored, recomputed, nil
}
