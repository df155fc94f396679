package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"hisaab/internal/domain/models"
	"hisaab/internal/ledger"

	"github.com/shopspring/decimal"
)

const loanColumns = "id, user_id, currency, type, person, initial_amount, current_balance, date, account_details, bank_name, payment_method, description"

func (s *Storage) SaveLoan(ctx context.Context, loan *models.Loan) (int64, error) {
	const op = "storage.postgres.SaveLoan"

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO loans (user_id, currency, type, person, initial_amount, current_balance, date, account_details, bank_name, payment_method, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		loan.UserID, loan.Currency, loan.Type, loan.Person,
		loan.InitialAmount, loan.CurrentBalance, loan.Date,
		loan.AccountDetails, loan.BankName, loan.PaymentMethod, loan.Description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// OutstandingLoans returns the user's loans in the given currency with a
// strictly positive balance, newest first.
func (s *Storage) OutstandingLoans(ctx context.Context, userID int64, currency string) ([]models.Loan, error) {
	const op = "storage.postgres.OutstandingLoans"

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE user_id = $1 AND currency = $2 AND current_balance > 0 ORDER BY date DESC, id DESC",
		userID, currency,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	loans, err := scanLoans(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return loans, nil
}

// LoansByType returns all of the user's loans of one direction regardless
// of balance, newest first. Feeds the loans_taken / loans_given views.
func (s *Storage) LoansByType(ctx context.Context, userID int64, currency, loanType string) ([]models.Loan, error) {
	const op = "storage.postgres.LoansByType"

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE user_id = $1 AND currency = $2 AND type = $3 ORDER BY date DESC, id DESC",
		userID, currency, loanType,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	loans, err := scanLoans(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return loans, nil
}

// BalanceTotal sums current balances over the user's loans of one direction.
func (s *Storage) BalanceTotal(ctx context.Context, userID int64, currency, loanType string) (decimal.Decimal, error) {
	const op = "storage.postgres.BalanceTotal"

	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(current_balance), 0) FROM loans WHERE user_id = $1 AND currency = $2 AND type = $3",
		userID, currency, loanType,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	return total, nil
}

// InTx runs fn inside a single database transaction. Any error from fn
// rolls back everything fn did through the RepaymentTx.
func (s *Storage) InTx(ctx context.Context, fn func(ledger.RepaymentTx) error) error {
	const op = "storage.postgres.InTx"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	if err := fn(&repaymentTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type repaymentTx struct {
	tx *sql.Tx
}

// LoanForUpdate reads the loan under a row lock, scoping out the
// lost-update race between concurrent repayments.
func (t *repaymentTx) LoanForUpdate(ctx context.Context, userID, loanID int64) (*models.Loan, error) {
	const op = "storage.postgres.LoanForUpdate"

	var loan models.Loan
	err := t.tx.QueryRowContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE id = $1 AND user_id = $2 FOR UPDATE",
		loanID, userID,
	).Scan(
		&loan.ID, &loan.UserID, &loan.Currency, &loan.Type, &loan.Person,
		&loan.InitialAmount, &loan.CurrentBalance, &loan.Date,
		&loan.AccountDetails, &loan.BankName, &loan.PaymentMethod, &loan.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return &loan, nil
}

func (t *repaymentTx) InsertRepayment(ctx context.Context, rep *models.Repayment) (int64, error) {
	const op = "storage.postgres.InsertRepayment"

	var id int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO repayments (loan_id, currency, amount, date, description, attachment_filename)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rep.LoanID, rep.Currency, rep.Amount, rep.Date, rep.Description, rep.AttachmentFilename,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// DecrementBalance applies the repayment as a relative update so the new
// balance is computed in the store, not from a stale read.
func (t *repaymentTx) DecrementBalance(ctx context.Context, loanID int64, amount decimal.Decimal) error {
	const op = "storage.postgres.DecrementBalance"

	_, err := t.tx.ExecContext(ctx,
		"UPDATE loans SET current_balance = current_balance - $1 WHERE id = $2",
		amount, loanID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RepaymentTotal sums all repayments recorded against one loan, inside
// the same transaction as the loan read it is checked against.
func (t *repaymentTx) RepaymentTotal(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	const op = "storage.postgres.RepaymentTotal"

	var total decimal.Decimal
	err := t.tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM repayments WHERE loan_id = $1",
		loanID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	return total, nil
}

func scanLoans(rows *sql.Rows) ([]models.Loan, error) {
	var loans []models.Loan
	for rows.Next() {
		var loan models.Loan
		if err := rows.Scan(
			&loan.ID, &loan.UserID, &loan.Currency, &loan.Type, &loan.Person,
			&loan.InitialAmount, &loan.CurrentBalance, &loan.Date,
			&loan.AccountDetails, &loan.BankName, &loan.PaymentMethod, &loan.Description,
		); err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}
