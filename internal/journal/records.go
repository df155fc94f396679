package journal

import (
	"context"
	"fmt"

	"hisaab/internal/domain/models"
	"hisaab/internal/report"
)

// RecordType selects one of the five fixed report views. Anything else
// resolves to RecordUnknown, which yields an empty table instead of an
// error.
type RecordType string

const (
	RecordIncome     RecordType = "income"
	RecordExpenses   RecordType = "expenses"
	RecordSentHome   RecordType = "sent_home"
	RecordLoansTaken RecordType = "loans_taken"
	RecordLoansGiven RecordType = "loans_given"
	RecordUnknown    RecordType = ""
)

// ParseRecordType never fails; unrecognized names map to RecordUnknown.
func ParseRecordType(s string) RecordType {
	switch RecordType(s) {
	case RecordIncome, RecordExpenses, RecordSentHome, RecordLoansTaken, RecordLoansGiven:
		return RecordType(s)
	}
	return RecordUnknown
}

var (
	transactionColumns = []string{"Date", "Category", "Amount", "Description", "Payment Method"}
	sentHomeColumns    = []string{"Date", "Amount", "Description", "Payment Method"}
	loanColumns        = []string{"Date", "Person", "Initial Amount", "Current Balance", "Bank Name", "Description"}
)

// ListRecords materializes one report view, newest first. The expenses
// view excludes the sent-home category, which has its own view; loan views
// list every loan of the direction, settled ones included.
func (s *Service) ListRecords(ctx context.Context, userID int64, code string, rt RecordType) (*report.Table, error) {
	const op = "journal.ListRecords"

	var t *report.Table
	var err error

	switch rt {
	case RecordIncome:
		t, err = s.transactionTable(ctx, "Total Income Records", transactionColumns, userID, code, models.TransactionIncome, "")
	case RecordExpenses:
		t, err = s.transactionTable(ctx, "Total Expense Records", transactionColumns, userID, code, models.TransactionExpense, models.CategorySentHome)
	case RecordSentHome:
		t, err = s.sentHomeTable(ctx, userID, code)
	case RecordLoansTaken:
		t, err = s.loanTable(ctx, "Loans Taken Records", userID, code, models.LoanTaken)
	case RecordLoansGiven:
		t, err = s.loanTable(ctx, "Loans Given Records", userID, code, models.LoanGiven)
	default:
		t = &report.Table{Title: "Unknown Records"}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

func (s *Service) transactionTable(ctx context.Context, title string, columns []string, userID int64, code, kind, excludeCategory string) (*report.Table, error) {
	txns, err := s.txns.TransactionsByKind(ctx, userID, code, kind, excludeCategory)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, []string{
			t.Date.Format(dateLayout), t.Category, t.Amount.String(), t.Description, t.PaymentMethod,
		})
	}
	return &report.Table{Title: title, Columns: columns, Rows: rows}, nil
}

func (s *Service) sentHomeTable(ctx context.Context, userID int64, code string) (*report.Table, error) {
	txns, err := s.txns.TransactionsByCategory(ctx, userID, code, models.CategorySentHome)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, []string{
			t.Date.Format(dateLayout), t.Amount.String(), t.Description, t.PaymentMethod,
		})
	}
	return &report.Table{Title: "Money Sent Home Records", Columns: sentHomeColumns, Rows: rows}, nil
}

func (s *Service) loanTable(ctx context.Context, title string, userID int64, code, loanType string) (*report.Table, error) {
	loans, err := s.loans.LoansByType(ctx, userID, code, loanType)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(loans))
	for _, l := range loans {
		rows = append(rows, []string{
			l.Date.Format(dateLayout), l.Person, l.InitialAmount.String(), l.CurrentBalance.String(), l.BankName, l.Description,
		})
	}
	return &report.Table{Title: title, Columns: loanColumns, Rows: rows}, nil
}
