package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"hisaab/internal/domain/models"
	"hisaab/internal/journal"

	"github.com/shopspring/decimal"
)

const transactionColumns = "id, user_id, currency, type, amount, category, date, description, payment_method, attachment_filename"

func (s *Storage) SaveTransaction(ctx context.Context, t *models.Transaction) (int64, error) {
	const op = "storage.postgres.SaveTransaction"

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO transactions (user_id, currency, type, amount, category, date, description, payment_method, attachment_filename)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		t.UserID, t.Currency, t.Type, t.Amount, t.Category, t.Date,
		t.Description, t.PaymentMethod, t.AttachmentFilename,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// SumTransactions aggregates amount over the rows matching q. COALESCE
// keeps the result a plain zero when nothing matches.
func (s *Storage) SumTransactions(ctx context.Context, q journal.SumQuery) (decimal.Decimal, error) {
	const op = "storage.postgres.SumTransactions"

	query := "SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1 AND currency = $2"
	args := []any{q.UserID, q.Currency}

	if q.Kind != "" {
		args = append(args, q.Kind)
		query += " AND type = $" + strconv.Itoa(len(args))
	}
	if q.Category != "" {
		args = append(args, q.Category)
		query += " AND category = $" + strconv.Itoa(len(args))
	}
	if q.ExcludeCategory != "" {
		args = append(args, q.ExcludeCategory)
		query += " AND category != $" + strconv.Itoa(len(args))
	}

	var total decimal.Decimal
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	return total, nil
}

// TransactionsByKind lists the user's transactions of one kind, newest
// first, optionally excluding a category (the expenses view drops the
// sent-home category).
func (s *Storage) TransactionsByKind(ctx context.Context, userID int64, currency, kind, excludeCategory string) ([]models.Transaction, error) {
	const op = "storage.postgres.TransactionsByKind"

	query := "SELECT " + transactionColumns + " FROM transactions WHERE user_id = $1 AND currency = $2 AND type = $3"
	args := []any{userID, currency, kind}
	if excludeCategory != "" {
		args = append(args, excludeCategory)
		query += " AND category != $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY date DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	txns, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return txns, nil
}

// TransactionsByCategory lists the user's transactions in one category
// regardless of kind, newest first.
func (s *Storage) TransactionsByCategory(ctx context.Context, userID int64, currency, category string) ([]models.Transaction, error) {
	const op = "storage.postgres.TransactionsByCategory"

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = $1 AND currency = $2 AND category = $3 ORDER BY date DESC, id DESC",
		userID, currency, category,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	txns, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return txns, nil
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Currency, &t.Type, &t.Amount, &t.Category,
			&t.Date, &t.Description, &t.PaymentMethod, &t.AttachmentFilename,
		); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
