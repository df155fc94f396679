package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hisaab/internal/domain/models"
	"hisaab/internal/storage"

	"github.com/lib/pq"
)

// uniqueViolation is the postgres error code for unique-constraint failures.
const uniqueViolation = "23505"

type Storage struct {
	db *sql.DB
}

func New(dbUrl string) (*Storage, error) {
	db, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection error %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect database error %w", err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

// SaveUser inserts the user row plus its default settings row in one
// transaction. A duplicate email rolls back both and returns ErrDuplicate.
func (s *Storage) SaveUser(ctx context.Context, username, email string, passHash []byte, defaultCurrency, defaultTitle string) (int64, error) {
	const op = "storage.postgres.SaveUser"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id",
		username, email, passHash,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO settings (user_id, currency, app_title) VALUES ($1, $2, $3)",
		id, defaultCurrency, defaultTitle,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	var user models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash FROM users WHERE email = $1",
		email,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return &user, nil
}

func (s *Storage) UpdatePassword(ctx context.Context, email string, passHash []byte) error {
	const op = "storage.postgres.UpdatePassword"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1 WHERE email = $2",
		passHash, email,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func (s *Storage) Settings(ctx context.Context, userID int64) (*models.Settings, error) {
	const op = "storage.postgres.Settings"

	var st models.Settings
	var logo sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, app_title, logo_filename, currency FROM settings WHERE user_id = $1",
		userID,
	).Scan(&st.UserID, &st.AppTitle, &logo, &st.Currency)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	st.LogoFilename = logo.String

	return &st, nil
}

func (s *Storage) UpdateAppTitle(ctx context.Context, userID int64, title string) error {
	const op = "storage.postgres.UpdateAppTitle"

	_, err := s.db.ExecContext(ctx,
		"UPDATE settings SET app_title = $1 WHERE user_id = $2",
		title, userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) UpdateLogo(ctx context.Context, userID int64, logoURL string) error {
	const op = "storage.postgres.UpdateLogo"

	_, err := s.db.ExecContext(ctx,
		"UPDATE settings SET logo_filename = $1 WHERE user_id = $2",
		logoURL, userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) UpdateCurrency(ctx context.Context, userID int64, currency string) error {
	const op = "storage.postgres.UpdateCurrency"

	_, err := s.db.ExecContext(ctx,
		"UPDATE settings SET currency = $1 WHERE user_id = $2",
		currency, userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// mapErr translates driver errors into the shared taxonomy.
func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrDuplicate
	}
	return err
}
