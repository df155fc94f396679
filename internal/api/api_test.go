package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hisaab/internal/config"
	"hisaab/internal/domain/models"
	"hisaab/internal/journal"
	"hisaab/internal/ledger"
	"hisaab/internal/lib/jwt"
	"hisaab/internal/report"
	"hisaab/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========================================================
// Fakes for the service interfaces
// ========================================================

type fakeAccounts struct {
	users    map[string]*models.User
	settings map[int64]*models.Settings
	nextID   int64
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users:    make(map[string]*models.User),
		settings: make(map[int64]*models.Settings),
	}
}

func (f *fakeAccounts) SaveUser(_ context.Context, username, email string, passHash []byte, defaultCurrency, defaultTitle string) (int64, error) {
	if _, ok := f.users[email]; ok {
		return 0, storage.ErrDuplicate
	}
	f.nextID++
	f.users[email] = &models.User{ID: f.nextID, Username: username, Email: email, PasswordHash: string(passHash)}
	f.settings[f.nextID] = &models.Settings{UserID: f.nextID, AppTitle: defaultTitle, Currency: defaultCurrency}
	return f.nextID, nil
}

func (f *fakeAccounts) UserByEmail(_ context.Context, email string) (*models.User, error) {
	if user, ok := f.users[email]; ok {
		return user, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, email string, passHash []byte) error {
	user, ok := f.users[email]
	if !ok {
		return storage.ErrNotFound
	}
	user.PasswordHash = string(passHash)
	return nil
}

func (f *fakeAccounts) Settings(_ context.Context, userID int64) (*models.Settings, error) {
	if st, ok := f.settings[userID]; ok {
		return st, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeAccounts) UpdateAppTitle(_ context.Context, userID int64, title string) error {
	f.settings[userID].AppTitle = title
	return nil
}

func (f *fakeAccounts) UpdateLogo(_ context.Context, userID int64, logoURL string) error {
	f.settings[userID].LogoFilename = logoURL
	return nil
}

func (f *fakeAccounts) UpdateCurrency(_ context.Context, userID int64, currency string) error {
	f.settings[userID].Currency = currency
	return nil
}

type fakeLedger struct {
	loans      map[int64]*models.Loan
	repayments []ledger.RepaymentParams
	nextID     int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{loans: make(map[int64]*models.Loan)}
}

func (f *fakeLedger) RecordLoan(_ context.Context, userID int64, p ledger.LoanParams) (int64, error) {
	if !p.Amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", ledger.ErrValidation)
	}
	f.nextID++
	f.loans[f.nextID] = &models.Loan{
		ID: f.nextID, UserID: userID, Currency: p.Currency, Type: p.Type,
		Person: p.Person, InitialAmount: p.Amount, CurrentBalance: p.Amount, Date: p.Date,
	}
	return f.nextID, nil
}

func (f *fakeLedger) RecordRepayment(_ context.Context, userID int64, p ledger.RepaymentParams) (int64, error) {
	loan, ok := f.loans[p.LoanID]
	if !ok || loan.UserID != userID {
		return 0, storage.ErrNotFound
	}
	f.repayments = append(f.repayments, p)
	loan.CurrentBalance = loan.CurrentBalance.Sub(p.Amount)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeLedger) Outstanding(_ context.Context, userID int64, code string) ([]models.Loan, error) {
	var out []models.Loan
	for _, l := range f.loans {
		if l.UserID == userID && l.Currency == code && l.CurrentBalance.IsPositive() {
			out = append(out, *l)
		}
	}
	return out, nil
}

type fakeJournal struct {
	recorded []journal.TransactionParams
	table    *report.Table
}

func (f *fakeJournal) RecordTransaction(_ context.Context, _ int64, p journal.TransactionParams) (int64, error) {
	if !p.Amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", journal.ErrValidation)
	}
	f.recorded = append(f.recorded, p)
	return int64(len(f.recorded)), nil
}

func (f *fakeJournal) Summaries(_ context.Context, _ int64, _ string) (*journal.Summary, error) {
	return &journal.Summary{
		TotalIncome:   decimal.RequireFromString("1000"),
		TotalExpenses: decimal.RequireFromString("400"),
		MoneySentHome: decimal.RequireFromString("125"),
		LoanTaken:     decimal.RequireFromString("600"),
		LoanGiven:     decimal.Zero,
	}, nil
}

func (f *fakeJournal) ListRecords(_ context.Context, _ int64, _ string, rt journal.RecordType) (*report.Table, error) {
	if rt == journal.RecordUnknown {
		return &report.Table{Title: "Unknown Records"}, nil
	}
	if f.table != nil {
		return f.table, nil
	}
	return &report.Table{Title: "Total Income Records", Columns: []string{"Date", "Amount"}}, nil
}

type fakeMailer struct {
	sent []string // "to|subject|body"
	fail bool
}

func (f *fakeMailer) Send(to, subject, body string) error {
	if f.fail {
		return errors.New("smtp unreachable")
	}
	f.sent = append(f.sent, to+"|"+subject+"|"+body)
	return nil
}

type fakeUploader struct {
	fail     bool
	uploaded []string
}

func (f *fakeUploader) Upload(_ context.Context, filename string, _ io.Reader) (string, error) {
	if f.fail {
		return "", errors.New("media host down")
	}
	f.uploaded = append(f.uploaded, filename)
	return "https://media.example/" + filename, nil
}

// ========================================================
// Harness
// ========================================================

type testEnv struct {
	server   *APIServer
	accounts *fakeAccounts
	ledger   *fakeLedger
	journal  *fakeJournal
	mailer   *fakeMailer
	uploader *fakeUploader
}

func newTestEnv() *testEnv {
	cfg := &config.Config{
		Env:     "local",
		ApiHost: "localhost",
		ApiPort: 8080,
		BaseURL: "http://localhost:8080",
		Auth:    config.Auth{JwtSecret: "test-secret", TokenTTL: 24},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		accounts: newFakeAccounts(),
		ledger:   newFakeLedger(),
		journal:  &fakeJournal{},
		mailer:   &fakeMailer{},
		uploader: &fakeUploader{},
	}
	env.server = New(cfg, log, env.ledger, env.journal, env.accounts, env.mailer, env.uploader)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, email, password string) {
	t.Helper()
	body, _ := json.Marshal(RegisterRequest{Username: "ali", Email: email, Password: password})
	rec := e.do(httptest.NewRequest("POST", "/api/register", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(LoginRequest{Email: email, Password: password})
	rec := e.do(httptest.NewRequest("POST", "/api/login", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func formRequest(target string, fields map[string]string) *http.Request {
	form := make([]string, 0, len(fields))
	for k, v := range fields {
		form = append(form, k+"="+v)
	}
	req := httptest.NewRequest("POST", target, strings.NewReader(strings.Join(form, "&")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func multipartRequest(t *testing.T, target string, fields map[string]string, fileField, filename string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// ========================================================
// Auth
// ========================================================

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")

	token := env.login(t, "ali@example.com", "secret12")
	assert.NotEmpty(t, token)

	uid, err := jwt.ParseToken(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), uid)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")

	body, _ := json.Marshal(RegisterRequest{Username: "other", Email: "ali@example.com", Password: "pw123456"})
	rec := env.do(httptest.NewRequest("POST", "/api/register", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already registered")
}

func TestRegisterCreatesDefaultSettings(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")

	st := env.accounts.settings[1]
	require.NotNil(t, st)
	assert.Equal(t, "PKR", st.Currency)
	assert.Equal(t, "Finance Tracker", st.AppTitle)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")

	body, _ := json.Marshal(LoginRequest{Email: "ali@example.com", Password: "wrong"})
	rec := env.do(httptest.NewRequest("POST", "/api/login", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareRejectsMissingAndBadTokens(t *testing.T) {
	env := newTestEnv()

	rec := env.do(httptest.NewRequest("GET", "/api/dashboard", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(authed(httptest.NewRequest("GET", "/api/dashboard", nil), "not-a-token"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/api/dashboard", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ========================================================
// Password reset
// ========================================================

func TestForgotPasswordSendsResetLink(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")

	body, _ := json.Marshal(map[string]string{"email": "ali@example.com"})
	rec := env.do(httptest.NewRequest("POST", "/api/forgot-password", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.mailer.sent, 1)
	assert.Contains(t, env.mailer.sent[0], "ali@example.com|Password Reset Request|")
	assert.Contains(t, env.mailer.sent[0], "http://localhost:8080/reset_password/")
	assert.Contains(t, env.mailer.sent[0], "valid for one hour")
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv()

	body, _ := json.Marshal(map[string]string{"email": "nobody@example.com"})
	rec := env.do(httptest.NewRequest("POST", "/api/forgot-password", bytes.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, env.mailer.sent)
}

func TestForgotPasswordMailFailure(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	env.mailer.fail = true

	body, _ := json.Marshal(map[string]string{"email": "ali@example.com"})
	rec := env.do(httptest.NewRequest("POST", "/api/forgot-password", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestResetPasswordRoundTrip(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "oldpass12")

	token, err := jwt.NewResetToken("ali@example.com", "test-secret")
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"token": token, "password": "newpass12"})
	rec := env.do(httptest.NewRequest("POST", "/api/reset-password", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env.login(t, "ali@example.com", "newpass12")
}

func TestResetPasswordInvalidToken(t *testing.T) {
	env := newTestEnv()

	body, _ := json.Marshal(map[string]string{"token": "garbage", "password": "newpass12"})
	rec := env.do(httptest.NewRequest("POST", "/api/reset-password", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or has expired")
}

// ========================================================
// Dashboard, transactions, loans
// ========================================================

func TestDashboard(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	_, err := env.ledger.RecordLoan(context.Background(), 1, ledger.LoanParams{
		Currency: "PKR", Type: models.LoanTaken, Person: "Ahmed",
		Amount: decimal.RequireFromString("600"), Date: time.Now(),
	})
	require.NoError(t, err)

	rec := env.do(authed(httptest.NewRequest("GET", "/api/dashboard", nil), token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp DashboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PKR", resp.Currency)
	assert.Equal(t, "Rs", resp.CurrencySymbol)
	assert.True(t, resp.Summaries.TotalIncome.Equal(decimal.RequireFromString("1000")))
	require.Len(t, resp.OutstandingLoans, 1)
	assert.Equal(t, "Ahmed", resp.OutstandingLoans[0].Person)
}

func TestAddTransaction(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	req := formRequest("/api/transactions", map[string]string{
		"type": "income", "amount": "1000", "category": "Salary", "date": "2024-03-15",
	})
	rec := env.do(authed(req, token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, env.journal.recorded, 1)
	p := env.journal.recorded[0]
	assert.Equal(t, "income", p.Type)
	assert.Equal(t, "PKR", p.Currency, "currency comes from the user's settings")
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("1000")))
}

func TestAddTransactionBadAmount(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	req := formRequest("/api/transactions", map[string]string{
		"type": "income", "amount": "abc", "category": "Salary", "date": "2024-03-15",
	})
	rec := env.do(authed(req, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.journal.recorded)
}

func TestAddTransactionUploadFailureDegradesGracefully(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")
	env.uploader.fail = true

	req := multipartRequest(t, "/api/transactions", map[string]string{
		"type": "expense", "amount": "50", "category": "Groceries", "date": "2024-03-15",
	}, "attachment", "receipt.jpg")
	rec := env.do(authed(req, token))

	// The record is still saved, with no attachment and a warning.
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.journal.recorded, 1)
	assert.Empty(t, env.journal.recorded[0].AttachmentFilename)
	assert.Contains(t, rec.Body.String(), "Attachment upload failed")
}

func TestAddTransactionWithAttachment(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	req := multipartRequest(t, "/api/transactions", map[string]string{
		"type": "expense", "amount": "50", "category": "Groceries", "date": "2024-03-15",
	}, "attachment", "receipt.jpg")
	rec := env.do(authed(req, token))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.journal.recorded, 1)
	assert.Equal(t, "https://media.example/receipt.jpg", env.journal.recorded[0].AttachmentFilename)
	assert.NotContains(t, rec.Body.String(), "warning")
}

func TestAddLoanValidationSurfacesAs400(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	req := formRequest("/api/loans", map[string]string{
		"type": "taken", "person": "Ahmed", "amount": "-5", "date": "2024-03-15",
	})
	rec := env.do(authed(req, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "amount must be positive")
}

func TestRecordRepayment(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	loanID, err := env.ledger.RecordLoan(context.Background(), 1, ledger.LoanParams{
		Currency: "PKR", Type: models.LoanTaken, Person: "Ahmed",
		Amount: decimal.RequireFromString("1000"), Date: time.Now(),
	})
	require.NoError(t, err)

	req := formRequest(fmt.Sprintf("/api/loans/%d/repayments", loanID), map[string]string{
		"amount": "400", "date": "2024-03-20",
	})
	rec := env.do(authed(req, token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, env.ledger.repayments, 1)
	assert.True(t, env.ledger.loans[loanID].CurrentBalance.Equal(decimal.RequireFromString("600")))
}

func TestRecordRepaymentLoanNotFound(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	req := formRequest("/api/loans/999/repayments", map[string]string{
		"amount": "400", "date": "2024-03-20",
	})
	rec := env.do(authed(req, token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Loan not found")
}

// ========================================================
// Records and export
// ========================================================

func TestViewRecordsUnknownTypeIsNotAnError(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	rec := env.do(authed(httptest.NewRequest("GET", "/api/records/bogus", nil), token))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RecordsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Unknown Records", resp.Title)
	assert.Empty(t, resp.Rows)
}

func TestExportRecordsCSV(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	env.journal.table = &report.Table{
		Title:   "Total Income Records",
		Columns: []string{"Date", "Amount"},
		Rows:    [][]string{{"2024-03-15", "1000"}},
	}

	rec := env.do(authed(httptest.NewRequest("GET", "/api/records/income/export", nil), token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=report_income.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Date,Amount\n2024-03-15,1000\n", rec.Body.String())
}

func TestExportRecordsEmptyProducesNoFile(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	rec := env.do(authed(httptest.NewRequest("GET", "/api/records/income/export", nil), token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "No records to download")
}

// ========================================================
// Settings
// ========================================================

func TestUpdateSettingsTitleAndLogo(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	req := multipartRequest(t, "/api/settings", map[string]string{
		"app_title": "My Ledger",
	}, "logo", "logo.png")
	rec := env.do(authed(req, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "My Ledger", env.accounts.settings[1].AppTitle)
	assert.Equal(t, "https://media.example/logo.png", env.accounts.settings[1].LogoFilename)
}

func TestUpdateSettingsLogoFailureStillUpdatesTitle(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")
	env.uploader.fail = true

	req := multipartRequest(t, "/api/settings", map[string]string{
		"app_title": "My Ledger",
	}, "logo", "logo.png")
	rec := env.do(authed(req, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "My Ledger", env.accounts.settings[1].AppTitle)
	assert.Empty(t, env.accounts.settings[1].LogoFilename)
	assert.Contains(t, rec.Body.String(), "Attachment upload failed")
}

func TestUpdateCurrency(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	body, _ := json.Marshal(map[string]string{"currency": "AED"})
	rec := env.do(authed(httptest.NewRequest("POST", "/api/settings/currency", bytes.NewReader(body)), token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AED", env.accounts.settings[1].Currency)
}

func TestUpdateCurrencyUnsupportedIsIgnored(t *testing.T) {
	env := newTestEnv()
	env.register(t, "ali@example.com", "secret12")
	token := env.login(t, "ali@example.com", "secret12")

	body, _ := json.Marshal(map[string]string{"currency": "EUR"})
	rec := env.do(authed(httptest.NewRequest("POST", "/api/settings/currency", bytes.NewReader(body)), token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PKR", env.accounts.settings[1].Currency, "unsupported code leaves the setting untouched")
}
