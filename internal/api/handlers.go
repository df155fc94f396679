package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"hisaab/internal/currency"
	"hisaab/internal/journal"
	"hisaab/internal/ledger"
	"hisaab/internal/lib/jwt"
	"hisaab/internal/report"
	"hisaab/internal/storage"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAppTitle = "Finance Tracker"
	dateLayout      = "2006-01-02"
	maxUploadSize   = 10 << 20
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *APIServer) registerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}
		if req.Username == "" || req.Email == "" || req.Password == "" {
			s.writeError(w, http.StatusBadRequest, "Username, email and password are required")
			return
		}

		passHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.serviceError(w, err)
			return
		}

		// The user row and its default settings row land in one
		// transaction; a duplicate email rolls back both.
		id, err := s.accounts.SaveUser(r.Context(), req.Username, req.Email, passHash, currency.Default, defaultAppTitle)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				s.writeError(w, http.StatusConflict, "Email address already registered")
				return
			}
			s.serviceError(w, err)
			return
		}

		s.writeJSON(w, http.StatusCreated, map[string]any{
			"id":      id,
			"message": "Registration successful! Please log in.",
		})
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (s *APIServer) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		user, err := s.accounts.UserByEmail(r.Context(), req.Email)
		if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			s.writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}

		ttl := time.Duration(s.config.Auth.TokenTTL) * time.Hour
		token, err := jwt.NewToken(user, string(s.jwtSecret), ttl)
		if err != nil {
			s.serviceError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, LoginResponse{Token: token})
	}
}

func (s *APIServer) forgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		if _, err := s.accounts.UserByEmail(r.Context(), req.Email); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, "Email address not found")
				return
			}
			s.serviceError(w, err)
			return
		}

		token, err := jwt.NewResetToken(req.Email, string(s.jwtSecret))
		if err != nil {
			s.serviceError(w, err)
			return
		}

		resetURL := s.config.BaseURL + "/reset_password/" + token
		body := "To reset your password, please visit the following link:\n\n" +
			resetURL + "\n\nThis link is valid for one hour."

		if err := s.mailer.Send(req.Email, "Password Reset Request", body); err != nil {
			s.logger.Error("Failed to send reset mail", "error", err)
			s.writeError(w, http.StatusBadGateway, "Failed to send email")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{
			"message": "A password reset link has been sent to your email.",
		})
	}
}

func (s *APIServer) resetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token    string `json:"token"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
			s.writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		email, err := jwt.ParseResetToken(req.Token, string(s.jwtSecret))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "The password reset link is invalid or has expired")
			return
		}

		passHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		if err := s.accounts.UpdatePassword(r.Context(), email, passHash); err != nil {
			s.serviceError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{
			"message": "Your password has been updated! You can now log in.",
		})
	}
}

type DashboardResponse struct {
	Summaries        *journal.Summary  `json:"summaries"`
	OutstandingLoans []OutstandingLoan `json:"outstanding_loans"`
	Currency         string            `json:"currency"`
	CurrencySymbol   string            `json:"currency_symbol"`
}

type OutstandingLoan struct {
	ID             int64           `json:"id"`
	Type           string          `json:"type"`
	Person         string          `json:"person"`
	InitialAmount  decimal.Decimal `json:"initial_amount"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Date           string          `json:"date"`
}

func (s *APIServer) dashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		code := s.userCurrency(r, uid)

		summaries, err := s.journal.Summaries(r.Context(), uid, code)
		if err != nil {
			s.serviceError(w, err)
			return
		}

		loans, err := s.ledger.Outstanding(r.Context(), uid, code)
		if err != nil {
			s.serviceError(w, err)
			return
		}

		outstanding := make([]OutstandingLoan, 0, len(loans))
		for _, l := range loans {
			outstanding = append(outstanding, OutstandingLoan{
				ID:             l.ID,
				Type:           l.Type,
				Person:         l.Person,
				InitialAmount:  l.InitialAmount,
				CurrentBalance: l.CurrentBalance,
				Date:           l.Date.Format(dateLayout),
			})
		}

		symbol, _ := currency.Symbol(code)
		s.writeJSON(w, http.StatusOK, DashboardResponse{
			Summaries:        summaries,
			OutstandingLoans: outstanding,
			Currency:         code,
			CurrencySymbol:   symbol,
		})
	}
}

func (s *APIServer) addTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if err := parseAnyForm(r); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid form submission")
			return
		}

		amount, err := decimal.NewFromString(r.FormValue("amount"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Amount must be a number")
			return
		}
		date, err := time.Parse(dateLayout, r.FormValue("date"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Date is required")
			return
		}

		attachment, warning := s.uploadAttachment(r, "attachment")

		id, err := s.journal.RecordTransaction(r.Context(), uid, journal.TransactionParams{
			Currency:           s.userCurrency(r, uid),
			Type:               r.FormValue("type"),
			Amount:             amount,
			Category:           r.FormValue("category"),
			Date:               date,
			Description:        r.FormValue("description"),
			PaymentMethod:      r.FormValue("payment_method"),
			AttachmentFilename: attachment,
		})
		if err != nil {
			s.serviceError(w, err)
			return
		}

		resp := map[string]any{"id": id, "message": "Transaction added successfully!"}
		if warning != "" {
			resp["warning"] = warning
		}
		s.writeJSON(w, http.StatusCreated, resp)
	}
}

func (s *APIServer) addLoanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if err := parseAnyForm(r); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid form submission")
			return
		}

		amount, err := decimal.NewFromString(r.FormValue("amount"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Amount must be a number")
			return
		}
		date, err := time.Parse(dateLayout, r.FormValue("date"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Date is required")
			return
		}

		id, err := s.ledger.RecordLoan(r.Context(), uid, ledger.LoanParams{
			Currency:       s.userCurrency(r, uid),
			Type:           r.FormValue("type"),
			Person:         r.FormValue("person"),
			Amount:         amount,
			Date:           date,
			AccountDetails: r.FormValue("account_details"),
			BankName:       r.FormValue("bank_name"),
			PaymentMethod:  r.FormValue("payment_method"),
			Description:    r.FormValue("description"),
		})
		if err != nil {
			s.serviceError(w, err)
			return
		}

		s.writeJSON(w, http.StatusCreated, map[string]any{
			"id":      id,
			"message": "Loan recorded successfully!",
		})
	}
}

func (s *APIServer) recordRepaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		loanID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid loan id")
			return
		}
		if err := parseAnyForm(r); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid form submission")
			return
		}

		amount, err := decimal.NewFromString(r.FormValue("amount"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Amount must be a number")
			return
		}
		date, err := time.Parse(dateLayout, r.FormValue("date"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Date is required")
			return
		}

		attachment, warning := s.uploadAttachment(r, "attachment")

		id, err := s.ledger.RecordRepayment(r.Context(), uid, ledger.RepaymentParams{
			LoanID:             loanID,
			Amount:             amount,
			Date:               date,
			Description:        r.FormValue("description"),
			AttachmentFilename: attachment,
		})
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, "Loan not found")
				return
			}
			s.serviceError(w, err)
			return
		}

		resp := map[string]any{"id": id, "message": "Repayment recorded successfully!"}
		if warning != "" {
			resp["warning"] = warning
		}
		s.writeJSON(w, http.StatusCreated, resp)
	}
}

type RecordsResponse struct {
	Title      string     `json:"title"`
	RecordType string     `json:"record_type"`
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"rows"`
}

func (s *APIServer) viewRecordsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		recordType := mux.Vars(r)["recordType"]

		table, err := s.journal.ListRecords(r.Context(), uid, s.userCurrency(r, uid), journal.ParseRecordType(recordType))
		if err != nil {
			s.serviceError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, RecordsResponse{
			Title:      table.Title,
			RecordType: recordType,
			Columns:    table.Columns,
			Rows:       table.Rows,
		})
	}
}

func (s *APIServer) exportRecordsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		recordType := mux.Vars(r)["recordType"]

		table, err := s.journal.ListRecords(r.Context(), uid, s.userCurrency(r, uid), journal.ParseRecordType(recordType))
		if err != nil {
			s.serviceError(w, err)
			return
		}

		// Empty selection suppresses the download entirely; never a
		// header-only file.
		data, err := report.WriteCSV(*table)
		if err != nil {
			if errors.Is(err, report.ErrNoRecords) {
				s.writeError(w, http.StatusNotFound, "No records to download")
				return
			}
			s.serviceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+report.Filename(recordType))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			s.logger.Error("Failed to write csv response", "error", err)
		}
	}
}

func (s *APIServer) getSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := s.accounts.Settings(r.Context(), userID(r))
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, settings)
	}
}

func (s *APIServer) updateSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if err := parseAnyForm(r); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid form submission")
			return
		}

		title := r.FormValue("app_title")
		if title == "" {
			s.writeError(w, http.StatusBadRequest, "App title is required")
			return
		}

		// A failed logo upload does not block the title update.
		var warning string
		if logoURL, warn := s.uploadAttachment(r, "logo"); warn != "" {
			warning = warn
		} else if logoURL != "" {
			if err := s.accounts.UpdateLogo(r.Context(), uid, logoURL); err != nil {
				s.serviceError(w, err)
				return
			}
		}

		if err := s.accounts.UpdateAppTitle(r.Context(), uid, title); err != nil {
			s.serviceError(w, err)
			return
		}

		resp := map[string]any{"message": "Settings updated successfully!"}
		if warning != "" {
			resp["warning"] = warning
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *APIServer) updateCurrencyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Currency string `json:"currency"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		// Unsupported codes are silently ignored, matching the original
		// redirect-without-change behavior.
		if currency.Supported(req.Currency) {
			if err := s.accounts.UpdateCurrency(r.Context(), userID(r), req.Currency); err != nil {
				s.serviceError(w, err)
				return
			}
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"currency": req.Currency})
	}
}

// userCurrency resolves the caller's preferred currency per request; a
// missing settings row falls back to the default code.
func (s *APIServer) userCurrency(r *http.Request, uid int64) string {
	settings, err := s.accounts.Settings(r.Context(), uid)
	if err != nil {
		return currency.Default
	}
	return settings.Currency
}

// uploadAttachment pushes the named form file, if present, to the media
// host. Upload failure is non-fatal: the caller proceeds with no
// attachment and surfaces the warning.
func (s *APIServer) uploadAttachment(r *http.Request, field string) (url, warning string) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
			s.logger.Error("Bad attachment in form", "error", err)
		}
		return "", ""
	}
	defer file.Close()

	if header.Filename == "" {
		return "", ""
	}

	url, err = s.uploader.Upload(r.Context(), header.Filename, file)
	if err != nil {
		s.logger.Error("Attachment upload failed", "error", err)
		return "", "Attachment upload failed"
	}
	return url, ""
}

// parseAnyForm accepts multipart posts (attachments) and plain form posts
// with the same handler code.
func parseAnyForm(r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return err
		}
		return r.ParseForm()
	}
	return nil
}
