package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"hisaab/internal/config"
	"hisaab/internal/domain/models"
	"hisaab/internal/journal"
	"hisaab/internal/ledger"
	"hisaab/internal/lib/jwt"
	"hisaab/internal/report"
	"hisaab/internal/storage"

	"github.com/gorilla/mux"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Ledger is the loan/repayment surface the handlers call.
type Ledger interface {
	RecordLoan(ctx context.Context, userID int64, p ledger.LoanParams) (int64, error)
	RecordRepayment(ctx context.Context, userID int64, p ledger.RepaymentParams) (int64, error)
	Outstanding(ctx context.Context, userID int64, code string) ([]models.Loan, error)
}

// Journal is the transaction/report surface the handlers call.
type Journal interface {
	RecordTransaction(ctx context.Context, userID int64, p journal.TransactionParams) (int64, error)
	Summaries(ctx context.Context, userID int64, code string) (*journal.Summary, error)
	ListRecords(ctx context.Context, userID int64, code string, rt journal.RecordType) (*report.Table, error)
}

// AccountStore covers users and their settings.
type AccountStore interface {
	SaveUser(ctx context.Context, username, email string, passHash []byte, defaultCurrency, defaultTitle string) (int64, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, email string, passHash []byte) error
	Settings(ctx context.Context, userID int64) (*models.Settings, error)
	UpdateAppTitle(ctx context.Context, userID int64, title string) error
	UpdateLogo(ctx context.Context, userID int64, logoURL string) error
	UpdateCurrency(ctx context.Context, userID int64, currency string) error
}

// Mailer delivers outbound mail.
type Mailer interface {
	Send(to, subject, body string) error
}

// Uploader stores an attachment and returns its durable URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, file io.Reader) (string, error)
}

type APIServer struct {
	config    *config.Config
	logger    *slog.Logger
	server    *http.Server
	ledger    Ledger
	journal   Journal
	accounts  AccountStore
	mailer    Mailer
	uploader  Uploader
	jwtSecret []byte
}

func New(cfg *config.Config, logger *slog.Logger, ldg Ledger, jrn Journal, accounts AccountStore, mailer Mailer, uploader Uploader) *APIServer {
	return &APIServer{
		config: cfg,
		logger: logger,
		server: &http.Server{
			Addr: cfg.ApiHost + ":" + strconv.Itoa(cfg.ApiPort),
		},
		ledger:    ldg,
		journal:   jrn,
		accounts:  accounts,
		mailer:    mailer,
		uploader:  uploader,
		jwtSecret: []byte(cfg.Auth.JwtSecret),
	}
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting server", slog.String("port", strconv.Itoa(s.config.ApiPort)))

	s.server.Handler = s.Router()

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")
	return s.server.Shutdown(ctx)
}

// Router wires every route. Exposed so tests can drive the handlers
// through httptest without binding a listener.
func (s *APIServer) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/register", s.registerHandler()).Methods("POST")
	router.HandleFunc("/api/login", s.loginHandler()).Methods("POST")
	router.HandleFunc("/api/forgot-password", s.forgotPasswordHandler()).Methods("POST")
	router.HandleFunc("/api/reset-password", s.resetPasswordHandler()).Methods("POST")

	router.HandleFunc("/api/dashboard", s.authenticate(s.dashboardHandler())).Methods("GET")
	router.HandleFunc("/api/transactions", s.authenticate(s.addTransactionHandler())).Methods("POST")
	router.HandleFunc("/api/loans", s.authenticate(s.addLoanHandler())).Methods("POST")
	router.HandleFunc("/api/loans/{id:[0-9]+}/repayments", s.authenticate(s.recordRepaymentHandler())).Methods("POST")
	router.HandleFunc("/api/records/{recordType}", s.authenticate(s.viewRecordsHandler())).Methods("GET")
	router.HandleFunc("/api/records/{recordType}/export", s.authenticate(s.exportRecordsHandler())).Methods("GET")
	router.HandleFunc("/api/settings", s.authenticate(s.getSettingsHandler())).Methods("GET")
	router.HandleFunc("/api/settings", s.authenticate(s.updateSettingsHandler())).Methods("POST")
	router.HandleFunc("/api/settings/currency", s.authenticate(s.updateCurrencyHandler())).Methods("POST")

	return router
}

func (s *APIServer) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenHeader := r.Header.Get("Authorization")
		if tokenHeader == "" {
			s.writeError(w, http.StatusUnauthorized, "Missing token")
			return
		}

		parts := strings.Split(tokenHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.writeError(w, http.StatusUnauthorized, "Invalid token format")
			return
		}

		uid, err := jwt.ParseToken(parts[1], string(s.jwtSecret))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	}
}

func userID(r *http.Request) int64 {
	uid, _ := r.Context().Value(userIDKey).(int64)
	return uid
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// serviceError maps the shared error taxonomy onto HTTP statuses without
// leaking raw faults to the client.
func (s *APIServer) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation) || errors.Is(err, journal.ErrValidation):
		s.writeError(w, http.StatusBadRequest, trimOp(err))
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, storage.ErrDuplicate):
		s.writeError(w, http.StatusConflict, "Already exists")
	default:
		s.logger.Error("Request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "An error occurred")
	}
}

// trimOp strips the internal operation prefix from a validation error so
// the client sees only the field message.
func trimOp(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, "validation: "); i >= 0 {
		return msg[i+len("validation: "):]
	}
	return msg
}
