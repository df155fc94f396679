package models

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// Settings is the per-user branding and currency preference row.
type Settings struct {
	UserID       int64  `json:"user_id"`
	AppTitle     string `json:"app_title"`
	LogoFilename string `json:"logo_filename,omitempty"`
	Currency     string `json:"currency"`
}
