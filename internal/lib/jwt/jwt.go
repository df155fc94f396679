package jwt

import (
	"fmt"
	"time"

	"hisaab/internal/domain/models"

	"github.com/golang-jwt/jwt/v4"
)

const resetPurpose = "password-reset"

// ResetTokenTTL bounds how long a password-reset link stays usable.
const ResetTokenTTL = time.Hour

// NewToken issues a session bearer token for the user.
func NewToken(user *models.User, jwtSecret string, duration time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["uid"] = user.ID
	claims["username"] = user.Username
	claims["exp"] = time.Now().Add(duration).Unix()

	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies a session token and returns the user id it carries.
func ParseToken(tokenString string, secret string) (int64, error) {
	claims, err := parse(tokenString, secret)
	if err != nil {
		return 0, err
	}

	uid, ok := claims["uid"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid token")
	}
	return int64(uid), nil
}

// NewResetToken issues a signed, time-boxed token carrying the email of
// the account whose password may be reset.
func NewResetToken(email, jwtSecret string) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["purpose"] = resetPurpose
	claims["email"] = email
	claims["exp"] = time.Now().Add(ResetTokenTTL).Unix()

	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseResetToken verifies a reset token and returns the email it carries.
// Session tokens are rejected even though they share the signing key.
func ParseResetToken(tokenString string, secret string) (string, error) {
	claims, err := parse(tokenString, secret)
	if err != nil {
		return "", err
	}

	if purpose, _ := claims["purpose"].(string); purpose != resetPurpose {
		return "", fmt.Errorf("invalid token")
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", fmt.Errorf("invalid token")
	}
	return email, nil
}

func parse(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
