package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const adminIssuer = "medicinet"

var (
	ErrInvalidPasskey = errors.New("invalid passkey")
	ErrInvalidToken   = errors.New("invalid admin token")
)

// AdminAuth exchanges the clinic passkey for a short-lived signed token and
// guards the admin routes with it.
type AdminAuth struct {
	passkeyHash []byte
	secret      []byte
	ttl         time.Duration
	now         func() time.Time
}

func NewAdminAuth(passkeyHash, secret string, ttl time.Duration) *AdminAuth {
	return &AdminAuth{
		passkeyHash: []byte(passkeyHash),
		secret:      []byte(secret),
		ttl:         ttl,
		now:         time.Now,
	}
}

func (a *AdminAuth) Issue(passkey string) (string, time.Time, error) {
	if err := bcrypt.CompareHashAndPassword(a.passkeyHash, []byte(passkey)); err != nil {
		return "", time.Time{}, ErrInvalidPasskey
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    adminIssuer,
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin token: %w", err)
	}
	return token, expires, nil
}

func (a *AdminAuth) Verify(token string) error {
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminIssuer),
		jwt.WithSubject("admin"),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token", "Authorization: Bearer <token> is required")
			return
		}
		if err := a.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", "admin session is invalid or expired")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func adminSessionHandler(auth *AdminAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		token, expires, err := auth.Issue(req.Passkey)
		if err != nil {
			if errors.Is(err, ErrInvalidPasskey) {
				writeError(w, http.StatusUnauthorized, "invalid_passkey", "passkey is incorrect")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, AdminSessionResponse{Token: token, ExpiresAt: expires})
	}
}
