// Package auth provides the site login: OIDC against the identity provider
// with a signed session cookie, plus a local admin password fallback.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/nytimes/library-sub000/internal/logging"
)

const (
	sessionCookie = "library_session"
	stateCookie   = "library_oauth_state"
	sessionTTL    = 24 * time.Hour
)

type contextKey string

const userKey contextKey = "user_email"

// Config holds login configuration.
type Config struct {
	IssuerURL         string
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	SessionSecret     string
	AdminPasswordHash string // bcrypt hash, empty disables the fallback
}

// Auth issues and validates session cookies.
type Auth struct {
	oauth     *oauth2.Config
	verifier  *oidc.IDTokenVerifier
	secret    []byte
	adminHash string
}

// Claims is the session token payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// New creates the auth handler. An empty ClientID disables the OIDC flow;
// the admin fallback still works when a hash is configured.
func New(ctx context.Context, cfg Config) (*Auth, error) {
	a := &Auth{
		secret:    []byte(cfg.SessionSecret),
		adminHash: cfg.AdminPasswordHash,
	}
	if cfg.ClientID == "" {
		return a, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}
	a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	a.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	logging.Info("OIDC login enabled",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))
	return a, nil
}

// Enabled reports whether the OIDC flow is configured.
func (a *Auth) Enabled() bool {
	return a.oauth != nil
}

// HandleLogin redirects to the identity provider.
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if a.oauth == nil {
		http.Error(w, "login not configured", http.StatusNotImplemented)
		return
	}

	buf := make([]byte, 16)
	rand.Read(buf)
	state := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
	})
	http.Redirect(w, r, a.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback completes the OIDC flow and sets the session cookie.
func (a *Auth) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if a.oauth == nil {
		http.Error(w, "login not configured", http.StatusNotImplemented)
		return
	}

	stateC, err := r.Cookie(stateCookie)
	if err != nil || stateC.Value == "" || stateC.Value != r.URL.Query().Get("state") {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	token, err := a.oauth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logging.Error("code exchange failed", zap.Error(err))
		http.Error(w, "login failed", http.StatusUnauthorized)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id token in response", http.StatusUnauthorized)
		return
	}
	idToken, err := a.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		logging.Error("id token verification failed", zap.Error(err))
		http.Error(w, "login failed", http.StatusUnauthorized)
		return
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil || claims.Email == "" {
		http.Error(w, "no email claim", http.StatusUnauthorized)
		return
	}

	if err := a.issueSession(w, claims.Email); err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	logging.Info("user logged in", zap.String("email", claims.Email))
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleAdminLogin checks the posted password against the configured bcrypt
// hash and issues an admin session.
func (a *Auth) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if a.adminHash == "" {
		http.Error(w, "admin login not configured", http.StatusNotImplemented)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.adminHash), []byte(r.FormValue("password"))); err != nil {
		logging.Warn("admin login rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := a.issueSession(w, "admin@localhost"); err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleLogout clears the session cookie.
func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *Auth) issueSession(w http.ResponseWriter, email string) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
	})
	return nil
}

// Middleware places the session user, if any, in the request context.
// Requests without a valid session continue anonymously.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if email := a.sessionEmail(r); email != "" {
			r = r.WithContext(context.WithValue(r.Context(), userKey, email))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) sessionEmail(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return ""
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(c.Value, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return ""
	}
	return claims.Email
}

// UserEmail returns the authenticated user's email, or empty.
func UserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(userKey).(string); ok {
		return email
	}
	return ""
}
