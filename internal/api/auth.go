package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ernie/pokearena/internal/auth"
	"github.com/ernie/pokearena/internal/storage"
)

// RegisterRequest is the request body for registration
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionUser is the public view of the logged-in user
type SessionUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
}

// LoginResponse is the response body for successful login
type LoginResponse struct {
	Message string      `json:"message"`
	User    SessionUser `json:"user"`
	Token   string      `json:"token"`
}

// handleRegister creates an account
func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	var body RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	body.Email = strings.TrimSpace(body.Email)

	if msg := auth.ValidateDisplayName(body.FirstName); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if body.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required.")
		return
	}
	if msg := auth.ValidatePassword(body.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		r.logger.Error("hashing password", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during registration.")
		return
	}

	user, err := r.store.CreateUser(req.Context(), body.FirstName, body.Email, hash)
	if errors.Is(err, storage.ErrEmailTaken) {
		writeError(w, http.StatusBadRequest, "User with this email already exists.")
		return
	}
	if err != nil {
		r.logger.Error("creating user", "email", body.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during registration.")
		return
	}

	r.logger.Info("user registered", "user_id", user.ID)
	writeMessage(w, http.StatusCreated, "User registered successfully!")
}

// handleLogin checks credentials and starts a session
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var login LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&login); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	user, err := r.store.GetUserByEmail(req.Context(), strings.TrimSpace(login.Email))
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		r.logger.Error("loading user", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during login.")
		return
	}
	if user == nil || !auth.CheckPassword(login.Password, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "Invalid email or password.")
		return
	}

	token, err := r.auth.GenerateToken(user.ID, user.DisplayName, user.Email)
	if err != nil {
		r.logger.Error("generating token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during login.")
		return
	}

	r.setSessionCookie(w, token, r.auth.TokenDuration())
	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful!",
		User:    SessionUser{ID: user.ID, FirstName: user.DisplayName, Email: user.Email},
		Token:   token,
	})
}

// handleLogout clears the session cookie (tokens are stateless)
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	r.setSessionCookie(w, "", -1)
	writeMessage(w, http.StatusOK, "Logout successful.")
}

// handleAuthStatus reports whether the request carries a valid session
func (r *Router) handleAuthStatus(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)
	if claims == nil {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loggedIn": true,
		"user":     SessionUser{ID: claims.UserID, FirstName: claims.DisplayName, Email: claims.Email},
	})
}

func (r *Router) setSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     r.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	http.SetCookie(w, cookie)
}

type claimsKey struct{}

// requireAuth is middleware that validates the session before calling the handler
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		claims := r.getAuthClaims(req)
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, req.WithContext(context.WithValue(req.Context(), claimsKey{}, claims)))
	}
}

// getAuthClaims extracts and validates the session token from the cookie or
// the Authorization header. Tokens of users that no longer exist are rejected.
func (r *Router) getAuthClaims(req *http.Request) *auth.Claims {
	if claims, ok := req.Context().Value(claimsKey{}).(*auth.Claims); ok {
		return claims
	}

	var token string
	if c, err := req.Cookie(r.cookieName); err == nil && c.Value != "" {
		token = c.Value
	} else if h := req.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		return nil
	}

	claims, err := r.auth.ValidateToken(token)
	if err != nil {
		return nil
	}

	if _, err := r.store.GetUserByID(req.Context(), claims.UserID); err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			r.logger.Error("loading session user", "user_id", claims.UserID, "error", err)
		}
		return nil
	}
	return claims
}
