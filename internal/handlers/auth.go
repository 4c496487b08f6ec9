package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/trailtours/apiserver/internal/auth"
	"github.com/trailtours/apiserver/internal/services"
	"github.com/trailtours/apiserver/internal/store"
	"github.com/trailtours/apiserver/types"
)

const sessionCookieName = "jwt"

// AuthHandler provides the authentication and account endpoints.
type AuthHandler struct {
	authService  *services.AuthService
	issuer       *auth.TokenIssuer
	cookieTTL    time.Duration
	secureCookie bool
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, issuer *auth.TokenIssuer, cookieTTL time.Duration, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		issuer:       issuer,
		cookieTTL:    cookieTTL,
		secureCookie: secureCookie,
	}
}

// UserRouter registers the account routes on the given router.
func UserRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.Post("/forgotPassword", handler.ForgotPassword)
	r.Patch("/resetPassword/{token}", handler.ResetPassword)
	r.With(handler.Protect).Patch("/updateMyPassword", handler.UpdateMyPassword)
	r.With(handler.Protect).Get("/me", handler.Me)
}

// Protect authenticates the request: it extracts the bearer token, verifies
// it, loads the subject, and rejects tokens issued before the subject's last
// password change. The loaded user is attached to the request context.
func (h *AuthHandler) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "You are not logged in! Please log in to gain access")
			return
		}

		claims, err := h.issuer.Verify(tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "Your token has expired! Please log in again.")
				return
			}
			writeError(w, http.StatusUnauthorized, "Invalid token. Please log in again.")
			return
		}

		user, err := h.authService.UserByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "The user belonging to this token does no longer exist.")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to authenticate")
			return
		}

		// Stateless tokens cannot be revoked; a password change is the one
		// event that invalidates everything issued before it.
		if user.PasswordChangedAfter(claims.IssuedAt) {
			writeError(w, http.StatusUnauthorized, "Password changed recently! Please log in again.")
			return
		}

		ctx := context.WithValue(r.Context(), contextUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RestrictTo authorizes by role membership. It performs no I/O and must run
// after Protect has attached the user.
func RestrictTo(roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "You are not logged in! Please log in to gain access")
				return
			}
			if !slices.Contains(roles, user.Role) {
				writeError(w, http.StatusForbidden, "You do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Signup creates an account and logs the new user in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide name, email and password")
		return
	}

	user, token, err := h.authService.Signup(r.Context(), req.Name, req.Email, req.Password, req.PasswordConfirm)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.sendToken(w, http.StatusCreated, user, token)
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide email and password")
		return
	}

	user, token, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.sendToken(w, http.StatusOK, user, token)
}

// ForgotPassword issues a reset token and mails it to the account's address.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Please provide an email address")
		return
	}

	resetURLBase := requestScheme(r) + "://" + r.Host + "/api/v1/users/resetPassword"
	if err := h.authService.ForgotPassword(r.Context(), req.Email, resetURLBase); err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Status: "success", Message: "Token sent to email!"})
}

// ResetPassword redeems a reset token for a new password and a session.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	rawToken := chi.URLParam(r, "token")
	if rawToken == "" {
		writeError(w, http.StatusBadRequest, "Token is not valid or has expired")
		return
	}

	var req PasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, token, err := h.authService.ResetPassword(r.Context(), rawToken, req.Password, req.PasswordConfirm)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.sendToken(w, http.StatusOK, user, token)
}

// UpdateMyPassword changes the authenticated user's password.
func (h *AuthHandler) UpdateMyPassword(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "You are not logged in! Please log in to gain access")
		return
	}

	var req UpdatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, token, err := h.authService.UpdatePassword(r.Context(), user.ID, req.PasswordCurrent, req.Password, req.PasswordConfirm)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.sendToken(w, http.StatusOK, updated, token)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "You are not logged in! Please log in to gain access")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Status: "success", Data: UserData{User: user.Public()}})
}

// sendToken writes the success envelope and sets the HTTP-only session
// cookie. The response body carries the PublicUser projection only.
func (h *AuthHandler) sendToken(w http.ResponseWriter, status int, user types.User, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Expires:  time.Now().Add(h.cookieTTL),
		HttpOnly: true,
		Secure:   h.secureCookie,
		Path:     "/",
	})
	writeJSON(w, status, AuthResponse{
		Status: "success",
		Token:  token,
		Data:   UserData{User: user.Public()},
	})
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
	case errors.Is(err, services.ErrCurrentPasswordWrong):
		writeError(w, http.StatusUnauthorized, "Your current password is wrong")
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "There is no user with this email")
	case errors.Is(err, services.ErrResetTokenInvalid):
		writeError(w, http.StatusBadRequest, "Token is not valid or has expired")
	case errors.Is(err, services.ErrEmailDelivery):
		writeError(w, http.StatusInternalServerError, "There was an error sending the email. Try again later!")
	case errors.Is(err, services.ErrPasswordMismatch):
		writeError(w, http.StatusBadRequest, "Passwords do not match")
	case errors.Is(err, services.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "Email already in use")
	default:
		writeError(w, http.StatusInternalServerError, "Something went wrong")
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

type SignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type PasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type UserData struct {
	User types.PublicUser `json:"user"`
}

type AuthResponse struct {
	Status string   `json:"status"`
	Token  string   `json:"token"`
	Data   UserData `json:"data"`
}

type UserResponse struct {
	Status string   `json:"status"`
	Data   UserData `json:"data"`
}

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
