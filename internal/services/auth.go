package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trailtours/apiserver/internal/auth"
	"github.com/trailtours/apiserver/internal/email"
	"github.com/trailtours/apiserver/internal/store"
	"github.com/trailtours/apiserver/types"
)

// Operational errors of the auth flows. Handlers translate these to status
// codes; anything else is treated as an internal fault.
var (
	// ErrInvalidCredentials covers both "unknown email" and "wrong
	// password". Login must never reveal which branch failed.
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrCurrentPasswordWrong is returned when a password change presents
	// the wrong current password.
	ErrCurrentPasswordWrong = errors.New("current password is wrong")

	// ErrUserNotFound is returned by the forgot-password flow for an
	// unknown email address.
	ErrUserNotFound = errors.New("no user with this email")

	// ErrResetTokenInvalid covers wrong, expired, and already-consumed
	// reset tokens. The cases are deliberately indistinguishable so the
	// response does not leak the token's validity window.
	ErrResetTokenInvalid = errors.New("reset token is not valid or has expired")

	// ErrEmailDelivery is returned when the reset email could not be sent.
	// By the time the caller sees it the pending token has been cleared.
	ErrEmailDelivery = errors.New("failed to send email")

	// ErrPasswordMismatch is returned when password and passwordConfirm
	// differ.
	ErrPasswordMismatch = errors.New("passwords do not match")

	// ErrPasswordTooShort is returned for passwords under the minimum
	// length.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")

	// ErrEmailTaken is returned when signup uses an email that already has
	// an account.
	ErrEmailTaken = errors.New("email already in use")
)

const minPasswordLength = 8

// UserRepository defines the persistence operations the auth flows need.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string, changedAt time.Time) error
	SetResetToken(ctx context.Context, id int, tokenHash string, expires time.Time) error
	ClearResetToken(ctx context.Context, id int) error
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (types.User, error)
}

// AuthService implements signup, login, the password-reset lifecycle, and
// authenticated password changes.
type AuthService struct {
	users    UserRepository
	tokens   *auth.TokenIssuer
	mail     email.Sender
	resetTTL time.Duration
	log      *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(users UserRepository, tokens *auth.TokenIssuer, mail email.Sender, resetTTL time.Duration, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		users:    users,
		tokens:   tokens,
		mail:     mail,
		resetTTL: resetTTL,
		log:      log,
	}
}

// Signup creates an account and logs the new user in. The role is always the
// default: it is never taken from input, so a caller cannot self-assign a
// privileged role.
func (s *AuthService) Signup(ctx context.Context, name, emailAddr, password, passwordConfirm string) (types.User, string, error) {
	if err := validateNewPassword(password, passwordConfirm); err != nil {
		return types.User{}, "", err
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Name:         name,
		Email:        emailAddr,
		Role:         types.RoleUser,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, "", ErrEmailTaken
		}
		return types.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Sign(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("sign token: %w", err)
	}
	return user, token, nil
}

// Login authenticates by email and password. Unknown email and wrong
// password both fail with ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (types.User, string, error) {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", fmt.Errorf("look up user: %w", err)
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Sign(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("sign token: %w", err)
	}
	return user, token, nil
}

// UserByID loads a user for the authentication middleware.
func (s *AuthService) UserByID(ctx context.Context, id int) (types.User, error) {
	return s.users.GetByID(ctx, id)
}

// ForgotPassword issues a single-use reset token and mails it to the user.
// Only the SHA-256 of the token is persisted, paired with a fixed expiry. If
// the email cannot be sent the stored token is cleared again, so no pending
// token lingers that the user never received.
//
// Unknown emails fail with ErrUserNotFound. That discloses account
// existence, unlike Login; the behavior is kept as-is.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr, resetURLBase string) error {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("look up user: %w", err)
	}

	raw, hash, err := auth.NewResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	expires := time.Now().Add(s.resetTTL)
	if err := s.users.SetResetToken(ctx, user.ID, hash, expires); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	resetURL := resetURLBase + "/" + raw
	msg := email.Message{
		To:      user.Email,
		Subject: "Your password reset token (valid for 10 mins)",
		Body: fmt.Sprintf(
			"Forgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s.\nIf you didn't forget your password, please ignore this email!",
			resetURL,
		),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.log.Error("reset email delivery failed, clearing pending token",
			slog.Int("user_id", user.ID), slog.String("error", err.Error()))
		if clearErr := s.users.ClearResetToken(ctx, user.ID); clearErr != nil {
			s.log.Error("failed to clear pending reset token",
				slog.Int("user_id", user.ID), slog.String("error", clearErr.Error()))
		}
		return ErrEmailDelivery
	}
	return nil
}

// ResetPassword redeems a raw reset token for a new password and an
// immediate session. The redemption is a single conditional update in the
// store, so a token can be consumed at most once even under concurrent
// attempts.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, password, passwordConfirm string) (types.User, string, error) {
	if err := validateNewPassword(password, passwordConfirm); err != nil {
		return types.User{}, "", err
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.ConsumeResetToken(ctx, auth.HashResetToken(rawToken), hashed, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrResetTokenInvalid
		}
		return types.User{}, "", fmt.Errorf("consume reset token: %w", err)
	}

	token, err := s.tokens.Sign(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("sign token: %w", err)
	}
	return user, token, nil
}

// UpdatePassword changes the password of an authenticated user after
// verifying the current one, then issues a fresh session token. Tokens
// issued before the change become stale.
func (s *AuthService) UpdatePassword(ctx context.Context, userID int, currentPassword, password, passwordConfirm string) (types.User, string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("look up user: %w", err)
	}

	if !auth.CheckPassword(currentPassword, user.PasswordHash) {
		return types.User{}, "", ErrCurrentPasswordWrong
	}

	if err := validateNewPassword(password, passwordConfirm); err != nil {
		return types.User{}, "", err
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	changedAt := time.Now()
	if err := s.users.UpdatePassword(ctx, user.ID, hashed, changedAt); err != nil {
		return types.User{}, "", fmt.Errorf("update password: %w", err)
	}
	user.PasswordHash = hashed
	user.PasswordChangedAt = &changedAt

	token, err := s.tokens.Sign(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("sign token: %w", err)
	}
	return user, token, nil
}

func validateNewPassword(password, passwordConfirm string) error {
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if password != passwordConfirm {
		return ErrPasswordMismatch
	}
	return nil
}
