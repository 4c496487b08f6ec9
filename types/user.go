package types

import "time"

// Role is the authorization level of a user. The set is fixed: authorization
// checks are membership tests against these constants, never comparisons
// against caller-supplied strings.
type Role string

const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return true
	}
	return false
}

// User represents an account in the system.
// It contains identity, role, and password lifecycle metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address, unique and used as the login key.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level within the system.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// PasswordChangedAt is the timestamp of the last password mutation.
	// Nil until the password is changed for the first time. Tokens issued
	// before this instant are rejected as stale.
	PasswordChangedAt *time.Time `json:"-" db:"password_changed_at"`

	// PasswordResetTokenHash is the SHA-256 hash of the currently
	// outstanding reset token, or nil when no reset is pending. It is set
	// and cleared together with PasswordResetExpires.
	PasswordResetTokenHash *string `json:"-" db:"password_reset_token_hash"`

	// PasswordResetExpires is the absolute expiry of the outstanding reset
	// token, or nil when no reset is pending.
	PasswordResetExpires *time.Time `json:"-" db:"password_reset_expires"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PublicUser is the externally visible projection of a User. It carries no
// password or reset-token fields at all, so a secret can never leak into a
// response through a missing struct tag.
type PublicUser struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Public returns the response-safe projection of the user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// PasswordChangedAfter reports whether the user's password was changed
// strictly after the given instant. Comparison is at second resolution
// because JWT issued-at claims carry Unix seconds.
func (u User) PasswordChangedAfter(t time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > t.Unix()
}
