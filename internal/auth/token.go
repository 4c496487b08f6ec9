package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid is returned for malformed tokens, bad signatures, and
	// tokens signed with an unexpected method.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrTokenExpired is returned when a structurally valid token has
	// outlived its TTL.
	ErrTokenExpired = errors.New("token has expired")
)

// TokenClaims is the verified content of a session token.
type TokenClaims struct {
	// UserID is the subject the token was issued to.
	UserID int

	// IssuedAt is the issue instant, at second resolution.
	IssuedAt time.Time
}

// TokenIssuer signs and verifies stateless HS256 session tokens. The signing
// method is pinned: a token that names any other algorithm is rejected
// regardless of its signature.
type TokenIssuer struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewTokenIssuer constructs a TokenIssuer with the given secret and TTL.
func NewTokenIssuer(secret string, tokenTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// Sign issues a session token for the given user.
func (t *TokenIssuer) Sign(userID int) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify checks the token's signature and TTL and returns its claims.
// Fails with ErrTokenExpired when the TTL has elapsed and ErrTokenInvalid
// for every other defect.
func (t *TokenIssuer) Verify(tokenString string) (TokenClaims, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, ErrTokenInvalid
	}
	if !token.Valid {
		return TokenClaims{}, ErrTokenInvalid
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return TokenClaims{}, ErrTokenInvalid
	}
	if claims.IssuedAt == nil {
		return TokenClaims{}, ErrTokenInvalid
	}

	return TokenClaims{
		UserID:   userID,
		IssuedAt: claims.IssuedAt.Time,
	}, nil
}
