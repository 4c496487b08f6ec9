package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicProjectionOmitsSecrets(t *testing.T) {
	changed := time.Now()
	resetHash := "deadbeef"
	user := User{
		ID:                     1,
		Name:                   "Ada",
		Email:                  "ada@example.com",
		Role:                   RoleUser,
		PasswordHash:           "$2a$10$secret",
		PasswordChangedAt:      &changed,
		PasswordResetTokenHash: &resetHash,
		PasswordResetExpires:   &changed,
	}

	data, err := json.Marshal(user.Public())
	require.NoError(t, err)

	body := strings.ToLower(string(data))
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "secret")
	assert.NotContains(t, body, "deadbeef")
}

func TestPasswordChangedAfter(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var user User
	assert.False(t, user.PasswordChangedAfter(issued), "no change recorded")

	before := issued.Add(-time.Minute)
	user.PasswordChangedAt = &before
	assert.False(t, user.PasswordChangedAfter(issued))

	// Same second as issuance does not count as a later change.
	sameSecond := issued.Add(500 * time.Millisecond)
	user.PasswordChangedAt = &sameSecond
	assert.False(t, user.PasswordChangedAfter(issued))

	after := issued.Add(2 * time.Second)
	user.PasswordChangedAt = &after
	assert.True(t, user.PasswordChangedAfter(issued))
}

func TestValidRole(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin} {
		assert.True(t, ValidRole(role))
	}
	assert.False(t, ValidRole("superadmin"))
	assert.False(t, ValidRole(""))
}
