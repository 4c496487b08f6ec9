package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when an insert violates the unique email
// constraint on users.
var ErrDuplicateEmail = errors.New("email already in use")

const pqUniqueViolation = "23505"

func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}
