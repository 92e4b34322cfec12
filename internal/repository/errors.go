package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateUser is returned when a unique username or email
	// constraint is violated
	ErrDuplicateUser = errors.New("user with this email or username already exists")

	// ErrDuplicateToken is returned when trying to store a refresh token
	// hash that already exists
	ErrDuplicateToken = errors.New("token with this hash already exists")
)
