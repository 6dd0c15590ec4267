package types

import "time"

// User represents an account in either service.
// It contains identity and audit metadata.
type User struct {
	// ID is the generated string identifier of the user.
	ID string `json:"id"`

	// Email is the user's email address. It is used to log in and is
	// expected to be unique.
	Email string `json:"email"`

	// Name is the user's display or full name.
	Name string `json:"name"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-"`

	// CreatedAt is the timestamp when the user registered.
	CreatedAt time.Time `json:"created_at"`
}
