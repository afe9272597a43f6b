package types

import "time"

// User represents a team member account.
// It contains identity, authorization, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. It is unique across all users
	// and is the login identifier.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt digest of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsAdmin grants access to administrative operations.
	IsAdmin bool `json:"isAdmin" db:"is_admin"`

	// Role is the user's job role within the team (e.g., "Developer").
	// It carries no authorization meaning; see IsAdmin.
	Role string `json:"role" db:"role"`

	// Title is the user's job title.
	Title string `json:"title" db:"title"`

	// IsActive is false for accounts disabled by an administrator.
	// Disabled accounts cannot log in.
	IsActive bool `json:"isActive" db:"is_active"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Identity is the caller resolved from a session token.
// It is the User projection without credentials.
type Identity struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"isAdmin"`
	Role     string `json:"role"`
	Title    string `json:"title"`
	IsActive bool   `json:"isActive"`
}

// TeamMember is the public listing view of a user.
type TeamMember struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	IsActive bool   `json:"isActive"`
}
