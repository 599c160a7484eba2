package users

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
)

// RoleType represents the role the console backend assigns to a user
type RoleType string

const (
	RoleAdmin    RoleType = "admin"    // Full access to devices, orders, employees and groups
	RoleManager  RoleType = "manager"  // Can manage orders and employees
	RoleEmployee RoleType = "employee" // Regular console user
)

const minPasswordLength = 6

// User is the server-issued profile returned alongside every token pair.
// It is replaced wholesale on login/refresh and never edited locally.
type User struct {
	ID        string    `json:"id,omitempty"`        // Unique identifier for the user
	Name      string    `json:"name,omitempty"`      // Display name
	Email     string    `json:"email,omitempty"`     // User's email address
	Role      RoleType  `json:"role,omitempty"`      // Role assigned by the backend
	CreatedAt time.Time `json:"createdAt,omitempty"` // When the account was created
	UpdatedAt time.Time `json:"updatedAt,omitempty"` // Last profile update
}

// Credential is the login form payload. It is transient and never persisted.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Profile is the registration form payload. It is transient and never persisted.
type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ValidationError reports a field rejected before any request is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Validate checks the login form
func (c Credential) Validate() error {
	if err := ValidateEmail(c.Email); err != nil {
		return err
	}
	if c.Password == "" {
		return &ValidationError{Field: "password", Reason: "is required"}
	}
	return nil
}

// Validate checks the registration form
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	return ValidatePasswordStrength(p.Password)
}

func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return nil
}

// ValidatePasswordStrength checks if password meets the registration requirements:
// - At least 6 characters long
// - Contains at least one letter
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters long", minPasswordLength)}
	}

	var (
		hasLetter bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsLetter(char) {
			hasLetter = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasLetter {
		return &ValidationError{Field: "password", Reason: "must contain at least one letter"}
	}
	if !hasNumber {
		return &ValidationError{Field: "password", Reason: "must contain at least one number"}
	}

	return nil
}

// IsAdmin returns true if the user has admin privileges
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// HasRole checks if the user has any of the given roles
func (u *User) HasRole(roles ...RoleType) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
