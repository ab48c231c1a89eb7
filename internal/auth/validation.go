package auth

import (
	"net/mail"
	"regexp"
	"strings"

	"cybershield-progress/internal/domain"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MinPasswordLength = 6
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateUsername returns a *domain.ValidationError describing the first rule broken.
func ValidateUsername(username string) error {
	switch {
	case len(username) < MinUsernameLength:
		return &domain.ValidationError{Field: "username", Message: "Username must be at least 3 characters"}
	case len(username) > MaxUsernameLength:
		return &domain.ValidationError{Field: "username", Message: "Username must be less than 20 characters"}
	case !usernamePattern.MatchString(username):
		return &domain.ValidationError{Field: "username", Message: "Only letters, numbers, and underscores allowed"}
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &domain.ValidationError{Field: "password", Message: "Password should be at least 6 characters"}
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &domain.ValidationError{Field: "email", Message: "Unable to validate email address: invalid format"}
	}
	return strings.ToLower(email), nil
}
