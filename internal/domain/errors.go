package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNotAuthenticated is returned when an operation needs a signed-in learner.
	ErrNotAuthenticated = errors.New("learner is not authenticated")
	// ErrUnanswered is returned when a quiz is finished with a question left blank.
	ErrUnanswered = errors.New("please select an answer")
	// ErrInvalidOption indicates a selected option index outside the question's options.
	ErrInvalidOption = errors.New("selected option does not exist")
	// ErrModuleRequired indicates an empty module id.
	ErrModuleRequired = errors.New("module id is required")
	// ErrModuleNotActive is returned for scroll reports about a module the learner is not viewing.
	ErrModuleNotActive = errors.New("module is not open")
	// ErrThreatRequired indicates an empty threat id.
	ErrThreatRequired = errors.New("threat id is required")

	// ErrInvalidCredentials is returned by sign-in for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrUsernameTaken is returned when sign-up picks a username already in use.
	ErrUsernameTaken = errors.New("username is already taken")
	// ErrEmailTaken is returned when sign-up uses an email that already has an account.
	ErrEmailTaken = errors.New("user already registered")
	// ErrInvalidToken is returned for a malformed, expired or revoked session token.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrAccountNotFound is returned by account repositories on a lookup miss.
	ErrAccountNotFound = errors.New("account not found")
)

// ValidationError reports a rejected input field with a user-facing message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UnansweredError names the first question left blank on a submitted answer sheet.
type UnansweredError struct {
	Question int
}

func (e *UnansweredError) Error() string {
	return fmt.Sprintf("question %d: %s", e.Question+1, ErrUnanswered)
}

func (e *UnansweredError) Unwrap() error {
	return ErrUnanswered
}
