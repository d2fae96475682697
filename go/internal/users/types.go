package users

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrEmailTaken         = errors.New("account exists")
	ErrInvalidCredentials = errors.New("wrong email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// RegisterRequest is the registration form as submitted
type RegisterRequest struct {
	Email           string `json:"email"`
	Birthdate       string `json:"birthdate"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	UserAgent       string `json:"-"`
}

// LoginRequest is the login form as submitted
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserParams is what the repository stores for a new account
type CreateUserParams struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Birthdate    time.Time
	UserAgent    string
}

// ValidationError carries one message per offending form field
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
