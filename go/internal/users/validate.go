package users

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	minPasswordLength      = 8
	maxPasswordLength      = 64
	minUniquePasswordRunes = 6
	// bcrypt ignores anything past this
	maxPasswordBytes = 72

	birthdateLayout = "2006-01-02"
)

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

func uniqueRunes(s string) int {
	seen := make(map[rune]struct{})
	for _, r := range s {
		seen[r] = struct{}{}
	}
	return len(seen)
}

// validateRegister checks the registration form and returns the parsed birthdate
func validateRegister(req RegisterRequest) (time.Time, error) {
	verr := &ValidationError{}

	switch {
	case req.Email == "":
		verr.add("email", "Please Enter your Email.")
	case !validEmail(req.Email):
		verr.add("email", "Invalid email address.")
	}

	var birthdate time.Time
	if strings.TrimSpace(req.Birthdate) == "" {
		verr.add("birthdate", "Please fill this field.")
	} else {
		var err error
		birthdate, err = time.Parse(birthdateLayout, strings.TrimSpace(req.Birthdate))
		if err != nil {
			verr.add("birthdate", "Not a valid date value.")
		}
	}

	n := utf8.RuneCountInString(req.Password)
	switch {
	case req.Password == "":
		verr.add("password", "Please create a password.")
	case n < minPasswordLength || n > maxPasswordLength:
		verr.add("password", "Password must be 8-64 characters.")
	case uniqueRunes(req.Password) < minUniquePasswordRunes:
		verr.add("password", "Password must contain at least 5 unique character.")
	case len(req.Password) > maxPasswordBytes:
		verr.add("password", "Password is too long.")
	}

	switch {
	case req.ConfirmPassword == "":
		verr.add("confirm_password", "Please confirm your password.")
	case req.ConfirmPassword != req.Password:
		verr.add("confirm_password", "Passwords don't match.")
	}

	return birthdate, verr.orNil()
}

func validateLogin(req LoginRequest) error {
	verr := &ValidationError{}
	if req.Email == "" {
		verr.add("email", "Please Enter your email address.")
	}
	if req.Password == "" {
		verr.add("password", "Please enter your password")
	}
	return verr.orNil()
}
