// Package validate holds the input checks shared by sign-up, sign-in and
// password change.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/jadapache/raices-vivas/core"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128

	// MinPasswordScore is the lowest strength accepted for a new password.
	MinPasswordScore = 4

	specialChars = `!@#$%^&*(),.?":{}|<>`
)

// Strength is the result of scoring a candidate password.
type Strength struct {
	Score    int      `json:"score"`
	Label    string   `json:"label"`
	Feedback []string `json:"feedback,omitempty"`
}

func (s Strength) IsValid() bool { return s.Score >= MinPasswordScore }

// PasswordStrength awards one point for each of: minimum length, an upper
// case letter, a lower case letter, a digit and a special character. Length
// counts characters; the letter and digit classes are ASCII only, so accented
// letters count toward length and nothing else.
func PasswordStrength(password string) Strength {
	var s Strength

	if utf8.RuneCountInString(password) >= MinPasswordLength {
		s.Score++
	} else {
		s.Feedback = append(s.Feedback, fmt.Sprintf("use at least %d characters", MinPasswordLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case 'A' <= r && r <= 'Z':
			upper = true
		case 'a' <= r && r <= 'z':
			lower = true
		case '0' <= r && r <= '9':
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}

	for _, c := range []struct {
		ok   bool
		hint string
	}{
		{upper, "add an upper case letter"},
		{lower, "add a lower case letter"},
		{digit, "add a number"},
		{special, "add a special character"},
	} {
		if c.ok {
			s.Score++
		} else {
			s.Feedback = append(s.Feedback, c.hint)
		}
	}

	s.Label = StrengthLabel(s.Score)
	return s
}

// StrengthLabel names a score for display.
func StrengthLabel(score int) string {
	switch {
	case score <= 1:
		return "very weak"
	case score == 2:
		return "weak"
	case score == 3:
		return "fair"
	case score == 4:
		return "strong"
	default:
		return "very strong"
	}
}

// WeakPasswordError carries the feedback for a rejected password.
type WeakPasswordError struct {
	Strength Strength
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("%s: %s", core.ErrPasswordTooWeak, strings.Join(e.Strength.Feedback, ", "))
}

func (e *WeakPasswordError) Unwrap() error { return core.ErrPasswordTooWeak }

// NewPassword checks a password that is about to be stored.
func NewPassword(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case password == "":
		return core.ErrPasswordRequired
	case n < MinPasswordLength:
		return core.ErrPasswordTooShort
	case n > MaxPasswordLength:
		return core.ErrPasswordTooLong
	}
	if s := PasswordStrength(password); !s.IsValid() {
		return &WeakPasswordError{Strength: s}
	}
	return nil
}

// Email normalises and checks an address. Display names are rejected.
func Email(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", core.ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", core.ErrInvalidEmail
	}
	return email, nil
}
