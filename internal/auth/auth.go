// Package auth resolves sessions and publishes session-change events.
package auth

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/profile"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailTaken         = errors.New("user already registered")
	ErrInvalidEmail       = errors.New("email address is invalid")
	ErrWeakPassword       = errors.New("password must be at least 8 characters long, with a number and a special character")
)

// EventKind describes a session change.
type EventKind string

const (
	EventSignedIn  EventKind = "SIGNED_IN"
	EventSignedOut EventKind = "SIGNED_OUT"
)

// Event is published whenever a session starts or ends.
type Event struct {
	Kind   EventKind `json:"kind"`
	UserID string    `json:"userId"`
	Token  string    `json:"token"`
}

// Session is an issued access token bound to an identity.
type Session struct {
	Token    string           `json:"token"`
	Identity profile.Identity `json:"user"`
}

// Provider is the auth collaborator: session lookup, credential flows and a
// feed of session-change events.
type Provider interface {
	// Session returns the identity behind token, or nil when there is no live session.
	Session(ctx context.Context, token string) (*profile.Identity, error)
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, token string) error
	// Subscribe delivers events until ctx is done, then closes the channel.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// ValidatePassword enforces the sign-up password policy.
func ValidatePassword(password string) error {
	if len([]rune(password)) < 8 {
		return ErrWeakPassword
	}
	var hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasDigit || !hasSpecial {
		return ErrWeakPassword
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address, rejecting obviously malformed ones.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(normalized, "@")
	if at <= 0 || at == len(normalized)-1 || strings.ContainsAny(normalized, " \t") {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// DisplayMessage capitalises an error message for inline form display.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if msg == "" {
		return msg
	}
	runes := []rune(msg)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
