// Package auth checks the shared token carried in the auth block of a
// request frame.
package auth

import (
	"crypto/subtle"
	"errors"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator accepts or rejects the auth block of one frame.
type Validator interface {
	Validate(token []byte) error
}

// StaticToken accepts one shared token. An empty Token denies everything.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token []byte) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), token) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token []byte) error

func (f FuncValidator) Validate(token []byte) error {
	return f(token)
}

// ForToken returns the validator for a configured token, or nil when no
// token is configured and frames go unchecked.
func ForToken(token string) Validator {
	if token == "" {
		return nil
	}
	return StaticToken{Token: token}
}
