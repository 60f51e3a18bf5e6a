package token

import (
	"errors"
	"fmt"
)

// Verification failure classes. Callers match them with errors.Is.
var (
	ErrExpired      = errors.New("license token expired")
	ErrBadSignature = errors.New("license token signature invalid")
	ErrMalformed    = errors.New("license token malformed")
)

// VerificationError classifies why a token was rejected.
type VerificationError struct {
	Kind  error // one of ErrExpired, ErrBadSignature, ErrMalformed
	Cause error
}

func (e *VerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
	}
	return e.Kind.Error()
}

func (e *VerificationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func malformed(format string, args ...interface{}) error {
	return &VerificationError{Kind: ErrMalformed, Cause: fmt.Errorf(format, args...)}
}

// SigningError means the codec cannot mint tokens at all. It indicates key
// misconfiguration and never carries key material.
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing key %s: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}
