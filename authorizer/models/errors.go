package models

import (
	"errors"
	"fmt"
)

// Business failures. They are terminal and never retried.
var (
	ErrCardNotFound        = errors.New("card not found")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCardAlreadyExists   = errors.New("card already exists")
)

var (
	// ErrRetriesExhausted means every attempt lost a version race; the
	// transaction itself was not found invalid.
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrInvalidAmount    = errors.New("amount must be positive with at most two decimal places")
)

// DeclineError is returned when a validation rule rejects a transaction.
type DeclineError struct {
	Rule   string
	Reason error
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("declined by %s: %v", e.Rule, e.Reason)
}

func (e *DeclineError) Unwrap() error {
	return e.Reason
}

// AlreadyExistsError carries the card that is already stored under the
// requested number.
type AlreadyExistsError struct {
	Card *Card
}

func (e *AlreadyExistsError) Error() string {
	return ErrCardAlreadyExists.Error()
}

func (e *AlreadyExistsError) Unwrap() error {
	return ErrCardAlreadyExists
}

// IsBusinessFailure reports whether err is a decline or a duplicate card.
func IsBusinessFailure(err error) bool {
	var decline *DeclineError
	return errors.As(err, &decline) || errors.Is(err, ErrCardAlreadyExists)
}
