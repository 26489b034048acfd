package coinledger

import (
	"errors"
	"fmt"

	"github.com/xraph/coinledger/kv"
	"github.com/xraph/coinledger/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput = errors.New("coinledger: invalid input")

	// Coin errors
	ErrCoinNotFound      = errors.New("coinledger: coin not found")
	ErrCoinAlreadyExists = errors.New("coinledger: coin already exists")
	ErrBalanceMismatch   = errors.New("coinledger: coin balance does not match its accounts")

	// Account errors
	ErrAccountNotFound       = errors.New("coinledger: account not found")
	ErrAccountHolderNotFound = errors.New("coinledger: account holder not found")
	ErrSelfTransfer          = errors.New("coinledger: transfer to self rejected")

	// Amount errors
	ErrInvalidAmount       = types.ErrInvalidAmount
	ErrInsufficientBalance = types.ErrInsufficientBalance

	// Store errors
	ErrStoreClosed = kv.ErrClosed
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("coinledger: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "coinledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("coinledger: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCoinNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAccountHolderNotFound)
}

// IsBalanceError returns true if the error comes from amount validation or a
// debit exceeding a balance.
func IsBalanceError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidAmount)
}
