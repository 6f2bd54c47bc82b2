package ledger

import "errors"

var (
	// ErrNotInitialized is returned by operations on a ledger that has not
	// been created yet.
	ErrNotInitialized = errors.New("ledger not initialized")

	// ErrAlreadyInitialized is returned when initialize is called twice.
	ErrAlreadyInitialized = errors.New("ledger already initialized")

	// ErrUnauthorized is returned when the caller lacks the required
	// privilege (admin for mint/burn/reserve updates).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidAccount is returned when a referenced identity fails a
	// validity precondition (null identity where one is required).
	ErrInvalidAccount = errors.New("invalid account")

	// ErrInvalidDaoAccount is returned when the fee recipient would be set
	// to the null identity.
	ErrInvalidDaoAccount = errors.New("invalid dao account")

	// ErrInsufficientReserves is returned when the backing check fails.
	ErrInsufficientReserves = errors.New("insufficient reserves")

	// ErrInsufficientAmount is returned when an amount is zero or the fee
	// subtraction underflows.
	ErrInsufficientAmount = errors.New("insufficient amount")
)
