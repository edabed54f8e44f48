package library

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of
// these, so callers can branch with errors.Is on the kind without caring
// which specific rule fired.
var (
	// ErrValidation covers malformed input: empty fields, bad email or
	// ISBN syntax, non-positive counts, out-of-range years.
	ErrValidation = errors.New("validation")

	// ErrNotFound is returned when a referenced book, member, loan, or
	// reservation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is a business-rule rejection on otherwise valid input,
	// not a bug: no copies left, duplicate reservation, and so on.
	ErrConflict = errors.New("conflict")

	// ErrPersistence is a collection-file read or write failure. The
	// in-memory state may already be mutated when it surfaces; callers
	// should treat it as fatal for the operation, not retry it.
	ErrPersistence = errors.New("persistence")
)

// Specific errors, each wrapping its kind.
var (
	ErrInvalidISBN     = fmt.Errorf("%w: invalid ISBN", ErrValidation)
	ErrInvalidEmail    = fmt.Errorf("%w: invalid email address", ErrValidation)
	ErrEmptyTitle      = fmt.Errorf("%w: title cannot be empty", ErrValidation)
	ErrEmptyAuthor     = fmt.Errorf("%w: author cannot be empty", ErrValidation)
	ErrEmptyName       = fmt.Errorf("%w: name cannot be empty", ErrValidation)
	ErrInvalidYear     = fmt.Errorf("%w: publication year out of range", ErrValidation)
	ErrNonPositiveCopy = fmt.Errorf("%w: copy count must be positive", ErrValidation)
	ErrEmptyID         = fmt.Errorf("%w: identifier cannot be empty", ErrValidation)

	ErrBookNotFound   = fmt.Errorf("%w: book", ErrNotFound)
	ErrMemberNotFound = fmt.Errorf("%w: member", ErrNotFound)

	// ErrNoAvailableCopy signals that a checkout fell back to creating a
	// reservation; CheckoutBook returns the reservation alongside it.
	ErrNoAvailableCopy = fmt.Errorf("%w: no copies available, reservation created", ErrConflict)

	ErrNoCopiesAvailable    = fmt.Errorf("%w: no copies available", ErrConflict)
	ErrOverReturn           = fmt.Errorf("%w: all copies already on shelf", ErrConflict)
	ErrInsufficientCopies   = fmt.Errorf("%w: not enough available copies to remove", ErrConflict)
	ErrAlreadyReturned      = fmt.Errorf("%w: loan already returned", ErrConflict)
	ErrAlreadyFulfilled     = fmt.Errorf("%w: reservation already fulfilled", ErrConflict)
	ErrNoActiveLoan         = fmt.Errorf("%w: no active loan for this book and member", ErrConflict)
	ErrDuplicateReservation = fmt.Errorf("%w: member already holds an active reservation for this book", ErrConflict)
	ErrBookHasActiveLoans   = fmt.Errorf("%w: cannot remove book with active loans", ErrConflict)
)
