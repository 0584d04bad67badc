package ledger

import (
	"errors"
	"fmt"
)

// The ledger's error taxonomy. Every user-visible failure is one of these
// terminal kinds, matched with errors.Is. Internal faults (storage, wallet
// backends) must not be mapped onto them.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid state for operation")
	ErrValidation             = errors.New("validation failed")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrDuplicateParticipation = errors.New("user already staked on this wager")
	ErrSelfMatch              = errors.New("maker cannot accept own offer")
	ErrAlreadyClaimed         = errors.New("already claimed")
	ErrNothingToClaim         = errors.New("nothing to claim")
	ErrNoParticipation        = errors.New("user did not participate in this wager")
	ErrNotWinner              = errors.New("user's side did not win")
)

// validationf wraps ErrValidation with detail so callers can both match the
// kind and read the reason.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// invalidStatef wraps ErrInvalidState with the offending status.
func invalidStatef(op string, s Status) error {
	return fmt.Errorf("%w: %s not allowed while %s", ErrInvalidState, op, s)
}
