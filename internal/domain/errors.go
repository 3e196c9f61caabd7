package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrCapacityExceeded      = errors.New("capacity exceeded")
	ErrInvalidCapacityEdit   = errors.New("invalid capacity edit")
	ErrInvalidTicketClass    = errors.New("invalid ticket class")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrGatewayDeclined       = errors.New("payment declined by gateway")
	ErrAmountMismatch        = errors.New("gateway amount mismatch")
	ErrAlreadyTerminal       = errors.New("booking already terminal")
	ErrInvalidState          = errors.New("invalid booking state")
	ErrEventInUse            = errors.New("event has active bookings")
)

// IsBusinessRejection reports whether err is an expected outcome that the
// caller can act on, as opposed to a system fault.
func IsBusinessRejection(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidInput, ErrInsufficientInventory, ErrInvalidCapacityEdit,
		ErrInvalidTicketClass, ErrUnauthenticated, ErrUnauthorized, ErrGatewayDeclined,
		ErrAmountMismatch, ErrAlreadyTerminal, ErrInvalidState, ErrEventInUse, ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
