package engine

import "errors"

var (
	// ErrInvalidOrder is returned when an order reaches the engine without passing validation.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrDuplicateOrder is returned when an order id has already been submitted.
	ErrDuplicateOrder = errors.New("duplicate order id")
)

// InvariantViolation reports book or order state that matching must never produce.
// It indicates a defect, not a bad request.
type InvariantViolation struct {
	Rule   string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation [" + e.Rule + "]: " + e.Detail
}
