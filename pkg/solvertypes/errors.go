package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a Store when a key is absent from a
	// namespace, and by the StateMachine when an order id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned by an Order-Standard collaborator when an
	// intent fails validation. The core never retries it.
	ErrValidation = errors.New("intent failed validation")
)

// InvalidTransitionError reports an attempted status change rejected by the
// transition table.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", TruncateID(e.OrderID), e.From, e.To)
}
