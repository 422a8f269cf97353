package core

import "errors"

var (
	// ErrInvalidOrder indicates the order parameters are unusable (zero or
	// negative price/quantity).
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInsufficientSize indicates the sized quantity rounded down below the
	// exchange minimums. Callers skip submission; this is not a fault.
	ErrInsufficientSize = errors.New("quantity below exchange minimum")
	// ErrInsufficientBalance indicates the exchange rejected the action due to insufficient funds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateOrder indicates the client order id has already been accepted before.
	ErrDuplicateOrder = errors.New("duplicate order")
	// ErrOrderNotFound indicates the order does not exist on exchange.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderRejected indicates the order was rejected by exchange.
	ErrOrderRejected = errors.New("order rejected")
)
