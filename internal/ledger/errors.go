package ledger

import "errors"

var (
	// ErrDataIntegrity marks a line item with zero quantity where a unit
	// price division is required. Well-formed input never produces this.
	ErrDataIntegrity = errors.New("line item has zero quantity")

	// ErrInvalidOperation marks an attempt to return against a transaction
	// whose total is not positive.
	ErrInvalidOperation = errors.New("transaction is not returnable")

	// ErrInvalidArgument marks a return quantity outside the originally sold
	// range, or a request naming an item the transaction does not contain.
	ErrInvalidArgument = errors.New("invalid return quantity")

	// ErrNothingToReturn marks a return request whose resolved output set is
	// empty.
	ErrNothingToReturn = errors.New("nothing to return")
)
