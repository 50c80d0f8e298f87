package clob

import "errors"

var (
	ErrInvalidParam    = errors.New("the param is invalid")
	ErrInvalidQuantity = errors.New("quantity is out of range")
	ErrInvalidPrice    = errors.New("price is out of range")
	ErrUnknownUser     = errors.New("user is not registered")
	ErrDuplicateUser   = errors.New("user already exists")
	ErrNotFound        = errors.New("not found")
	ErrNotOwner        = errors.New("order does not belong to the user")
	ErrOrderState      = errors.New("operation not permitted in the current order status")
	ErrDuplicateOrder  = errors.New("order id already exists")
	ErrFOKUnfillable   = errors.New("fill-or-kill order cannot be fully filled")
	ErrSymbolMismatch  = errors.New("order symbol does not match the book")
)
