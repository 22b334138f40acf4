package fees

import "errors"

var (
	ErrInvalidFeeType = errors.New("fees: invalid fee type")
	ErrEmptyProvider  = errors.New("fees: empty provider")
	ErrEmptyMethod    = errors.New("fees: empty payment method")
	ErrNegativeRate   = errors.New("fees: negative rate")
)
