package engine

import "errors"

// Every error rejects the whole call: the aggregate is rolled back to its
// pre-call state and nothing is retried internally.
var (
	ErrInsufficientPayment = errors.New("attached value must equal the stake amount")
	ErrMaxAttemptsExceeded = errors.New("max guess attempts exceeded")
	ErrCooldownActive      = errors.New("cooldown active")
	ErrReentrantCall       = errors.New("reentrant call")
	ErrUnauthorized        = errors.New("caller is not the administrator")
	ErrNothingToWithdraw   = errors.New("nothing to withdraw")
	ErrTransferFailed      = errors.New("outbound transfer failed")
)
