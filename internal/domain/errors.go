package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInsufficientPay    = errors.New("insufficient payment")
	ErrBidTooLow          = errors.New("bid too low")
	ErrDeadlineNotReached = errors.New("deadline not reached")
	ErrAlreadyExpired     = errors.New("already expired")
	ErrNotCurrentVersion  = errors.New("not current market version")
	ErrNothingToWithdraw  = errors.New("nothing to withdraw")
	ErrInvalidPage        = errors.New("invalid page number")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidFeeType     = errors.New("invalid fee type")
	ErrAmountOverflow     = errors.New("amount overflow")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrRateLimited        = errors.New("rate limited")
	ErrLockHeld           = errors.New("lock already held")
)
