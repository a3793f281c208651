package epochstake

import (
	"errors"

	"epochstake/native/bank"
)

var (
	ErrInvalidEpoch             = errors.New("epochstake: invalid epoch")
	ErrInvalidMint              = errors.New("epochstake: balance asset does not match the pool asset")
	ErrInvalidUserTokenAccount  = errors.New("epochstake: balance is not owned by the caller")
	ErrInsufficientStakedAmount = errors.New("epochstake: insufficient staked amount")
	ErrStakingPeriodNotEnded    = errors.New("epochstake: staking period has not ended")
	ErrNumericOverflow          = errors.New("epochstake: numeric overflow")
	// ErrTransferFailed is the bank's failure class; rejected movements are
	// propagated unchanged.
	ErrTransferFailed = bank.ErrTransferFailed

	ErrZeroAmount         = errors.New("epochstake: amount must be positive")
	ErrNegativeElapsed    = errors.New("epochstake: elapsed time must not be negative")
	ErrRecordExists       = errors.New("epochstake: stake record already initialized")
	ErrRecordNotFound     = errors.New("epochstake: stake record not initialized")
	ErrPoolExists         = errors.New("epochstake: pool already initialized")
	ErrPoolNotInitialized = errors.New("epochstake: pool not initialized")
	ErrNameTooLong        = errors.New("epochstake: display name too long")
	ErrInvalidName        = errors.New("epochstake: display name must be valid UTF-8")

	errNilStore = errors.New("epochstake engine: store not configured")
)
