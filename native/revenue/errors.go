package revenue

import "errors"

var (
	ErrSupplyCapExceeded   = errors.New("revenue: supply cap exceeded")
	ErrPeriodInProgress    = errors.New("revenue: period in progress")
	ErrBlackoutPeriod      = errors.New("revenue: withdrawals disabled during blackout period")
	ErrZeroRevenue         = errors.New("revenue: last period closed with zero revenue")
	ErrZeroWithdrawalPower = errors.New("revenue: zero withdrawal power")
	ErrNoGrants            = errors.New("revenue: holder has no grants")
	ErrNothingExercisable  = errors.New("revenue: no matured grants to exercise")
	ErrInvalidSignature    = errors.New("revenue: invalid signature")
	ErrArityMismatch       = errors.New("revenue: input arrays differ in length")
	ErrUnauthorized        = errors.New("revenue: unauthorized")
	ErrTransferReverted    = errors.New("revenue: value transfer reverted")

	ErrInvalidAmount  = errors.New("revenue: amount must be positive")
	ErrAmountOverflow = errors.New("revenue: amount exceeds 256 bits")
	ErrStalePeriod    = errors.New("revenue: period date does not match last closed period")
	ErrNilState       = errors.New("revenue: state not configured")
	ErrNotInitialised = errors.New("revenue: ledger not initialised")
)
