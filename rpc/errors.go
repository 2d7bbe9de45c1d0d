package rpc

import (
	"errors"
	"net/http"

	"revchain/native/bank"
	"revchain/native/revenue"
)

var errBadRequest = errors.New("invalid request")

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{revenue.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{revenue.ErrAmountOverflow, http.StatusBadRequest, "amount_overflow"},
	{bank.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{bank.ErrZeroAddress, http.StatusBadRequest, "zero_address"},
	{revenue.ErrArityMismatch, http.StatusBadRequest, "arity_mismatch"},
	{revenue.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},
	{errBadRequest, http.StatusBadRequest, "invalid_request"},
	{revenue.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{revenue.ErrNoGrants, http.StatusNotFound, "no_grants"},
	{revenue.ErrSupplyCapExceeded, http.StatusConflict, "supply_cap_exceeded"},
	{revenue.ErrPeriodInProgress, http.StatusConflict, "period_in_progress"},
	{revenue.ErrBlackoutPeriod, http.StatusConflict, "blackout_period"},
	{revenue.ErrZeroRevenue, http.StatusConflict, "zero_revenue"},
	{revenue.ErrZeroWithdrawalPower, http.StatusConflict, "zero_withdrawal_power"},
	{revenue.ErrNothingExercisable, http.StatusConflict, "nothing_exercisable"},
	{revenue.ErrStalePeriod, http.StatusConflict, "stale_period"},
	{bank.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
	{revenue.ErrTransferReverted, http.StatusUnprocessableEntity, "transfer_reverted"},
	{bank.ErrPayeeRejected, http.StatusUnprocessableEntity, "transfer_reverted"},
	{revenue.ErrNotInitialised, http.StatusServiceUnavailable, "not_initialised"},
}

// classify maps a ledger error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}
