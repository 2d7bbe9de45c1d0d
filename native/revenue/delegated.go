package revenue

import "math/big"

func (e *Engine) signer(periodDate uint64, signature []byte) ([20]byte, error) {
	var holder [20]byte
	if e.auth == nil {
		return holder, ErrInvalidSignature
	}
	last, err := e.lastClosed()
	if err != nil {
		return holder, err
	}
	if last == nil || last.Date != periodDate {
		return holder, ErrStalePeriod
	}
	return e.auth.Recover(periodDate, signature)
}

// RedeemBySig redeems on behalf of the holder that signed periodDate, which
// must be the date of the last closed period.
func (e *Engine) RedeemBySig(periodDate uint64, signature []byte) ([20]byte, *big.Int, error) {
	if err := e.ready(); err != nil {
		return [20]byte{}, nil, err
	}
	holder, err := e.signer(periodDate, signature)
	if err != nil {
		return holder, nil, err
	}
	amount, err := e.Redeem(holder)
	return holder, amount, err
}

// WithdrawBySig withdraws on behalf of the holder that signed periodDate.
func (e *Engine) WithdrawBySig(periodDate uint64, signature []byte) ([20]byte, *big.Int, error) {
	if err := e.ready(); err != nil {
		return [20]byte{}, nil, err
	}
	holder, err := e.signer(periodDate, signature)
	if err != nil {
		return holder, nil, err
	}
	amount, err := e.Withdraw(holder)
	return holder, amount, err
}

// RedeemBulk runs RedeemBySig for every entry. A failing entry is rolled back
// on its own and reported in its result; the remaining entries still run.
func (e *Engine) RedeemBulk(periodDates []uint64, signatures [][]byte) ([]BulkResult, error) {
	return e.bulk(periodDates, signatures, e.RedeemBySig)
}

// WithdrawBulk runs WithdrawBySig for every entry with the same best-effort
// semantics as RedeemBulk.
func (e *Engine) WithdrawBulk(periodDates []uint64, signatures [][]byte) ([]BulkResult, error) {
	return e.bulk(periodDates, signatures, e.WithdrawBySig)
}

func (e *Engine) bulk(periodDates []uint64, signatures [][]byte, call func(uint64, []byte) ([20]byte, *big.Int, error)) ([]BulkResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if len(periodDates) != len(signatures) {
		return nil, ErrArityMismatch
	}
	results := make([]BulkResult, len(periodDates))
	for i := range periodDates {
		holder, amount, err := call(periodDates[i], signatures[i])
		results[i] = BulkResult{Index: i, Holder: holder, Amount: amount, Err: err}
	}
	return results, nil
}
