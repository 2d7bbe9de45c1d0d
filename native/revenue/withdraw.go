package revenue

import (
	"errors"
	"math/big"

	"revchain/native/bank"
)

// WithdrawalPower returns the part of holder's balance not yet paid out
// against the last closed period. It is zero before the first rollover.
func (e *Engine) WithdrawalPower(holder [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	last, err := e.lastClosed()
	if err != nil {
		return nil, err
	}
	if last == nil {
		return big.NewInt(0), nil
	}
	return e.withdrawalPower(last.ID, holder)
}

func (e *Engine) withdrawalPower(periodID uint64, holder [20]byte) (*big.Int, error) {
	balance, err := e.units.BalanceOf(holder)
	if err != nil {
		return nil, err
	}
	receipt, err := e.state.RevenueReceipt(periodID, holder)
	if err != nil {
		return nil, err
	}
	power := new(big.Int).Sub(balance, receipt)
	if power.Sign() < 0 {
		power.SetInt64(0)
	}
	return power, nil
}

// Receipt returns how much of holder's balance was already paid out against
// the closed period periodID.
func (e *Engine) Receipt(periodID uint64, holder [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.RevenueReceipt(periodID, holder)
}

// Withdraw pays holder its proportional share of the last closed period's
// revenue for the part of its balance not yet paid out. The receipt is
// recorded before value leaves custody so a payee that re-enters the engine
// sees zero remaining power.
func (e *Engine) Withdraw(holder [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var paid *big.Int
	err := e.atomic(func() error {
		current, err := e.currentPeriod()
		if err != nil {
			return err
		}
		if e.inBlackout(current, e.now()) {
			return ErrBlackoutPeriod
		}
		last, err := e.lastClosed()
		if err != nil {
			return err
		}
		if last == nil || last.Revenue.Sign() == 0 {
			return ErrZeroRevenue
		}
		power, err := e.withdrawalPower(last.ID, holder)
		if err != nil {
			return err
		}
		if power.Sign() == 0 {
			return ErrZeroWithdrawalPower
		}
		supply, err := e.units.TotalSupply()
		if err != nil {
			return err
		}
		share, err := shareOf(power, last.Revenue, supply)
		if err != nil {
			return err
		}
		receipt, err := e.state.RevenueReceipt(last.ID, holder)
		if err != nil {
			return err
		}
		if err := e.state.RevenuePutReceipt(last.ID, holder, new(big.Int).Add(receipt, power)); err != nil {
			return err
		}
		if err := e.custody.Pay(holder, share); err != nil {
			if errors.Is(err, bank.ErrPayeeRejected) {
				return ErrTransferReverted
			}
			return err
		}
		paid = share
		e.emit(WithdrawEvent{Holder: holder, Amount: newBigInt(share), PeriodID: last.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
